package plugin

import "context"

// CommandMeta is the descriptive metadata broadcast to connected clients on
// registration so remote command palettes stay in sync.
type CommandMeta struct {
	Description string         `json:"description,omitempty"`
	Usage       string         `json:"usage,omitempty"`
	Restricted  bool           `json:"restricted,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// Invocation carries the arguments of one command dispatch.
type Invocation struct {
	// Source identifies the invoker (player session id, console, etc).
	Source string
	// Args are the raw arguments following the command name.
	Args []string
	// Raw is the unparsed invocation string.
	Raw string
}

// CommandHandler executes a command invocation.
type CommandHandler func(ctx context.Context, inv Invocation) (any, error)

// Registration describes one command registration call. Every name in Names
// becomes an independent entry sharing the same handler and metadata.
type Registration struct {
	Names   []string
	Handler CommandHandler
	Meta    CommandMeta

	// ClientOriginated marks declarations forwarded from client plugins.
	// They are metadata only: a name collision with an existing entry is
	// a silent no-op instead of an error.
	ClientOriginated bool
}

// CommandInfo is the queryable view of a registered command.
type CommandInfo struct {
	Name             string      `json:"name"`
	Meta             CommandMeta `json:"meta"`
	ClientOriginated bool        `json:"clientOriginated"`
}

// CommandRegistry maps invocable names to handlers across surfaces.
type CommandRegistry interface {
	// Register adds entries for every name in the registration. A server
	// command colliding with an existing name fails; client-originated
	// collisions are no-ops.
	Register(reg Registration) error

	// Dispatch invokes the handler registered under name. Unknown names
	// fail with a command_not_found error, never fatally.
	Dispatch(ctx context.Context, name string, inv Invocation) (any, error)

	// List returns all registered commands sorted by name.
	List() []CommandInfo
}
