package runtime

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/halcyonmp/framework/errors"
	"github.com/halcyonmp/framework/logging"
	"github.com/halcyonmp/framework/plugin"
)

// commandRegistry implements plugin.CommandRegistry. Each name of a
// registration becomes an independent entry; a server registration may
// overwrite a client-originated placeholder carrying the same name.
type commandRegistry struct {
	mu      sync.RWMutex
	entries map[string]commandEntry
	bus     plugin.EventBus
	logger  logging.Logger
}

type commandEntry struct {
	handler          plugin.CommandHandler
	meta             plugin.CommandMeta
	clientOriginated bool
}

// NewCommandRegistry creates a command registry broadcasting registrations
// on bus.
func NewCommandRegistry(bus plugin.EventBus, logger logging.Logger) plugin.CommandRegistry {
	return newCommandRegistry(bus, logger)
}

func newCommandRegistry(bus plugin.EventBus, logger logging.Logger) *commandRegistry {
	if logger == nil {
		logger = logging.Nop()
	}
	return &commandRegistry{
		entries: make(map[string]commandEntry),
		bus:     bus,
		logger:  logger.Named("commands"),
	}
}

func (r *commandRegistry) Register(reg plugin.Registration) error {
	if len(reg.Names) == 0 {
		return errors.New(errors.ErrorTypeInternal, "command registration without names")
	}
	if reg.Handler == nil && !reg.ClientOriginated {
		return errors.New(errors.ErrorTypeInternal, "command registration without handler")
	}

	r.mu.Lock()

	// Validate every alias before touching the table: a collision on any
	// name fails the whole registration without leaving partial entries
	// behind, so the broadcast below always covers everything registered.
	if !reg.ClientOriginated {
		for _, name := range reg.Names {
			if existing, taken := r.entries[name]; taken && !existing.clientOriginated {
				r.mu.Unlock()
				return errors.NewDuplicateCommand(name)
			}
		}
	}

	var registered []plugin.CommandInfo
	for _, name := range reg.Names {
		if _, taken := r.entries[name]; taken && reg.ClientOriginated {
			// Client declarations are metadata only; a collision is a
			// silent no-op. Server registrations take over names a
			// client merely declared.
			r.logger.Debug("client command already registered", zap.String("command", name))
			continue
		}
		r.entries[name] = commandEntry{
			handler:          reg.Handler,
			meta:             reg.Meta,
			clientOriginated: reg.ClientOriginated,
		}
		registered = append(registered, plugin.CommandInfo{
			Name:             name,
			Meta:             reg.Meta,
			ClientOriginated: reg.ClientOriginated,
		})
	}
	r.mu.Unlock()

	if r.bus != nil {
		for _, info := range registered {
			r.bus.Publish(context.Background(), plugin.Event{
				Name:   plugin.TopicCommandRegistered,
				Data:   info,
				Source: "runtime",
			})
		}
	}
	return nil
}

func (r *commandRegistry) Dispatch(ctx context.Context, name string, inv plugin.Invocation) (any, error) {
	r.mu.RLock()
	entry, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok || entry.handler == nil {
		return nil, errors.NewCommandNotFound(name)
	}
	return r.call(ctx, name, entry.handler, inv)
}

// call isolates the handler so a panicking command reports an error to its
// invoker instead of crashing the server.
func (r *commandRegistry) call(ctx context.Context, name string, handler plugin.CommandHandler, inv plugin.Invocation) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = recoveredError(rec)
			r.logger.Error("command handler panic",
				zap.String("command", name),
				zap.Error(err))
		}
	}()
	return handler(ctx, inv)
}

func (r *commandRegistry) List() []plugin.CommandInfo {
	r.mu.RLock()
	infos := make([]plugin.CommandInfo, 0, len(r.entries))
	for name, entry := range r.entries {
		infos = append(infos, plugin.CommandInfo{
			Name:             name,
			Meta:             entry.meta,
			ClientOriginated: entry.clientOriginated,
		})
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
