// Package plugin defines the contracts between the runtime and feature
// plugins: the module entry interface, manifest discovery, and the typed
// interaction surface (AppContext) handed to every server module.
package plugin

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Module is the entry point of one server-side plugin module. Implementations
// are compiled into the server binary and registered into an EntryTable under
// the module id their manifest lists.
type Module interface {
	Start(ctx context.Context, app *AppContext, cfg ConfigProvider) error
}

// --- Optional Capability Interfaces ---
// The initializer detects these via type assertion: if m, ok := mod.(Stoppable); ok { ... }

// Stoppable -- cleanup on shutdown (release resources, flush buffers).
type Stoppable interface {
	Stop(ctx context.Context, app *AppContext) error
}

// RouteProvider -- mount HTTP routes on the status router.
type RouteProvider interface {
	RegisterRoutes(router chi.Router)
}

// EventSubscriber -- subscribe to runtime and plugin events after start.
type EventSubscriber interface {
	SubscribeEvents(bus EventBus)
}

// HealthReporter -- provide a custom health check.
type HealthReporter interface {
	HealthCheck(ctx context.Context) error
}

// ModuleFunc adapts a function to the Module interface.
type ModuleFunc func(ctx context.Context, app *AppContext, cfg ConfigProvider) error

func (f ModuleFunc) Start(ctx context.Context, app *AppContext, cfg ConfigProvider) error {
	return f(ctx, app, cfg)
}

// EntryTable maps manifest module ids to compiled entry points. Plugins
// register at init time; the initializer resolves manifest ids against it,
// so there is no runtime code loading.
type EntryTable struct {
	mu      sync.RWMutex
	entries map[string]Module
}

// NewEntryTable creates an empty entry table.
func NewEntryTable() *EntryTable {
	return &EntryTable{
		entries: make(map[string]Module),
	}
}

// Register binds a module id to its entry point. Registering the same id
// twice is a programming error.
func (t *EntryTable) Register(id string, mod Module) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if id == "" {
		return fmt.Errorf("module id cannot be empty")
	}
	if mod == nil {
		return fmt.Errorf("module %q entry is nil", id)
	}
	if _, exists := t.entries[id]; exists {
		return fmt.Errorf("module %q already registered", id)
	}
	t.entries[id] = mod
	return nil
}

// MustRegister binds a module id, panicking on conflict. Intended for
// package init blocks.
func (t *EntryTable) MustRegister(id string, mod Module) {
	if err := t.Register(id, mod); err != nil {
		panic(err)
	}
}

// Lookup returns the entry point for a module id.
func (t *EntryTable) Lookup(id string) (Module, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	mod, ok := t.entries[id]
	return mod, ok
}

// Ids returns the registered module ids, sorted.
func (t *EntryTable) Ids() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.entries))
	for id := range t.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// defaultEntries is the table plugins register into from init blocks.
var defaultEntries = NewEntryTable()

// RegisterEntry registers a module into the default entry table.
func RegisterEntry(id string, mod Module) {
	defaultEntries.MustRegister(id, mod)
}

// DefaultEntries returns the default entry table.
func DefaultEntries() *EntryTable {
	return defaultEntries
}
