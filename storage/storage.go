// Package storage defines the uniform persistence contract plugins program
// against. One backend is selected at construction time from configuration;
// switching backends does not change caller-visible semantics.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/halcyonmp/framework/config"
)

var (
	// ErrDuplicateKey indicates a uniqueness constraint was violated by a write.
	ErrDuplicateKey = errors.New("storage: duplicate key")

	// ErrUnknownDriver indicates the configured backend name has no registered factory.
	ErrUnknownDriver = errors.New("storage: unknown driver")
)

// Record is one stored row or document.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Criteria selects records by field equality.
type Criteria struct {
	Where map[string]any
}

// Store is a handle bound to one logical collection. Handles are cheap,
// independently constructible and safe for concurrent use.
type Store interface {
	// FindFirst returns the first matching record, or nil when none matches.
	// Absence is not an error.
	FindFirst(ctx context.Context, criteria Criteria) (Record, error)

	// Write inserts a record and returns it as created. Violating a
	// uniqueness constraint fails with ErrDuplicateKey.
	Write(ctx context.Context, data Record) (Record, error)

	// Update merges data into every matching record and returns the number
	// of records affected. Zero matches is not an error; callers inspect
	// the count.
	Update(ctx context.Context, data Record, criteria Criteria) (int64, error)
}

// Driver is a connected storage backend.
type Driver interface {
	// Collection returns a Store bound to the named collection.
	Collection(name string) Store

	// Exec runs a backend-native statement. Escape hatch for schema
	// bootstrap; the result shape is driver specific.
	Exec(ctx context.Context, statement string, args ...any) (any, error)

	// Close releases the backend connection.
	Close() error
}

// Factory constructs a Driver from database settings.
type Factory func(cfg config.DatabaseSettings) (Driver, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Factory)
)

// Register makes a backend available under the given configuration name.
// Backends call this from init, like database/sql drivers.
func Register(name string, factory Factory) {
	driversMu.Lock()
	defer driversMu.Unlock()

	if factory == nil {
		panic("storage: Register factory is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("storage: Register called twice for driver " + name)
	}
	drivers[name] = factory
}

// Drivers returns the registered backend names, sorted.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()

	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open constructs the backend named by cfg.Driver.
func Open(cfg config.DatabaseSettings) (Driver, error) {
	driversMu.RLock()
	factory, ok := drivers[cfg.Driver]
	driversMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownDriver, cfg.Driver, Drivers())
	}
	return factory(cfg)
}
