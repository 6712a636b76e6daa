// Package memory provides an in-process storage backend used by tests and
// ephemeral servers. Registers itself under the driver name "memory".
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/halcyonmp/framework/config"
	"github.com/halcyonmp/framework/storage"
)

func init() {
	storage.Register("memory", func(cfg config.DatabaseSettings) (storage.Driver, error) {
		return Open(), nil
	})
}

// Driver keeps all collections in process memory.
type Driver struct {
	mu          sync.RWMutex
	collections map[string][]storage.Record
}

// Open creates an empty in-memory driver.
func Open() *Driver {
	return &Driver{
		collections: make(map[string][]storage.Record),
	}
}

// Collection returns a Store bound to the named collection.
func (d *Driver) Collection(name string) storage.Store {
	return &collection{driver: d, name: name}
}

// Exec is accepted for compatibility with schema bootstrap statements.
// There is no schema to create; the statement text is echoed back.
func (d *Driver) Exec(ctx context.Context, statement string, args ...any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return statement, nil
}

// Close drops all collections.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.collections = make(map[string][]storage.Record)
	return nil
}

type collection struct {
	driver *Driver
	name   string
}

func (c *collection) FindFirst(ctx context.Context, criteria storage.Criteria) (storage.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.driver.mu.RLock()
	defer c.driver.mu.RUnlock()

	for _, rec := range c.driver.collections[c.name] {
		if storage.Matches(rec, criteria) {
			return rec.Clone(), nil
		}
	}
	return nil, nil
}

func (c *collection) Write(ctx context.Context, data storage.Record) (storage.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	created := data.Clone()
	if _, ok := created["id"]; !ok {
		created["id"] = uuid.NewString()
	}

	c.driver.mu.Lock()
	defer c.driver.mu.Unlock()

	for _, rec := range c.driver.collections[c.name] {
		if storage.Matches(rec, storage.Criteria{Where: map[string]any{"id": created["id"]}}) {
			return nil, fmt.Errorf("%w: %s", storage.ErrDuplicateKey, c.name)
		}
	}

	c.driver.collections[c.name] = append(c.driver.collections[c.name], created.Clone())
	return created, nil
}

func (c *collection) Update(ctx context.Context, data storage.Record, criteria storage.Criteria) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	c.driver.mu.Lock()
	defer c.driver.mu.Unlock()

	var affected int64
	for _, rec := range c.driver.collections[c.name] {
		if !storage.Matches(rec, criteria) {
			continue
		}
		for k, v := range data {
			rec[k] = v
		}
		affected++
	}
	return affected, nil
}
