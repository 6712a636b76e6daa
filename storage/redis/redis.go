// Package redis provides a document storage backend on go-redis. Records are
// JSON values keyed by namespace:collection:key. Registers itself under the
// driver name "redis".
package redis

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/halcyonmp/framework/config"
	"github.com/halcyonmp/framework/json"
	"github.com/halcyonmp/framework/storage"
)

func init() {
	storage.Register("redis", func(cfg config.DatabaseSettings) (storage.Driver, error) {
		return Open(cfg)
	})
}

// Driver stores collections as JSON documents in a redis keyspace.
type Driver struct {
	client    *goredis.Client
	namespace string
}

// Open connects to redis and verifies the connection with a ping.
func Open(cfg config.DatabaseSettings) (*Driver, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr(), err)
	}

	namespace := cfg.Name
	if namespace == "" {
		namespace = "halcyon"
	}
	return &Driver{client: client, namespace: namespace}, nil
}

// Collection returns a Store bound to the named collection.
func (d *Driver) Collection(name string) storage.Store {
	return &collection{driver: d, name: name}
}

// Exec runs a raw redis command, tokens separated by whitespace.
func (d *Driver) Exec(ctx context.Context, statement string, args ...any) (any, error) {
	tokens := strings.Fields(statement)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("redis: empty statement")
	}

	cmd := make([]any, 0, len(tokens)+len(args))
	for _, tok := range tokens {
		cmd = append(cmd, tok)
	}
	cmd = append(cmd, args...)
	return d.client.Do(ctx, cmd...).Result()
}

// Close closes the client connection.
func (d *Driver) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

// collection implements storage.Store over one key prefix.
type collection struct {
	driver *Driver
	name   string
}

func (c *collection) prefix() string {
	return c.driver.namespace + ":" + c.name + ":"
}

func (c *collection) key(recordKey string) string {
	return c.prefix() + recordKey
}

// recordKey derives the uniqueness key from the record's id field.
func recordKey(data storage.Record) (string, bool) {
	v, ok := data["id"]
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%v", v), true
}

func (c *collection) FindFirst(ctx context.Context, criteria storage.Criteria) (storage.Record, error) {
	// Direct lookup when the criteria pin the id.
	if id, ok := criteria.Where["id"]; ok && len(criteria.Where) == 1 {
		rec, err := c.load(ctx, c.key(fmt.Sprintf("%v", id)))
		if err != nil || rec == nil {
			return nil, err
		}
		return rec, nil
	}

	var found storage.Record
	err := c.scan(ctx, func(rec storage.Record) (bool, error) {
		if storage.Matches(rec, criteria) {
			found = rec
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (c *collection) Write(ctx context.Context, data storage.Record) (storage.Record, error) {
	created := data.Clone()
	id, ok := recordKey(created)
	if !ok {
		id = uuid.NewString()
		created["id"] = id
	}

	payload, err := json.Marshal(created)
	if err != nil {
		return nil, fmt.Errorf("redis: encode record: %w", err)
	}

	set, err := c.driver.client.SetNX(ctx, c.key(id), payload, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: write %s: %w", c.name, err)
	}
	if !set {
		return nil, fmt.Errorf("%w: %s", storage.ErrDuplicateKey, c.name)
	}
	return created, nil
}

func (c *collection) Update(ctx context.Context, data storage.Record, criteria storage.Criteria) (int64, error) {
	var affected int64
	err := c.scan(ctx, func(rec storage.Record) (bool, error) {
		if !storage.Matches(rec, criteria) {
			return true, nil
		}

		for k, v := range data {
			rec[k] = v
		}
		id, ok := recordKey(rec)
		if !ok {
			return true, nil
		}
		payload, err := json.Marshal(rec)
		if err != nil {
			return false, fmt.Errorf("redis: encode record: %w", err)
		}
		if err := c.driver.client.Set(ctx, c.key(id), payload, 0).Err(); err != nil {
			return false, fmt.Errorf("redis: update %s: %w", c.name, err)
		}
		affected++
		return true, nil
	})
	return affected, err
}

// scan walks every record in the collection until visit returns false.
func (c *collection) scan(ctx context.Context, visit func(storage.Record) (bool, error)) error {
	iter := c.driver.client.Scan(ctx, 0, c.prefix()+"*", 0).Iterator()
	for iter.Next(ctx) {
		rec, err := c.load(ctx, iter.Val())
		if err != nil {
			return err
		}
		if rec == nil {
			continue
		}
		cont, err := visit(rec)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	return iter.Err()
}

func (c *collection) load(ctx context.Context, key string) (storage.Record, error) {
	payload, err := c.driver.client.Get(ctx, key).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get %s: %w", key, err)
	}

	var rec storage.Record
	if err := json.UnmarshalFromString(payload, &rec); err != nil {
		return nil, fmt.Errorf("redis: decode %s: %w", key, err)
	}
	return rec, nil
}
