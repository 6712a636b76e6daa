package runtime

import (
	"context"
	stderrors "errors"

	"github.com/halcyonmp/framework/errors"
	"github.com/halcyonmp/framework/storage"
)

// wrapDriver decorates the bound backend so storage failures reach plugins
// as typed framework errors. The backend sentinel stays reachable through
// the inner error chain.
func wrapDriver(inner storage.Driver) storage.Driver {
	return &typedDriver{inner: inner}
}

type typedDriver struct {
	inner storage.Driver
}

func (d *typedDriver) Collection(name string) storage.Store {
	return &typedStore{inner: d.inner.Collection(name), collection: name}
}

func (d *typedDriver) Exec(ctx context.Context, statement string, args ...any) (any, error) {
	result, err := d.inner.Exec(ctx, statement, args...)
	if err != nil {
		return nil, errors.NewStorage("statement failed").WithInnerError(err)
	}
	return result, nil
}

func (d *typedDriver) Close() error {
	return d.inner.Close()
}

type typedStore struct {
	inner      storage.Store
	collection string
}

func (s *typedStore) FindFirst(ctx context.Context, criteria storage.Criteria) (storage.Record, error) {
	record, err := s.inner.FindFirst(ctx, criteria)
	if err != nil {
		return nil, s.wrap(err)
	}
	// Absence stays (nil, nil).
	return record, nil
}

func (s *typedStore) Write(ctx context.Context, data storage.Record) (storage.Record, error) {
	record, err := s.inner.Write(ctx, data)
	if err != nil {
		return nil, s.wrap(err)
	}
	return record, nil
}

func (s *typedStore) Update(ctx context.Context, data storage.Record, criteria storage.Criteria) (int64, error) {
	count, err := s.inner.Update(ctx, data, criteria)
	if err != nil {
		return 0, s.wrap(err)
	}
	return count, nil
}

func (s *typedStore) wrap(err error) error {
	if stderrors.Is(err, storage.ErrDuplicateKey) {
		return errors.NewDuplicateKey(s.collection).WithInnerError(err)
	}
	return errors.NewStorage("operation failed in " + s.collection).WithInnerError(err)
}
