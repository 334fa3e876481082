// Package db implements the persistent key/value store the rest of the
// application writes through. SQL (sqlite, mysql) and badger backends share
// one contract.
package db

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Get when the key is absent.
var ErrNotFound = errors.New("db: key not found")

// Store is the async key/value contract. Delete of an absent key succeeds.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	ListKeys(ctx context.Context) ([]string, error)
	Apply(ctx context.Context, b Batch) error
	Close() error
}

// Estimator is implemented by backends that can approximate their usage in bytes.
type Estimator interface {
	Estimate(ctx context.Context) (int64, error)
}

// Batch is a set of writes applied atomically.
type Batch struct {
	Set    map[string][]byte
	Delete []string
}

const badgerPrefix = "badger:"

// Open picks a backend from the DSN: "badger:<dir>" opens badger, anything
// else goes through New (mysql when the DSN has credentials, sqlite otherwise).
func Open(dsn string) (Store, error) {
	if path, ok := strings.CutPrefix(dsn, badgerPrefix); ok {
		return OpenBadger(path)
	}
	return New(dsn)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
