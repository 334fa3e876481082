package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

const inMemoryPath = ":memory:"

type Badger struct {
	db *badger.DB
}

// OpenBadger opens a badger database in dir. ":memory:" keeps it in RAM.
func OpenBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir)
	if dir == inMemoryPath {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil
	opts.SyncWrites = true
	opts.CompactL0OnClose = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}

func (b *Badger) Get(_ context.Context, key string) ([]byte, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db: get %s: %w", key, err)
	}
	return value, nil
}

func (b *Badger) Set(_ context.Context, key string, value []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("db: set %s: %w", key, err)
	}
	return nil
}

func (b *Badger) Delete(_ context.Context, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("db: delete %s: %w", key, err)
	}
	return nil
}

func (b *Badger) Clear(_ context.Context) error {
	if err := b.db.DropAll(); err != nil {
		return fmt.Errorf("db: clear: %w", err)
	}
	return nil
}

func (b *Badger) ListKeys(_ context.Context) ([]string, error) {
	keys := []string{}
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("db: list keys: %w", err)
	}
	return keys, nil
}

func (b *Badger) Apply(_ context.Context, batch Batch) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		for key, value := range batch.Set {
			if err := txn.Set([]byte(key), value); err != nil {
				return err
			}
		}
		for _, key := range batch.Delete {
			if err := txn.Delete([]byte(key)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("db: apply batch: %w", err)
	}
	return nil
}

// Estimate reports the LSM and value log sizes.
func (b *Badger) Estimate(_ context.Context) (int64, error) {
	lsm, vlog := b.db.Size()
	return lsm + vlog, nil
}
