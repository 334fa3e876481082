package testutil

import (
	"context"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/theLastOfCats/anishelf/internal/db"
	"github.com/theLastOfCats/anishelf/internal/logger"
	"github.com/theLastOfCats/anishelf/internal/model"
	"github.com/theLastOfCats/anishelf/internal/quota"
	"github.com/theLastOfCats/anishelf/internal/state"
	"github.com/theLastOfCats/anishelf/internal/toast"
)

// SetupTestDB creates a file-backed SQLite store private to the test.
func SetupTestDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to init test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

// NewNotifier returns a notifier whose toasts land in the returned queue.
func NewNotifier() (*toast.Notifier, *toast.Queue) {
	q := toast.NewQueue(100)
	return toast.NewNotifier(q), q
}

// NewListService wires a list data service over store with no storage estimate.
func NewListService(t *testing.T, store *db.DB) *state.Service {
	t.Helper()
	notifier, _ := NewNotifier()
	guard := quota.New(store, nil, notifier, logger.Discard())
	svc := state.New(store, guard, logger.Discard())
	t.Cleanup(func() { svc.Close() })
	return svc
}

// FakeCatalog serves media from a map and records requested ids.
type FakeCatalog struct {
	mu    sync.Mutex
	media map[int]model.Media
	calls [][]int
}

func NewFakeCatalog(media ...model.Media) *FakeCatalog {
	c := &FakeCatalog{media: make(map[int]model.Media)}
	for _, m := range media {
		c.media[m.ID] = m
	}
	return c
}

// Put adds or replaces a record.
func (c *FakeCatalog) Put(m model.Media) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.media[m.ID] = m
}

// FetchMultipleMediaByIds returns the known records. Unknown ids are skipped.
func (c *FakeCatalog) FetchMultipleMediaByIds(_ context.Context, ids []int) []model.Media {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, slices.Clone(ids))

	var out []model.Media
	for _, id := range ids {
		if m, ok := c.media[id]; ok {
			out = append(out, m)
		}
	}
	return out
}

func (c *FakeCatalog) Calls() [][]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.calls)
}

func IntPtr(v int) *int { return &v }
