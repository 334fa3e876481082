package quota

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theLastOfCats/anishelf/internal/db"
	"github.com/theLastOfCats/anishelf/internal/logger"
	"github.com/theLastOfCats/anishelf/internal/model"
	"github.com/theLastOfCats/anishelf/internal/toast"
)

type fixedEstimate struct {
	usage int64
	err   error
}

func (f fixedEstimate) Estimate(context.Context) (int64, error) {
	return f.usage, f.err
}

func setup(t *testing.T, est db.Estimator) (*Guard, *db.DB, *toast.Queue) {
	t.Helper()
	store, err := db.New(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	q := toast.NewQueue(10)
	g := New(store, est, toast.NewNotifier(q), logger.Discard())
	g.Now = func() time.Time { return time.UnixMilli(1_700_000_000_000) }
	g.NewID = func() string { return "storage-1" }
	return g, store, q
}

func readListData(t *testing.T, store *db.DB) model.ListData {
	t.Helper()
	raw, err := store.Get(context.Background(), model.KeyListData)
	require.NoError(t, err)
	var d model.ListData
	require.NoError(t, json.Unmarshal(raw, &d))
	return d
}

func TestPersistWritesUnderQuota(t *testing.T) {
	g, store, q := setup(t, fixedEstimate{usage: 10})
	data := model.DefaultListData()
	data.PlanToWatch = []int{7}

	res, err := g.Persist(context.Background(), data)
	require.NoError(t, err)
	assert.False(t, res.Blocked)
	assert.Equal(t, model.DefaultStorageQuota, res.Quota)
	assert.Equal(t, []int{7}, readListData(t, store).PlanToWatch)
	assert.Empty(t, q.Drain())
}

func TestPersistFailsOpen(t *testing.T) {
	for name, est := range map[string]db.Estimator{
		"no estimator":    nil,
		"estimator error": fixedEstimate{err: errors.New("unavailable")},
	} {
		t.Run(name, func(t *testing.T) {
			g, store, _ := setup(t, est)
			data := model.DefaultListData()
			data.StorageQuota = 1
			data.PlanToRead = []int{3}

			res, err := g.Persist(context.Background(), data)
			require.NoError(t, err)
			assert.False(t, res.Blocked)
			assert.Equal(t, []int{3}, readListData(t, store).PlanToRead)
		})
	}
}

func TestPersistVetoKeepsPrimaryPayload(t *testing.T) {
	g, store, q := setup(t, fixedEstimate{usage: 2048})
	ctx := context.Background()

	original := model.DefaultListData()
	original.CurrentlyWatching = []int{1}
	original.StorageQuota = 1024
	// The estimate is fixed above the quota, so seed the store directly.
	raw, _ := json.Marshal(original)
	require.NoError(t, store.Set(ctx, model.KeyListData, raw))

	changed := original.Clone()
	changed.CurrentlyWatching = []int{1, 2}

	res, err := g.Persist(ctx, changed)
	require.NoError(t, err)
	require.True(t, res.Blocked)
	require.NotNil(t, res.Notice)
	assert.Equal(t, int64(2048), res.Usage)
	assert.Equal(t, int64(1024), res.Quota)

	stored := readListData(t, store)
	assert.Equal(t, []int{1}, stored.CurrentlyWatching)
	require.Len(t, stored.Notifications, 1)
	assert.Equal(t, model.KindStorage, stored.Notifications[0].Kind)
	assert.Equal(t, int64(2048), stored.Notifications[0].Storage.Usage)

	toasts := q.Drain()
	require.Len(t, toasts, 1)
	assert.Equal(t, toast.VariantWarning, toasts[0].Variant)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.0 GiB", formatBytes(1<<30))
	assert.Equal(t, "1.5 KiB", formatBytes(1536))
}
