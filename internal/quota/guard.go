// Package quota gates every list data persist behind a storage budget.
package quota

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/theLastOfCats/anishelf/internal/db"
	"github.com/theLastOfCats/anishelf/internal/id"
	"github.com/theLastOfCats/anishelf/internal/metrics"
	"github.com/theLastOfCats/anishelf/internal/model"
	"github.com/theLastOfCats/anishelf/internal/toast"
)

// Store is the slice of db.Store the guard writes through.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Result reports what happened to a persist. A veto is a Result, not an error.
type Result struct {
	Blocked bool
	Usage   int64
	Quota   int64
	// Notice is the storage notification appended on a veto.
	Notice *model.Notification
}

type Guard struct {
	store     Store
	estimator db.Estimator
	notifier  *toast.Notifier
	log       *slog.Logger

	Now   func() time.Time
	NewID func() string
}

// New builds a guard. A nil estimator makes every write pass.
func New(store Store, estimator db.Estimator, notifier *toast.Notifier, log *slog.Logger) *Guard {
	return &Guard{
		store:     store,
		estimator: estimator,
		notifier:  notifier,
		log:       log,
		Now:       time.Now,
		NewID:     func() string { return id.MustGenerate("storage") },
	}
}

// Persist writes data under the listData key unless current usage exceeds
// the payload's storage quota.
func (g *Guard) Persist(ctx context.Context, data model.ListData) (Result, error) {
	limit := data.StorageQuota
	if limit <= 0 {
		limit = model.DefaultStorageQuota
	}
	res := Result{Quota: limit}

	if g.estimator == nil {
		g.log.Debug("no storage estimate available, allowing write")
		return res, g.write(ctx, data)
	}

	usage, err := g.estimator.Estimate(ctx)
	if err != nil {
		g.log.Warn("storage estimate failed, allowing write", "error", err)
		return res, g.write(ctx, data)
	}
	res.Usage = usage

	if usage <= limit {
		return res, g.write(ctx, data)
	}

	notice := model.StorageNotification(g.NewID(), g.Now().UnixMilli(), model.StoragePayload{Usage: usage, Quota: limit})
	res.Blocked = true
	res.Notice = &notice
	metrics.PersistsTotal.WithLabelValues("blocked").Inc()
	metrics.NotificationsCreated.WithLabelValues(string(model.KindStorage)).Inc()

	g.log.Warn("storage quota exceeded, write blocked", "usage", usage, "quota", limit)

	stored := g.readStored(ctx)
	stored.Notifications = append(stored.Notifications, notice)
	if err := g.set(ctx, stored); err != nil {
		g.log.Warn("failed to persist storage warning", "error", err)
	}

	g.notifier.Warn("Storage limit reached",
		fmt.Sprintf("Using %s of %s. Your latest change was not saved.", formatBytes(usage), formatBytes(limit)))
	return res, nil
}

func (g *Guard) write(ctx context.Context, data model.ListData) error {
	if err := g.set(ctx, data); err != nil {
		metrics.PersistsTotal.WithLabelValues("failed").Inc()
		return err
	}
	metrics.PersistsTotal.WithLabelValues("written").Inc()
	return nil
}

func (g *Guard) set(ctx context.Context, data model.ListData) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode list data: %w", err)
	}
	return g.store.Set(ctx, model.KeyListData, raw)
}

func (g *Guard) readStored(ctx context.Context) model.ListData {
	raw, err := g.store.Get(ctx, model.KeyListData)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			g.log.Warn("failed to read stored list data", "error", err)
		}
		return model.DefaultListData()
	}
	data := model.DefaultListData()
	if err := json.Unmarshal(raw, &data); err != nil {
		g.log.Warn("stored list data is unreadable", "error", err)
		return model.DefaultListData()
	}
	if data.Notifications == nil {
		data.Notifications = []model.Notification{}
	}
	return data
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
