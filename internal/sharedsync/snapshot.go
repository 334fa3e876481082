package sharedsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/theLastOfCats/anishelf/internal/db"
	"github.com/theLastOfCats/anishelf/internal/model"
)

// Snapshot assembles the portable document from the store.
func (c *Client) Snapshot(ctx context.Context) (model.Snapshot, error) {
	if err := c.host.Quiesce(ctx); err != nil {
		c.log.Debug("quiesce before export failed", "error", err)
	}

	var snap model.Snapshot

	raw, err := c.store.Get(ctx, model.KeyProfile)
	if errors.Is(err, db.ErrNotFound) {
		return snap, ErrNothingToExport
	}
	if err != nil {
		return snap, fmt.Errorf("read profile: %w", err)
	}
	var profile model.Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return snap, fmt.Errorf("decode profile: %w", err)
	}
	snap.Profile = &profile

	lists := model.DefaultListData()
	raw, err = c.store.Get(ctx, model.KeyListData)
	switch {
	case err == nil:
		lists = model.ListData{}
		if err := json.Unmarshal(raw, &lists); err != nil {
			return snap, fmt.Errorf("decode list data: %w", err)
		}
	case !errors.Is(err, db.ErrNotFound):
		return snap, fmt.Errorf("read list data: %w", err)
	}
	snap.Lists = &lists

	raw, err = c.store.Get(ctx, model.KeyLayout)
	switch {
	case err == nil:
		snap.Layout = json.RawMessage(raw)
	case !errors.Is(err, db.ErrNotFound):
		return snap, fmt.Errorf("read layout: %w", err)
	}

	raw, err = c.store.Get(ctx, model.KeyTrackedMedia)
	switch {
	case err == nil:
		tracked := model.TrackedMedia{}
		if err := json.Unmarshal(raw, &tracked); err != nil {
			c.log.Warn("tracked media cache is unreadable, exporting without it", "error", err)
		} else {
			snap.Tracked = tracked
		}
	case !errors.Is(err, db.ErrNotFound):
		return snap, fmt.Errorf("read tracked media: %w", err)
	}

	return snap, nil
}

// Export writes the snapshot as indented JSON.
func (c *Client) Export(ctx context.Context, w io.Writer) error {
	snap, err := c.Snapshot(ctx)
	if err != nil {
		c.notifier.Error("Export failed", err.Error())
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		c.notifier.Error("Export failed", err.Error())
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

// Import validates a snapshot document, overwrites local data with it and
// reloads. The sync target is left alone.
func (c *Client) Import(ctx context.Context, r io.Reader) (model.Snapshot, error) {
	epoch := c.currentEpoch()
	raw, err := io.ReadAll(io.LimitReader(r, maxSnapshotBytes+1))
	if err == nil && len(raw) > maxSnapshotBytes {
		err = fmt.Errorf("snapshot exceeds %d bytes", maxSnapshotBytes)
	}
	if err != nil {
		c.notifier.Error("Import failed", err.Error())
		return model.Snapshot{}, err
	}

	snap, err := DecodeSnapshot(raw)
	if err != nil {
		c.notifier.Error("Import failed", err.Error())
		return model.Snapshot{}, err
	}
	if err := c.overwrite(ctx, epoch, snap, nil); err != nil {
		c.notifier.Error("Import failed", err.Error())
		return model.Snapshot{}, err
	}

	c.log.Info("snapshot imported", "username", snap.Profile.Username, "bytes", len(raw))
	c.notifier.Info("Import complete", fmt.Sprintf("Restored profile %q.", snap.Profile.Username))
	return snap, nil
}
