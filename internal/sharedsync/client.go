// Package sharedsync pulls a user-hosted JSON snapshot and overwrites local
// state with it. The same snapshot shape is used for file export and import.
package sharedsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/theLastOfCats/anishelf/internal/db"
	"github.com/theLastOfCats/anishelf/internal/metrics"
	"github.com/theLastOfCats/anishelf/internal/model"
	"github.com/theLastOfCats/anishelf/internal/toast"
)

var (
	ErrMalformedSnapshot = errors.New("sharedsync: snapshot must contain profile and lists")
	ErrNoTarget          = errors.New("sharedsync: no shared data url configured")
	ErrInvalidURL        = errors.New("sharedsync: url must be http or https")
	ErrNothingToExport   = errors.New("sharedsync: no local profile to export")
	ErrAborted           = errors.New("sharedsync: sync aborted")
)

// maxSnapshotBytes bounds a downloaded or imported snapshot.
const maxSnapshotBytes = 64 << 20

type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateSynced       State = "synced"
)

type Outcome string

const (
	OutcomeSynced      Outcome = "synced"
	OutcomeNotModified Outcome = "not_modified"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeFailed      Outcome = "failed"
)

// Store is the slice of db.Store the client needs. Apply performs the bulk
// overwrite atomically.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Apply(ctx context.Context, b db.Batch) error
}

// Host is the application the client overwrites. Quiesce lets queued list
// writes land before the overwrite; Reload refreshes memory afterwards.
type Host interface {
	Quiesce(ctx context.Context) error
	Reload(ctx context.Context) error
}

type Options struct {
	HTTPClient *http.Client
	// RelayURL, when set, receives every fetch as RelayURL?url=<target>.
	RelayURL string
	Notifier *toast.Notifier
	Log      *slog.Logger
}

type Client struct {
	store    Store
	host     Host
	http     *http.Client
	relay    string
	notifier *toast.Notifier
	log      *slog.Logger

	Now func() time.Time

	busy  atomic.Bool
	mu    sync.Mutex
	state State

	// epoch changes on Abort; work started under an older epoch writes nothing.
	epoch  uint64
	cancel context.CancelFunc
	done   chan struct{}
}

func New(store Store, host Host, opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Client{
		store:    store,
		host:     host,
		http:     opts.HTTPClient,
		relay:    opts.RelayURL,
		notifier: opts.Notifier,
		log:      opts.Log,
		Now:      time.Now,
		state:    StateDisconnected,
	}
}

func (c *Client) Status() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Abort cancels a sync in flight, waits for it to return and leaves the
// client disconnected. The aborted sync does not touch the store.
func (c *Client) Abort() {
	c.mu.Lock()
	c.epoch++
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	c.setState(StateDisconnected)
}

// begin registers a sync so Abort can cancel it.
func (c *Client) begin(parent context.Context) (context.Context, uint64, func()) {
	ctx, cancel := context.WithCancel(parent)
	done := make(chan struct{})

	c.mu.Lock()
	c.cancel, c.done = cancel, done
	epoch := c.epoch
	c.mu.Unlock()

	return ctx, epoch, func() {
		c.mu.Lock()
		c.cancel, c.done = nil, nil
		c.mu.Unlock()
		cancel()
		close(done)
	}
}

func (c *Client) aborted(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch != epoch
}

func (c *Client) currentEpoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// Config returns the stored sync target. A missing record is the zero config.
func (c *Client) Config(ctx context.Context) (model.SharedDataConfig, error) {
	var cfg model.SharedDataConfig
	raw, err := c.store.Get(ctx, model.KeySharedData)
	if errors.Is(err, db.ErrNotFound) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read shared data config: %w", err)
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		c.log.Warn("shared data config is unreadable", "error", err)
		return model.SharedDataConfig{}, nil
	}
	return cfg, nil
}

// Connect stores the target URL and syncs immediately.
func (c *Client) Connect(ctx context.Context, target string) (Outcome, error) {
	target = strings.TrimSpace(target)
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return OutcomeFailed, ErrInvalidURL
	}

	raw, err := json.Marshal(model.SharedDataConfig{URL: target})
	if err != nil {
		return OutcomeFailed, err
	}
	if err := c.store.Set(ctx, model.KeySharedData, raw); err != nil {
		return OutcomeFailed, fmt.Errorf("store shared data config: %w", err)
	}
	c.setState(StateConnecting)
	c.log.Info("shared data connected", "url", target)
	return c.Sync(ctx, false)
}

// Disconnect forgets the sync target.
func (c *Client) Disconnect(ctx context.Context) error {
	c.setState(StateDisconnected)
	if err := c.store.Delete(ctx, model.KeySharedData); err != nil {
		return fmt.Errorf("delete shared data config: %w", err)
	}
	return nil
}

// Sync pulls the target. Manual syncs skip the ETag and always report their
// result. A sync already in flight makes this call a no-op.
func (c *Client) Sync(ctx context.Context, manual bool) (Outcome, error) {
	if !c.busy.CompareAndSwap(false, true) {
		metrics.SharedSyncsTotal.WithLabelValues(string(OutcomeSkipped)).Inc()
		return OutcomeSkipped, nil
	}
	defer c.busy.Store(false)

	ctx, epoch, finish := c.begin(ctx)
	defer finish()

	cfg, err := c.Config(ctx)
	if err != nil {
		return c.fail(ctx, epoch, err)
	}
	if cfg.URL == "" {
		return OutcomeFailed, ErrNoTarget
	}
	c.setState(StateConnecting)

	etag := cfg.LastEtag
	if manual {
		etag = ""
	}
	body, newEtag, notModified, err := c.fetch(ctx, cfg.URL, etag)
	if err != nil {
		return c.fail(ctx, epoch, err)
	}
	if c.aborted(epoch) {
		return OutcomeFailed, ErrAborted
	}
	if notModified {
		c.setState(StateSynced)
		metrics.SharedSyncsTotal.WithLabelValues(string(OutcomeNotModified)).Inc()
		if manual {
			c.notifier.Info("Shared data is up to date", "No changes since the last sync.")
		}
		return OutcomeNotModified, nil
	}

	snap, err := DecodeSnapshot(body)
	if err != nil {
		return c.fail(ctx, epoch, err)
	}

	cfg.LastSync = c.Now().UnixMilli()
	cfg.LastSize = int64(len(body))
	cfg.LastEtag = newEtag
	if err := c.overwrite(ctx, epoch, snap, &cfg); err != nil {
		return c.fail(ctx, epoch, err)
	}

	c.setState(StateSynced)
	metrics.SharedSyncsTotal.WithLabelValues(string(OutcomeSynced)).Inc()
	c.log.Info("shared data synced", "url", cfg.URL, "bytes", cfg.LastSize, "etag", cfg.LastEtag)
	if manual {
		c.notifier.Info("Shared data synced", fmt.Sprintf("Loaded profile %q.", snap.Profile.Username))
	}
	return OutcomeSynced, nil
}

func (c *Client) fail(ctx context.Context, epoch uint64, cause error) (Outcome, error) {
	if c.aborted(epoch) || errors.Is(cause, ErrAborted) {
		c.setState(StateDisconnected)
		c.log.Info("shared data sync aborted", "error", cause)
		return OutcomeFailed, ErrAborted
	}
	metrics.SharedSyncsTotal.WithLabelValues(string(OutcomeFailed)).Inc()
	c.log.Warn("shared data sync failed, disconnecting", "error", cause)
	if err := c.Disconnect(ctx); err != nil {
		c.log.Warn("failed to clear shared data config", "error", err)
	}
	c.notifier.Error("Shared data sync failed", cause.Error())
	return OutcomeFailed, cause
}

func (c *Client) fetch(ctx context.Context, target, etag string) ([]byte, string, bool, error) {
	endpoint := RawURL(target)
	if c.relay != "" {
		endpoint = c.relay + "?url=" + url.QueryEscape(endpoint)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", false, fmt.Errorf("fetch shared data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return nil, etag, true, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, "", false, &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes+1))
	if err != nil {
		return nil, "", false, fmt.Errorf("read shared data: %w", err)
	}
	if len(body) > maxSnapshotBytes {
		return nil, "", false, fmt.Errorf("shared data exceeds %d bytes", maxSnapshotBytes)
	}
	return body, resp.Header.Get("ETag"), false, nil
}

// DecodeSnapshot parses a snapshot document. Profile and lists are required.
func DecodeSnapshot(raw []byte) (model.Snapshot, error) {
	var snap model.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return model.Snapshot{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	if snap.Profile == nil || snap.Lists == nil {
		return model.Snapshot{}, ErrMalformedSnapshot
	}
	return snap, nil
}

// overwrite replaces profile, lists, layout and tracked media wholesale,
// optionally storing cfg in the same batch, then reloads the host.
func (c *Client) overwrite(ctx context.Context, epoch uint64, snap model.Snapshot, cfg *model.SharedDataConfig) error {
	if err := c.host.Quiesce(ctx); err != nil {
		c.log.Debug("quiesce before overwrite failed", "error", err)
	}

	batch := db.Batch{Set: map[string][]byte{}}
	put := func(key string, v any) error {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		batch.Set[key] = raw
		return nil
	}

	if err := put(model.KeyProfile, snap.Profile); err != nil {
		return err
	}
	if err := put(model.KeyListData, snap.Lists); err != nil {
		return err
	}
	if len(snap.Layout) > 0 {
		batch.Set[model.KeyLayout] = snap.Layout
	} else {
		batch.Delete = append(batch.Delete, model.KeyLayout)
	}
	if snap.Tracked != nil {
		if err := put(model.KeyTrackedMedia, snap.Tracked); err != nil {
			return err
		}
	} else {
		batch.Delete = append(batch.Delete, model.KeyTrackedMedia)
	}
	if cfg != nil {
		if err := put(model.KeySharedData, cfg); err != nil {
			return err
		}
	}

	if c.aborted(epoch) {
		return ErrAborted
	}
	if cfg != nil {
		// The target was removed while fetching, e.g. by sign-out.
		if _, err := c.store.Get(ctx, model.KeySharedData); errors.Is(err, db.ErrNotFound) {
			return ErrAborted
		}
	}
	if err := c.store.Apply(ctx, batch); err != nil {
		return fmt.Errorf("overwrite local data: %w", err)
	}
	if c.aborted(epoch) {
		return ErrAborted
	}
	if err := c.host.Reload(ctx); err != nil {
		c.log.Warn("reload after overwrite failed", "error", err)
	}
	return nil
}
