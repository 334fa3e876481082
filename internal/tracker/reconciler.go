// Package tracker keeps the tracked-media cache in line with list
// membership and polls the catalog for new episodes and chapters.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/theLastOfCats/anishelf/internal/db"
	"github.com/theLastOfCats/anishelf/internal/metrics"
	"github.com/theLastOfCats/anishelf/internal/model"
)

// ErrRunInProgress is returned when an update check overlaps another.
var ErrRunInProgress = errors.New("tracker: update check already running")

// Catalog fetches media records. It fails soft: unknown ids and errors
// yield a shorter result, never an error.
type Catalog interface {
	FetchMultipleMediaByIds(ctx context.Context, ids []int) []model.Media
}

// Lists is the list data funnel.
type Lists interface {
	Snapshot() model.ListData
	Stored(ctx context.Context) (model.ListData, error)
	Mutate(ctx context.Context, fn func(model.ListData) model.ListData) (model.ListData, error)
}

// Store holds the tracked-media cache record.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

type Options struct {
	Debounce time.Duration
	Interval time.Duration
	Delay    time.Duration
}

func (o *Options) defaults() {
	if o.Debounce <= 0 {
		o.Debounce = 100 * time.Millisecond
	}
	if o.Interval <= 0 {
		o.Interval = 3 * time.Minute
	}
	if o.Delay < 0 {
		o.Delay = 10 * time.Second
	}
}

type Reconciler struct {
	lists   Lists
	catalog Catalog
	store   Store
	opts    Options
	log     *slog.Logger

	Now func() time.Time

	// cacheMu serialises read-modify-write of the cache record.
	cacheMu sync.Mutex

	debounceMu sync.Mutex
	timers     map[int]*time.Timer
	hints      map[int]*model.Media

	running atomic.Bool

	ctx    context.Context
	close  context.CancelFunc
	loopMu sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(lists Lists, catalog Catalog, store Store, opts Options, log *slog.Logger) *Reconciler {
	opts.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Reconciler{
		lists:   lists,
		catalog: catalog,
		store:   store,
		opts:    opts,
		log:     log,
		Now:     time.Now,
		timers:  make(map[int]*time.Timer),
		hints:   make(map[int]*model.Media),
		ctx:     ctx,
		close:   cancel,
	}
}

// Schedule debounces a membership check for mediaID. Repeated calls within
// the window collapse into one check using the latest hint.
func (r *Reconciler) Schedule(mediaID int, hint *model.Media) {
	r.debounceMu.Lock()
	defer r.debounceMu.Unlock()

	if t, ok := r.timers[mediaID]; ok {
		t.Stop()
	}
	if hint != nil {
		h := *hint
		r.hints[mediaID] = &h
	}
	r.timers[mediaID] = time.AfterFunc(r.opts.Debounce, func() {
		r.debounceMu.Lock()
		h := r.hints[mediaID]
		delete(r.hints, mediaID)
		delete(r.timers, mediaID)
		r.debounceMu.Unlock()

		if err := r.SyncMembership(r.ctx, mediaID, h); err != nil && r.ctx.Err() == nil {
			r.log.Warn("tracked media sync failed", "media_id", mediaID, "error", err)
		}
	})
}

// Pending reports how many debounced checks have not fired yet.
func (r *Reconciler) Pending() int {
	r.debounceMu.Lock()
	defer r.debounceMu.Unlock()
	return len(r.timers)
}

// SyncMembership adds mediaID to the cache when it is listed and missing,
// and removes it when it is cached but no longer listed.
func (r *Reconciler) SyncMembership(ctx context.Context, mediaID int, hint *model.Media) error {
	data, err := r.lists.Stored(ctx)
	if err != nil {
		return fmt.Errorf("read list data: %w", err)
	}
	listed := data.InAnyList(mediaID)

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	tracked, err := r.load(ctx)
	if err != nil {
		return err
	}
	_, cached := tracked[mediaID]

	switch {
	case listed && !cached:
		tracked[mediaID] = r.resolve(ctx, mediaID, hint)
		r.log.Debug("tracking media", "media_id", mediaID)
	case !listed && cached:
		delete(tracked, mediaID)
		r.log.Debug("untracking media", "media_id", mediaID)
	default:
		return nil
	}
	return r.save(ctx, tracked)
}

func (r *Reconciler) resolve(ctx context.Context, mediaID int, hint *model.Media) model.Media {
	if hint != nil && hint.ID == mediaID {
		return hint.Stripped()
	}
	for _, m := range r.catalog.FetchMultipleMediaByIds(ctx, []int{mediaID}) {
		if m.ID == mediaID {
			return m.Stripped()
		}
	}
	return model.Media{ID: mediaID}
}

// ReconcileAll recomputes the whole cache from the stored list data.
func (r *Reconciler) ReconcileAll(ctx context.Context) error {
	data, err := r.lists.Stored(ctx)
	if err != nil {
		return fmt.Errorf("read list data: %w", err)
	}
	listed := data.ListedIDs()

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	tracked, err := r.load(ctx)
	if err != nil {
		return err
	}

	changed := false
	for id := range tracked {
		if !slices.Contains(listed, id) {
			delete(tracked, id)
			changed = true
		}
	}

	var missing []int
	for _, id := range listed {
		if _, ok := tracked[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		for _, m := range r.catalog.FetchMultipleMediaByIds(ctx, missing) {
			if slices.Contains(missing, m.ID) {
				tracked[m.ID] = m.Stripped()
			}
		}
		for _, id := range missing {
			if _, ok := tracked[id]; !ok {
				tracked[id] = model.Media{ID: id}
			}
		}
		changed = true
	}

	if !changed {
		return nil
	}
	r.log.Info("tracked media reconciled", "tracked", len(tracked), "fetched", len(missing))
	return r.save(ctx, tracked)
}

// CheckUpdates refetches every watched or read media and raises a news
// notification where the episode or chapter count grew.
func (r *Reconciler) CheckUpdates(ctx context.Context) (int, error) {
	if !r.running.CompareAndSwap(false, true) {
		metrics.ReconcileRunsTotal.WithLabelValues("skipped").Inc()
		return 0, ErrRunInProgress
	}
	defer r.running.Store(false)

	ids := r.lists.Snapshot().ActiveIDs()
	if len(ids) == 0 {
		return 0, nil
	}
	fresh := r.catalog.FetchMultipleMediaByIds(ctx, ids)

	now := r.Now().UnixMilli()
	var news []model.Notification

	r.cacheMu.Lock()
	tracked, err := r.load(ctx)
	if err != nil {
		r.cacheMu.Unlock()
		metrics.ReconcileRunsTotal.WithLabelValues("failed").Inc()
		return 0, err
	}
	// Membership may have changed while the catalog answered; ids dropped
	// from every list in the meantime must not come back into the cache.
	current := r.lists.Snapshot()
	for _, m := range fresh {
		if !slices.Contains(ids, m.ID) || !current.InAnyList(m.ID) {
			continue
		}
		if prev, ok := tracked[m.ID]; ok {
			if n, ok := newContent(prev, m, now); ok {
				news = append(news, n)
			}
		}
		tracked[m.ID] = m.Stripped()
	}
	err = r.save(ctx, tracked)
	r.cacheMu.Unlock()
	if err != nil {
		metrics.ReconcileRunsTotal.WithLabelValues("failed").Inc()
		return 0, err
	}

	created := 0
	if len(news) > 0 {
		_, err := r.lists.Mutate(ctx, func(d model.ListData) model.ListData {
			created = d.AppendNotifications(news...)
			return d
		})
		if err != nil {
			metrics.ReconcileRunsTotal.WithLabelValues("failed").Inc()
			return 0, fmt.Errorf("append news: %w", err)
		}
		metrics.NotificationsCreated.WithLabelValues(string(model.KindNews)).Add(float64(created))
	}

	metrics.ReconcileRunsTotal.WithLabelValues("completed").Inc()
	r.log.Info("update check finished", "checked", len(ids), "fetched", len(fresh), "news", created)
	return created, nil
}

// newContent compares progress counts. Both must be known.
func newContent(prev, cur model.Media, now int64) (model.Notification, bool) {
	oldCount, newCount := prev.ProgressCount(), cur.ProgressCount()
	if oldCount == nil || newCount == nil || *newCount <= *oldCount {
		return model.Notification{}, false
	}
	image := cur.Images.Large
	if image == "" {
		image = cur.Images.Medium
	}
	mediaType := cur.Type
	if mediaType == "" {
		mediaType = prev.Type
	}
	id := fmt.Sprintf("news-%d-%d", cur.ID, *newCount)
	return model.NewsNotification(id, now, model.NewsPayload{
		MediaID:       cur.ID,
		Title:         cur.DisplayTitle(),
		Image:         image,
		MediaType:     mediaType,
		PreviousCount: *oldCount,
		NewCount:      *newCount,
	}), true
}

// Tracked returns the cached media records.
func (r *Reconciler) Tracked(ctx context.Context) (model.TrackedMedia, error) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()
	return r.load(ctx)
}

func (r *Reconciler) load(ctx context.Context) (model.TrackedMedia, error) {
	raw, err := r.store.Get(ctx, model.KeyTrackedMedia)
	if errors.Is(err, db.ErrNotFound) {
		return model.TrackedMedia{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read tracked media: %w", err)
	}
	tracked := model.TrackedMedia{}
	if err := json.Unmarshal(raw, &tracked); err != nil {
		r.log.Warn("tracked media cache is unreadable, rebuilding", "error", err)
		return model.TrackedMedia{}, nil
	}
	return tracked, nil
}

func (r *Reconciler) save(ctx context.Context, tracked model.TrackedMedia) error {
	raw, err := json.Marshal(tracked)
	if err != nil {
		return fmt.Errorf("encode tracked media: %w", err)
	}
	if err := r.store.Set(ctx, model.KeyTrackedMedia, raw); err != nil {
		return fmt.Errorf("write tracked media: %w", err)
	}
	return nil
}

// Start runs CheckUpdates after the initial delay and then on every interval.
func (r *Reconciler) Start(ctx context.Context) {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()
	if r.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()

		delay := time.NewTimer(r.opts.Delay)
		defer delay.Stop()
		select {
		case <-delay.C:
		case <-ctx.Done():
			return
		}

		ticker := time.NewTicker(r.opts.Interval)
		defer ticker.Stop()

		r.tick(ctx)
		for {
			select {
			case <-ticker.C:
				r.tick(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	r.log.Info("tracked media polling started", "delay", r.opts.Delay, "interval", r.opts.Interval)
}

func (r *Reconciler) tick(ctx context.Context) {
	_, err := r.CheckUpdates(ctx)
	switch {
	case err == nil, ctx.Err() != nil:
	case errors.Is(err, ErrRunInProgress):
		r.log.Debug("update check skipped, previous run still active")
	default:
		r.log.Warn("update check failed", "error", err)
	}
}

// Stop ends polling and drops pending debounced checks.
func (r *Reconciler) Stop() {
	r.loopMu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.loopMu.Unlock()
	if cancel != nil {
		cancel()
		r.wg.Wait()
	}

	r.debounceMu.Lock()
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
		delete(r.hints, id)
	}
	r.debounceMu.Unlock()
}

// Shutdown stops everything and cancels in-flight debounced checks.
func (r *Reconciler) Shutdown() error {
	r.Stop()
	r.close()
	return nil
}
