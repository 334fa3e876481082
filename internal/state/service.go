// Package state owns the canonical list data. Every change goes through
// Service.Mutate, which applies transforms one at a time on a single
// goroutine and persists the results in order through the quota guard.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/theLastOfCats/anishelf/internal/db"
	"github.com/theLastOfCats/anishelf/internal/model"
	"github.com/theLastOfCats/anishelf/internal/quota"
)

var (
	ErrClosed               = errors.New("state: service closed")
	ErrUnknownList          = errors.New("state: unknown list")
	ErrReminderNotFound     = errors.New("state: reminder not found")
	ErrNotificationNotFound = errors.New("state: notification not found")
	ErrInvalidReminder      = errors.New("state: invalid reminder")
	ErrUnknownTab           = errors.New("state: unknown notification tab")
	ErrInvalidQuota         = errors.New("state: storage quota must be positive")
)

// Persister writes a list data value durably.
type Persister interface {
	Persist(ctx context.Context, data model.ListData) (quota.Result, error)
}

// Reader reads raw records from the store.
type Reader interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// MembershipWatcher is told about every list toggle.
type MembershipWatcher interface {
	Schedule(mediaID int, hint *model.Media)
}

type request struct {
	fn      func(model.ListData) model.ListData
	persist bool
	reply   chan model.ListData
}

type Service struct {
	store Reader
	guard Persister
	log   *slog.Logger

	Now func() time.Time

	current  atomic.Pointer[model.ListData]
	requests chan request
	stop     chan struct{}
	stopOnce sync.Once
	actor    sync.WaitGroup

	watcherMu sync.RWMutex
	watcher   MembershipWatcher

	// persister state, guarded by mu
	mu          sync.Mutex
	cond        *sync.Cond
	pending     *model.ListData
	inFlight    bool
	closed      bool
	lastResult  quota.Result
	lastErr     error
	persistCtx  context.Context
	persistStop context.CancelFunc
	persistDone chan struct{}
}

// New starts the actor and persister goroutines with default list data in memory.
func New(store Reader, guard Persister, log *slog.Logger) *Service {
	s := &Service{
		store:       store,
		guard:       guard,
		log:         log,
		Now:         time.Now,
		requests:    make(chan request),
		stop:        make(chan struct{}),
		persistDone: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	s.persistCtx, s.persistStop = context.WithCancel(context.Background())

	initial := model.DefaultListData()
	s.current.Store(&initial)

	s.actor.Add(1)
	go s.run()
	go s.persistLoop()
	return s
}

// SetWatcher registers the component notified of list toggles.
func (s *Service) SetWatcher(w MembershipWatcher) {
	s.watcherMu.Lock()
	defer s.watcherMu.Unlock()
	s.watcher = w
}

func (s *Service) notifyWatcher(mediaID int, hint *model.Media) {
	s.watcherMu.RLock()
	w := s.watcher
	s.watcherMu.RUnlock()
	if w != nil {
		w.Schedule(mediaID, hint)
	}
}

func (s *Service) run() {
	defer s.actor.Done()
	for {
		select {
		case req := <-s.requests:
			next := req.fn(s.current.Load().Clone())
			s.current.Store(&next)
			if req.persist {
				s.enqueuePersist(next.Clone())
			}
			req.reply <- next.Clone()
		case <-s.stop:
			return
		}
	}
}

// Mutate applies fn to a copy of the current list data, installs the result
// and queues it for persistence. Calls are applied in the order they arrive.
func (s *Service) Mutate(ctx context.Context, fn func(model.ListData) model.ListData) (model.ListData, error) {
	return s.apply(ctx, fn, true)
}

func (s *Service) apply(ctx context.Context, fn func(model.ListData) model.ListData, persist bool) (model.ListData, error) {
	req := request{fn: fn, persist: persist, reply: make(chan model.ListData, 1)}
	select {
	case s.requests <- req:
	case <-s.stop:
		return model.ListData{}, ErrClosed
	case <-ctx.Done():
		return model.ListData{}, ctx.Err()
	}
	// Once accepted the transform always runs, so wait for it.
	return <-req.reply, nil
}

// Snapshot returns a copy of the current in-memory list data.
func (s *Service) Snapshot() model.ListData {
	return s.current.Load().Clone()
}

func (s *Service) enqueuePersist(d model.ListData) {
	s.mu.Lock()
	s.pending = &d
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *Service) persistLoop() {
	defer close(s.persistDone)
	for {
		s.mu.Lock()
		for s.pending == nil && !s.closed {
			s.cond.Wait()
		}
		if s.pending == nil {
			s.mu.Unlock()
			return
		}
		data := *s.pending
		s.pending = nil
		s.inFlight = true
		s.mu.Unlock()

		res, err := s.guard.Persist(s.persistCtx, data)
		if err != nil {
			s.log.Warn("failed to persist list data", "error", err)
		}
		if res.Blocked && res.Notice != nil {
			s.mergeNotice(*res.Notice)
		}

		s.mu.Lock()
		s.inFlight = false
		s.lastResult = res
		s.lastErr = err
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

// mergeNotice installs the guard's storage warning in memory. The guard has
// already written it, so nothing is persisted.
func (s *Service) mergeNotice(n model.Notification) {
	req := request{
		fn: func(d model.ListData) model.ListData {
			d.AppendNotifications(n)
			return d
		},
		reply: make(chan model.ListData, 1),
	}
	select {
	case s.requests <- req:
		<-req.reply
	case <-s.stop:
	}
}

// Flush waits until every queued persist has completed and returns the
// outcome of the last one.
func (s *Service) Flush() (quota.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.pending != nil || s.inFlight {
		s.cond.Wait()
	}
	return s.lastResult, s.lastErr
}

// Close stops accepting mutations and drains queued persists.
func (s *Service) Close() error {
	s.stopOnce.Do(func() {
		close(s.stop)
		s.actor.Wait()

		s.mu.Lock()
		s.closed = true
		s.cond.Broadcast()
		s.mu.Unlock()

		<-s.persistDone
		s.persistStop()
	})
	return nil
}

// Shutdown lets the DI container close the service.
func (s *Service) Shutdown() error {
	return s.Close()
}

// Load replaces the in-memory list data with the stored value. Missing or
// unreadable data falls back to defaults. Nothing is persisted.
func (s *Service) Load(ctx context.Context) (model.ListData, error) {
	data := s.readStored(ctx)
	return s.apply(ctx, func(model.ListData) model.ListData { return data }, false)
}

// Unload resets memory to defaults without persisting, for use after the
// store has been cleared.
func (s *Service) Unload(ctx context.Context) error {
	if _, err := s.Flush(); err != nil {
		s.log.Debug("last persist before unload failed", "error", err)
	}
	_, err := s.apply(ctx, func(model.ListData) model.ListData { return model.DefaultListData() }, false)
	return err
}

// Stored flushes pending persists and returns the durable list data.
func (s *Service) Stored(ctx context.Context) (model.ListData, error) {
	if _, err := s.Flush(); err != nil {
		s.log.Debug("last persist failed before read", "error", err)
	}
	if err := ctx.Err(); err != nil {
		return model.ListData{}, err
	}
	return s.readStored(ctx), nil
}

func (s *Service) readStored(ctx context.Context) model.ListData {
	raw, err := s.store.Get(ctx, model.KeyListData)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			s.log.Warn("list data unavailable, using defaults", "error", err)
		}
		return model.DefaultListData()
	}
	data, err := Decode(raw)
	if err != nil {
		s.log.Warn("stored list data is unreadable, using defaults", "error", err)
		return model.DefaultListData()
	}
	return data
}

// Decode parses a stored or imported list data document and normalises it.
func Decode(raw []byte) (model.ListData, error) {
	var data model.ListData
	if err := json.Unmarshal(raw, &data); err != nil {
		return model.ListData{}, fmt.Errorf("decode list data: %w", err)
	}
	return Normalize(data), nil
}
