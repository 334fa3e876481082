// Package session owns the lifecycle of the local profile: it loads state
// on start, runs the background loops while a local user is signed in and
// wipes everything on sign-out.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/theLastOfCats/anishelf/internal/db"
	"github.com/theLastOfCats/anishelf/internal/model"
	"github.com/theLastOfCats/anishelf/internal/reminder"
	"github.com/theLastOfCats/anishelf/internal/sharedsync"
	"github.com/theLastOfCats/anishelf/internal/state"
	"github.com/theLastOfCats/anishelf/internal/toast"
	"github.com/theLastOfCats/anishelf/internal/tracker"
)

var (
	ErrNotSignedIn     = errors.New("session: no local profile")
	ErrInvalidUsername = errors.New("session: username is required")
	ErrUnknownMode     = errors.New("session: unknown auth mode")
)

type Mode string

const (
	ModeNone  Mode = "none"
	ModeLocal Mode = "local"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeLocal, "":
		return ModeLocal, nil
	case ModeNone:
		return ModeNone, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Loop is a background task with explicit start and stop.
type Loop interface {
	Start(ctx context.Context)
	Stop()
}

type Options struct {
	Store     db.Store
	Lists     *state.Service
	Tracker   *tracker.Reconciler
	Scheduler *reminder.Scheduler
	Notifier  *toast.Notifier
	Mode      Mode

	// HTTPClient and RelayURL configure the shared-data sync client.
	HTTPClient *http.Client
	RelayURL   string

	Log *slog.Logger
}

type Session struct {
	store     db.Store
	lists     *state.Service
	tracker   *tracker.Reconciler
	scheduler *reminder.Scheduler
	sync      *sharedsync.Client
	log       *slog.Logger

	mu      sync.Mutex
	mode    Mode
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	bg      sync.WaitGroup
}

func New(opts Options) *Session {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.Mode == "" {
		opts.Mode = ModeLocal
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		store:     opts.Store,
		lists:     opts.Lists,
		tracker:   opts.Tracker,
		scheduler: opts.Scheduler,
		log:       opts.Log,
		mode:      opts.Mode,
		ctx:       ctx,
		cancel:    cancel,
	}
	s.sync = sharedsync.New(opts.Store, s, sharedsync.Options{
		HTTPClient: opts.HTTPClient,
		RelayURL:   opts.RelayURL,
		Notifier:   opts.Notifier,
		Log:        opts.Log,
	})
	if opts.Tracker != nil {
		opts.Lists.SetWatcher(opts.Tracker)
	}
	return s
}

// Sync returns the shared-data sync client bound to this session.
func (s *Session) Sync() *sharedsync.Client {
	return s.sync
}

func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Init loads the stored state, starts the loops when a local profile exists
// and kicks off a background shared-data sync if a target is configured.
func (s *Session) Init(ctx context.Context) error {
	if _, err := s.lists.Load(ctx); err != nil {
		return fmt.Errorf("load list data: %w", err)
	}

	profile, err := s.Profile(ctx)
	switch {
	case errors.Is(err, ErrNotSignedIn):
		s.log.Info("no local profile, waiting for sign-in")
		return nil
	case err != nil:
		return err
	}
	s.log.Info("local profile loaded", "username", profile.Username)
	s.startLoops()

	cfg, err := s.sync.Config(ctx)
	if err == nil && cfg.URL != "" {
		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			if _, err := s.sync.Sync(s.ctx, false); err != nil {
				s.log.Warn("initial shared data sync failed", "error", err)
			}
		}()
	}
	return nil
}

// Teardown stops the loops, waits for background work and flushes pending
// writes. The session cannot be used afterwards.
func (s *Session) Teardown() error {
	s.stopLoops()
	s.cancel()
	s.sync.Abort()
	s.bg.Wait()
	if _, err := s.lists.Flush(); err != nil {
		return fmt.Errorf("flush list data: %w", err)
	}
	return nil
}

func (s *Session) Shutdown() error {
	return s.Teardown()
}

// Profile returns the stored local profile or ErrNotSignedIn.
func (s *Session) Profile(ctx context.Context) (model.Profile, error) {
	var p model.Profile
	raw, err := s.store.Get(ctx, model.KeyProfile)
	if errors.Is(err, db.ErrNotFound) {
		return p, ErrNotSignedIn
	}
	if err != nil {
		return p, fmt.Errorf("read profile: %w", err)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		s.log.Warn("stored profile is unreadable", "error", err)
		return p, ErrNotSignedIn
	}
	return p, nil
}

// SignIn stores the profile. The first sign-in on a device also starts an
// empty list data record. Signing in switches the session to local mode.
func (s *Session) SignIn(ctx context.Context, username, avatarURL string) (model.Profile, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return model.Profile{}, ErrInvalidUsername
	}

	_, err := s.Profile(ctx)
	first := errors.Is(err, ErrNotSignedIn)
	if err != nil && !first {
		return model.Profile{}, err
	}

	profile := model.Profile{Username: username, AvatarURL: strings.TrimSpace(avatarURL)}
	raw, err := json.Marshal(profile)
	if err != nil {
		return model.Profile{}, err
	}
	if err := s.store.Set(ctx, model.KeyProfile, raw); err != nil {
		return model.Profile{}, fmt.Errorf("store profile: %w", err)
	}

	if first {
		if _, err := s.lists.Reset(ctx); err != nil {
			return model.Profile{}, fmt.Errorf("create list data: %w", err)
		}
		s.log.Info("local profile created", "username", username)
	}

	s.mu.Lock()
	s.mode = ModeLocal
	s.mu.Unlock()
	s.startLoops()
	return profile, nil
}

// SignOut stops the loops and deletes every record of the local profile.
// A sync in flight is aborted first so it cannot write the profile back.
func (s *Session) SignOut(ctx context.Context) error {
	s.stopLoops()
	s.sync.Abort()
	if _, err := s.lists.Flush(); err != nil {
		s.log.Debug("last persist before sign-out failed", "error", err)
	}
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	if err := s.lists.Unload(ctx); err != nil {
		return fmt.Errorf("unload list data: %w", err)
	}
	s.log.Info("local profile signed out")
	return nil
}

// SetMode changes the auth mode. Leaving local mode stops the loops;
// entering it starts them again when a profile exists.
func (s *Session) SetMode(ctx context.Context, mode Mode) error {
	if mode != ModeLocal && mode != ModeNone {
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()

	if mode != ModeLocal {
		s.stopLoops()
		return nil
	}
	if _, err := s.Profile(ctx); err == nil {
		s.startLoops()
	}
	return nil
}

// Running reports whether the background loops are active.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Session) startLoops() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.mode != ModeLocal || s.ctx.Err() != nil {
		return
	}
	s.running = true
	for _, l := range s.loops() {
		l.Start(s.ctx)
	}
}

func (s *Session) stopLoops() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	for _, l := range s.loops() {
		l.Stop()
	}
}

func (s *Session) loops() []Loop {
	var out []Loop
	if s.tracker != nil {
		out = append(out, s.tracker)
	}
	if s.scheduler != nil {
		out = append(out, s.scheduler)
	}
	return out
}

// Quiesce waits for queued list data writes to land.
func (s *Session) Quiesce(context.Context) error {
	_, err := s.lists.Flush()
	return err
}

// Reload re-reads list data from the store and brings the tracked cache in
// line with it.
func (s *Session) Reload(ctx context.Context) error {
	if _, err := s.lists.Load(ctx); err != nil {
		return fmt.Errorf("reload list data: %w", err)
	}
	if s.tracker == nil {
		return nil
	}
	if err := s.tracker.ReconcileAll(ctx); err != nil {
		return fmt.Errorf("reconcile tracked media: %w", err)
	}
	return nil
}
