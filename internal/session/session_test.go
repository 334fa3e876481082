package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theLastOfCats/anishelf/internal/db"
	"github.com/theLastOfCats/anishelf/internal/logger"
	"github.com/theLastOfCats/anishelf/internal/model"
	"github.com/theLastOfCats/anishelf/internal/reminder"
	"github.com/theLastOfCats/anishelf/internal/sharedsync"
	"github.com/theLastOfCats/anishelf/internal/state"
	"github.com/theLastOfCats/anishelf/internal/testutil"
	"github.com/theLastOfCats/anishelf/internal/tracker"
)

func newSession(t *testing.T, mode Mode) (*Session, *db.DB, *state.Service) {
	t.Helper()
	store := testutil.SetupTestDB(t)
	lists := testutil.NewListService(t, store)
	notifier, _ := testutil.NewNotifier()
	rec := tracker.New(lists, testutil.NewFakeCatalog(), store, tracker.Options{
		Debounce: 10 * time.Millisecond,
		Interval: time.Hour,
		Delay:    time.Hour,
	}, logger.Discard())
	sched := reminder.NewScheduler(lists, rec, time.Hour, logger.Discard())

	s := New(Options{
		Store:     store,
		Lists:     lists,
		Tracker:   rec,
		Scheduler: sched,
		Notifier:  notifier,
		Mode:      mode,
		Log:       logger.Discard(),
	})
	t.Cleanup(func() {
		s.Teardown()
		rec.Shutdown()
	})
	return s, store, lists
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeLocal, m)

	m, err = ParseMode(" None ")
	require.NoError(t, err)
	assert.Equal(t, ModeNone, m)

	_, err = ParseMode("oauth")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestInitWithoutProfile(t *testing.T) {
	s, _, lists := newSession(t, ModeLocal)
	require.NoError(t, s.Init(context.Background()))
	assert.False(t, s.Running(), "loops wait for a profile")
	assert.Equal(t, model.DefaultListData(), lists.Snapshot())
}

func TestSignInCreatesProfileAndLists(t *testing.T) {
	s, store, _ := newSession(t, ModeLocal)
	ctx := context.Background()
	require.NoError(t, s.Init(ctx))

	_, err := s.SignIn(ctx, "  ", "")
	assert.ErrorIs(t, err, ErrInvalidUsername)

	p, err := s.SignIn(ctx, "yuki", "https://img/a.png")
	require.NoError(t, err)
	assert.Equal(t, "yuki", p.Username)
	assert.True(t, s.Running())

	got, err := s.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	require.NoError(t, s.Quiesce(ctx))
	_, err = store.Get(ctx, model.KeyListData)
	assert.NoError(t, err, "first sign-in writes empty list data")
}

func TestSignOutWipesEverything(t *testing.T) {
	s, store, lists := newSession(t, ModeLocal)
	lists.SetWatcher(nil)
	ctx := context.Background()

	_, err := s.SignIn(ctx, "yuki", "")
	require.NoError(t, err)
	_, err = lists.ToggleList(ctx, state.ListPlanToWatch, 3, nil)
	require.NoError(t, err)

	require.NoError(t, s.SignOut(ctx))
	assert.False(t, s.Running())

	keys, err := store.ListKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Empty(t, lists.Snapshot().PlanToWatch)

	_, err = s.Profile(ctx)
	assert.ErrorIs(t, err, ErrNotSignedIn)
}

func TestModeChangeStopsLoops(t *testing.T) {
	s, _, _ := newSession(t, ModeLocal)
	ctx := context.Background()

	_, err := s.SignIn(ctx, "yuki", "")
	require.NoError(t, err)
	require.True(t, s.Running())

	require.NoError(t, s.SetMode(ctx, ModeNone))
	assert.False(t, s.Running())

	require.NoError(t, s.SetMode(ctx, ModeLocal))
	assert.True(t, s.Running())

	assert.ErrorIs(t, s.SetMode(ctx, "guest"), ErrUnknownMode)
}

func TestInitInNoneModeKeepsLoopsOff(t *testing.T) {
	s, store, _ := newSession(t, ModeNone)
	ctx := context.Background()
	raw, _ := json.Marshal(model.Profile{Username: "yuki"})
	require.NoError(t, store.Set(ctx, model.KeyProfile, raw))

	require.NoError(t, s.Init(ctx))
	assert.False(t, s.Running())
}

func TestInitSyncsConfiguredTarget(t *testing.T) {
	lists := model.DefaultListData()
	lists.CurrentlyReading = []int{77}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(model.Snapshot{Profile: &model.Profile{Username: "remote"}, Lists: &lists})
	}))
	defer srv.Close()

	s, store, svc := newSession(t, ModeLocal)
	ctx := context.Background()
	raw, _ := json.Marshal(model.Profile{Username: "local"})
	require.NoError(t, store.Set(ctx, model.KeyProfile, raw))
	raw, _ = json.Marshal(model.SharedDataConfig{URL: srv.URL})
	require.NoError(t, store.Set(ctx, model.KeySharedData, raw))

	require.NoError(t, s.Init(ctx))
	require.Eventually(t, func() bool {
		return s.Sync().Status() == sharedsync.StateSynced
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []int{77}, svc.Snapshot().CurrentlyReading, "reload picks up the overwritten lists")
	p, err := s.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, "remote", p.Username)
}

func TestSignOutAbortsRunningSync(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	remote := model.DefaultListData()
	remote.PlanToWatch = []int{5}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		json.NewEncoder(w).Encode(model.Snapshot{Profile: &model.Profile{Username: "remote"}, Lists: &remote})
	}))
	defer srv.Close()
	defer close(release)

	s, store, lists := newSession(t, ModeLocal)
	ctx := context.Background()
	_, err := s.SignIn(ctx, "local", "")
	require.NoError(t, err)
	raw, _ := json.Marshal(model.SharedDataConfig{URL: srv.URL})
	require.NoError(t, store.Set(ctx, model.KeySharedData, raw))

	done := make(chan error, 1)
	go func() {
		_, err := s.Sync().Sync(ctx, true)
		done <- err
	}()
	<-entered

	require.NoError(t, s.SignOut(ctx))
	assert.ErrorIs(t, <-done, sharedsync.ErrAborted)

	keys, err := store.ListKeys(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys, "the aborted sync writes nothing after sign-out")
	_, err = s.Profile(ctx)
	assert.ErrorIs(t, err, ErrNotSignedIn)
	assert.Empty(t, lists.Snapshot().PlanToWatch)
	assert.Equal(t, sharedsync.StateDisconnected, s.Sync().Status())
}
