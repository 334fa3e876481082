package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/theLastOfCats/anishelf/internal/auth"
	"github.com/theLastOfCats/anishelf/internal/logger"
	"github.com/theLastOfCats/anishelf/internal/model"
	"github.com/theLastOfCats/anishelf/internal/session"
	"github.com/theLastOfCats/anishelf/internal/state"
	"github.com/theLastOfCats/anishelf/internal/testutil"
	"github.com/theLastOfCats/anishelf/internal/toast"
	"github.com/theLastOfCats/anishelf/internal/tracker"
)

type testServer struct {
	handler http.Handler
	lists   *state.Service
	tracker *tracker.Reconciler
	session *session.Session
	token   string
}

func newTestServer(t *testing.T, relay *Relay) *testServer {
	t.Helper()
	auth.Init("test-secret")

	store := testutil.SetupTestDB(t)
	lists := testutil.NewListService(t, store)
	queue := toast.NewQueue(10)
	notifier := toast.NewNotifier(queue)
	catalog := testutil.NewFakeCatalog(
		model.Media{ID: 1, Type: model.MediaTypeAnime, Genres: []string{"Action"}},
		model.Media{ID: 2, Type: model.MediaTypeAnime, Genres: []string{"Hentai"}},
	)
	rec := tracker.New(lists, catalog, store, tracker.Options{Debounce: 5 * time.Millisecond, Interval: time.Hour, Delay: time.Hour}, logger.Discard())
	sess := session.New(session.Options{
		Store:    store,
		Lists:    lists,
		Tracker:  rec,
		Notifier: notifier,
		Log:      logger.Discard(),
	})
	t.Cleanup(func() {
		sess.Teardown()
		rec.Shutdown()
	})

	return &testServer{
		handler: NewRouter(Deps{
			Session: sess,
			Lists:   lists,
			Tracker: rec,
			Toasts:  queue,
			Relay:   relay,
			Log:     logger.Discard(),
		}),
		lists:   lists,
		tracker: rec,
		session: sess,
	}
}

// waitTracked blocks until the tracked cache holds id.
func (s *testServer) waitTracked(t *testing.T, id int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		tracked, err := s.tracker.Tracked(t.Context())
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := tracked[id]; ok {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("media %d never reached the tracked cache", id)
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case []byte:
		buf.Write(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func (s *testServer) signIn(t *testing.T) {
	t.Helper()
	rr := s.do(t, "POST", "/auth/local", map[string]string{"username": "yuki"})
	if rr.Code != http.StatusOK {
		t.Fatalf("sign-in returned %d: %s", rr.Code, rr.Body.String())
	}
	var resp SignInResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	s.token = resp.Token
}

func TestHealth(t *testing.T) {
	req, err := http.NewRequest("GET", "/", nil)
	if err != nil {
		t.Fatal(err)
	}
	rr := httptest.NewRecorder()
	handler := http.HandlerFunc(Health)

	handler.ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
	}

	expected := "Alive"
	if rr.Body.String() != expected {
		t.Errorf("handler returned unexpected body: got %v want %v", rr.Body.String(), expected)
	}
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	s := newTestServer(t, nil)

	rr := s.do(t, "GET", "/lists", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without token, got %d", rr.Code)
	}

	s.token = "garbage"
	rr = s.do(t, "GET", "/lists", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with bad token, got %d", rr.Code)
	}
}

func TestSignInAndMe(t *testing.T) {
	s := newTestServer(t, nil)

	rr := s.do(t, "POST", "/auth/local", map[string]string{"username": ""})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty username, got %d", rr.Code)
	}

	s.signIn(t)
	rr = s.do(t, "GET", "/me", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 from /me, got %d", rr.Code)
	}
	var me UserResponse
	json.Unmarshal(rr.Body.Bytes(), &me)
	if me.Username != "yuki" || me.Mode != session.ModeLocal {
		t.Errorf("Unexpected profile: %+v", me)
	}
}

func TestSignOutInvalidatesToken(t *testing.T) {
	s := newTestServer(t, nil)
	s.signIn(t)

	rr := s.do(t, "POST", "/auth/signout", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("Expected 204 from signout, got %d", rr.Code)
	}

	rr = s.do(t, "GET", "/me", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 after signout, got %d", rr.Code)
	}
}

func TestSetModePausesLoops(t *testing.T) {
	s := newTestServer(t, nil)
	s.signIn(t)
	if !s.session.Running() {
		t.Fatal("Expected loops to run after sign-in")
	}

	rr := s.do(t, "PUT", "/auth/mode", map[string]string{"mode": "none"})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var me UserResponse
	json.Unmarshal(rr.Body.Bytes(), &me)
	if me.Mode != session.ModeNone || me.Username != "yuki" {
		t.Errorf("Unexpected response: %+v", me)
	}
	if s.session.Running() {
		t.Error("Expected loops to stop outside local mode")
	}

	rr = s.do(t, "PUT", "/auth/mode", map[string]string{"mode": "oauth"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown mode, got %d", rr.Code)
	}

	rr = s.do(t, "PUT", "/auth/mode", map[string]string{"mode": "local"})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	if !s.session.Running() {
		t.Error("Expected loops to resume in local mode")
	}
}

func TestToggleList(t *testing.T) {
	s := newTestServer(t, nil)
	s.signIn(t)

	rr := s.do(t, "POST", "/lists/planToWatch/1/toggle", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp ToggleResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if !resp.Active {
		t.Errorf("Expected first toggle to add")
	}

	rr = s.do(t, "POST", "/lists/planToWatch/1/toggle", nil)
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Active {
		t.Errorf("Expected second toggle to remove")
	}

	rr = s.do(t, "POST", "/lists/dropped/1/toggle", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown list, got %d", rr.Code)
	}

	rr = s.do(t, "POST", "/lists/planToWatch/abc/toggle", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad id, got %d", rr.Code)
	}
}

func TestTrackedHidesSensitiveGenres(t *testing.T) {
	s := newTestServer(t, nil)
	s.signIn(t)

	s.do(t, "POST", "/lists/currentlyWatching/1/toggle", nil)
	s.do(t, "POST", "/lists/currentlyWatching/2/toggle", nil)

	var resp TrackedResponse
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rr := s.do(t, "GET", "/tracked", nil)
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if len(resp.Media)+resp.Hidden == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(resp.Media) != 1 || resp.Media[0].ID != 1 || resp.Hidden != 1 {
		t.Errorf("Expected only media 1 visible with one hidden, got %+v", resp)
	}

	rr := s.do(t, "GET", "/tracked?all=true", nil)
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if len(resp.Media) != 2 {
		t.Errorf("Expected both media with all=true, got %d", len(resp.Media))
	}
}

func TestReminderCRUD(t *testing.T) {
	s := newTestServer(t, nil)
	s.signIn(t)

	rr := s.do(t, "POST", "/reminders", map[string]any{"title": "x", "repeatOnDays": []int{9}})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for weekday 9, got %d", rr.Code)
	}

	rr = s.do(t, "POST", "/reminders", map[string]any{
		"mediaId":       1,
		"title":         "Weekly drop",
		"startDateTime": time.Date(2030, 1, 1, 18, 0, 0, 0, time.UTC),
		"repeatOnDays":  []int{2},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var created model.Reminder
	json.Unmarshal(rr.Body.Bytes(), &created)
	if created.ID == "" {
		t.Fatal("Expected an id")
	}

	rr = s.do(t, "PUT", "/reminders/"+created.ID, map[string]any{
		"title":         "Renamed",
		"startDateTime": created.StartDateTime,
	})
	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected 204 on update, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := s.lists.Snapshot().Reminders[0].Title; got != "Renamed" {
		t.Errorf("Expected renamed reminder, got %q", got)
	}

	rr = s.do(t, "DELETE", "/reminders/"+created.ID, nil)
	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected 204 on delete, got %d", rr.Code)
	}
	rr = s.do(t, "DELETE", "/reminders/"+created.ID, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on second delete, got %d", rr.Code)
	}
}

func TestNotificationsEndpoints(t *testing.T) {
	s := newTestServer(t, nil)
	s.signIn(t)

	_, err := s.lists.AppendNotifications(t.Context(),
		model.NewsNotification("n1", 1, model.NewsPayload{MediaID: 1, MediaType: model.MediaTypeManga}),
		model.NewsNotification("n2", 2, model.NewsPayload{MediaID: 2, MediaType: model.MediaTypeAnime}),
	)
	if err != nil {
		t.Fatal(err)
	}

	rr := s.do(t, "GET", "/notifications?tab=chapters", nil)
	var list NotificationsResponse
	json.Unmarshal(rr.Body.Bytes(), &list)
	if len(list.Notifications) != 1 || list.Notifications[0].ID != "n1" {
		t.Errorf("Expected only n1 under chapters, got %+v", list.Notifications)
	}

	rr = s.do(t, "POST", "/notifications/n2/seen", nil)
	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rr.Code)
	}
	rr = s.do(t, "DELETE", "/notifications/n1", nil)
	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected 204 on dismiss, got %d", rr.Code)
	}
	rr = s.do(t, "DELETE", "/notifications/n1", nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on second dismiss, got %d", rr.Code)
	}

	rr = s.do(t, "DELETE", "/notifications?kind=bogus", nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown kind, got %d", rr.Code)
	}
	rr = s.do(t, "DELETE", "/notifications", nil)
	var count CountResponse
	json.Unmarshal(rr.Body.Bytes(), &count)
	if count.Count != 1 {
		t.Errorf("Expected one cleared notification, got %d", count.Count)
	}
}

func TestPreferences(t *testing.T) {
	s := newTestServer(t, nil)
	s.signIn(t)

	rr := s.do(t, "PUT", "/preferences/storage-quota", map[string]any{"bytes": 0})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for zero quota, got %d", rr.Code)
	}

	rr = s.do(t, "PUT", "/preferences/hidden-genres", map[string]any{"genres": []string{"Ecchi"}})
	var prefs PreferencesResponse
	json.Unmarshal(rr.Body.Bytes(), &prefs)
	if len(prefs.EffectiveHiddenGenres) != 3 {
		t.Errorf("Expected sensitive genres to stay hidden while locked, got %v", prefs.EffectiveHiddenGenres)
	}

	rr = s.do(t, "PUT", "/preferences/sensitive-content", map[string]any{"unlocked": true})
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	json.Unmarshal(rr.Body.Bytes(), &prefs)
	if len(prefs.EffectiveHiddenGenres) != 1 || prefs.EffectiveHiddenGenres[0] != "Ecchi" {
		t.Errorf("Expected only Ecchi hidden once unlocked, got %v", prefs.EffectiveHiddenGenres)
	}

	rr = s.do(t, "PUT", "/preferences/pinned-tab", map[string]any{"tab": "nowhere"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown tab, got %d", rr.Code)
	}
}

func TestExportETagAndImport(t *testing.T) {
	s := newTestServer(t, nil)
	s.signIn(t)
	s.do(t, "POST", "/lists/planToRead/7/toggle", nil)
	s.waitTracked(t, 7)

	rr := s.do(t, "GET", "/export", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 from export, got %d: %s", rr.Code, rr.Body.String())
	}
	etag := rr.Header().Get("ETag")
	if etag == "" {
		t.Fatal("Expected an ETag")
	}
	exported := rr.Body.Bytes()

	rr = s.do(t, "GET", "/export", nil, "If-None-Match", etag)
	if rr.Code != http.StatusNotModified {
		t.Errorf("Expected 304 for matching ETag, got %d", rr.Code)
	}

	s.do(t, "POST", "/lists/planToRead/7/toggle", nil)
	if len(s.lists.Snapshot().PlanToRead) != 0 {
		t.Fatal("Expected toggle to remove 7")
	}

	rr = s.do(t, "POST", "/import", exported)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200 from import, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := s.lists.Snapshot().PlanToRead; len(got) != 1 || got[0] != 7 {
		t.Errorf("Expected import to restore [7], got %v", got)
	}

	rr = s.do(t, "POST", "/import", []byte(`{"lists":{}}`))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422 for malformed snapshot, got %d", rr.Code)
	}

	rr = s.do(t, "GET", "/toasts", nil)
	var toasts []toast.Toast
	json.Unmarshal(rr.Body.Bytes(), &toasts)
	if len(toasts) != 2 || toasts[1].Variant != toast.VariantDestructive {
		t.Errorf("Expected import success and failure toasts, got %+v", toasts)
	}
}

func TestSharedWithoutTarget(t *testing.T) {
	s := newTestServer(t, nil)
	s.signIn(t)

	rr := s.do(t, "POST", "/shared/sync", nil)
	if rr.Code != http.StatusConflict {
		t.Errorf("Expected 409 without a target, got %d", rr.Code)
	}

	rr = s.do(t, "POST", "/shared/connect", map[string]string{"url": "not a url"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid url, got %d", rr.Code)
	}

	rr = s.do(t, "GET", "/shared", nil)
	var status SharedStatusResponse
	json.Unmarshal(rr.Body.Bytes(), &status)
	if status.State != "disconnected" {
		t.Errorf("Expected disconnected, got %s", status.State)
	}
}
