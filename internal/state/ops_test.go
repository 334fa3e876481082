package state

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theLastOfCats/anishelf/internal/model"
	"github.com/theLastOfCats/anishelf/internal/reminder"
)

func TestEffectiveHiddenGenres(t *testing.T) {
	d := model.DefaultListData()
	d.HiddenGenres = []string{"Ecchi"}

	d.SensitiveContentUnlocked = false
	assert.Equal(t, []string{"Hentai", "Erotica", "Ecchi"}, EffectiveHiddenGenres(d))

	d.SensitiveContentUnlocked = true
	assert.Equal(t, []string{"Ecchi"}, EffectiveHiddenGenres(d))

	d.HiddenGenres = []string{"Hentai", "Ecchi"}
	d.SensitiveContentUnlocked = false
	assert.Equal(t, []string{"Hentai", "Erotica", "Ecchi"}, EffectiveHiddenGenres(d), "no duplicates")
}

func TestIsHidden(t *testing.T) {
	m := model.Media{Genres: []string{"Action", "ecchi"}}
	assert.True(t, IsHidden(m, []string{"Ecchi"}))
	assert.False(t, IsHidden(m, []string{"Horror"}))
}

func TestEpisodeAndChapterToggles(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()
	svc.Now = func() time.Time { return time.UnixMilli(5000) }

	on, err := svc.ToggleEpisode(ctx, 1, "3")
	require.NoError(t, err)
	assert.True(t, on)
	on, err = svc.ToggleEpisode(ctx, 1, "3")
	require.NoError(t, err)
	assert.False(t, on)
	assert.NotContains(t, svc.Snapshot().WatchedEpisodes, "1")

	read, err := svc.ToggleChapter(ctx, 2, "10")
	require.NoError(t, err)
	assert.True(t, read)
	p := svc.Snapshot().ReadChapters["2"]
	assert.Equal(t, []string{"10"}, p.Read)
	assert.Equal(t, int64(5000), p.LastRead)
}

func TestCommentsAndLinks(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	require.NoError(t, svc.SetComment(ctx, 4, json.RawMessage(`{"text":"great"}`)))
	assert.JSONEq(t, `{"text":"great"}`, string(svc.Snapshot().Comments["4"]))
	require.NoError(t, svc.SetComment(ctx, 4, json.RawMessage(`null`)))
	assert.NotContains(t, svc.Snapshot().Comments, "4")
	assert.Error(t, svc.SetComment(ctx, 4, json.RawMessage(`{oops`)))

	require.NoError(t, svc.SetEpisodeLink(ctx, 4, model.EpisodeLink{URL: " https://x/{ep} ", Ongoing: true}))
	assert.Equal(t, "https://x/{ep}", svc.Snapshot().CustomEpisodeLinks["4"].URL)
	require.NoError(t, svc.RemoveEpisodeLink(ctx, 4))
	assert.Empty(t, svc.Snapshot().CustomEpisodeLinks)
}

func TestReminderLifecycle(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)

	_, err := svc.AddReminder(ctx, model.Reminder{Title: " "})
	assert.ErrorIs(t, err, ErrInvalidReminder)

	r, err := svc.AddReminder(ctx, model.Reminder{
		MediaID:       9,
		Title:         "Watch",
		StartDateTime: start,
		RepeatOnDays:  []time.Weekday{time.Thursday, time.Monday, time.Monday},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, []time.Weekday{time.Monday, time.Thursday}, r.RepeatOnDays)

	n := model.ReminderNotification(reminder.NotificationID(r.ID), 1, model.ReminderPayload{ReminderID: r.ID})
	_, err = svc.AppendNotifications(ctx, n)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteReminder(ctx, r.ID))
	snap := svc.Snapshot()
	assert.Empty(t, snap.Reminders)
	assert.Empty(t, snap.Notifications, "deleting a reminder deletes its notification")

	assert.ErrorIs(t, svc.DeleteReminder(ctx, r.ID), ErrReminderNotFound)
	assert.ErrorIs(t, svc.UpdateReminder(ctx, model.Reminder{ID: "nope", Title: "x", StartDateTime: start}), ErrReminderNotFound)
}

func TestDismissReminderNotification(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()
	start := time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return start.AddDate(0, 0, 2) }

	oneShot, err := svc.AddReminder(ctx, model.Reminder{Title: "once", StartDateTime: start})
	require.NoError(t, err)
	repeating, err := svc.AddReminder(ctx, model.Reminder{Title: "every 5", StartDateTime: start, RepeatIntervalDays: 5})
	require.NoError(t, err)

	for _, r := range []model.Reminder{oneShot, repeating} {
		_, err := svc.AppendNotifications(ctx, model.ReminderNotification(reminder.NotificationID(r.ID), 1, model.ReminderPayload{ReminderID: r.ID}))
		require.NoError(t, err)
	}

	require.NoError(t, svc.DismissNotification(ctx, reminder.NotificationID(oneShot.ID)))
	require.NoError(t, svc.DismissNotification(ctx, reminder.NotificationID(repeating.ID)))

	snap := svc.Snapshot()
	assert.Empty(t, snap.Notifications)
	require.Len(t, snap.Reminders, 1)
	assert.Equal(t, repeating.ID, snap.Reminders[0].ID)
	assert.Equal(t, start.AddDate(0, 0, 5), snap.Reminders[0].StartDateTime)

	assert.ErrorIs(t, svc.DismissNotification(ctx, "missing"), ErrNotificationNotFound)
}

func TestNotificationSeenAndClear(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	added, err := svc.AppendNotifications(ctx,
		model.NewsNotification("a", 1, model.NewsPayload{MediaID: 1, MediaType: model.MediaTypeManga}),
		model.NewsNotification("b", 2, model.NewsPayload{MediaID: 2, MediaType: model.MediaTypeAnime}),
		model.StorageNotification("c", 3, model.StoragePayload{Usage: 2, Quota: 1}),
		model.NewsNotification("a", 4, model.NewsPayload{MediaID: 1}),
	)
	require.NoError(t, err)
	assert.Equal(t, 3, added)

	require.NoError(t, svc.MarkNotificationSeen(ctx, "c"))
	changed, err := svc.MarkAllNotificationsSeen(ctx, model.TabChapters)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	snap := svc.Snapshot()
	assert.True(t, snap.Notifications[0].Seen)
	assert.False(t, snap.Notifications[1].Seen)
	require.NotNil(t, snap.Notifications[2].SeenAt)

	removed, err := svc.ClearNotifications(ctx, model.KindNews)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	require.Len(t, svc.Snapshot().Notifications, 1)
}

func TestLayoutAndPreferences(t *testing.T) {
	svc, _ := newService(t, nil)
	ctx := context.Background()

	layout, err := svc.SetNotificationsLayout(ctx, []string{"news", "system", "episodes"})
	require.NoError(t, err)
	assert.Equal(t, []string{"episodes", "chapters", "system"}, layout)

	require.NoError(t, svc.SetPinnedNotificationTab(ctx, "system"))
	assert.ErrorIs(t, svc.SetPinnedNotificationTab(ctx, "reminders"), ErrUnknownTab)

	excluded, err := svc.ToggleExcludedItem(ctx, 5)
	require.NoError(t, err)
	assert.True(t, excluded)

	require.NoError(t, svc.MarkActivityRead(ctx, "act-1", "act-1", "act-2"))
	assert.Equal(t, []string{"act-1", "act-2"}, svc.Snapshot().ReadActivityIDs)

	require.NoError(t, svc.SetHiddenGenres(ctx, []string{" Ecchi ", "", "Ecchi"}))
	require.NoError(t, svc.SetSensitiveContentUnlocked(ctx, true))
	assert.Equal(t, []string{"Ecchi"}, svc.EffectiveHiddenGenres())

	assert.ErrorIs(t, svc.SetStorageQuota(ctx, 0), ErrInvalidQuota)
	require.NoError(t, svc.SetStorageQuota(ctx, 4096))
	assert.Equal(t, int64(4096), svc.Snapshot().StorageQuota)

	require.NoError(t, svc.SetLayoutConfig(ctx, []json.RawMessage{json.RawMessage(`{"id":"trending"}`)}))
	assert.Len(t, svc.Snapshot().LayoutConfig, 1)

	d, err := svc.Reset(ctx)
	require.NoError(t, err)
	assert.Empty(t, d.ExcludedItems)
}
