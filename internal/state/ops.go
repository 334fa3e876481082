package state

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/theLastOfCats/anishelf/internal/id"
	"github.com/theLastOfCats/anishelf/internal/model"
	"github.com/theLastOfCats/anishelf/internal/reminder"
)

// Tracking list names, as used in the JSON document and the API.
const (
	ListPlanToWatch       = "planToWatch"
	ListCurrentlyWatching = "currentlyWatching"
	ListPlanToRead        = "planToRead"
	ListCurrentlyReading  = "currentlyReading"
)

var Lists = []string{ListPlanToWatch, ListCurrentlyWatching, ListPlanToRead, ListCurrentlyReading}

func listField(d *model.ListData, name string) (*[]int, error) {
	switch name {
	case ListPlanToWatch:
		return &d.PlanToWatch, nil
	case ListCurrentlyWatching:
		return &d.CurrentlyWatching, nil
	case ListPlanToRead:
		return &d.PlanToRead, nil
	case ListCurrentlyReading:
		return &d.CurrentlyReading, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownList, name)
	}
}

func toggle[T comparable](set []T, v T) ([]T, bool) {
	if i := slices.Index(set, v); i >= 0 {
		return slices.Delete(set, i, i+1), false
	}
	return append(set, v), true
}

// ToggleList adds mediaID to the named list, or removes it if present. The
// hint, when given, seeds the tracked-media cache without a catalog fetch.
func (s *Service) ToggleList(ctx context.Context, list string, mediaID int, hint *model.Media) (bool, error) {
	if _, err := listField(&model.ListData{}, list); err != nil {
		return false, err
	}
	var added bool
	_, err := s.Mutate(ctx, func(d model.ListData) model.ListData {
		field, _ := listField(&d, list)
		*field, added = toggle(*field, mediaID)
		return d
	})
	if err != nil {
		return false, err
	}
	s.notifyWatcher(mediaID, hint)
	return added, nil
}

// ToggleEpisode flips an episode's watched state and reports the new state.
func (s *Service) ToggleEpisode(ctx context.Context, mediaID int, episode string) (bool, error) {
	key := model.MediaKey(mediaID)
	var watched bool
	_, err := s.Mutate(ctx, func(d model.ListData) model.ListData {
		eps, on := toggle(d.WatchedEpisodes[key], episode)
		watched = on
		if len(eps) == 0 {
			delete(d.WatchedEpisodes, key)
		} else {
			d.WatchedEpisodes[key] = eps
		}
		return d
	})
	return watched, err
}

// ToggleChapter flips a chapter's read state and stamps lastRead.
func (s *Service) ToggleChapter(ctx context.Context, mediaID int, chapter string) (bool, error) {
	key := model.MediaKey(mediaID)
	now := s.Now().UnixMilli()
	var read bool
	_, err := s.Mutate(ctx, func(d model.ListData) model.ListData {
		p := d.ReadChapters[key]
		p.Read, read = toggle(p.Read, chapter)
		p.LastRead = now
		d.ReadChapters[key] = p
		return d
	})
	return read, err
}

func (s *Service) SetEpisodeLink(ctx context.Context, mediaID int, link model.EpisodeLink) error {
	link.URL = strings.TrimSpace(link.URL)
	if link.URL == "" {
		return s.RemoveEpisodeLink(ctx, mediaID)
	}
	_, err := s.Mutate(ctx, func(d model.ListData) model.ListData {
		d.CustomEpisodeLinks[model.MediaKey(mediaID)] = link
		return d
	})
	return err
}

func (s *Service) RemoveEpisodeLink(ctx context.Context, mediaID int) error {
	_, err := s.Mutate(ctx, func(d model.ListData) model.ListData {
		delete(d.CustomEpisodeLinks, model.MediaKey(mediaID))
		return d
	})
	return err
}

// SetComment stores an opaque annotation. Empty or null removes it.
func (s *Service) SetComment(ctx context.Context, mediaID int, comment json.RawMessage) error {
	trimmed := bytes.TrimSpace(comment)
	remove := len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
	if !remove && !json.Valid(trimmed) {
		return fmt.Errorf("state: comment is not valid JSON")
	}
	_, err := s.Mutate(ctx, func(d model.ListData) model.ListData {
		key := model.MediaKey(mediaID)
		if remove {
			delete(d.Comments, key)
		} else {
			d.Comments[key] = slices.Clone(trimmed)
		}
		return d
	})
	return err
}

func validateReminder(r *model.Reminder) error {
	r.Title = strings.TrimSpace(r.Title)
	switch {
	case r.Title == "":
		return fmt.Errorf("%w: title is required", ErrInvalidReminder)
	case r.StartDateTime.IsZero():
		return fmt.Errorf("%w: start date is required", ErrInvalidReminder)
	case r.RepeatIntervalDays < 0:
		return fmt.Errorf("%w: repeat interval must not be negative", ErrInvalidReminder)
	}
	for _, wd := range r.RepeatOnDays {
		if wd < time.Sunday || wd > time.Saturday {
			return fmt.Errorf("%w: weekday %d out of range", ErrInvalidReminder, wd)
		}
	}
	days := dedupe(r.RepeatOnDays)
	slices.Sort(days)
	if len(days) == 0 {
		days = nil
	}
	r.RepeatOnDays = days
	return nil
}

// AddReminder validates r, assigns an id and creation time, and appends it.
func (s *Service) AddReminder(ctx context.Context, r model.Reminder) (model.Reminder, error) {
	if err := validateReminder(&r); err != nil {
		return model.Reminder{}, err
	}
	r.ID = id.MustGenerate("rem")
	r.CreatedAt = s.Now().UnixMilli()

	_, err := s.Mutate(ctx, func(d model.ListData) model.ListData {
		d.Reminders = append(d.Reminders, r)
		return d
	})
	if err != nil {
		return model.Reminder{}, err
	}
	return r, nil
}

// UpdateReminder replaces the reminder with r.ID, keeping its creation time.
// A pending notification for it is dropped so the new schedule applies.
func (s *Service) UpdateReminder(ctx context.Context, r model.Reminder) error {
	if err := validateReminder(&r); err != nil {
		return err
	}
	found := false
	_, err := s.Mutate(ctx, func(d model.ListData) model.ListData {
		i := d.ReminderByID(r.ID)
		found = i >= 0
		if !found {
			return d
		}
		r.CreatedAt = d.Reminders[i].CreatedAt
		d.Reminders[i] = r
		d.Notifications = withoutReminderNotification(d.Notifications, r.ID)
		return d
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrReminderNotFound, r.ID)
	}
	return nil
}

// DeleteReminder removes the reminder and its notification.
func (s *Service) DeleteReminder(ctx context.Context, reminderID string) error {
	found := false
	_, err := s.Mutate(ctx, func(d model.ListData) model.ListData {
		i := d.ReminderByID(reminderID)
		found = i >= 0
		if found {
			d.Reminders = slices.Delete(d.Reminders, i, i+1)
		}
		d.Notifications = withoutReminderNotification(d.Notifications, reminderID)
		return d
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrReminderNotFound, reminderID)
	}
	return nil
}

func withoutReminderNotification(ns []model.Notification, reminderID string) []model.Notification {
	return slices.DeleteFunc(ns, func(n model.Notification) bool {
		return n.Kind == model.KindReminder && n.Reminder != nil && n.Reminder.ReminderID == reminderID
	})
}

func (s *Service) MarkNotificationSeen(ctx context.Context, notificationID string) error {
	now := s.Now().UnixMilli()
	found := false
	_, err := s.Mutate(ctx, func(d model.ListData) model.ListData {
		i := d.NotificationByID(notificationID)
		if found = i >= 0; found && !d.Notifications[i].Seen {
			d.Notifications[i].Seen = true
			d.Notifications[i].SeenAt = &now
		}
		return d
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotificationNotFound, notificationID)
	}
	return nil
}

// MarkAllNotificationsSeen marks every notification in tab as seen. An
// empty tab or "all" covers everything. It returns the number changed.
func (s *Service) MarkAllNotificationsSeen(ctx context.Context, tab string) (int, error) {
	now := s.Now().UnixMilli()
	changed := 0
	_, err := s.Mutate(ctx, func(d model.ListData) model.ListData {
		changed = 0
		for i, n := range d.Notifications {
			if n.Seen || !inTab(n, tab) {
				continue
			}
			d.Notifications[i].Seen = true
			d.Notifications[i].SeenAt = &now
			changed++
		}
		return d
	})
	return changed, err
}

func inTab(n model.Notification, tab string) bool {
	return tab == "" || tab == model.TabAll || n.Tab() == tab
}

// DismissNotification removes a notification. Dismissing a reminder
// notification deletes a one-shot reminder and re-arms a repeating one.
func (s *Service) DismissNotification(ctx context.Context, notificationID string) error {
	now := s.Now()
	found := false
	_, err := s.Mutate(ctx, func(d model.ListData) model.ListData {
		i := d.NotificationByID(notificationID)
		if found = i >= 0; !found {
			return d
		}
		n := d.Notifications[i]
		d.Notifications = slices.Delete(d.Notifications, i, i+1)
		settleReminder(&d, n, now)
		return d
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotificationNotFound, notificationID)
	}
	return nil
}

// ClearNotifications removes every notification of kind, or all of them when
// kind is empty. Cleared reminder notifications settle their reminders the
// same way a dismiss does.
func (s *Service) ClearNotifications(ctx context.Context, kind model.NotificationKind) (int, error) {
	now := s.Now()
	removed := 0
	_, err := s.Mutate(ctx, func(d model.ListData) model.ListData {
		kept := make([]model.Notification, 0, len(d.Notifications))
		var cleared []model.Notification
		for _, n := range d.Notifications {
			if kind == "" || n.Kind == kind {
				cleared = append(cleared, n)
				continue
			}
			kept = append(kept, n)
		}
		d.Notifications = kept
		for _, n := range cleared {
			settleReminder(&d, n, now)
		}
		removed = len(cleared)
		return d
	})
	return removed, err
}

func settleReminder(d *model.ListData, n model.Notification, now time.Time) {
	switch n.Kind {
	case model.KindReminder:
		if n.Reminder == nil {
			return
		}
		i := d.ReminderByID(n.Reminder.ReminderID)
		if i < 0 {
			return
		}
		next, keep := reminder.Rearm(d.Reminders[i], now)
		if keep {
			d.Reminders[i] = next
		} else {
			d.Reminders = slices.Delete(d.Reminders, i, i+1)
		}
	case model.KindNews, model.KindStorage:
	}
}

// AppendNotifications adds valid notifications whose ids are new.
func (s *Service) AppendNotifications(ctx context.Context, ns ...model.Notification) (int, error) {
	added := 0
	_, err := s.Mutate(ctx, func(d model.ListData) model.ListData {
		added = d.AppendNotifications(ns...)
		return d
	})
	return added, err
}

func (s *Service) SetNotificationsLayout(ctx context.Context, tabs []string) ([]string, error) {
	layout := SanitizeLayout(tabs)
	_, err := s.Mutate(ctx, func(d model.ListData) model.ListData {
		d.NotificationsLayout = layout
		if d.PinnedNotificationTab != "" && !slices.Contains(layout, d.PinnedNotificationTab) {
			d.PinnedNotificationTab = ""
		}
		return d
	})
	return layout, err
}

// SetPinnedNotificationTab pins a tab from the current layout. Empty unpins.
func (s *Service) SetPinnedNotificationTab(ctx context.Context, tab string) error {
	valid := true
	_, err := s.Mutate(ctx, func(d model.ListData) model.ListData {
		if tab != "" && !slices.Contains(d.NotificationsLayout, tab) {
			valid = false
			return d
		}
		d.PinnedNotificationTab = tab
		return d
	})
	if err != nil {
		return err
	}
	if !valid {
		return fmt.Errorf("%w: %q", ErrUnknownTab, tab)
	}
	return nil
}

// ToggleExcludedItem flips whether a media id is hidden from recommendations.
func (s *Service) ToggleExcludedItem(ctx context.Context, mediaID int) (bool, error) {
	var excluded bool
	_, err := s.Mutate(ctx, func(d model.ListData) model.ListData {
		d.ExcludedItems, excluded = toggle(d.ExcludedItems, mediaID)
		return d
	})
	return excluded, err
}

func (s *Service) MarkActivityRead(ctx context.Context, activityIDs ...string) error {
	_, err := s.Mutate(ctx, func(d model.ListData) model.ListData {
		d.ReadActivityIDs = dedupe(append(d.ReadActivityIDs, activityIDs...))
		return d
	})
	return err
}

func (s *Service) SetHiddenGenres(ctx context.Context, genres []string) error {
	cleaned := cleanGenres(genres)
	_, err := s.Mutate(ctx, func(d model.ListData) model.ListData {
		d.HiddenGenres = cleaned
		return d
	})
	return err
}

func (s *Service) SetSensitiveContentUnlocked(ctx context.Context, unlocked bool) error {
	_, err := s.Mutate(ctx, func(d model.ListData) model.ListData {
		d.SensitiveContentUnlocked = unlocked
		return d
	})
	return err
}

// EffectiveHiddenGenres applies the sensitive-content rule to current data.
func (s *Service) EffectiveHiddenGenres() []string {
	return EffectiveHiddenGenres(s.Snapshot())
}

func (s *Service) SetStorageQuota(ctx context.Context, limit int64) error {
	if limit <= 0 {
		return ErrInvalidQuota
	}
	_, err := s.Mutate(ctx, func(d model.ListData) model.ListData {
		d.StorageQuota = limit
		return d
	})
	return err
}

func (s *Service) SetLayoutConfig(ctx context.Context, layout []json.RawMessage) error {
	cloned := make([]json.RawMessage, 0, len(layout))
	for _, raw := range layout {
		cloned = append(cloned, slices.Clone(raw))
	}
	_, err := s.Mutate(ctx, func(d model.ListData) model.ListData {
		d.LayoutConfig = cloned
		return d
	})
	return err
}

// Reset replaces the list data with an empty profile and persists it.
func (s *Service) Reset(ctx context.Context) (model.ListData, error) {
	return s.Mutate(ctx, func(model.ListData) model.ListData {
		return model.DefaultListData()
	})
}
