package state

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/theLastOfCats/anishelf/internal/model"
)

// Normalize repairs a decoded list data value: missing collections become
// empty, lists lose duplicates, retired layout keys are migrated and
// notifications that fail validation are dropped.
func Normalize(d model.ListData) model.ListData {
	d.PlanToWatch = dedupe(d.PlanToWatch)
	d.CurrentlyWatching = dedupe(d.CurrentlyWatching)
	d.PlanToRead = dedupe(d.PlanToRead)
	d.CurrentlyReading = dedupe(d.CurrentlyReading)
	d.ExcludedItems = dedupe(d.ExcludedItems)
	d.ReadActivityIDs = dedupe(d.ReadActivityIDs)

	if d.WatchedEpisodes == nil {
		d.WatchedEpisodes = map[string][]string{}
	}
	for k, eps := range d.WatchedEpisodes {
		d.WatchedEpisodes[k] = dedupe(eps)
	}
	if d.ReadChapters == nil {
		d.ReadChapters = map[string]model.ReadProgress{}
	}
	for k, p := range d.ReadChapters {
		p.Read = dedupe(p.Read)
		d.ReadChapters[k] = p
	}
	if d.CustomEpisodeLinks == nil {
		d.CustomEpisodeLinks = map[string]model.EpisodeLink{}
	}
	if d.Comments == nil {
		d.Comments = map[string]json.RawMessage{}
	}

	d.Notifications = validNotifications(d.Notifications)
	d.NotificationsLayout = SanitizeLayout(d.NotificationsLayout)
	if d.PinnedNotificationTab != "" && !slices.Contains(d.NotificationsLayout, d.PinnedNotificationTab) {
		d.PinnedNotificationTab = migratePinned(d.PinnedNotificationTab, d.NotificationsLayout)
	}

	if d.Reminders == nil {
		d.Reminders = []model.Reminder{}
	}
	if d.HiddenGenres == nil {
		d.HiddenGenres = slices.Clone(model.SensitiveGenres)
	}
	d.HiddenGenres = dedupe(d.HiddenGenres)
	if d.StorageQuota <= 0 {
		d.StorageQuota = model.DefaultStorageQuota
	}
	if d.LayoutConfig == nil {
		d.LayoutConfig = []json.RawMessage{}
	}
	return d
}

func dedupe[T comparable](in []T) []T {
	out := make([]T, 0, len(in))
	seen := make(map[T]struct{}, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func validNotifications(in []model.Notification) []model.Notification {
	out := make([]model.Notification, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, n := range in {
		if n.Validate() != nil {
			continue
		}
		if _, ok := seen[n.ID]; ok {
			continue
		}
		seen[n.ID] = struct{}{}
		out = append(out, n)
	}
	return out
}

var knownTabs = map[string]struct{}{
	model.TabAll:       {},
	model.TabEpisodes:  {},
	model.TabChapters:  {},
	model.TabReminders: {},
	model.TabSystem:    {},
}

// SanitizeLayout migrates the retired news tab into episodes and chapters
// at its position, drops unknown keys and duplicates, and falls back to the
// default layout when nothing is left.
func SanitizeLayout(tabs []string) []string {
	var expanded []string
	for _, tab := range tabs {
		tab = strings.TrimSpace(tab)
		if tab == model.TabNewsRetired {
			expanded = append(expanded, model.TabEpisodes, model.TabChapters)
			continue
		}
		if _, ok := knownTabs[tab]; ok {
			expanded = append(expanded, tab)
		}
	}
	out := dedupe(expanded)
	if len(out) == 0 {
		return slices.Clone(model.DefaultNotificationsLayout)
	}
	return out
}

func migratePinned(tab string, layout []string) string {
	if tab == model.TabNewsRetired && slices.Contains(layout, model.TabEpisodes) {
		return model.TabEpisodes
	}
	return ""
}
