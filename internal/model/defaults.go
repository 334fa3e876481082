package model

import (
	"encoding/json"
	"slices"
)

// SensitiveGenres are always hidden unless sensitive content is unlocked.
var SensitiveGenres = []string{"Hentai", "Erotica"}

// DefaultListData is the empty profile substituted whenever nothing usable is stored.
func DefaultListData() ListData {
	return ListData{
		PlanToWatch:         []int{},
		CurrentlyWatching:   []int{},
		PlanToRead:          []int{},
		CurrentlyReading:    []int{},
		WatchedEpisodes:     map[string][]string{},
		ReadChapters:        map[string]ReadProgress{},
		CustomEpisodeLinks:  map[string]EpisodeLink{},
		Comments:            map[string]json.RawMessage{},
		Notifications:       []Notification{},
		NotificationsLayout: slices.Clone(DefaultNotificationsLayout),
		ExcludedItems:       []int{},
		ReadActivityIDs:     []string{},
		Reminders:           []Reminder{},
		HiddenGenres:        slices.Clone(SensitiveGenres),
		StorageQuota:        DefaultStorageQuota,
		LayoutConfig:        []json.RawMessage{},
	}
}
