package model

import (
	"encoding/json"
	"maps"
	"slices"
	"strconv"
	"time"
)

// Store keys. One logical table holds every record below.
const (
	KeyProfile      = "profile"
	KeyListData     = "listData"
	KeyLayout       = "layout"
	KeyTrackedMedia = "trackedMedia"
	KeySharedData   = "sharedData"
)

// DefaultStorageQuota is the byte budget applied when none is configured (1 GiB).
const DefaultStorageQuota int64 = 1 << 30

const (
	MediaTypeAnime = "ANIME"
	MediaTypeManga = "MANGA"
)

type Profile struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

type MediaTitle struct {
	Romaji  string `json:"romaji,omitempty"`
	English string `json:"english,omitempty"`
	Native  string `json:"native,omitempty"`
}

type MediaImages struct {
	Large  string `json:"large,omitempty"`
	Medium string `json:"medium,omitempty"`
}

type Media struct {
	ID          int         `json:"id"`
	Type        string      `json:"type"`
	Format      string      `json:"format,omitempty"`
	Status      string      `json:"status,omitempty"`
	Episodes    *int        `json:"episodes,omitempty"`
	Chapters    *int        `json:"chapters,omitempty"`
	Volumes     *int        `json:"volumes,omitempty"`
	Title       MediaTitle  `json:"title"`
	Images      MediaImages `json:"images"`
	Genres      []string    `json:"genres,omitempty"`
	Description string      `json:"description,omitempty"`
}

func (m Media) IsManga() bool {
	return m.Type == MediaTypeManga
}

// ProgressCount is the count new-content detection compares: chapters for
// manga, episodes for everything else.
func (m Media) ProgressCount() *int {
	if m.IsManga() {
		return m.Chapters
	}
	return m.Episodes
}

// DisplayTitle prefers the English title and falls back to romaji, then native.
func (m Media) DisplayTitle() string {
	switch {
	case m.Title.English != "":
		return m.Title.English
	case m.Title.Romaji != "":
		return m.Title.Romaji
	default:
		return m.Title.Native
	}
}

// Stripped drops free-text fields before the record is cached.
func (m Media) Stripped() Media {
	m.Description = ""
	m.Genres = slices.Clone(m.Genres)
	return m
}

// TrackedMedia caches the last-known record of every listed media id.
type TrackedMedia map[int]Media

func (t TrackedMedia) Clone() TrackedMedia {
	out := make(TrackedMedia, len(t))
	for id, m := range t {
		out[id] = m.Stripped()
	}
	return out
}

type ReadProgress struct {
	Read     []string `json:"read"`
	LastRead int64    `json:"lastRead"`
}

type EpisodeLink struct {
	URL     string `json:"url"`
	Ongoing bool   `json:"ongoing"`
}

type Reminder struct {
	ID                   string         `json:"id"`
	MediaID              int            `json:"mediaId"`
	Title                string         `json:"title"`
	Notes                string         `json:"notes"`
	StartDateTime        time.Time      `json:"startDateTime"`
	RepeatIntervalDays   int            `json:"repeatIntervalDays"`
	RepeatOnDays         []time.Weekday `json:"repeatOnDays,omitempty"`
	AutoStopOnCompletion bool           `json:"autoStopOnCompletion"`
	CreatedAt            int64          `json:"createdAt"`
}

func (r Reminder) IsWeekly() bool {
	return len(r.RepeatOnDays) > 0
}

func (r Reminder) IsOneShot() bool {
	return r.RepeatIntervalDays == 0 && !r.IsWeekly()
}

type SharedDataConfig struct {
	URL      string `json:"url"`
	LastSync int64  `json:"lastSync"`
	LastSize int64  `json:"lastSize"`
	LastEtag string `json:"lastEtag"`
}

// Snapshot is the portable interchange document used by export, import and
// shared-data sync.
type Snapshot struct {
	Profile *Profile        `json:"profile"`
	Lists   *ListData       `json:"lists"`
	Layout  json.RawMessage `json:"layout,omitempty"`
	Tracked TrackedMedia    `json:"tracked,omitempty"`
}

// ListData is the root aggregate of a local profile.
type ListData struct {
	PlanToWatch              []int                      `json:"planToWatch"`
	CurrentlyWatching        []int                      `json:"currentlyWatching"`
	PlanToRead               []int                      `json:"planToRead"`
	CurrentlyReading         []int                      `json:"currentlyReading"`
	WatchedEpisodes          map[string][]string        `json:"watchedEpisodes"`
	ReadChapters             map[string]ReadProgress    `json:"readChapters"`
	CustomEpisodeLinks       map[string]EpisodeLink     `json:"customEpisodeLinks"`
	Comments                 map[string]json.RawMessage `json:"comments"`
	Notifications            []Notification             `json:"notifications"`
	NotificationsLayout      []string                   `json:"notificationsLayout"`
	PinnedNotificationTab    string                     `json:"pinnedNotificationTab"`
	ExcludedItems            []int                      `json:"excludedItems"`
	ReadActivityIDs          []string                   `json:"readActivityIds"`
	Reminders                []Reminder                 `json:"reminders"`
	HiddenGenres             []string                   `json:"hiddenGenres"`
	SensitiveContentUnlocked bool                       `json:"sensitiveContentUnlocked"`
	StorageQuota             int64                      `json:"storageQuota"`
	LayoutConfig             []json.RawMessage          `json:"layoutConfig"`
}

// MediaKey is the string form of a media id used by the progress maps.
func MediaKey(id int) string {
	return strconv.Itoa(id)
}

// InAnyList reports whether id is a member of one of the four tracking lists.
func (d ListData) InAnyList(id int) bool {
	return slices.Contains(d.PlanToWatch, id) ||
		slices.Contains(d.CurrentlyWatching, id) ||
		slices.Contains(d.PlanToRead, id) ||
		slices.Contains(d.CurrentlyReading, id)
}

// ListedIDs returns the union of the four tracking lists, in first-seen order.
func (d ListData) ListedIDs() []int {
	return unionIDs(d.PlanToWatch, d.CurrentlyWatching, d.PlanToRead, d.CurrentlyReading)
}

// ActiveIDs returns the ids being watched or read right now.
func (d ListData) ActiveIDs() []int {
	return unionIDs(d.CurrentlyWatching, d.CurrentlyReading)
}

func unionIDs(lists ...[]int) []int {
	seen := make(map[int]struct{})
	var out []int
	for _, list := range lists {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// Clone returns a deep copy.
func (d ListData) Clone() ListData {
	out := d
	out.PlanToWatch = slices.Clone(d.PlanToWatch)
	out.CurrentlyWatching = slices.Clone(d.CurrentlyWatching)
	out.PlanToRead = slices.Clone(d.PlanToRead)
	out.CurrentlyReading = slices.Clone(d.CurrentlyReading)

	if d.WatchedEpisodes != nil {
		out.WatchedEpisodes = make(map[string][]string, len(d.WatchedEpisodes))
		for k, v := range d.WatchedEpisodes {
			out.WatchedEpisodes[k] = slices.Clone(v)
		}
	}
	if d.ReadChapters != nil {
		out.ReadChapters = make(map[string]ReadProgress, len(d.ReadChapters))
		for k, v := range d.ReadChapters {
			out.ReadChapters[k] = ReadProgress{Read: slices.Clone(v.Read), LastRead: v.LastRead}
		}
	}
	out.CustomEpisodeLinks = maps.Clone(d.CustomEpisodeLinks)
	if d.Comments != nil {
		out.Comments = make(map[string]json.RawMessage, len(d.Comments))
		for k, v := range d.Comments {
			out.Comments[k] = slices.Clone(v)
		}
	}

	if d.Notifications != nil {
		out.Notifications = make([]Notification, len(d.Notifications))
		for i, n := range d.Notifications {
			out.Notifications[i] = n.Clone()
		}
	}
	out.NotificationsLayout = slices.Clone(d.NotificationsLayout)
	out.ExcludedItems = slices.Clone(d.ExcludedItems)
	out.ReadActivityIDs = slices.Clone(d.ReadActivityIDs)

	if d.Reminders != nil {
		out.Reminders = make([]Reminder, len(d.Reminders))
		for i, r := range d.Reminders {
			r.RepeatOnDays = slices.Clone(r.RepeatOnDays)
			out.Reminders[i] = r
		}
	}
	out.HiddenGenres = slices.Clone(d.HiddenGenres)

	if d.LayoutConfig != nil {
		out.LayoutConfig = make([]json.RawMessage, len(d.LayoutConfig))
		for i, raw := range d.LayoutConfig {
			out.LayoutConfig[i] = slices.Clone(raw)
		}
	}
	return out
}

// ReminderByID returns the index of the reminder with the given id, or -1.
func (d ListData) ReminderByID(id string) int {
	return slices.IndexFunc(d.Reminders, func(r Reminder) bool { return r.ID == id })
}

// NotificationByID returns the index of the notification with the given id, or -1.
func (d ListData) NotificationByID(id string) int {
	return slices.IndexFunc(d.Notifications, func(n Notification) bool { return n.ID == id })
}
