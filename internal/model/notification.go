package model

import (
	"errors"
	"fmt"
)

// NotificationKind discriminates the Notification sum type.
type NotificationKind string

const (
	KindNews     NotificationKind = "news"
	KindReminder NotificationKind = "reminder"
	KindStorage  NotificationKind = "storage"
)

// Notification tabs shown by clients. TabNewsRetired is the legacy key that
// older profiles may still carry in their layout.
const (
	TabAll         = "all"
	TabEpisodes    = "episodes"
	TabChapters    = "chapters"
	TabReminders   = "reminders"
	TabSystem      = "system"
	TabNewsRetired = "news"
)

var DefaultNotificationsLayout = []string{TabAll, TabEpisodes, TabChapters, TabReminders, TabSystem}

var ErrUnknownNotificationKind = errors.New("unknown notification kind")

type NewsPayload struct {
	MediaID       int    `json:"mediaId"`
	Title         string `json:"title"`
	Image         string `json:"image,omitempty"`
	MediaType     string `json:"mediaType"`
	PreviousCount int    `json:"previousCount"`
	NewCount      int    `json:"newCount"`
}

// Delta is the number of new episodes or chapters announced.
func (p NewsPayload) Delta() int {
	return p.NewCount - p.PreviousCount
}

type ReminderPayload struct {
	ReminderID string `json:"reminderId"`
	MediaID    int    `json:"mediaId"`
	Title      string `json:"title"`
	Notes      string `json:"notes,omitempty"`
}

type StoragePayload struct {
	Usage int64 `json:"usage"`
	Quota int64 `json:"quota"`
}

// Notification carries exactly one payload, selected by Kind.
type Notification struct {
	ID        string           `json:"id"`
	Kind      NotificationKind `json:"type"`
	Timestamp int64            `json:"timestamp"`
	Seen      bool             `json:"seen"`
	SeenAt    *int64           `json:"seenAt,omitempty"`

	News     *NewsPayload     `json:"news,omitempty"`
	Reminder *ReminderPayload `json:"reminder,omitempty"`
	Storage  *StoragePayload  `json:"storage,omitempty"`
}

func NewsNotification(id string, at int64, p NewsPayload) Notification {
	return Notification{ID: id, Kind: KindNews, Timestamp: at, News: &p}
}

func ReminderNotification(id string, at int64, p ReminderPayload) Notification {
	return Notification{ID: id, Kind: KindReminder, Timestamp: at, Reminder: &p}
}

func StorageNotification(id string, at int64, p StoragePayload) Notification {
	return Notification{ID: id, Kind: KindStorage, Timestamp: at, Storage: &p}
}

// Validate checks that the payload matches the discriminant.
func (n Notification) Validate() error {
	if n.ID == "" {
		return errors.New("notification id is empty")
	}
	switch n.Kind {
	case KindNews:
		if n.News == nil || n.Reminder != nil || n.Storage != nil {
			return fmt.Errorf("notification %s: news payload mismatch", n.ID)
		}
	case KindReminder:
		if n.Reminder == nil || n.News != nil || n.Storage != nil {
			return fmt.Errorf("notification %s: reminder payload mismatch", n.ID)
		}
	case KindStorage:
		if n.Storage == nil || n.News != nil || n.Reminder != nil {
			return fmt.Errorf("notification %s: storage payload mismatch", n.ID)
		}
	default:
		return fmt.Errorf("notification %s: %w %q", n.ID, ErrUnknownNotificationKind, n.Kind)
	}
	return nil
}

// Tab returns the layout tab a notification is grouped under.
func (n Notification) Tab() string {
	switch n.Kind {
	case KindNews:
		if n.News != nil && n.News.MediaType == MediaTypeManga {
			return TabChapters
		}
		return TabEpisodes
	case KindReminder:
		return TabReminders
	case KindStorage:
		return TabSystem
	default:
		return TabAll
	}
}

func (n Notification) Clone() Notification {
	out := n
	if n.SeenAt != nil {
		at := *n.SeenAt
		out.SeenAt = &at
	}
	switch n.Kind {
	case KindNews:
		if n.News != nil {
			p := *n.News
			out.News = &p
		}
	case KindReminder:
		if n.Reminder != nil {
			p := *n.Reminder
			out.Reminder = &p
		}
	case KindStorage:
		if n.Storage != nil {
			p := *n.Storage
			out.Storage = &p
		}
	}
	return out
}

// AppendNotifications appends every valid notification whose id is not
// already present and reports how many were added.
func (d *ListData) AppendNotifications(ns ...Notification) int {
	seen := make(map[string]struct{}, len(d.Notifications))
	for _, n := range d.Notifications {
		seen[n.ID] = struct{}{}
	}
	added := 0
	for _, n := range ns {
		if n.Validate() != nil {
			continue
		}
		if _, ok := seen[n.ID]; ok {
			continue
		}
		seen[n.ID] = struct{}{}
		d.Notifications = append(d.Notifications, n)
		added++
	}
	return added
}
