// Package reminder decides when user reminders are due and turns due
// reminders into notifications.
package reminder

import (
	"time"

	"github.com/theLastOfCats/anishelf/internal/model"
)

const day = 24 * time.Hour

// NotificationID is the id of the single notification a reminder may own.
func NotificationID(reminderID string) string {
	return "reminder-" + reminderID
}

// IsDue reports whether r has triggered as of now.
func IsDue(r model.Reminder, now time.Time) bool {
	start := r.StartDateTime
	switch {
	case r.IsWeekly():
		for _, wd := range r.RepeatOnDays {
			if !firstOccurrence(start, wd).Before(now) {
				return false
			}
		}
		return true
	case r.RepeatIntervalDays > 0:
		if !start.Before(now) {
			return false
		}
		days := int(now.Sub(start) / day)
		// Any elapsed day counts, so a started interval reminder is due on every check.
		return days%r.RepeatIntervalDays == 0 || days > 0
	default:
		return start.Before(now)
	}
}

// firstOccurrence is the first wd on or after start's date, at start's time of day.
func firstOccurrence(start time.Time, wd time.Weekday) time.Time {
	delta := (int(wd) - int(start.Weekday()) + 7) % 7
	return start.AddDate(0, 0, delta)
}

// Completed reports whether an auto-stopping reminder's media has been
// fully watched or read. Unknown totals never complete.
func Completed(r model.Reminder, data model.ListData, tracked model.TrackedMedia) bool {
	if !r.AutoStopOnCompletion {
		return false
	}
	media, ok := tracked[r.MediaID]
	if !ok {
		return false
	}

	key := model.MediaKey(r.MediaID)
	var total *int
	var progress int
	if media.IsManga() {
		total = media.Chapters
		if total == nil {
			total = media.Volumes
		}
		progress = len(data.ReadChapters[key].Read)
	} else {
		total = media.Episodes
		progress = len(data.WatchedEpisodes[key])
	}
	if total == nil || *total <= 0 {
		return false
	}
	return progress >= *total
}

// Rearm moves a repeating reminder's start to its next occurrence after now.
// One-shot reminders are not kept.
func Rearm(r model.Reminder, now time.Time) (model.Reminder, bool) {
	start := r.StartDateTime
	switch {
	case r.IsWeekly():
		y, m, d := now.In(start.Location()).Date()
		next := time.Date(y, m, d, start.Hour(), start.Minute(), start.Second(), 0, start.Location())
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		r.StartDateTime = next
		return r, true
	case r.RepeatIntervalDays > 0:
		next := start
		if elapsed := int(now.Sub(start) / day); elapsed > 0 {
			next = next.AddDate(0, 0, elapsed/r.RepeatIntervalDays*r.RepeatIntervalDays)
		}
		for !next.After(now) {
			next = next.AddDate(0, 0, r.RepeatIntervalDays)
		}
		r.StartDateTime = next
		return r, true
	default:
		return r, false
	}
}
