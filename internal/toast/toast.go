// Package toast is the user-visible notice surface: fire-and-forget
// messages for quota breaches, sync and import outcomes.
package toast

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"
)

type Variant string

const (
	VariantDefault     Variant = "default"
	VariantWarning     Variant = "warning"
	VariantDestructive Variant = "destructive"
)

type Toast struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Variant     Variant   `json:"variant"`
	At          time.Time `json:"at"`
}

// Surface shows a toast. Implementations must not block the caller for long
// and never report failure back.
type Surface interface {
	Show(t Toast)
}

type LogSurface struct {
	Log *slog.Logger
}

func (s *LogSurface) Show(t Toast) {
	level := slog.LevelInfo
	switch t.Variant {
	case VariantWarning:
		level = slog.LevelWarn
	case VariantDestructive:
		level = slog.LevelError
	}
	s.Log.Log(context.Background(), level, "toast", "title", t.Title, "description", t.Description, "variant", string(t.Variant))
}

// Queue buffers the most recent toasts until a client drains them.
type Queue struct {
	mu    sync.Mutex
	limit int
	items []Toast
}

func NewQueue(limit int) *Queue {
	if limit <= 0 {
		limit = 50
	}
	return &Queue{limit: limit}
}

func (q *Queue) Show(t Toast) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, t)
	if over := len(q.items) - q.limit; over > 0 {
		q.items = slices.Delete(q.items, 0, over)
	}
}

// Drain returns the buffered toasts oldest first and empties the queue.
func (q *Queue) Drain() []Toast {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	if out == nil {
		return []Toast{}
	}
	return out
}

// Multi fans a toast out to several surfaces.
type Multi []Surface

func (m Multi) Show(t Toast) {
	for _, s := range m {
		s.Show(t)
	}
}

// Notifier stamps toasts and hands them to a surface.
type Notifier struct {
	Surface Surface
	Now     func() time.Time
}

func NewNotifier(s Surface) *Notifier {
	return &Notifier{Surface: s, Now: time.Now}
}

func (n *Notifier) show(title, description string, v Variant) {
	if n == nil || n.Surface == nil {
		return
	}
	n.Surface.Show(Toast{Title: title, Description: description, Variant: v, At: n.Now()})
}

func (n *Notifier) Info(title, description string) {
	n.show(title, description, VariantDefault)
}

func (n *Notifier) Warn(title, description string) {
	n.show(title, description, VariantWarning)
}

func (n *Notifier) Error(title, description string) {
	n.show(title, description, VariantDestructive)
}
