package reminder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theLastOfCats/anishelf/internal/logger"
	"github.com/theLastOfCats/anishelf/internal/model"
)

type memLists struct {
	mu      sync.Mutex
	data    model.ListData
	mutates int
}

func (m *memLists) Snapshot() model.ListData {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.Clone()
}

func (m *memLists) Mutate(_ context.Context, fn func(model.ListData) model.ListData) (model.ListData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = fn(m.data.Clone())
	m.mutates++
	return m.data.Clone(), nil
}

type staticTracked model.TrackedMedia

func (s staticTracked) Tracked(context.Context) (model.TrackedMedia, error) {
	return model.TrackedMedia(s), nil
}

func newScheduler(lists *memLists, tracked model.TrackedMedia, now time.Time) *Scheduler {
	s := NewScheduler(lists, staticTracked(tracked), time.Hour, logger.Discard())
	s.Now = func() time.Time { return now }
	return s
}

func TestEvaluateCreatesOneNotificationAcrossPasses(t *testing.T) {
	lists := &memLists{data: model.DefaultListData()}
	lists.data.Reminders = []model.Reminder{{ID: "r1", MediaID: 5, Title: "Frieren", StartDateTime: friday}}
	s := newScheduler(lists, nil, friday.Add(time.Hour))

	total := 0
	for i := 0; i < 5; i++ {
		n, err := s.Evaluate(context.Background())
		require.NoError(t, err)
		total += n
	}

	assert.Equal(t, 1, total)
	got := lists.Snapshot().Notifications
	require.Len(t, got, 1)
	assert.Equal(t, "reminder-r1", got[0].ID)
	assert.Equal(t, model.KindReminder, got[0].Kind)
	assert.Equal(t, "Frieren", got[0].Reminder.Title)
	assert.Equal(t, 1, lists.mutates, "passes with nothing due must not write")
}

func TestEvaluateSkipsNotYetDueAndCompleted(t *testing.T) {
	lists := &memLists{data: model.DefaultListData()}
	lists.data.Reminders = []model.Reminder{
		{ID: "future", StartDateTime: friday.AddDate(0, 0, 1)},
		{ID: "done", MediaID: 1, StartDateTime: friday, AutoStopOnCompletion: true},
	}
	lists.data.WatchedEpisodes["1"] = []string{"1"}
	tracked := model.TrackedMedia{1: {ID: 1, Type: model.MediaTypeAnime, Episodes: intPtr(1)}}
	s := newScheduler(lists, tracked, friday.Add(time.Hour))

	n, err := s.Evaluate(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, lists.Snapshot().Notifications)
}

func TestStartEvaluatesImmediatelyAndStops(t *testing.T) {
	lists := &memLists{data: model.DefaultListData()}
	lists.data.Reminders = []model.Reminder{{ID: "r", StartDateTime: friday}}
	s := newScheduler(lists, nil, friday.Add(time.Minute))

	s.Start(context.Background())
	require.Eventually(t, func() bool {
		return len(lists.Snapshot().Notifications) == 1
	}, time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()
}
