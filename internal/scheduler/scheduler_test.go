package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"dinner_recipe_bot/internal/domain"
)

func newTestScheduler(t *testing.T, now func() time.Time) (*Scheduler, *logtest.Hook) {
	t.Helper()

	logger, hook := logtest.NewNullLogger()
	s := New(time.UTC, logrus.NewEntry(logger))
	s.now = now
	return s, hook
}

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestNextFire(t *testing.T) {
	base := time.Date(2024, 3, 10, 18, 30, 0, 0, time.UTC)

	tests := []struct {
		name   string
		now    time.Time
		hour   int
		minute int
		want   time.Time
	}{
		{
			name:   "later today",
			now:    base.Add(-time.Hour),
			hour:   18,
			minute: 30,
			want:   base,
		},
		{
			name:   "exactly now rolls to tomorrow",
			now:    base,
			hour:   18,
			minute: 30,
			want:   base.AddDate(0, 0, 1),
		},
		{
			name:   "already passed",
			now:    base.Add(time.Minute),
			hour:   7,
			minute: 0,
			want:   time.Date(2024, 3, 11, 7, 0, 0, 0, time.UTC),
		},
		{
			name:   "month boundary",
			now:    time.Date(2024, 3, 31, 23, 59, 30, 0, time.UTC),
			hour:   0,
			minute: 0,
			want:   time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextFire(tt.now, tt.hour, tt.minute, time.UTC)
			if !got.Equal(tt.want) {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestNextFireUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	now := time.Date(2024, 3, 10, 14, 0, 0, 0, time.UTC) // 17:00 local

	got := NextFire(now, 18, 0, loc)
	want := time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestScheduleReplacesExistingTrigger(t *testing.T) {
	s, hook := newTestScheduler(t, fixedClock(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)))

	if err := s.Schedule(7, 18, 30); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := s.Schedule(7, 19, 0); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	triggers := s.Triggers()
	if len(triggers) != 1 {
		t.Fatalf("expected a single trigger, got %d", len(triggers))
	}
	if triggers[0] != (Trigger{UserID: 7, Hour: 19, Minute: 0}) {
		t.Fatalf("unexpected trigger %+v", triggers[0])
	}

	if hook.LastEntry().Data["replaced"] != true {
		t.Fatalf("expected replaced=true on second schedule, got %v", hook.LastEntry().Data)
	}
}

func TestScheduleValidatesInput(t *testing.T) {
	s, _ := newTestScheduler(t, time.Now)

	cases := []struct {
		userID       int64
		hour, minute int
	}{
		{0, 10, 0},
		{1, 24, 0},
		{1, -1, 0},
		{1, 10, 60},
	}

	for _, c := range cases {
		if err := s.Schedule(c.userID, c.hour, c.minute); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("expected invalid input for %+v, got %v", c, err)
		}
	}
	if len(s.Triggers()) != 0 {
		t.Fatalf("expected no triggers after invalid input")
	}
}

func TestUnschedule(t *testing.T) {
	s, _ := newTestScheduler(t, time.Now)

	_ = s.Schedule(1, 8, 0)
	_ = s.Schedule(2, 9, 0)

	if !s.Unschedule(1) {
		t.Fatalf("expected trigger to be removed")
	}
	if s.Unschedule(1) {
		t.Fatalf("expected second removal to report false")
	}

	triggers := s.Triggers()
	if len(triggers) != 1 || triggers[0].UserID != 2 {
		t.Fatalf("unexpected triggers %+v", triggers)
	}
}

func TestCollectDueAdvancesTriggers(t *testing.T) {
	start := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	s, _ := newTestScheduler(t, fixedClock(start))

	_ = s.Schedule(1, 18, 30)
	_ = s.Schedule(2, 20, 0)

	if fires := s.collectDue(start); len(fires) != 0 {
		t.Fatalf("expected nothing due at noon, got %+v", fires)
	}

	at := time.Date(2024, 3, 10, 18, 30, 0, 0, time.UTC)
	fires := s.collectDue(at)
	if len(fires) != 1 || fires[0].UserID != 1 || !fires[0].At.Equal(at) {
		t.Fatalf("unexpected fires %+v", fires)
	}

	next, ok := s.earliest()
	if !ok {
		t.Fatalf("expected remaining triggers")
	}
	if want := time.Date(2024, 3, 10, 20, 0, 0, 0, time.UTC); !next.Equal(want) {
		t.Fatalf("expected earliest %s, got %s", want, next)
	}

	if fires := s.collectDue(at); len(fires) != 0 {
		t.Fatalf("expected trigger to fire once per day, got %+v", fires)
	}

	s.mu.Lock()
	advanced := s.triggers[1].next
	s.mu.Unlock()
	if want := at.AddDate(0, 0, 1); !advanced.Equal(want) {
		t.Fatalf("expected next fire %s, got %s", want, advanced)
	}
}

func TestRunEmitsFire(t *testing.T) {
	target := time.Date(2024, 3, 10, 18, 30, 0, 0, time.UTC)
	origin := target.Add(-50 * time.Millisecond)
	started := time.Now()

	s, _ := newTestScheduler(t, func() time.Time { return origin.Add(time.Since(started)) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	if err := s.Schedule(42, 18, 30); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	select {
	case fire := <-s.Fires():
		if fire.UserID != 42 || !fire.At.Equal(target) {
			t.Fatalf("unexpected fire %+v", fire)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for fire")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("run did not stop after cancel")
	}
}

func TestRunStopsWithoutTriggers(t *testing.T) {
	s, _ := newTestScheduler(t, time.Now)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("run did not stop after cancel")
	}
}
