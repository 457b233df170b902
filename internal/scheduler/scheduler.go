// Package scheduler keeps one daily wall-clock trigger per user and emits
// fires on a channel for the dispatch loop to handle.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"dinner_recipe_bot/internal/domain"
	"dinner_recipe_bot/internal/logging"
	"dinner_recipe_bot/internal/metrics"
)

const firesBuffer = 16

// Trigger is a daily send time bound to one user.
type Trigger struct {
	UserID int64
	Hour   int
	Minute int
}

// Fire is emitted when a trigger comes due.
type Fire struct {
	UserID int64
	At     time.Time
}

type entry struct {
	trigger Trigger
	next    time.Time
}

// Scheduler holds the registered triggers. Registering a trigger for a user
// that already has one replaces it.
type Scheduler struct {
	mu       sync.Mutex
	triggers map[int64]*entry
	loc      *time.Location
	now      func() time.Time
	fires    chan Fire
	wake     chan struct{}
	logger   *logrus.Entry
}

// New constructs a Scheduler interpreting trigger times in loc.
func New(loc *time.Location, logger *logrus.Entry) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}

	return &Scheduler{
		triggers: make(map[int64]*entry),
		loc:      loc,
		now:      time.Now,
		fires:    make(chan Fire, firesBuffer),
		wake:     make(chan struct{}, 1),
		logger:   logging.Component(logger, "scheduler"),
	}
}

// NextFire returns the first hour:minute in loc strictly after now.
func NextFire(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}

// Schedule registers or replaces the daily trigger for userID.
func (s *Scheduler) Schedule(userID int64, hour, minute int) error {
	if userID == 0 {
		return fmt.Errorf("%w: user id is required", domain.ErrInvalidInput)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return fmt.Errorf("%w: time %02d:%02d out of range", domain.ErrInvalidInput, hour, minute)
	}

	s.mu.Lock()
	_, replaced := s.triggers[userID]
	next := NextFire(s.now(), hour, minute, s.loc)
	s.triggers[userID] = &entry{
		trigger: Trigger{UserID: userID, Hour: hour, Minute: minute},
		next:    next,
	}
	count := len(s.triggers)
	s.mu.Unlock()

	metrics.SetActiveTriggers(count)
	s.signal()

	s.logger.WithFields(logging.Fields{
		"event":     "trigger_scheduled",
		"user_id":   userID,
		"next_fire": next.Format(time.RFC3339),
		"replaced":  replaced,
	}).Info("daily trigger scheduled")

	return nil
}

// Unschedule removes the trigger for userID and reports whether one existed.
func (s *Scheduler) Unschedule(userID int64) bool {
	s.mu.Lock()
	_, ok := s.triggers[userID]
	delete(s.triggers, userID)
	count := len(s.triggers)
	s.mu.Unlock()

	if ok {
		metrics.SetActiveTriggers(count)
		s.signal()
	}
	return ok
}

// Triggers returns a snapshot of registered triggers ordered by user.
func (s *Scheduler) Triggers() []Trigger {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Trigger, 0, len(s.triggers))
	for _, e := range s.triggers {
		out = append(out, e.trigger)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Fires delivers due triggers. It is consumed by the dispatch loop.
func (s *Scheduler) Fires() <-chan Fire {
	return s.fires
}

// Run sleeps until the earliest trigger is due, emits its fire and
// reschedules it for the next day. It returns when ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.WithField("event", "scheduler_started").Info("scheduler started")
	defer s.logger.WithField("event", "scheduler_stopped").Info("scheduler stopped")

	for {
		var timer *time.Timer
		var due <-chan time.Time

		if next, ok := s.earliest(); ok {
			wait := next.Sub(s.now())
			if wait < 0 {
				wait = 0
			}
			timer = time.NewTimer(wait)
			due = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return
		case <-s.wake:
			stopTimer(timer)
		case <-due:
			for _, fire := range s.collectDue(s.now()) {
				select {
				case s.fires <- fire:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (s *Scheduler) earliest() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var earliest time.Time
	for _, e := range s.triggers {
		if earliest.IsZero() || e.next.Before(earliest) {
			earliest = e.next
		}
	}
	return earliest, !earliest.IsZero()
}

// collectDue returns fires for every trigger due at now and advances them.
func (s *Scheduler) collectDue(now time.Time) []Fire {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fires []Fire
	for _, e := range s.triggers {
		if e.next.After(now) {
			continue
		}
		fires = append(fires, Fire{UserID: e.trigger.UserID, At: e.next})
		e.next = NextFire(now, e.trigger.Hour, e.trigger.Minute, s.loc)
	}
	sort.Slice(fires, func(i, j int) bool { return fires[i].UserID < fires[j].UserID })
	return fires
}

func (s *Scheduler) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}
