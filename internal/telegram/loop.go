package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"dinner_recipe_bot/internal/domain"
	"dinner_recipe_bot/internal/logging"
	"dinner_recipe_bot/internal/metrics"
	"dinner_recipe_bot/internal/scheduler"
)

// ErrQueueFull is returned by Enqueue when the update queue has no room.
var ErrQueueFull = errors.New("update queue is full")

// Handler reacts to routed updates and scheduler fires. Implementations reply
// to the user themselves; a returned error is only logged.
type Handler interface {
	HandleCommand(ctx context.Context, cmd domain.Command) error
	HandleCallback(ctx context.Context, cb domain.Callback) error
	HandleFire(ctx context.Context, userID int64) error
}

// Loop owns the bounded update queue and processes updates and fires one at
// a time, so handlers never run concurrently.
type Loop struct {
	updates chan *models.Update
	handler Handler
	logger  *logrus.Entry
}

// NewLoop constructs a Loop with a queue of the given capacity.
func NewLoop(size int, handler Handler, logger *logrus.Entry) *Loop {
	if size <= 0 {
		size = 1
	}

	return &Loop{
		updates: make(chan *models.Update, size),
		handler: handler,
		logger:  logging.Component(logger, "dispatch"),
	}
}

// Enqueue hands an update to the loop without blocking.
func (l *Loop) Enqueue(update *models.Update) error {
	if update == nil {
		return errors.New("update is required")
	}

	select {
	case l.updates <- update:
		return nil
	default:
		metrics.IncUpdate("dropped")
		return ErrQueueFull
	}
}

// Pending reports the number of queued updates.
func (l *Loop) Pending() int {
	return len(l.updates)
}

// Run consumes updates and fires until ctx is canceled.
func (l *Loop) Run(ctx context.Context, fires <-chan scheduler.Fire) {
	l.logger.WithField("event", "dispatch_started").Info("dispatch loop started")
	defer l.logger.WithField("event", "dispatch_stopped").Info("dispatch loop stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case update := <-l.updates:
			l.dispatch(ctx, update)
		case fire, ok := <-fires:
			if !ok {
				fires = nil
				continue
			}
			l.fire(ctx, fire)
		}
	}
}

func (l *Loop) dispatch(ctx context.Context, update *models.Update) {
	r := route(update)
	entry := l.logger.WithFields(logging.Fields{
		"event":       "telegram_update",
		"update_type": r.meta.updateType,
	})
	if r.meta.userID != 0 {
		entry = entry.WithField("user_id", r.meta.userID)
	}
	if r.meta.chatID != 0 {
		entry = entry.WithField("chat_id", r.meta.chatID)
	}

	var err error
	switch r.kind {
	case kindCommand:
		entry = entry.WithField("command", r.command.Name)
		err = l.safely(func() error { return l.handler.HandleCommand(ctx, r.command) })
	case kindCallback:
		entry = entry.WithField("callback_data", r.callback.Data)
		err = l.safely(func() error { return l.handler.HandleCallback(ctx, r.callback) })
	default:
		metrics.IncUpdate("ignored")
		entry.Debug("update ignored")
		return
	}

	if err != nil {
		metrics.IncUpdate("error")
		entry.WithError(err).Warn("update handling failed")
		return
	}

	metrics.IncUpdate("handled")
	entry.Info("update handled")
}

func (l *Loop) fire(ctx context.Context, fire scheduler.Fire) {
	entry := l.logger.WithFields(logging.Fields{
		"event":   "scheduled_fire",
		"user_id": fire.UserID,
	})

	if err := l.safely(func() error { return l.handler.HandleFire(ctx, fire.UserID) }); err != nil {
		entry.WithError(err).Warn("scheduled send failed")
		return
	}
	entry.Debug("scheduled fire handled")
}

func (l *Loop) safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return fn()
}
