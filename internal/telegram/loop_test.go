package telegram

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"dinner_recipe_bot/internal/domain"
	"dinner_recipe_bot/internal/scheduler"
)

type recordingHandler struct {
	mu        sync.Mutex
	commands  []domain.Command
	callbacks []domain.Callback
	fires     []int64
	err       error
	panicOn   string
	done      chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{done: make(chan struct{}, 16)}
}

func (h *recordingHandler) HandleCommand(_ context.Context, cmd domain.Command) error {
	if cmd.Name == h.panicOn {
		h.done <- struct{}{}
		panic("boom")
	}
	h.mu.Lock()
	h.commands = append(h.commands, cmd)
	h.mu.Unlock()
	h.done <- struct{}{}
	return h.err
}

func (h *recordingHandler) HandleCallback(_ context.Context, cb domain.Callback) error {
	h.mu.Lock()
	h.callbacks = append(h.callbacks, cb)
	h.mu.Unlock()
	h.done <- struct{}{}
	return h.err
}

func (h *recordingHandler) HandleFire(_ context.Context, userID int64) error {
	h.mu.Lock()
	h.fires = append(h.fires, userID)
	h.mu.Unlock()
	h.done <- struct{}{}
	return h.err
}

func (h *recordingHandler) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-h.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for handler call %d", i+1)
		}
	}
}

func commandUpdate(userID int64, text string) *models.Update {
	return &models.Update{
		Message: &models.Message{
			From: &models.User{ID: userID},
			Chat: models.Chat{ID: userID},
			Text: text,
		},
	}
}

func newTestLoop(size int, h Handler) (*Loop, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	return NewLoop(size, h, logrus.NewEntry(logger)), hook
}

func TestEnqueueRejectsWhenFull(t *testing.T) {
	loop, _ := newTestLoop(1, newRecordingHandler())

	if err := loop.Enqueue(commandUpdate(1, "/start")); err != nil {
		t.Fatalf("first enqueue: %v", err)
	}
	if err := loop.Enqueue(commandUpdate(1, "/start")); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if loop.Pending() != 1 {
		t.Fatalf("expected one pending update, got %d", loop.Pending())
	}
	if err := loop.Enqueue(nil); err == nil {
		t.Fatalf("expected error for nil update")
	}
}

func TestRunDispatchesInOrder(t *testing.T) {
	h := newRecordingHandler()
	loop, _ := newTestLoop(8, h)
	fires := make(chan scheduler.Fire)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx, fires)

	_ = loop.Enqueue(commandUpdate(1, "/start"))
	_ = loop.Enqueue(commandUpdate(1, "/recipe vegan"))
	_ = loop.Enqueue(&models.Update{
		CallbackQuery: &models.CallbackQuery{ID: "q", From: models.User{ID: 1}, Data: domain.CallbackRandomRecipe},
	})
	h.wait(t, 3)

	fires <- scheduler.Fire{UserID: 1, At: time.Now()}
	h.wait(t, 1)

	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.commands) != 2 || h.commands[0].Name != "start" || h.commands[1].Name != "recipe" {
		t.Fatalf("unexpected commands %+v", h.commands)
	}
	if len(h.callbacks) != 1 || h.callbacks[0].Data != domain.CallbackRandomRecipe {
		t.Fatalf("unexpected callbacks %+v", h.callbacks)
	}
	if len(h.fires) != 1 || h.fires[0] != 1 {
		t.Fatalf("unexpected fires %+v", h.fires)
	}
}

func TestRunSurvivesHandlerPanic(t *testing.T) {
	h := newRecordingHandler()
	h.panicOn = "start"
	loop, hook := newTestLoop(4, h)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx, nil)

	_ = loop.Enqueue(commandUpdate(2, "/start"))
	_ = loop.Enqueue(commandUpdate(2, "/recipe"))
	h.wait(t, 2)

	h.mu.Lock()
	got := len(h.commands)
	h.mu.Unlock()
	if got != 1 {
		t.Fatalf("expected loop to keep going after panic, got %d commands", got)
	}

	found := false
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["command"] == "start" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a warning for the panicking command")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	loop, _ := newTestLoop(1, newRecordingHandler())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx, nil)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("loop did not stop")
	}
}
