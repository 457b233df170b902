// Package dinner implements the recipe commands, inline buttons and the
// scheduled daily send.
package dinner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"dinner_recipe_bot/internal/domain"
	"dinner_recipe_bot/internal/logging"
	"dinner_recipe_bot/internal/metrics"
)

// Messenger delivers replies to Telegram chats.
type Messenger interface {
	Send(ctx context.Context, chatID int64, reply domain.Reply) error
	Edit(ctx context.Context, chatID int64, messageID int, reply domain.Reply) error
	AnswerCallback(ctx context.Context, callbackID string) error
}

// Generator produces recipe text.
type Generator interface {
	Generate(ctx context.Context, preferences, ingredients string) (string, error)
}

// Scheduler registers daily triggers.
type Scheduler interface {
	Schedule(userID int64, hour, minute int) error
}

// Deps bundles the collaborators of Service.
type Deps struct {
	Store     domain.SettingsStore
	Generator Generator
	Messenger Messenger
	Scheduler Scheduler
	Language  string
}

// Service handles every user-facing interaction. It is driven by a single
// dispatch loop, so its methods are never called concurrently.
type Service struct {
	store     domain.SettingsStore
	generator Generator
	messenger Messenger
	scheduler Scheduler
	texts     texts
	logger    *logrus.Entry
}

// NewService constructs a Service.
func NewService(deps Deps, logger *logrus.Entry) (*Service, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("settings store is required")
	case deps.Generator == nil:
		return nil, errors.New("generator is required")
	case deps.Messenger == nil:
		return nil, errors.New("messenger is required")
	case deps.Scheduler == nil:
		return nil, errors.New("scheduler is required")
	}

	return &Service{
		store:     deps.Store,
		generator: deps.Generator,
		messenger: deps.Messenger,
		scheduler: deps.Scheduler,
		texts:     textsFor(deps.Language),
		logger:    logging.Component(logger, "dinner"),
	}, nil
}

// HandleCommand routes a slash command. Unknown commands are ignored.
func (s *Service) HandleCommand(ctx context.Context, cmd domain.Command) error {
	var err error
	switch cmd.Name {
	case domain.CommandStart:
		err = s.start(ctx, cmd)
	case domain.CommandRecipe:
		err = s.recipe(ctx, cmd)
	case domain.CommandSetTime:
		err = s.setTime(ctx, cmd)
	default:
		metrics.IncCommand("unknown", "ignored")
		s.logger.WithFields(logging.Fields{
			"event":   "command_unknown",
			"user_id": cmd.UserID,
			"command": cmd.Name,
		}).Debug("unknown command ignored")
		return nil
	}

	metrics.IncCommand(cmd.Name, outcome(err))
	if errors.Is(err, domain.ErrInvalidInput) {
		return nil
	}
	return err
}

// HandleCallback routes an inline button press. The callback is always
// answered first.
func (s *Service) HandleCallback(ctx context.Context, cb domain.Callback) error {
	if err := s.messenger.AnswerCallback(ctx, cb.ID); err != nil {
		s.logger.WithFields(logging.Fields{
			"event":   "callback_answer_failed",
			"user_id": cb.UserID,
		}).WithError(err).Warn("failed to answer callback")
	}

	var err error
	switch cb.Data {
	case domain.CallbackRandomRecipe:
		err = s.randomRecipe(ctx, cb)
	case domain.CallbackAcceptRecipe:
		err = s.acceptRecipe(ctx, cb)
	default:
		metrics.IncCommand("unknown_callback", "ignored")
		s.logger.WithFields(logging.Fields{
			"event":   "callback_unknown",
			"user_id": cb.UserID,
			"data":    cb.Data,
		}).Debug("unknown callback ignored")
		return nil
	}

	metrics.IncCommand(cb.Data, outcome(err))
	return err
}

// HandleFire performs the scheduled send for userID when budget remains.
func (s *Service) HandleFire(ctx context.Context, userID int64) error {
	entry := s.logger.WithFields(logging.Fields{
		"event":   "scheduled_send",
		"user_id": userID,
	})

	state, ok, err := s.store.Get(ctx, userID)
	if err != nil {
		metrics.IncScheduledSend("error")
		return fmt.Errorf("load state: %w", err)
	}
	if !ok || state.Exhausted() {
		metrics.IncScheduledSend("skipped")
		entry.Debug("no repeats remaining, skipping")
		return nil
	}

	text, err := s.generator.Generate(ctx, "", "")
	if err != nil {
		metrics.IncScheduledSend("error")
		s.apologize(ctx, userID)
		return err
	}

	if _, err := s.store.Update(ctx, userID, func(st *domain.UserState) error {
		st.LastText = text
		return nil
	}); err != nil {
		metrics.IncScheduledSend("error")
		return fmt.Errorf("store recipe: %w", err)
	}

	if err := s.messenger.Send(ctx, userID, s.texts.recipeReply(text)); err != nil {
		metrics.IncScheduledSend("error")
		return err
	}

	updated, err := s.store.Update(ctx, userID, func(st *domain.UserState) error {
		st.Consume()
		return nil
	})
	if err != nil {
		metrics.IncScheduledSend("error")
		return fmt.Errorf("consume repeat: %w", err)
	}

	metrics.IncScheduledSend("sent")
	entry.WithField("repeats_remaining", updated.RepeatsRemaining).Info("scheduled recipe sent")
	return nil
}

func (s *Service) start(ctx context.Context, cmd domain.Command) error {
	return s.messenger.Send(ctx, cmd.ChatID, textReply(s.texts.start))
}

func (s *Service) recipe(ctx context.Context, cmd domain.Command) error {
	repeats := domain.DefaultRepeats
	state, ok, err := s.store.Get(ctx, cmd.UserID)
	if err != nil {
		s.apologize(ctx, cmd.ChatID)
		return fmt.Errorf("load state: %w", err)
	}
	if ok {
		repeats = state.RepeatsConfigured
	}

	preferences, ingredients := splitRecipeArgs(cmd.Args)

	text, err := s.generator.Generate(ctx, preferences, ingredients)
	if err != nil {
		s.apologize(ctx, cmd.ChatID)
		return err
	}

	next := domain.NewUserState(cmd.UserID, repeats)
	next.LastText = text
	if err := s.store.Set(ctx, next); err != nil {
		s.apologize(ctx, cmd.ChatID)
		return fmt.Errorf("store recipe: %w", err)
	}

	s.logger.WithFields(logging.Fields{
		"event":       "recipe_generated",
		"user_id":     cmd.UserID,
		"repeats":     repeats,
		"preferences": preferences != "",
		"ingredients": ingredients != "",
	}).Info("recipe generated on demand")

	return s.messenger.Send(ctx, cmd.ChatID, s.texts.recipeReply(text))
}

func (s *Service) setTime(ctx context.Context, cmd domain.Command) error {
	hour, minute, repeats, problem := s.texts.parseSetTime(cmd.Args)
	if problem != "" {
		if err := s.messenger.Send(ctx, cmd.ChatID, textReply(problem)); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", domain.ErrInvalidInput, problem)
	}

	if err := s.store.Set(ctx, domain.NewUserState(cmd.UserID, repeats)); err != nil {
		s.apologize(ctx, cmd.ChatID)
		return fmt.Errorf("store settings: %w", err)
	}

	if err := s.scheduler.Schedule(cmd.UserID, hour, minute); err != nil {
		s.apologize(ctx, cmd.ChatID)
		return fmt.Errorf("schedule trigger: %w", err)
	}

	s.logger.WithFields(logging.Fields{
		"event":   "settime",
		"user_id": cmd.UserID,
		"hour":    hour,
		"minute":  minute,
		"repeats": repeats,
	}).Info("daily recipe time set")

	return s.messenger.Send(ctx, cmd.ChatID, textReply(s.texts.setTimeDoneText(hour, minute, repeats)))
}

func (s *Service) randomRecipe(ctx context.Context, cb domain.Callback) error {
	text, err := s.generator.Generate(ctx, "", "")
	if err != nil {
		s.apologize(ctx, cb.ChatID)
		return err
	}

	if err := s.rememberText(ctx, cb.UserID, text, false); err != nil {
		s.apologize(ctx, cb.ChatID)
		return err
	}

	return s.show(ctx, cb, s.texts.recipeReply(text))
}

func (s *Service) acceptRecipe(ctx context.Context, cb domain.Callback) error {
	lastText := cb.MessageText
	state, ok, err := s.store.Get(ctx, cb.UserID)
	if err != nil {
		s.apologize(ctx, cb.ChatID)
		return fmt.Errorf("load state: %w", err)
	}
	if ok && state.LastText != "" {
		lastText = state.LastText
	}

	if err := s.rememberText(ctx, cb.UserID, lastText, true); err != nil {
		s.apologize(ctx, cb.ChatID)
		return err
	}

	s.logger.WithFields(logging.Fields{
		"event":   "recipe_accepted",
		"user_id": cb.UserID,
	}).Info("recipe accepted, daily sends paused")

	return s.show(ctx, cb, textReply(s.texts.acceptedText(lastText)))
}

// rememberText overwrites LastText, creating a state with an exhausted
// budget when none exists. stop also zeroes the remaining budget.
func (s *Service) rememberText(ctx context.Context, userID int64, text string, stop bool) error {
	_, err := s.store.Update(ctx, userID, func(st *domain.UserState) error {
		st.LastText = text
		if stop {
			st.RepeatsRemaining = 0
		}
		return nil
	})
	if errors.Is(err, domain.ErrStateNotFound) {
		fresh := domain.NewUserState(userID, domain.DefaultRepeats)
		fresh.LastText = text
		fresh.RepeatsRemaining = 0
		err = s.store.Set(ctx, fresh)
	}
	if err != nil {
		return fmt.Errorf("store recipe: %w", err)
	}
	return nil
}

// show edits the message that carried the keyboard, or sends a new one when
// that message is no longer accessible.
func (s *Service) show(ctx context.Context, cb domain.Callback, reply domain.Reply) error {
	if cb.Inaccessible || cb.MessageID == 0 {
		return s.messenger.Send(ctx, cb.ChatID, reply)
	}
	return s.messenger.Edit(ctx, cb.ChatID, cb.MessageID, reply)
}

func (s *Service) apologize(ctx context.Context, chatID int64) {
	if chatID == 0 {
		return
	}
	if err := s.messenger.Send(ctx, chatID, textReply(s.texts.failure)); err != nil {
		s.logger.WithFields(logging.Fields{
			"event":   "apology_failed",
			"chat_id": chatID,
		}).WithError(err).Warn("failed to send failure reply")
	}
}

// splitRecipeArgs treats the first argument as preferences and joins the
// rest as the ingredient list.
func splitRecipeArgs(args []string) (string, string) {
	if len(args) == 0 {
		return "", ""
	}
	return args[0], strings.Join(args[1:], ", ")
}

// parseSetTime returns the parsed values or a user-facing problem text.
// Arguments beyond the third are ignored.
func (t texts) parseSetTime(args []string) (hour, minute, repeats int, problem string) {
	if len(args) < 3 {
		return 0, 0, 0, t.setTimeUsage
	}

	values := make([]int, 3)
	for i := range values {
		v, err := strconv.Atoi(args[i])
		if err != nil {
			return 0, 0, 0, t.setTimeUsage
		}
		values[i] = v
	}
	hour, minute, repeats = values[0], values[1], values[2]

	switch {
	case hour < 0 || hour > 23:
		return 0, 0, 0, t.hourRange
	case minute < 0 || minute > 59:
		return 0, 0, 0, t.minuteRange
	case repeats < 0:
		return 0, 0, 0, t.repeatsRange
	}
	return hour, minute, repeats, ""
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid"
	case errors.Is(err, domain.ErrUpstream):
		return "upstream_error"
	default:
		return "error"
	}
}
