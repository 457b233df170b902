// Package telegram hosts the Telegram client, update routing, and the
// single-consumer dispatch loop.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"dinner_recipe_bot/internal/config"
	"dinner_recipe_bot/internal/domain"
	"dinner_recipe_bot/internal/logging"
	"dinner_recipe_bot/internal/metrics"
)

const upstreamTelegram = "telegram"

type botAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
	SetWebhook(ctx context.Context, params *bot.SetWebhookParams) (bool, error)
}

var (
	allowedUpdates = bot.AllowedUpdates{
		"message",
		"callback_query",
	}

	createBot = func(token string, options ...bot.Option) (botAPI, error) {
		return bot.New(token, options...)
	}
)

// Client wraps the Telegram bot instance. Every outbound call runs under the
// configured upstream timeout.
type Client struct {
	bot     botAPI
	timeout time.Duration
	logger  *logrus.Entry
}

// NewClient initializes the Telegram bot API client.
func NewClient(cfg config.Config, logger *logrus.Entry) (*Client, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}
	logger = logging.Component(logger, "telegram")

	tgBot, err := createBot(cfg.BotToken,
		bot.WithAllowedUpdates(allowedUpdates),
		bot.WithErrorsHandler(errorHandler(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}

	timeout := cfg.UpstreamTimeout
	if timeout <= 0 {
		timeout = config.DefaultUpstreamTimeout
	}

	return &Client{
		bot:     tgBot,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// RegisterWebhook points Telegram at url. An empty secret disables the
// secret token header.
func (c *Client) RegisterWebhook(ctx context.Context, url, secret string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ok, err := c.bot.SetWebhook(ctx, &bot.SetWebhookParams{
		URL:            url,
		SecretToken:    secret,
		AllowedUpdates: allowedUpdates,
	})
	if err == nil && !ok {
		err = errors.New("telegram rejected webhook")
	}
	if err != nil {
		metrics.IncWebhookRegistration("error")
		return c.upstream("set webhook", err)
	}

	metrics.IncWebhookRegistration("ok")
	c.logger.WithFields(logging.Fields{
		"event":      "webhook_registered",
		"has_secret": secret != "",
	}).Info("telegram webhook registered")

	return nil
}

// Send posts a new message to chatID.
func (c *Client) Send(ctx context.Context, chatID int64, reply domain.Reply) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   reply.Text,
	}
	if markup := keyboard(reply.Buttons); markup != nil {
		params.ReplyMarkup = markup
	}

	if _, err := c.bot.SendMessage(ctx, params); err != nil {
		return c.upstream("send message", err)
	}
	return nil
}

// Edit replaces the text and keyboard of an existing message.
func (c *Client) Edit(ctx context.Context, chatID int64, messageID int, reply domain.Reply) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      reply.Text,
	}
	if markup := keyboard(reply.Buttons); markup != nil {
		params.ReplyMarkup = markup
	}

	if _, err := c.bot.EditMessageText(ctx, params); err != nil {
		return c.upstream("edit message", err)
	}
	return nil
}

// AnswerCallback acknowledges a button press so the client stops its spinner.
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
	}); err != nil {
		return c.upstream("answer callback", err)
	}
	return nil
}

func (c *Client) upstream(op string, err error) error {
	metrics.IncUpstreamError(upstreamTelegram)
	return fmt.Errorf("%w: telegram %s: %v", domain.ErrUpstream, op, err)
}

func keyboard(rows [][]domain.Button) *models.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}

	markup := &models.InlineKeyboardMarkup{
		InlineKeyboard: make([][]models.InlineKeyboardButton, 0, len(rows)),
	}
	for _, row := range rows {
		buttons := make([]models.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, models.InlineKeyboardButton{Text: b.Text, CallbackData: b.Data})
		}
		markup.InlineKeyboard = append(markup.InlineKeyboard, buttons)
	}
	return markup
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram client error")
	}
}
