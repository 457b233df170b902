// Package recipe builds dinner prompts and requests completions from OpenAI.
package recipe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/sirupsen/logrus"

	"dinner_recipe_bot/internal/domain"
	"dinner_recipe_bot/internal/logging"
	"dinner_recipe_bot/internal/metrics"
)

const (
	// MaxOutputTokens caps every completion.
	MaxOutputTokens = 250

	systemPrompt = "You help the user come up with simple, light dinner recipes."
	basePrompt   = "Suggest one easy dinner recipe with step-by-step instructions."
)

// prompts holds the system message and the user message parts of one language.
type prompts struct {
	system      string
	base        string
	preferences string
	ingredients string
}

var promptsByLanguage = map[string]prompts{
	domain.LanguageEnglish: {
		system:      systemPrompt,
		base:        basePrompt,
		preferences: " Preferences: %s.",
		ingredients: " Use these ingredients if possible: %s.",
	},
	domain.LanguageRussian: {
		system:      "Ты помогаешь пользователю придумывать простые, лёгкие рецепты на ужин.",
		base:        "Предложи один легкий рецепт ужина с пошаговым описанием.",
		preferences: " Предпочтения: %s.",
		ingredients: " Используй эти ингредиенты, если возможно: %s.",
	},
}

// promptsFor falls back to English for unknown languages.
func promptsFor(lang string) prompts {
	if p, ok := promptsByLanguage[lang]; ok {
		return p
	}
	return promptsByLanguage[domain.LanguageEnglish]
}

func (p prompts) build(preferences, ingredients string) string {
	var b strings.Builder
	b.WriteString(p.base)

	if v := strings.TrimSpace(preferences); v != "" {
		fmt.Fprintf(&b, p.preferences, v)
	}
	if v := strings.TrimSpace(ingredients); v != "" {
		fmt.Fprintf(&b, p.ingredients, v)
	}

	return b.String()
}

type completions interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Options configures a Generator.
type Options struct {
	APIKey   string
	Model    string
	BaseURL  string
	Timeout  time.Duration
	Language string
}

// Generator requests one recipe per call from the chat completions API.
type Generator struct {
	chat    completions
	model   string
	prompts prompts
	timeout time.Duration
	logger  *logrus.Entry
}

// NewGenerator constructs a Generator backed by the OpenAI client. Retries are
// disabled; a failed call surfaces immediately.
func NewGenerator(opts Options, logger *logrus.Entry) (*Generator, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("openai api key is required")
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := openai.NewClient(reqOpts...)

	return newGenerator(&client.Chat.Completions, opts, logger), nil
}

func newGenerator(chat completions, opts Options, logger *logrus.Entry) *Generator {
	if opts.Model == "" {
		opts.Model = string(openai.ChatModelGPT4)
	}
	if logger == nil {
		logger = logging.Logger()
	}

	return &Generator{
		chat:    chat,
		model:   opts.Model,
		prompts: promptsFor(opts.Language),
		timeout: opts.Timeout,
		logger:  logging.Component(logger, "recipe"),
	}
}

// BuildPrompt renders the English user message for the given optional
// preferences and ingredient list.
func BuildPrompt(preferences, ingredients string) string {
	return promptsFor(domain.LanguageEnglish).build(preferences, ingredients)
}

// Generate returns the trimmed text of the first choice. Every failure wraps
// domain.ErrUpstream.
func (g *Generator) Generate(ctx context.Context, preferences, ingredients string) (string, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(g.prompts.system),
			openai.UserMessage(g.prompts.build(preferences, ingredients)),
		},
		MaxTokens: openai.Int(MaxOutputTokens),
	}

	started := time.Now()
	resp, err := g.chat.New(ctx, params)
	elapsed := time.Since(started)

	if err != nil {
		return "", g.fail(elapsed, fmt.Errorf("%w: chat completion: %v", domain.ErrUpstream, err))
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", g.fail(elapsed, fmt.Errorf("%w: chat completion returned no choices", domain.ErrUpstream))
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", g.fail(elapsed, fmt.Errorf("%w: chat completion returned empty content", domain.ErrUpstream))
	}

	metrics.ObserveGeneration(g.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens, elapsed, true)

	g.logger.WithFields(logging.Fields{
		"event":             "recipe_generated",
		"model":             g.model,
		"latency_ms":        elapsed.Milliseconds(),
		"completion_tokens": resp.Usage.CompletionTokens,
	}).Debug("recipe generated")

	return text, nil
}

func (g *Generator) fail(elapsed time.Duration, err error) error {
	metrics.ObserveGeneration(g.model, 0, 0, elapsed, false)
	metrics.IncUpstreamError("openai")

	g.logger.WithFields(logging.Fields{
		"event":      "recipe_generation_failed",
		"model":      g.model,
		"latency_ms": elapsed.Milliseconds(),
	}).WithError(err).Warn("recipe generation failed")

	return err
}
