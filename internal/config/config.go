// Package config defines the configuration contract and handles loading and validating environment configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"dinner_recipe_bot/internal/domain"
)

const (
	// Canonical environment variable keys.
	KeyBotToken        = "BOT_TOKEN"
	KeyOpenAIKey       = "OPENAI_API_KEY"
	KeyOpenAIModel     = "OPENAI_MODEL"
	KeyOpenAIBaseURL   = "OPENAI_BASE_URL"
	KeyPort            = "PORT"
	KeyWebhookURL      = "WEBHOOK_URL"
	KeyWebhookSecret   = "WEBHOOK_SECRET"
	KeyUpstreamTimeout = "UPSTREAM_TIMEOUT"
	KeyUpdateQueueSize = "UPDATE_QUEUE_SIZE"
	KeyTimezone        = "TIMEZONE"
	KeyStoreBackend    = "STORE_BACKEND"
	KeyMongoURI        = "MONGO_URI"
	KeyMongoDB         = "MONGO_DB"
	KeyRedisAddr       = "REDIS_ADDR"
	KeyRedisPassword   = "REDIS_PASSWORD"
	KeyRedisDB         = "REDIS_DB"
	KeyAppEnv          = "APP_ENV"
	KeyLogLevel        = "LOG_LEVEL"
	KeyLanguage        = "BOT_LANGUAGE"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Allowed settings store backends.
	BackendMemory = "memory"
	BackendMongo  = "mongo"
	BackendRedis  = "redis"

	// Defaults for optional settings.
	DefaultAppEnv          = EnvProduction
	DefaultLogLevel        = "info"
	DefaultPort            = 5000
	DefaultOpenAIModel     = "gpt-4"
	DefaultUpstreamTimeout = 30 * time.Second
	DefaultUpdateQueueSize = 100
	DefaultTimezone        = "UTC"
	DefaultStoreBackend    = BackendMemory
	DefaultMongoDB         = "dinner_bot"
	DefaultLanguage        = domain.LanguageEnglish
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the bot must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the bot.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeyBotToken,
		Example:     "123:ABC",
		Required:    true,
		Description: "Telegram Bot Token issued by BotFather.",
		Notes:       "Also used as the webhook path; keep it secret.",
	},
	{
		Key:         KeyOpenAIKey,
		Example:     "sk-...",
		Required:    true,
		Description: "OpenAI API key used for recipe generation.",
	},
	{
		Key:         KeyOpenAIModel,
		Example:     DefaultOpenAIModel,
		Default:     DefaultOpenAIModel,
		Description: "Chat completion model identifier.",
	},
	{
		Key:         KeyOpenAIBaseURL,
		Example:     "https://api.openai.com/v1/",
		Description: "Overrides the OpenAI API base URL.",
	},
	{
		Key:         KeyPort,
		Example:     strconv.Itoa(DefaultPort),
		Default:     strconv.Itoa(DefaultPort),
		Description: "HTTP listener port for the webhook, liveness and metrics routes.",
	},
	{
		Key:         KeyWebhookURL,
		Example:     "https://bot.example.com",
		Description: "Public base URL of this process; the webhook is registered at <url>/<BOT_TOKEN>.",
		Notes:       "Registration is skipped when empty.",
	},
	{
		Key:         KeyWebhookSecret,
		Example:     "s3cr3t",
		Description: "Secret token Telegram echoes in X-Telegram-Bot-Api-Secret-Token.",
	},
	{
		Key:         KeyUpstreamTimeout,
		Example:     DefaultUpstreamTimeout.String(),
		Default:     DefaultUpstreamTimeout.String(),
		Description: "Timeout for every outbound Telegram or OpenAI call.",
	},
	{
		Key:         KeyUpdateQueueSize,
		Example:     strconv.Itoa(DefaultUpdateQueueSize),
		Default:     strconv.Itoa(DefaultUpdateQueueSize),
		Description: "Capacity of the inbound update queue.",
	},
	{
		Key:         KeyTimezone,
		Example:     "Europe/Moscow",
		Default:     DefaultTimezone,
		Description: "IANA time zone used to interpret /settime hours.",
	},
	{
		Key:         KeyStoreBackend,
		Example:     BackendMemory + " / " + BackendMongo + " / " + BackendRedis,
		Default:     DefaultStoreBackend,
		Description: "Settings store backend.",
	},
	{
		Key:         KeyMongoURI,
		Example:     "mongodb://localhost:27017",
		Description: "MongoDB connection string.",
		Notes:       "Required when STORE_BACKEND=" + BackendMongo + ".",
	},
	{
		Key:         KeyMongoDB,
		Example:     DefaultMongoDB,
		Default:     DefaultMongoDB,
		Description: "MongoDB database name.",
	},
	{
		Key:         KeyRedisAddr,
		Example:     "localhost:6379",
		Description: "Redis address.",
		Notes:       "Required when STORE_BACKEND=" + BackendRedis + ".",
	},
	{
		Key:         KeyRedisPassword,
		Description: "Redis password.",
	},
	{
		Key:         KeyRedisDB,
		Example:     "0",
		Default:     "0",
		Description: "Redis logical database.",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyLanguage,
		Example:     domain.LanguageEnglish + " / " + domain.LanguageRussian,
		Default:     DefaultLanguage,
		Description: "Language of bot replies and of the recipe prompt.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	BotToken        string
	OpenAIKey       string
	OpenAIModel     string
	OpenAIBaseURL   string
	Port            int
	WebhookURL      string
	WebhookSecret   string
	UpstreamTimeout time.Duration
	UpdateQueueSize int
	Timezone        string
	StoreBackend    string
	MongoURI        string
	MongoDB         string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	AppEnv          string
	LogLevel        string
	Language        string
}

// Load resolves configuration from the environment (with optional dotenv in development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:          firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		BotToken:        strings.TrimSpace(os.Getenv(KeyBotToken)),
		OpenAIKey:       strings.TrimSpace(os.Getenv(KeyOpenAIKey)),
		OpenAIModel:     firstNonEmpty(os.Getenv(KeyOpenAIModel), DefaultOpenAIModel),
		OpenAIBaseURL:   strings.TrimSpace(os.Getenv(KeyOpenAIBaseURL)),
		WebhookURL:      strings.TrimRight(strings.TrimSpace(os.Getenv(KeyWebhookURL)), "/"),
		WebhookSecret:   strings.TrimSpace(os.Getenv(KeyWebhookSecret)),
		Timezone:        firstNonEmpty(os.Getenv(KeyTimezone), DefaultTimezone),
		StoreBackend:    strings.ToLower(firstNonEmpty(os.Getenv(KeyStoreBackend), DefaultStoreBackend)),
		MongoURI:        strings.TrimSpace(os.Getenv(KeyMongoURI)),
		MongoDB:         firstNonEmpty(os.Getenv(KeyMongoDB), DefaultMongoDB),
		RedisAddr:       strings.TrimSpace(os.Getenv(KeyRedisAddr)),
		RedisPassword:   os.Getenv(KeyRedisPassword),
		LogLevel:        firstNonEmpty(os.Getenv(KeyLogLevel), DefaultLogLevel),
		Language:        strings.ToLower(firstNonEmpty(os.Getenv(KeyLanguage), DefaultLanguage)),
		Port:            DefaultPort,
		UpstreamTimeout: DefaultUpstreamTimeout,
		UpdateQueueSize: DefaultUpdateQueueSize,
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	missing := make([]string, 0)

	if cfg.BotToken == "" {
		missing = append(missing, KeyBotToken)
	}
	if cfg.OpenAIKey == "" {
		missing = append(missing, KeyOpenAIKey)
	}

	switch cfg.StoreBackend {
	case BackendMemory:
	case BackendMongo:
		if cfg.MongoURI == "" {
			missing = append(missing, KeyMongoURI)
		}
	case BackendRedis:
		if cfg.RedisAddr == "" {
			missing = append(missing, KeyRedisAddr)
		}
	default:
		return Config{}, fmt.Errorf("invalid %s: must be one of %q, %q or %q", KeyStoreBackend, BackendMemory, BackendMongo, BackendRedis)
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	if cfg.StoreBackend == BackendMongo {
		if err := validateMongoURI(cfg.MongoURI); err != nil {
			return Config{}, err
		}
	}

	if cfg.Port, err = positiveInt(KeyPort, DefaultPort); err != nil {
		return Config{}, err
	}
	if cfg.UpdateQueueSize, err = positiveInt(KeyUpdateQueueSize, DefaultUpdateQueueSize); err != nil {
		return Config{}, err
	}

	if raw := strings.TrimSpace(os.Getenv(KeyRedisDB)); raw != "" {
		db, parseErr := strconv.Atoi(raw)
		if parseErr != nil || db < 0 {
			return Config{}, fmt.Errorf("invalid %s: %q", KeyRedisDB, raw)
		}
		cfg.RedisDB = db
	}

	if raw := strings.TrimSpace(os.Getenv(KeyUpstreamTimeout)); raw != "" {
		timeout, parseErr := time.ParseDuration(raw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyUpstreamTimeout, parseErr)
		}
		if timeout <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyUpstreamTimeout)
		}
		cfg.UpstreamTimeout = timeout
	}

	if !domain.SupportedLanguage(cfg.Language) {
		return Config{}, fmt.Errorf("invalid %s: must be %q or %q", KeyLanguage, domain.LanguageEnglish, domain.LanguageRussian)
	}

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", KeyTimezone, err)
	}

	if cfg.WebhookURL != "" {
		parsed, parseErr := url.Parse(cfg.WebhookURL)
		if parseErr != nil || parsed.Scheme != "https" || parsed.Host == "" {
			return Config{}, fmt.Errorf("invalid %s: must be an absolute https URL", KeyWebhookURL)
		}
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// Location returns the time zone for schedule triggers, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(firstNonEmpty(c.Timezone, DefaultTimezone))
	if err != nil {
		return time.UTC
	}
	return loc
}

// WebhookEndpoint returns the full URL Telegram should deliver updates to, or
// an empty string when no public URL is configured.
func (c Config) WebhookEndpoint() string {
	if c.WebhookURL == "" {
		return ""
	}
	return c.WebhookURL + "/" + c.BotToken
}

// FormatRedacted renders the configuration with secrets masked, for the
// -config-only startup check.
func FormatRedacted(c Config) string {
	lines := []string{
		"bot_token: " + maskSecret(c.BotToken),
		"openai_api_key: " + maskSecret(c.OpenAIKey),
		"openai_model: " + c.OpenAIModel,
		"openai_base_url: " + c.OpenAIBaseURL,
		"port: " + strconv.Itoa(c.Port),
		"webhook_url: " + c.WebhookURL,
		"webhook_secret: " + maskSecret(c.WebhookSecret),
		"upstream_timeout: " + c.UpstreamTimeout.String(),
		"update_queue_size: " + strconv.Itoa(c.UpdateQueueSize),
		"timezone: " + c.Timezone,
		"store_backend: " + c.StoreBackend,
		"mongo_uri: " + redactURI(c.MongoURI),
		"mongo_db: " + c.MongoDB,
		"redis_addr: " + c.RedisAddr,
		"redis_password: " + maskSecret(c.RedisPassword),
		"redis_db: " + strconv.Itoa(c.RedisDB),
		"app_env: " + c.AppEnv,
		"log_level: " + c.LogLevel,
		"language: " + c.Language,
	}

	return strings.Join(lines, "\n")
}

func maskSecret(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "...redacted"
	}
	return value[:4] + "...redacted"
}

func redactURI(raw string) string {
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "...redacted"
	}
	parsed.User = nil
	return parsed.String()
}

func positiveInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}

	return value, nil
}

func validateMongoURI(uri string) error {
	if strings.HasPrefix(uri, "mongodb://") || strings.HasPrefix(uri, "mongodb+srv://") {
		return nil
	}

	return fmt.Errorf("invalid %s: must start with mongodb:// or mongodb+srv://", KeyMongoURI)
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
