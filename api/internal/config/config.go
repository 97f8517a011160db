package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var ErrMissingOpenAIKey = errors.New("missing required env OPENAI_API_KEY")

type Config struct {
	Port     string
	LogLevel string

	OpenAIAPIKey           string
	OpenAIModel            string
	OpenAIBaseURL          string
	OpenAIStructuredOutput bool
	GeminiAPIKey           string
	GeminiModel            string
	DefaultLLM             string

	LLMTimeout       time.Duration
	LLMRetryAttempts int

	DatabaseURL string
	CacheTTL    time.Duration

	TelegramBotToken string
	WebhookURL       string

	MaxBodyBytes int64
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("OPENAI_MODEL", "gpt-4.1")
	v.SetDefault("OPENAI_BASE_URL", "https://api.openai.com/v1/responses")
	v.SetDefault("OPENAI_STRUCTURED_OUTPUT", false)
	v.SetDefault("GEMINI_MODEL", "gemini-2.5-flash")
	v.SetDefault("DEFAULT_LLM", "gpt")
	v.SetDefault("LLM_TIMEOUT_SEC", 60)
	v.SetDefault("LLM_RETRY_ATTEMPTS", 3)
	v.SetDefault("CACHE_TTL_HOURS", 24)
	v.SetDefault("MAX_BODY_MB", 20)
}

// Load читает .env (если есть), затем переменные окружения.
func Load() (*Config, error) {
	// .env не обязателен
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:     strings.TrimSpace(v.GetString("PORT")),
		LogLevel: strings.TrimSpace(v.GetString("LOG_LEVEL")),

		OpenAIAPIKey:           strings.TrimSpace(v.GetString("OPENAI_API_KEY")),
		OpenAIModel:            strings.TrimSpace(v.GetString("OPENAI_MODEL")),
		OpenAIBaseURL:          strings.TrimSpace(v.GetString("OPENAI_BASE_URL")),
		OpenAIStructuredOutput: v.GetBool("OPENAI_STRUCTURED_OUTPUT"),
		GeminiAPIKey:           strings.TrimSpace(v.GetString("GEMINI_API_KEY")),
		GeminiModel:            strings.TrimSpace(v.GetString("GEMINI_MODEL")),
		DefaultLLM:             strings.ToLower(strings.TrimSpace(v.GetString("DEFAULT_LLM"))),

		LLMTimeout:       time.Duration(v.GetInt("LLM_TIMEOUT_SEC")) * time.Second,
		LLMRetryAttempts: v.GetInt("LLM_RETRY_ATTEMPTS"),

		DatabaseURL: resolveDSN(v),
		CacheTTL:    time.Duration(v.GetInt("CACHE_TTL_HOURS")) * time.Hour,

		TelegramBotToken: strings.TrimSpace(v.GetString("TELEGRAM_BOT_TOKEN")),
		WebhookURL:       strings.TrimSpace(v.GetString("WEBHOOK_URL")),

		MaxBodyBytes: v.GetInt64("MAX_BODY_MB") << 20,
	}

	if cfg.OpenAIAPIKey == "" {
		return nil, ErrMissingOpenAIKey
	}
	if cfg.LLMTimeout <= 0 {
		return nil, fmt.Errorf("LLM_TIMEOUT_SEC must be positive, got %d", v.GetInt("LLM_TIMEOUT_SEC"))
	}
	if cfg.LLMRetryAttempts < 1 {
		cfg.LLMRetryAttempts = 1
	}
	if cfg.CacheTTL < 0 {
		cfg.CacheTTL = 0
	}
	return cfg, nil
}

// resolveDSN: DATABASE_URL, иначе собираем из POSTGRES_* / PG*.
// Если ничего не задано: кэш выключен.
func resolveDSN(v *viper.Viper) string {
	if dsn := strings.TrimSpace(v.GetString("DATABASE_URL")); dsn != "" {
		return dsn
	}
	pass := v.GetString("POSTGRES_PASSWORD")
	host := strings.TrimSpace(v.GetString("PGHOST"))
	if pass == "" && host == "" {
		return ""
	}
	user := getDefault(v, "POSTGRES_USER", "lettera")
	if host == "" {
		host = "db"
	}
	port := getDefault(v, "PGPORT", "5432")
	db := getDefault(v, "POSTGRES_DB", "lettera")

	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(user, pass),
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + db,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func getDefault(v *viper.Viper, key, def string) string {
	if s := strings.TrimSpace(v.GetString(key)); s != "" {
		return s
	}
	return def
}
