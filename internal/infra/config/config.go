// Package config provides application-wide configuration loaded from env vars.
// All fields have safe defaults so the binary runs locally without any env setup.
// An optional YAML file (MOVIEGPT_CONFIG) is read first; env vars always win.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds runtime configuration for MovieGPT.
type Config struct {
	// LLM
	LLMProvider     string `yaml:"llm_provider" validate:"oneof=ollama gemini"` // LLM_PROVIDER, default "ollama"
	OllamaBaseURL   string `yaml:"ollama_base_url" validate:"required,url"`     // OLLAMA_BASE_URL
	OllamaChatModel string `yaml:"ollama_chat_model" validate:"required"`       // OLLAMA_CHAT_MODEL, default "llama3.2:3b"
	GeminiAPIKey    string `yaml:"gemini_api_key" validate:"required_if=LLMProvider gemini"`
	GeminiModel     string `yaml:"gemini_model"`
	GeminiBaseURL   string `yaml:"gemini_base_url" validate:"omitempty,url"`

	// Movie database (read-only)
	DBDriver        string        `yaml:"db_driver" validate:"oneof=sqlite mysql postgres"`
	DBDSN           string        `yaml:"db_dsn" validate:"required"`
	DBMaxOpenConns  int           `yaml:"db_max_open_conns" validate:"gte=1"`
	DBMaxIdleConns  int           `yaml:"db_max_idle_conns" validate:"gte=0"`
	QueryTimeout    time.Duration `yaml:"query_timeout" validate:"gt=0"`
	AppDBPath       string        `yaml:"app_db_path" validate:"required"`
	HistoryStore    string        `yaml:"history_store" validate:"oneof=memory sqlite"`
	SchemaOverview  bool          `yaml:"schema_overview"`
	SystemPrompt    string        `yaml:"system_prompt"`
	MaxIterations   int           `yaml:"chat_max_iterations" validate:"gte=1,lte=50"`
	EmptyResultHint bool          `yaml:"chat_empty_result_hint"`

	// Metadata lookup
	OMDbAPIKey  string `yaml:"omdb_api_key"`
	OMDbBaseURL string `yaml:"omdb_base_url" validate:"required,url"`

	// Auth (disabled when JWTSecret is empty)
	JWTSecret            string        `yaml:"jwt_secret"`
	JWTExpiry            time.Duration `yaml:"jwt_expiry" validate:"gt=0"`
	AuthClientSecretHash string        `yaml:"auth_client_secret_hash"`

	// Logging / HTTP
	LogLevel  string `yaml:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `yaml:"log_format" validate:"oneof=text json"`
	HTTPHost  string `yaml:"http_host"`
	HTTPPort  int    `yaml:"http_port" validate:"gte=1,lte=65535"`
}

const (
	envKeyConfigFile      = "MOVIEGPT_CONFIG"
	envKeyLLMProvider     = "LLM_PROVIDER"
	envKeyOllamaBaseURL   = "OLLAMA_BASE_URL"
	envKeyOllamaChatModel = "OLLAMA_CHAT_MODEL"
	envKeyGeminiAPIKey    = "GEMINI_API_KEY"
	envKeyGeminiModel     = "GEMINI_MODEL"
	envKeyGeminiBaseURL   = "GEMINI_BASE_URL"
	envKeyDBDriver        = "DB_DRIVER"
	envKeyDBDSN           = "DB_DSN"
	envKeyDBMaxOpenConns  = "DB_MAX_OPEN_CONNS"
	envKeyDBMaxIdleConns  = "DB_MAX_IDLE_CONNS"
	envKeyQueryTimeout    = "QUERY_TIMEOUT"
	envKeyAppDBPath       = "APP_DB_PATH"
	envKeyHistoryStore    = "HISTORY_STORE"
	envKeySchemaOverview  = "SCHEMA_OVERVIEW"
	envKeySystemPrompt    = "SYSTEM_PROMPT"
	envKeyMaxIterations   = "CHAT_MAX_ITERATIONS"
	envKeyEmptyResultHint = "CHAT_EMPTY_RESULT_HINT"
	envKeyOMDbAPIKey      = "OMDB_API_KEY"
	envKeyOMDbBaseURL     = "OMDB_BASE_URL"
	envKeyJWTSecret       = "JWT_SECRET"
	envKeyJWTExpiry       = "JWT_EXPIRY"
	envKeyClientSecret    = "AUTH_CLIENT_SECRET_HASH"
	envKeyLogLevel        = "LOG_LEVEL"
	envKeyLogFormat       = "LOG_FORMAT"
	envKeyHTTPHost        = "HTTP_HOST"
	envKeyHTTPPort        = "HTTP_PORT"
)

// Defaults returns the configuration used when neither file nor env set a value.
func Defaults() Config {
	return Config{
		LLMProvider:     "ollama",
		OllamaBaseURL:   "http://localhost:11434",
		OllamaChatModel: "llama3.2:3b",
		GeminiModel:     "gemini-2.5-flash",
		GeminiBaseURL:   "https://generativelanguage.googleapis.com/v1beta",
		DBDriver:        "sqlite",
		DBDSN:           "data/movies.db",
		DBMaxOpenConns:  10,
		DBMaxIdleConns:  5,
		QueryTimeout:    15 * time.Second,
		AppDBPath:       "data/moviegpt.db",
		HistoryStore:    "memory",
		SchemaOverview:  true,
		MaxIterations:   10,
		EmptyResultHint: true,
		OMDbBaseURL:     "https://www.omdbapi.com/",
		JWTExpiry:       24 * time.Hour,
		LogLevel:        "info",
		LogFormat:       "text",
		HTTPHost:        "0.0.0.0",
		HTTPPort:        8000,
	}
}

// Load reads the optional YAML file, then environment variables, applying defaults
// for missing values, and validates the result.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv(envKeyConfigFile); path != "" {
		if err := mergeFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// AuthEnabled reports whether /api routes require a bearer token.
func (c Config) AuthEnabled() bool {
	return c.JWTSecret != ""
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints and returns a single error listing every violation.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.LLMProvider = envOr(envKeyLLMProvider, cfg.LLMProvider)
	cfg.OllamaBaseURL = envOr(envKeyOllamaBaseURL, cfg.OllamaBaseURL)
	cfg.OllamaChatModel = envOr(envKeyOllamaChatModel, cfg.OllamaChatModel)
	cfg.GeminiAPIKey = envOr(envKeyGeminiAPIKey, cfg.GeminiAPIKey)
	cfg.GeminiModel = envOr(envKeyGeminiModel, cfg.GeminiModel)
	cfg.GeminiBaseURL = envOr(envKeyGeminiBaseURL, cfg.GeminiBaseURL)
	cfg.DBDriver = envOr(envKeyDBDriver, cfg.DBDriver)
	cfg.DBDSN = envOr(envKeyDBDSN, cfg.DBDSN)
	cfg.DBMaxOpenConns = envIntOr(envKeyDBMaxOpenConns, cfg.DBMaxOpenConns)
	cfg.DBMaxIdleConns = envIntOr(envKeyDBMaxIdleConns, cfg.DBMaxIdleConns)
	cfg.QueryTimeout = envDurationOr(envKeyQueryTimeout, cfg.QueryTimeout)
	cfg.AppDBPath = envOr(envKeyAppDBPath, cfg.AppDBPath)
	cfg.HistoryStore = envOr(envKeyHistoryStore, cfg.HistoryStore)
	cfg.SchemaOverview = envBoolOr(envKeySchemaOverview, cfg.SchemaOverview)
	cfg.SystemPrompt = envOr(envKeySystemPrompt, cfg.SystemPrompt)
	cfg.MaxIterations = envIntOr(envKeyMaxIterations, cfg.MaxIterations)
	cfg.EmptyResultHint = envBoolOr(envKeyEmptyResultHint, cfg.EmptyResultHint)
	cfg.OMDbAPIKey = envOr(envKeyOMDbAPIKey, cfg.OMDbAPIKey)
	cfg.OMDbBaseURL = envOr(envKeyOMDbBaseURL, cfg.OMDbBaseURL)
	cfg.JWTSecret = envOr(envKeyJWTSecret, cfg.JWTSecret)
	cfg.JWTExpiry = envDurationOr(envKeyJWTExpiry, cfg.JWTExpiry)
	cfg.AuthClientSecretHash = envOr(envKeyClientSecret, cfg.AuthClientSecretHash)
	cfg.LogLevel = envOr(envKeyLogLevel, cfg.LogLevel)
	cfg.LogFormat = envOr(envKeyLogFormat, cfg.LogFormat)
	cfg.HTTPHost = envOr(envKeyHTTPHost, cfg.HTTPHost)
	cfg.HTTPPort = envIntOr(envKeyHTTPPort, cfg.HTTPPort)
}

// envOr returns the value of the environment variable key, or fallback if not set.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envIntOr parses key as an int; unset or malformed values keep fallback.
func envIntOr(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

// envBoolOr accepts the strconv.ParseBool spellings; anything else keeps fallback.
func envBoolOr(key string, fallback bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

// envDurationOr accepts Go durations ("15s") or bare seconds ("15").
func envDurationOr(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
