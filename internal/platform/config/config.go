// Package config loads application configuration from environment variables.
// All variables use the LEARN_ prefix.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Database DatabaseConfig
	Cache    CacheConfig
	AI       AIConfig
	Quiz     QuizConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int
	Host           string
	AllowedOrigins []string // extra websocket origins, comma separated
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StoreConfig locates the persisted document and the optional seed.
type StoreConfig struct {
	Path     string
	SeedPath string // empty uses the embedded defaults
}

// DatabaseConfig holds PostgreSQL connection settings. An empty URL
// disables replication.
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

// CacheConfig holds Redis connection settings. An empty URL disables the
// shared profile, the token budget counter and the event relay.
type CacheConfig struct {
	URL           string
	EventsChannel string
}

// AIConfig holds configuration for the generation providers.
type AIConfig struct {
	OpenAI      OpenAIConfig
	DeepSeek    DeepSeekConfig
	Ollama      OllamaConfig
	Model       string
	TokenBudget int64 // 0 means unlimited
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	APIKey string
}

// DeepSeekConfig holds DeepSeek provider settings (OpenAI-compatible).
type DeepSeekConfig struct {
	APIKey string
}

// OllamaConfig holds self-hosted Ollama settings.
type OllamaConfig struct {
	Enabled bool
	URL     string
}

// QuizConfig holds session timing and generation defaults.
type QuizConfig struct {
	SecondsPerQuestion int
	TotalSeconds       int // > 0 overrides the per-question rule
	DefaultCount       int
	DefaultDifficulty  string
	ResultTTLSeconds   int // how long a finished, unsaved session is kept
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables with LEARN_ prefix.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:           envInt("LEARN_SERVER_PORT", 8080),
			Host:           envStr("LEARN_SERVER_HOST", "0.0.0.0"),
			AllowedOrigins: envList("LEARN_SERVER_ALLOWED_ORIGINS"),
		},
		Store: StoreConfig{
			Path:     envStr("LEARN_STORE_PATH", "./data/study.json"),
			SeedPath: envStr("LEARN_SEED_PATH", ""),
		},
		Database: DatabaseConfig{
			URL:      envStr("LEARN_DATABASE_URL", ""),
			MaxConns: envInt("LEARN_DATABASE_MAX_CONNS", 10),
			MinConns: envInt("LEARN_DATABASE_MIN_CONNS", 1),
		},
		Cache: CacheConfig{
			URL:           envStr("LEARN_CACHE_URL", ""),
			EventsChannel: envStr("LEARN_CACHE_EVENTS_CHANNEL", "study:events"),
		},
		AI: AIConfig{
			OpenAI: OpenAIConfig{
				APIKey: envStr("LEARN_AI_OPENAI_API_KEY", ""),
			},
			DeepSeek: DeepSeekConfig{
				APIKey: envStr("LEARN_AI_DEEPSEEK_API_KEY", ""),
			},
			Ollama: OllamaConfig{
				Enabled: envBool("LEARN_AI_OLLAMA_ENABLED", false),
				URL:     envStr("LEARN_AI_OLLAMA_URL", "http://localhost:11434"),
			},
			Model:       envStr("LEARN_AI_MODEL", ""),
			TokenBudget: int64(envInt("LEARN_AI_TOKEN_BUDGET", 0)),
		},
		Quiz: QuizConfig{
			SecondsPerQuestion: envInt("LEARN_QUIZ_SECONDS_PER_QUESTION", 30),
			TotalSeconds:       envInt("LEARN_QUIZ_TOTAL_SECONDS", 0),
			DefaultCount:       envInt("LEARN_QUIZ_DEFAULT_COUNT", 5),
			DefaultDifficulty:  envStr("LEARN_QUIZ_DEFAULT_DIFFICULTY", "medium"),
			ResultTTLSeconds:   envInt("LEARN_QUIZ_RESULT_TTL_SECONDS", 3600),
		},
		Log: LogConfig{
			Level:  envStr("LEARN_LOG_LEVEL", "info"),
			Format: envStr("LEARN_LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// Validate checks that the configuration is usable. No AI provider is
// required: without one, generation endpoints report it as unavailable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Store.Path) == "" {
		return fmt.Errorf("LEARN_STORE_PATH is required")
	}

	if c.Quiz.SecondsPerQuestion <= 0 {
		return fmt.Errorf("LEARN_QUIZ_SECONDS_PER_QUESTION must be positive, got %d", c.Quiz.SecondsPerQuestion)
	}

	if c.Quiz.TotalSeconds < 0 {
		return fmt.Errorf("LEARN_QUIZ_TOTAL_SECONDS must not be negative, got %d", c.Quiz.TotalSeconds)
	}

	if c.Quiz.ResultTTLSeconds <= 0 {
		return fmt.Errorf("LEARN_QUIZ_RESULT_TTL_SECONDS must be positive, got %d", c.Quiz.ResultTTLSeconds)
	}

	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("LEARN_LOG_FORMAT must be 'json' or 'text', got %q", c.Log.Format)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LEARN_LOG_LEVEL must be debug, info, warn or error, got %q", c.Log.Level)
	}

	if c.Database.URL != "" && c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("LEARN_DATABASE_MIN_CONNS (%d) exceeds LEARN_DATABASE_MAX_CONNS (%d)",
			c.Database.MinConns, c.Database.MaxConns)
	}

	return nil
}

// HasAIProvider returns true if at least one AI provider is configured.
func (c *Config) HasAIProvider() bool {
	return c.AI.OpenAI.APIKey != "" ||
		c.AI.DeepSeek.APIKey != "" ||
		c.AI.Ollama.Enabled
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
