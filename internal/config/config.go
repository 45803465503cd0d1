// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	JWTSecret   string

	SessionTTL           time.Duration
	SessionSweepInterval time.Duration

	AI      AIConfig
	TurnLog TurnLogConfig

	// PromptProfilePath optionally points at a YAML file overriding the
	// built-in prompt profiles.
	PromptProfilePath string
}

// AIConfig holds the OpenAI-compatible backend configuration.
type AIConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	RequestTimeout time.Duration
}

// TurnLogConfig controls NDJSON turn logging.
type TurnLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("TURN_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	// AI_MODEL is preferred; MODEL is the legacy name.
	model := getEnv("AI_MODEL", "")
	if model == "" {
		model = getEnv("MODEL", "qwen3:1.7b")
	}

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		FrontendURL:          getEnv("FRONTEND_URL", ""),
		DBPath:               getEnv("DB_PATH", "./data/oipromot.db"),
		JWTSecret:            getEnv("JWT_SECRET_KEY", ""),
		SessionTTL:           getEnvDuration("SESSION_TTL", 60*time.Minute),
		SessionSweepInterval: getEnvDuration("SESSION_SWEEP_INTERVAL", 5*time.Minute),
		AI: AIConfig{
			BaseURL:        normalizeBaseURL(getEnv("API_BASE_URL", "http://localhost:11434/v1")),
			APIKey:         getEnv("API_KEY", ""),
			Model:          model,
			RequestTimeout: getEnvDuration("API_REQUEST_TIMEOUT", 60*time.Second),
		},
		TurnLog: TurnLogConfig{
			Enabled:       getEnvBool("TURN_LOG_ENABLED", true),
			Dir:           getEnv("TURN_LOG_DIR", "./data/logs/turns"),
			GlobalEnabled: getEnvBool("TURN_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("TURN_LOG_GLOBAL_PATH", "./data/logs/turns/all.ndjson"),
			QueueSize:     queueSize,
		},
		PromptProfilePath: getEnv("PROMPT_PROFILE_PATH", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.AI.BaseURL == "" {
		return fmt.Errorf("API_BASE_URL cannot be empty")
	}
	if c.AI.Model == "" {
		return fmt.Errorf("AI_MODEL cannot be empty")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.SessionSweepInterval <= 0 {
		return fmt.Errorf("SESSION_SWEEP_INTERVAL must be > 0")
	}
	if c.TurnLog.Dir == "" {
		return fmt.Errorf("TURN_LOG_DIR cannot be empty")
	}
	if c.TurnLog.GlobalPath == "" {
		return fmt.Errorf("TURN_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.TurnLog.QueueSize <= 0 {
		return fmt.Errorf("TURN_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// normalizeBaseURL ensures the backend URL ends with the /v1 API prefix.
// Ollama and most OpenAI-compatible servers mount the API there.
func normalizeBaseURL(u string) string {
	u = strings.TrimSpace(u)
	if u == "" {
		return u
	}
	if strings.HasSuffix(u, "/v1") {
		return u
	}
	return strings.TrimRight(u, "/") + "/v1"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
