// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Generation backends.
const (
	BackendOpenAI = "openai"
	BackendOllama = "ollama"
	BackendGRPC   = "grpc"
)

// Config holds all application configuration.
type Config struct {
	Port               string
	FrontendURL        string
	DBPath             string
	SessionTTL         time.Duration
	QuestionRetryLimit int
	LLM                LLMConfig
	Reference          ReferenceConfig
	SubprocessFile     string // YAML subprocess catalog; empty = extract or use defaults
	UserChoicesFile    string // YAML overrides for the default user choices
	PromptDir          string // optional directory overriding embedded prompt templates
	ConversationLog    ConversationLogConfig
}

// LLMConfig selects and tunes the generation backend.
type LLMConfig struct {
	Backend     string
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float64
	Timeout     time.Duration // 0 = no bound
	GRPCAddr    string
}

// ReferenceConfig controls loading of reference documents.
type ReferenceConfig struct {
	Patterns []string
	MaxChars int
	Watch    bool
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:               getEnv("PORT", "8000"),
		FrontendURL:        getEnv("FRONTEND_URL", ""),
		DBPath:             getEnv("DB_PATH", "file:discovery?mode=memory&cache=shared"),
		SessionTTL:         getEnvDuration("SESSION_TTL", 2*time.Hour),
		QuestionRetryLimit: getEnvInt("QUESTION_RETRY_LIMIT", 1),
		LLM: LLMConfig{
			Backend:     strings.ToLower(getEnv("LLM_BACKEND", BackendOllama)),
			BaseURL:     getEnv("LLM_BASE_URL", ""),
			Model:       getEnv("LLM_MODEL", "llama3.1"),
			APIKey:      getEnv("LLM_API_KEY", ""),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.2),
			Timeout:     getEnvDuration("LLM_TIMEOUT", 120*time.Second),
			GRPCAddr:    getEnv("LLM_GRPC_ADDR", "localhost:50051"),
		},
		Reference: ReferenceConfig{
			Patterns: splitList(getEnv("REFERENCE_DOCS", "")),
			MaxChars: getEnvInt("REFERENCE_MAX_CHARS", 12000),
			Watch:    getEnvBool("REFERENCE_WATCH", false),
		},
		SubprocessFile:  getEnv("SUBPROCESS_FILE", ""),
		UserChoicesFile: getEnv("USER_CHOICES_FILE", ""),
		PromptDir:       getEnv("PROMPT_DIR", ""),
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
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
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.QuestionRetryLimit < 1 {
		return fmt.Errorf("QUESTION_RETRY_LIMIT must be >= 1")
	}
	switch c.LLM.Backend {
	case BackendOpenAI, BackendOllama:
		if c.LLM.Model == "" {
			return fmt.Errorf("LLM_MODEL cannot be empty")
		}
	case BackendGRPC:
		if c.LLM.GRPCAddr == "" {
			return fmt.Errorf("LLM_GRPC_ADDR cannot be empty when LLM_BACKEND=grpc")
		}
	default:
		return fmt.Errorf("LLM_BACKEND must be one of openai, ollama, grpc (got %q)", c.LLM.Backend)
	}
	if c.LLM.Timeout < 0 {
		return fmt.Errorf("LLM_TIMEOUT cannot be negative")
	}
	if c.Reference.MaxChars < 0 {
		return fmt.Errorf("REFERENCE_MAX_CHARS cannot be negative")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
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

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go durations ("90s", "2h") or bare seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
