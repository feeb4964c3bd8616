package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	GoogleApiKey   string
	DatabaseURL    string
	Model          string
	Port           string
	Secret         string
	MistralApiKey  string
	ChainBudget    time.Duration
	AttemptTimeout time.Duration
	FetchTimeout   time.Duration
	ContextLimit   int
	MaxAttempts    int
}

// fileConfig mirrors Config for the YAML file, with durations in whole seconds.
type fileConfig struct {
	GoogleApiKey          string `yaml:"google_api_key"`
	DatabaseURL           string `yaml:"database_url"`
	Model                 string `yaml:"model"`
	Port                  string `yaml:"port"`
	Secret                string `yaml:"secret"`
	MistralApiKey         string `yaml:"mistral_api_key"`
	ChainBudgetSeconds    int    `yaml:"chain_budget_seconds"`
	AttemptTimeoutSeconds int    `yaml:"attempt_timeout_seconds"`
	FetchTimeoutSeconds   int    `yaml:"fetch_timeout_seconds"`
	ContextLimit          int    `yaml:"context_limit"`
	MaxAttempts           int    `yaml:"max_attempts"`
}

// Load reads configuration from an optional YAML file and the environment.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Model:          "gemini-3-flash-preview",
		Port:           "8080",
		ChainBudget:    170 * time.Second,
		AttemptTimeout: 60 * time.Second,
		FetchTimeout:   15 * time.Second,
		ContextLimit:   15000,
		MaxAttempts:    3,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		applyFile(cfg, fc)
	}

	cfg.GoogleApiKey = getEnv("GOOGLE_API_KEY", cfg.GoogleApiKey)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.Model = getEnv("LLM_MODEL", cfg.Model)
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Secret = getEnv("SECRET", cfg.Secret)
	cfg.MistralApiKey = getEnv("MISTRAL_API_KEY", cfg.MistralApiKey)
	cfg.ChainBudget = getEnvAsSeconds("CHAIN_BUDGET_SECONDS", cfg.ChainBudget)
	cfg.AttemptTimeout = getEnvAsSeconds("ATTEMPT_TIMEOUT_SECONDS", cfg.AttemptTimeout)
	cfg.FetchTimeout = getEnvAsSeconds("FETCH_TIMEOUT_SECONDS", cfg.FetchTimeout)
	cfg.ContextLimit = getEnvAsInt("CONTEXT_LIMIT", cfg.ContextLimit)
	cfg.MaxAttempts = getEnvAsInt("MAX_ATTEMPTS", cfg.MaxAttempts)

	return cfg, nil
}

func applyFile(cfg *Config, fc fileConfig) {
	if fc.GoogleApiKey != "" {
		cfg.GoogleApiKey = fc.GoogleApiKey
	}
	if fc.DatabaseURL != "" {
		cfg.DatabaseURL = fc.DatabaseURL
	}
	if fc.Model != "" {
		cfg.Model = fc.Model
	}
	if fc.Port != "" {
		cfg.Port = fc.Port
	}
	if fc.Secret != "" {
		cfg.Secret = fc.Secret
	}
	if fc.MistralApiKey != "" {
		cfg.MistralApiKey = fc.MistralApiKey
	}
	if fc.ChainBudgetSeconds > 0 {
		cfg.ChainBudget = time.Duration(fc.ChainBudgetSeconds) * time.Second
	}
	if fc.AttemptTimeoutSeconds > 0 {
		cfg.AttemptTimeout = time.Duration(fc.AttemptTimeoutSeconds) * time.Second
	}
	if fc.FetchTimeoutSeconds > 0 {
		cfg.FetchTimeout = time.Duration(fc.FetchTimeoutSeconds) * time.Second
	}
	if fc.ContextLimit > 0 {
		cfg.ContextLimit = fc.ContextLimit
	}
	if fc.MaxAttempts > 0 {
		cfg.MaxAttempts = fc.MaxAttempts
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSeconds(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return time.Duration(value) * time.Second
}
