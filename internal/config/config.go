// Package config loads and validates application configuration from environment variables.
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
	// Server settings.
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BaseURL      string

	// Model Router settings.
	ModelRouterURL   string
	ModelRouterToken string
	RouterTimeout    time.Duration

	// Station control-plane settings.
	StationURL   string
	AgentID      string
	AgentKey     string
	CollectorURL string // optional; falls back to StationURL when empty

	// Jury settings.
	Models           []string
	ReflectionModel  string
	EnableReflection bool
	EnableMemory     bool
	EnableGuardrails bool

	// Memory settings.
	SessionTTL time.Duration

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel         string
	RateLimitEnabled bool
	RateLimitRPS     float64
	RateLimitBurst   int
}

// defaultModels is the configured default model set when COMPASS_MODELS is unset.
var defaultModels = []string{"gpt-4o", "claude-3-5-sonnet", "gemini-1.5-pro"}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:             envInt("PORT", 8080),
		ReadTimeout:      envDuration("COMPASS_READ_TIMEOUT", 30*time.Second),
		WriteTimeout:     envDuration("COMPASS_WRITE_TIMEOUT", 30*time.Second),
		BaseURL:          envStr("BASE_URL", "http://localhost:8080"),
		ModelRouterURL:   envStr("MODEL_ROUTER_URL", "http://localhost:9000"),
		ModelRouterToken: envStr("MODEL_ROUTER_TOKEN", ""),
		RouterTimeout:    envDuration("MODEL_ROUTER_TIMEOUT", 60*time.Second),
		StationURL:       envStr("PAP_STATION_URL", ""),
		AgentID:          envStr("PAP_AGENT_ID", ""),
		AgentKey:         envStr("PAP_AGENT_KEY", ""),
		CollectorURL:     envStr("PAP_COLLECTOR_URL", ""),
		Models:           envList("COMPASS_MODELS", defaultModels),
		ReflectionModel:  envStr("REFLECTION_MODEL", "claude-3-5-sonnet"),
		EnableReflection: envBool("ENABLE_REFLECTION", true),
		EnableMemory:     envBool("ENABLE_MEMORY", true),
		EnableGuardrails: envBool("ENABLE_GUARDRAILS", true),
		OTELEndpoint:     envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:     envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:      envStr("OTEL_SERVICE_NAME", "compass"),
		LogLevel:         envStr("COMPASS_LOG_LEVEL", "info"),
		RateLimitEnabled: envBool("COMPASS_RATE_LIMIT_ENABLED", true),
		RateLimitRPS:     envFloat("COMPASS_RATE_LIMIT_RPS", 5),
		RateLimitBurst:   envInt("COMPASS_RATE_LIMIT_BURST", 20),
	}

	// SESSION_TTL_SECONDS is specified as a bare integer count of seconds,
	// not a Go duration string.
	cfg.SessionTTL = time.Duration(envInt("SESSION_TTL_SECONDS", 3600)) * time.Second

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if c.ModelRouterURL == "" {
		return fmt.Errorf("config: MODEL_ROUTER_URL is required")
	}
	if len(c.Models) == 0 {
		return fmt.Errorf("config: COMPASS_MODELS must not be empty")
	}
	if c.Port <= 0 {
		return fmt.Errorf("config: PORT must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("config: SESSION_TTL_SECONDS must be positive")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

// envBool treats any value other than the literal "false" as true, per
// spec.md §6: "Feature flags default to enabled unless set to the literal
// 'false'."
func envBool(key string, defaultVal bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	return v != "false"
}

// envList splits a comma-separated environment variable into a trimmed,
// non-empty slice of strings. Returns defaultVal when unset or empty.
func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
