package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/harborchat/companion/internal/entitlement"
	"github.com/harborchat/companion/internal/learning"
)

// Config aggregates every service setting.
type Config struct {
	Server      ServerConfig
	AI          AIConfig
	Store       StoreConfig
	Learning    LearningConfig
	Entitlement EntitlementConfig
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	store := loadStoreConfig()
	learn := loadLearningConfig()

	ent, err := loadEntitlementConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Store: store, Learning: learn, Entitlement: ent}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig describes the remote completion proxy and send pacing.
type AIConfig struct {
	Enabled                    bool
	BaseURL                    string
	Timeout                    time.Duration
	TypingLead                 time.Duration
	TypingTrail                time.Duration
	LocalFallbackForUnentitled bool
}

func loadAIConfig() (AIConfig, error) {
	enabled, err := parseBoolEnv("AI_ENABLED", true)
	if err != nil {
		return AIConfig{}, err
	}

	fallback, err := parseBoolEnv("AI_LOCAL_FALLBACK_FOR_UNENTITLED", false)
	if err != nil {
		return AIConfig{}, err
	}

	timeout, err := parseDurationEnv("AI_TIMEOUT", 30*time.Second)
	if err != nil {
		return AIConfig{}, err
	}

	lead, err := parseDurationEnv("TYPING_LEAD", 800*time.Millisecond)
	if err != nil {
		return AIConfig{}, err
	}

	trail, err := parseDurationEnv("TYPING_TRAIL", 200*time.Millisecond)
	if err != nil {
		return AIConfig{}, err
	}

	baseURL := strings.TrimSpace(os.Getenv("AI_PROXY_BASE_URL"))
	if enabled && baseURL == "" {
		// Without a proxy every send falls through to the local composer.
		enabled = false
	}

	return AIConfig{
		Enabled:                    enabled,
		BaseURL:                    baseURL,
		Timeout:                    timeout,
		TypingLead:                 lead,
		TypingTrail:                trail,
		LocalFallbackForUnentitled: fallback,
	}, nil
}

// StoreConfig describes the persistence backend. An empty RedisAddr selects
// the in-memory store.
type StoreConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Prefix        string
}

func loadStoreConfig() StoreConfig {
	db := 0
	if raw := strings.TrimSpace(os.Getenv("REDIS_DB")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			db = parsed
		}
	}
	return StoreConfig{
		RedisAddr:     strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       db,
		Prefix:        getEnvOrDefault("REDIS_PREFIX", "companion"),
	}
}

// LearningConfig describes the learned phrase store and its relearn schedule.
type LearningConfig struct {
	Scope    learning.Scope
	CronSpec string
}

func loadLearningConfig() LearningConfig {
	scope := learning.ScopePerPersona
	if strings.EqualFold(strings.TrimSpace(os.Getenv("LEARNING_SCOPE")), string(learning.ScopeGlobal)) {
		scope = learning.ScopeGlobal
	}
	return LearningConfig{
		Scope:    scope,
		CronSpec: getEnvOrDefault("LEARNING_CRON", "@hourly"),
	}
}

// EntitlementConfig seeds the trial gate.
type EntitlementConfig struct {
	State     entitlement.State
	TrialDays int
}

func loadEntitlementConfig() (EntitlementConfig, error) {
	state := entitlement.StateTrial
	switch strings.ToLower(strings.TrimSpace(os.Getenv("ENTITLEMENT_STATE"))) {
	case "", string(entitlement.StateTrial):
	case string(entitlement.StateActive):
		state = entitlement.StateActive
	case string(entitlement.StateExpired):
		state = entitlement.StateExpired
	case string(entitlement.StateUnknown):
		state = entitlement.StateUnknown
	default:
		return EntitlementConfig{}, fmt.Errorf("invalid ENTITLEMENT_STATE value: %q", os.Getenv("ENTITLEMENT_STATE"))
	}

	days := 7
	if override, err := parseOptionalIntEnv("TRIAL_DAYS"); err != nil {
		return EntitlementConfig{}, err
	} else if override != nil && *override > 0 {
		days = *override
	}

	return EntitlementConfig{State: state, TrialDays: days}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
