// Package config loads runtime configuration from the environment, the way
// the teacher's pkg/database/config.go does for its database settings
// (spec.md section 6.4). There is no YAML registry here: every setting in
// this system is a single env var, so a defaults-merge plus typed parsing
// covers the whole surface.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"dario.cat/mergo"
	"github.com/joho/godotenv"

	"github.com/stagehand-run/stagehand/pkg/store"
)

// LLMProvider selects which backend pkg/llm talks to.
type LLMProvider string

const (
	ProviderOpenAI    LLMProvider = "openai"
	ProviderAnthropic LLMProvider = "anthropic"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	Port     string
	LogLevel string

	DB store.Config

	MasterAPIKey string

	LLMProvider    LLMProvider
	LLMAPIKey      string
	LLMModel       string
	LLMTimeout     time.Duration
	LLMMaxAttempts int

	PlatformFacebookSecret string
	PlatformWhatsAppSecret string

	// Verify tokens are only compared during the one-time hub.challenge
	// handshake a platform performs when a webhook URL is registered; they
	// are not used on the per-message signature check.
	PlatformFacebookVerifyToken string
	PlatformWhatsAppVerifyToken string

	// Send-API credentials for translating a reply back out. These are not
	// webhook-signing secrets and are optional: a deployment that only
	// wants inbound processing (e.g. behind a separate reply relay) can
	// leave them unset.
	PlatformFacebookPageToken     string
	PlatformWhatsAppAccessToken  string
	PlatformWhatsAppPhoneNumberID string

	// Rate-limit tiers (spec.md section 4.2/5): admin writes and message
	// ingress are limited per authenticated identity (business ID, or
	// "master" for master-key callers); the global tier is limited per
	// caller IP regardless of authentication outcome.
	RateLimitAdminWritesPerMinute int
	RateLimitMessagePerMinute     int
	RateLimitGlobalPerDay         int

	LeaseTTL           time.Duration
	LeaseSweepInterval time.Duration
}

// defaults returns the baseline configuration merged under whatever the
// environment supplies, mirroring LoadConfigFromEnv's "production-ready
// defaults" comment in the teacher's database config loader.
func defaults() Config {
	return Config{
		Port:     "8080",
		LogLevel: "info",
		DB: store.Config{
			Host:               "localhost",
			Port:               5432,
			User:               "stagehand",
			Database:           "stagehand",
			SSLMode:            "disable",
			MaxOpenConns:       25,
			MaxIdleConns:       10,
			ConnMaxLifetime:    time.Hour,
			ConnMaxIdleTime:    15 * time.Minute,
			PoolAcquireTimeout: 5 * time.Second,
		},
		LLMProvider:                   ProviderOpenAI,
		LLMModel:                      "gpt-4o-mini",
		LLMTimeout:                    20 * time.Second,
		LLMMaxAttempts:                2,
		RateLimitAdminWritesPerMinute: 10,
		RateLimitMessagePerMinute:     30,
		RateLimitGlobalPerDay:         100,
		LeaseTTL:                      30 * time.Second,
		LeaseSweepInterval:            time.Minute,
	}
}

// Load reads a .env file if present (ignored if missing — production
// deployments set real env vars instead), then overlays environment values
// onto the defaults via mergo, matching the teacher's getEnvOrDefault style
// but generalized to a whole-struct merge.
func Load() (Config, error) {
	_ = godotenv.Load() // optional; missing .env is not an error

	cfg := defaults()
	env, err := fromEnv()
	if err != nil {
		return Config{}, err
	}
	if err := mergo.Merge(&cfg, env, mergo.WithOverride); err != nil {
		return Config{}, fmt.Errorf("config: merge: %w", err)
	}
	return cfg, cfg.Validate()
}

func fromEnv() (Config, error) {
	var c Config

	c.Port = os.Getenv("PORT")
	c.LogLevel = os.Getenv("LOG_LEVEL")
	c.MasterAPIKey = os.Getenv("MASTER_API_KEY")
	c.LLMAPIKey = os.Getenv("LLM_API_KEY")
	c.LLMModel = os.Getenv("LLM_MODEL")
	c.PlatformFacebookSecret = os.Getenv("PLATFORM_FACEBOOK_SECRET")
	c.PlatformWhatsAppSecret = os.Getenv("PLATFORM_WHATSAPP_SECRET")
	c.PlatformFacebookPageToken = os.Getenv("PLATFORM_FACEBOOK_PAGE_TOKEN")
	c.PlatformWhatsAppAccessToken = os.Getenv("PLATFORM_WHATSAPP_ACCESS_TOKEN")
	c.PlatformWhatsAppPhoneNumberID = os.Getenv("PLATFORM_WHATSAPP_PHONE_NUMBER_ID")

	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.LLMProvider = LLMProvider(v)
	}

	var err error
	c.DB.Host = os.Getenv("DB_HOST")
	if c.DB.Port, err = intEnv("DB_PORT", 0); err != nil {
		return Config{}, err
	}
	c.DB.User = os.Getenv("DB_USER")
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Database = os.Getenv("DB_NAME")
	c.DB.SSLMode = os.Getenv("DB_SSLMODE")
	if c.DB.MaxOpenConns, err = intEnv("DB_MAX_OPEN_CONNS", 0); err != nil {
		return Config{}, err
	}
	if c.DB.MaxIdleConns, err = intEnv("DB_MAX_IDLE_CONNS", 0); err != nil {
		return Config{}, err
	}
	if c.DB.ConnMaxLifetime, err = durationEnv("DB_CONN_MAX_LIFETIME"); err != nil {
		return Config{}, err
	}
	if c.DB.ConnMaxIdleTime, err = durationEnv("DB_CONN_MAX_IDLE_TIME"); err != nil {
		return Config{}, err
	}

	if c.LLMTimeout, err = durationFromMillisEnv("LLM_TIMEOUT_MS"); err != nil {
		return Config{}, err
	}
	if c.LLMMaxAttempts, err = intEnv("LLM_MAX_ATTEMPTS", 0); err != nil {
		return Config{}, err
	}
	if c.RateLimitAdminWritesPerMinute, err = intEnv("RATE_LIMIT_ADMIN_WRITES_PER_MINUTE", 0); err != nil {
		return Config{}, err
	}
	if c.RateLimitMessagePerMinute, err = intEnv("RATE_LIMIT_MESSAGE_PER_MINUTE", 0); err != nil {
		return Config{}, err
	}
	if c.RateLimitGlobalPerDay, err = intEnv("RATE_LIMIT_GLOBAL_PER_DAY", 0); err != nil {
		return Config{}, err
	}
	if c.LeaseTTL, err = durationFromMillisEnv("LEASE_TTL_MS"); err != nil {
		return Config{}, err
	}
	if c.LeaseSweepInterval, err = durationEnv("LEASE_SWEEP_INTERVAL"); err != nil {
		return Config{}, err
	}

	return c, nil
}

func intEnv(key string, fallbackZero int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallbackZero, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func durationEnv(key string) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func durationFromMillisEnv(key string) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	ms, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// Validate checks cross-field and required-field constraints, following the
// teacher's Config.Validate style.
func (c Config) Validate() error {
	if c.MasterAPIKey == "" {
		return fmt.Errorf("MASTER_API_KEY is required")
	}
	if c.LLMAPIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	if c.DB.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.DB.MaxIdleConns > c.DB.MaxOpenConns {
		return fmt.Errorf("DB_MAX_IDLE_CONNS (%d) cannot exceed DB_MAX_OPEN_CONNS (%d)", c.DB.MaxIdleConns, c.DB.MaxOpenConns)
	}
	if c.LLMProvider != ProviderOpenAI && c.LLMProvider != ProviderAnthropic {
		return fmt.Errorf("LLM_PROVIDER must be %q or %q", ProviderOpenAI, ProviderAnthropic)
	}
	if c.RateLimitAdminWritesPerMinute < 1 {
		return fmt.Errorf("RATE_LIMIT_ADMIN_WRITES_PER_MINUTE must be at least 1")
	}
	if c.RateLimitMessagePerMinute < 1 {
		return fmt.Errorf("RATE_LIMIT_MESSAGE_PER_MINUTE must be at least 1")
	}
	if c.RateLimitGlobalPerDay < 1 {
		return fmt.Errorf("RATE_LIMIT_GLOBAL_PER_DAY must be at least 1")
	}
	return nil
}
