// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// RedisConfig provides redis connection settings for the rate limiter
// and the asynq work queue.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// ProviderConfig provides settings for the messaging provider:
// webhook verification secrets and outbound send credentials.
type ProviderConfig interface {
	GetProviderAppSecret() string
	GetProviderVerifyToken() string
	GetProviderAPIURL() string
	GetProviderAccessToken() string
	GetProviderPhoneNumberID() string
}

// QueueConfig provides settings for the asynq work queue.
type QueueConfig interface {
	RedisConfig
	GetQueueName() string
	GetQueueConcurrency() int
	GetQueueMaxRetry() int
}

// QueueAuthConfig provides settings for authenticating the consumer endpoint.
type QueueAuthConfig interface {
	GetOperatorKey() string
	GetQueueSigningKeyCurrent() string
	GetQueueSigningKeyNext() string
	GetEnv() string
	GetAllowDevBypass() bool
}

// AgentConfig provides settings for the AI decision agent.
type AgentConfig interface {
	GetGeminiAPIKey() string
	GetGeminiModel() string
}

// RateLimitConfig provides per-sender rate limit thresholds.
type RateLimitConfig interface {
	GetSenderRateLimit() int
	GetSenderRateWindow() time.Duration
}

// NotificationConfig provides settings for admin escalation alerts.
type NotificationConfig interface {
	GetAdminPhone() string
	GetAdminEmail() string
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromAddress() string
	IsEmailEnabled() bool
}

// FunnelConfig provides funnel content settings.
type FunnelConfig interface {
	GetAssessmentLink() string
	GetBusinessName() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                    string
	HTTPAddr               string
	DatabaseURL            string
	RedisURL               string
	RedisTLSInsecure       bool
	CORSAllowAll           bool
	CORSOrigins            []string
	ProviderAppSecret      string
	ProviderVerifyToken    string
	ProviderAPIURL         string
	ProviderAccessToken    string
	ProviderPhoneNumberID  string
	QueueName              string
	QueueConcurrency       int
	QueueMaxRetry          int
	OperatorKey            string
	QueueSigningKeyCurrent string
	QueueSigningKeyNext    string
	AllowDevBypass         bool
	GeminiAPIKey           string
	GeminiModel            string
	SenderRateLimit        int
	SenderRateWindow       time.Duration
	AdminPhone             string
	AdminEmail             string
	SMTPHost               string
	SMTPPort               int
	SMTPUsername           string
	SMTPPassword           string
	EmailFromAddress       string
	EmailEnabled           bool
	AssessmentLink         string
	BusinessName           string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// RedisConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }

// ProviderConfig implementation
func (c *Config) GetProviderAppSecret() string     { return c.ProviderAppSecret }
func (c *Config) GetProviderVerifyToken() string   { return c.ProviderVerifyToken }
func (c *Config) GetProviderAPIURL() string        { return c.ProviderAPIURL }
func (c *Config) GetProviderAccessToken() string   { return c.ProviderAccessToken }
func (c *Config) GetProviderPhoneNumberID() string { return c.ProviderPhoneNumberID }

// QueueConfig implementation
func (c *Config) GetQueueName() string     { return c.QueueName }
func (c *Config) GetQueueConcurrency() int { return c.QueueConcurrency }
func (c *Config) GetQueueMaxRetry() int    { return c.QueueMaxRetry }

// QueueAuthConfig implementation
func (c *Config) GetOperatorKey() string            { return c.OperatorKey }
func (c *Config) GetQueueSigningKeyCurrent() string { return c.QueueSigningKeyCurrent }
func (c *Config) GetQueueSigningKeyNext() string    { return c.QueueSigningKeyNext }
func (c *Config) GetEnv() string                    { return c.Env }
func (c *Config) GetAllowDevBypass() bool           { return c.AllowDevBypass }

// AgentConfig implementation
func (c *Config) GetGeminiAPIKey() string { return c.GeminiAPIKey }
func (c *Config) GetGeminiModel() string  { return c.GeminiModel }

// RateLimitConfig implementation
func (c *Config) GetSenderRateLimit() int            { return c.SenderRateLimit }
func (c *Config) GetSenderRateWindow() time.Duration { return c.SenderRateWindow }

// NotificationConfig implementation
func (c *Config) GetAdminPhone() string       { return c.AdminPhone }
func (c *Config) GetAdminEmail() string       { return c.AdminEmail }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) IsEmailEnabled() bool        { return c.EmailEnabled && c.SMTPHost != "" }

// FunnelConfig implementation
func (c *Config) GetAssessmentLink() string { return c.AssessmentLink }
func (c *Config) GetBusinessName() string   { return c.BusinessName }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	env := getEnv("APP_ENV", "development")

	cfg := &Config{
		Env:                    env,
		HTTPAddr:               getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		RedisURL:               getEnv("REDIS_URL", ""),
		RedisTLSInsecure:       boolEnv("REDIS_TLS_INSECURE", false),
		CORSAllowAll:           boolEnv("CORS_ALLOW_ALL", false),
		CORSOrigins:            splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200")),
		ProviderAppSecret:      getEnv("PROVIDER_APP_SECRET", ""),
		ProviderVerifyToken:    getEnv("PROVIDER_VERIFY_TOKEN", ""),
		ProviderAPIURL:         getEnv("PROVIDER_API_URL", "https://graph.facebook.com/v19.0"),
		ProviderAccessToken:    getEnv("PROVIDER_ACCESS_TOKEN", ""),
		ProviderPhoneNumberID:  getEnv("PROVIDER_PHONE_NUMBER_ID", ""),
		QueueName:              getEnv("QUEUE_NAME", "engine"),
		QueueConcurrency:       intEnv("QUEUE_CONCURRENCY", 10),
		QueueMaxRetry:          intEnv("QUEUE_MAX_RETRY", 3),
		OperatorKey:            getEnv("INTERNAL_OPERATOR_KEY", ""),
		QueueSigningKeyCurrent: getEnv("QUEUE_SIGNING_KEY_CURRENT", ""),
		QueueSigningKeyNext:    getEnv("QUEUE_SIGNING_KEY_NEXT", ""),
		AllowDevBypass:         boolEnv("ALLOW_DEV_BYPASS", false),
		GeminiAPIKey:           getEnv("GEMINI_API_KEY", ""),
		GeminiModel:            getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		SenderRateLimit:        intEnv("SENDER_RATE_LIMIT", 5),
		SenderRateWindow:       mustDuration(getEnv("SENDER_RATE_WINDOW", "1h")),
		AdminPhone:             getEnv("ADMIN_PHONE", ""),
		AdminEmail:             getEnv("ADMIN_EMAIL", ""),
		SMTPHost:               getEnv("SMTP_HOST", ""),
		SMTPPort:               intEnv("SMTP_PORT", 587),
		SMTPUsername:           getEnv("SMTP_USERNAME", ""),
		SMTPPassword:           getEnv("SMTP_PASSWORD", ""),
		EmailFromAddress:       getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailEnabled:           boolEnv("EMAIL_ENABLED", true),
		AssessmentLink:         getEnv("ASSESSMENT_LINK", ""),
		BusinessName:           getEnv("BUSINESS_NAME", "Readly"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.ProviderAppSecret == "" || cfg.ProviderVerifyToken == "" {
		return nil, fmt.Errorf("PROVIDER_APP_SECRET and PROVIDER_VERIFY_TOKEN are required")
	}
	if cfg.QueueSigningKeyCurrent == "" && !strings.EqualFold(env, "development") {
		return nil, fmt.Errorf("QUEUE_SIGNING_KEY_CURRENT is required outside development")
	}
	if cfg.AllowDevBypass && strings.EqualFold(env, "production") {
		return nil, fmt.Errorf("ALLOW_DEV_BYPASS must not be enabled in production")
	}
	if cfg.SenderRateLimit < 1 {
		return nil, fmt.Errorf("SENDER_RATE_LIMIT must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return strings.EqualFold(val, "true")
}

func intEnv(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	result, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return result
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return time.Hour
	}
	return d
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}
