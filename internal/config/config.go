package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/mmuslimabdulj/taskflow-collab/internal/domain"
)

// Config holds all application configuration
type Config struct {
	// Server
	Port string

	// Security
	AllowedOrigins []string
	InternalAPIKey string
	SessionTTL     time.Duration
	TrustedProxies []string // IPs or CIDRs whose X-Forwarded-For / X-Real-IP headers are honored

	// Rate Limiting
	RateLimitAPI     rate.Limit
	RateLimitWS      rate.Limit
	MessageRateLimit rate.Limit
	MessageBurst     int

	// Logging
	LogLevel string

	// WebSocket
	MaxMessageSize int
	SendTimeout    time.Duration

	// Presence
	TypingTimeout       time.Duration
	TypingSweepInterval time.Duration
	PresenceRetention   time.Duration

	// Comment previews
	MinPreviewLength int
	MaxPreviewLength int

	// Collaborators
	DatabaseURL string
	RedisURL    string
	DevTokens   string // token=user_id:Display Name,...
}

// DefaultConfig returns configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Port:                "8080",
		AllowedOrigins:      []string{"http://localhost:8080", "http://localhost:3000"},
		SessionTTL:          domain.SessionTTL,
		RateLimitAPI:        domain.DefaultRateLimitAPI,
		RateLimitWS:         domain.DefaultRateLimitWS,
		MessageRateLimit:    domain.DefaultMessageRate,
		MessageBurst:        domain.DefaultMessageBurst,
		LogLevel:            "info", // Options: debug, info, warn, error, silent
		MaxMessageSize:      domain.MaxMessageSize,
		SendTimeout:         domain.SendTimeout,
		TypingTimeout:       domain.TypingTimeout,
		TypingSweepInterval: domain.TypingSweepInterval,
		PresenceRetention:   domain.PresenceRetention,
		MinPreviewLength:    domain.MinPreviewLength,
		MaxPreviewLength:    domain.MaxPreviewLength,
	}
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	cfg := DefaultConfig()

	// Server
	if port := os.Getenv("PORT"); port != "" {
		cfg.Port = port
	}

	// Security
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseList(origins)
	}
	cfg.InternalAPIKey = os.Getenv("INTERNAL_API_KEY")
	if proxies := os.Getenv("TRUSTED_PROXIES"); proxies != "" {
		cfg.TrustedProxies = parseList(proxies)
	}
	if val, ok := positiveInt("SESSION_TTL_HOURS"); ok {
		cfg.SessionTTL = time.Duration(val) * time.Hour
	}

	// Rate Limiting
	if val, ok := positiveInt("RATE_LIMIT_API"); ok {
		cfg.RateLimitAPI = rate.Limit(val)
	}
	if val, ok := positiveInt("RATE_LIMIT_WS"); ok {
		cfg.RateLimitWS = rate.Limit(val)
	}
	if val, ok := positiveInt("MESSAGE_RATE_LIMIT"); ok {
		cfg.MessageRateLimit = rate.Limit(val)
	}
	if val, ok := positiveInt("MESSAGE_BURST"); ok {
		cfg.MessageBurst = val
	}

	// Logging
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	// WebSocket
	if val, ok := positiveInt("MAX_MESSAGE_SIZE"); ok {
		cfg.MaxMessageSize = val
	}
	if val, ok := positiveInt("SEND_TIMEOUT_MS"); ok {
		cfg.SendTimeout = time.Duration(val) * time.Millisecond
	}

	// Presence
	if val, ok := positiveInt("TYPING_TIMEOUT_SECONDS"); ok {
		cfg.TypingTimeout = time.Duration(val) * time.Second
	}
	if val, ok := positiveInt("TYPING_SWEEP_SECONDS"); ok {
		cfg.TypingSweepInterval = time.Duration(val) * time.Second
	}
	if val, ok := positiveInt("PRESENCE_RETENTION_MINUTES"); ok {
		cfg.PresenceRetention = time.Duration(val) * time.Minute
	}

	// Comment previews
	if val, ok := positiveInt("MIN_PREVIEW_LENGTH"); ok {
		cfg.MinPreviewLength = val
	}
	if val, ok := positiveInt("MAX_PREVIEW_LENGTH"); ok {
		cfg.MaxPreviewLength = val
	}

	// Collaborators
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DB_URL"))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DevTokens = os.Getenv("DEV_TOKENS")

	return cfg
}

// positiveInt reads key as an integer > 0
func positiveInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val <= 0 {
		return 0, false
	}
	return val, true
}

// parseList parses comma-separated values
func parseList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// Global configuration instance
var AppConfig = LoadFromEnv()
