package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	// Gemini text-generation configuration
	GeminiAPIKey  string
	GeminiModelID string
	LLMTimeout    time.Duration

	// WhatsApp Cloud API webhook configuration
	WhatsAppVerifyToken string
	WhatsAppAppSecret   string
	WhatsAppAccessToken string
	WhatsAppPhoneID     string
	// Tenant and appointment type bound to the WhatsApp number.
	WhatsAppBusinessID    string
	WhatsAppDefaultTypeID string

	// Redis (webhook dedup + conversation state)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Email delivery
	EmailProvider  string
	SendGridAPIKey string
	EmailFromName  string
	EmailFromAddr  string
	AWSRegion      string

	// Admin dashboard auth
	AdminJWTSecret string

	CORSAllowedOrigins []string

	// Scheduling policy defaults
	DefaultTimezone      string
	DefaultBufferMinutes int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		GeminiAPIKey:  getEnv("GEMINI_API_KEY", ""),
		GeminiModelID: getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		LLMTimeout:    getEnvAsDuration("LLM_TIMEOUT", 10*time.Second),

		WhatsAppVerifyToken: getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAppSecret:   getEnv("WHATSAPP_APP_SECRET", ""),
		WhatsAppAccessToken: getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppPhoneID:     getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),

		WhatsAppBusinessID:    getEnv("WHATSAPP_BUSINESS_ID", ""),
		WhatsAppDefaultTypeID: getEnv("WHATSAPP_DEFAULT_TYPE_ID", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		EmailProvider:  strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "sendgrid"))),
		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		EmailFromAddr:  getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailFromName:  getEnv("EMAIL_FROM_NAME", "Citaplan"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),

		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),

		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS"),

		DefaultTimezone:      getEnv("DEFAULT_TIMEZONE", "America/Mexico_City"),
		DefaultBufferMinutes: getEnvAsInt("DEFAULT_BUFFER_MINUTES", 10),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsSlice(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
