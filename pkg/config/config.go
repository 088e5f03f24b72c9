package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	DatabaseDriver string
	DatabaseDSN    string

	// AppJWTSecret signs the OAuth state token.
	AppJWTSecret     string
	OAuthStateExpiry time.Duration

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string
	GoogleProjectID    string
	GoogleCredentials  string

	GmailPubSubTopic        string
	GmailPubSubSubscription string
	WatchRenewInterval      time.Duration
	WatchRenewWindow        time.Duration

	WhatsAppAccessToken        string
	WhatsAppPhoneNumberID      string
	WhatsAppGraphVersion       string
	WhatsAppGraphBaseURL       string
	WhatsAppWebhookVerifyToken string

	// TokenEncryptionKey seals OAuth tokens at rest. Empty stores them as-is.
	TokenEncryptionKey string

	NATSURL        string
	MetricsEnabled bool
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:                       getEnv("PORT", "8080"),
		DatabaseDriver:             getEnv("DATABASE_DRIVER", "postgres"),
		DatabaseDSN:                getEnv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=msgtracker port=5432 sslmode=disable"),
		AppJWTSecret:               getEnv("APP_JWT_SECRET", ""),
		OAuthStateExpiry:           getEnvDuration("OAUTH_STATE_TTL", 15*time.Minute),
		GoogleClientID:             getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:         getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURI:          getEnv("GOOGLE_REDIRECT_URI", ""),
		GoogleProjectID:            getEnv("GOOGLE_PROJECT_ID", ""),
		GoogleCredentials:          getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		GmailPubSubTopic:           getEnv("GMAIL_PUBSUB_TOPIC", ""),
		GmailPubSubSubscription:    getEnv("GMAIL_PUBSUB_SUBSCRIPTION", ""),
		WatchRenewInterval:         getEnvDuration("GMAIL_WATCH_RENEW_INTERVAL", time.Hour),
		WatchRenewWindow:           getEnvDuration("GMAIL_WATCH_RENEW_WINDOW", 24*time.Hour),
		WhatsAppAccessToken:        getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppPhoneNumberID:      getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
		WhatsAppGraphVersion:       getEnv("WHATSAPP_GRAPH_VERSION", "v20.0"),
		WhatsAppGraphBaseURL:       getEnv("WHATSAPP_GRAPH_BASE_URL", "https://graph.facebook.com"),
		WhatsAppWebhookVerifyToken: getEnv("WHATSAPP_WEBHOOK_VERIFY_TOKEN", ""),
		TokenEncryptionKey:         getEnv("TOKEN_ENCRYPTION_KEY", ""),
		NATSURL:                    getEnv("NATS_URL", ""),
		MetricsEnabled:             getEnvBool("METRICS_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
