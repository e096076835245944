package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Storage. An empty DatabaseURL keeps the data in the pocketbase sqlite db.
	DatabaseURL string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUserID       string

	// Auth
	JWTSecret string
	TokenTTL  time.Duration

	// Escrow
	PlatformFee          decimal.Decimal
	Currency             string
	ReleaseSweepInterval time.Duration
	SweepLockEnabled     bool

	// Payment
	RequirePayment         bool
	PaymentTimeout         time.Duration
	PaymentProviderTimeout time.Duration
	Payment                PaymentProviderConfig

	// Rate limiting
	LoginAttemptsPerMinute int

	// Monitoring
	EnableMetrics bool
}

// PaymentProviderConfig holds the credentials of the hosted payment page provider.
type PaymentProviderConfig struct {
	BaseURL        string
	AccessTokenURL string
	ClientID       string
	ClientSecret   string
	MerchantID     string
	KeyID          string
	HMACKey        string
	WebhookSecret  string
	SwitchBackURL  string
}

func LoadConfig() *Config {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUserID:       getEnv("PUBNUB_USER_ID", "smarttrain-server"),

		// Auth
		JWTSecret: getEnv("JWT_SECRET", ""),
		TokenTTL:  getEnvAsDuration("TOKEN_TTL", "168h"),

		// Escrow
		PlatformFee:          getEnvAsDecimal("PLATFORM_FEE", "10"),
		Currency:             getEnv("CURRENCY", "EGP"),
		ReleaseSweepInterval: getEnvAsDuration("RELEASE_SWEEP_INTERVAL", "60s"),
		SweepLockEnabled:     getEnvAsBool("SWEEP_LOCK_ENABLED", true),

		// Payment
		RequirePayment:         getEnvAsBool("REQUIRE_PAYMENT", true),
		PaymentTimeout:         getEnvAsDuration("PAYMENT_TIMEOUT", "10m"),
		PaymentProviderTimeout: getEnvAsDuration("PAYMENT_PROVIDER_TIMEOUT", "15s"),
		Payment: PaymentProviderConfig{
			BaseURL:        getEnv("PAYMENT_BASE_URL", ""),
			AccessTokenURL: getEnv("PAYMENT_ACCESS_TOKEN_URL", ""),
			ClientID:       getEnv("PAYMENT_CLIENT_ID", ""),
			ClientSecret:   getEnv("PAYMENT_CLIENT_SECRET", ""),
			MerchantID:     getEnv("PAYMENT_MERCHANT_ID", ""),
			KeyID:          getEnv("PAYMENT_KEY_ID", ""),
			HMACKey:        getEnv("PAYMENT_HMAC_KEY", ""),
			WebhookSecret:  getEnv("PAYMENT_WEBHOOK_SECRET", ""),
			SwitchBackURL:  getEnv("PAYMENT_SWITCH_BACK_URL", ""),
		},

		LoginAttemptsPerMinute: getEnvAsInt("LOGIN_ATTEMPTS_PER_MINUTE", 10),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}

	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func getEnvAsDecimal(key string, defaultValue string) decimal.Decimal {
	valueStr := getEnv(key, defaultValue)
	if value, err := decimal.NewFromString(valueStr); err == nil {
		return value
	}
	return decimal.RequireFromString(defaultValue)
}
