package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Port          int
	Env           string
	LogLevel      string
	JWTSecret     string
	DatabaseURL   string
	RedisURL      string
	RabbitMQURL   string
	EncryptionKey string
	CORSOrigins   []string
	AdminEmail    string
	AdminPassword string

	// Payment gateway
	Gateway            string // "stripe" or "mock"
	StripeSecretKey    string
	StripePriceID      string
	WebhookSecret      string
	PlanAmount         decimal.Decimal
	Currency           string
	BreakerFailures    uint32
	BreakerOpenTimeout time.Duration
	GatewayCallTimeout time.Duration

	// Subscription lifecycle
	TrialPeriod       time.Duration
	MaxFailedPayments int
	WebhookTimeout    time.Duration
	ExpiryGrace       time.Duration
	SweepInterval     time.Duration
	StatusCacheTTL    time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is applied first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := strconv.Atoi(getEnv("PORT", "4001"))
	if err != nil {
		return nil, fmt.Errorf("PORT must be a number: %w", err)
	}

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	dbURL := getEnv("DATABASE_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	encKey := getEnv("ENCRYPTION_KEY", "")
	if len(encKey) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes, got %d", len(encKey))
	}

	gateway := strings.ToLower(getEnv("PAYMENT_GATEWAY", "mock"))
	if gateway != "stripe" && gateway != "mock" {
		return nil, fmt.Errorf("PAYMENT_GATEWAY must be stripe or mock, got %q", gateway)
	}

	webhookSecret := getEnv("WEBHOOK_SECRET", "")
	if webhookSecret == "" {
		return nil, fmt.Errorf("WEBHOOK_SECRET is required")
	}

	stripeKey := getEnv("STRIPE_SECRET_KEY", "")
	stripePrice := getEnv("STRIPE_PRICE_ID", "")
	if gateway == "stripe" && (stripeKey == "" || stripePrice == "") {
		return nil, fmt.Errorf("STRIPE_SECRET_KEY and STRIPE_PRICE_ID are required for the stripe gateway")
	}

	amount, err := decimal.NewFromString(getEnv("PLAN_AMOUNT", "9.99"))
	if err != nil || !amount.IsPositive() {
		return nil, fmt.Errorf("PLAN_AMOUNT must be a positive decimal")
	}

	env := getEnv("APP_ENV", "development")
	adminPassword := getEnv("ADMIN_PASSWORD", "")
	if adminPassword == "" {
		if env == "production" {
			return nil, fmt.Errorf("ADMIN_PASSWORD is required in production")
		}
		adminPassword = "admin123"
	}

	origins := strings.Split(getEnv("CORS_ORIGINS", "http://localhost:3000"), ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	return &Config{
		Port:          port,
		Env:           env,
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		JWTSecret:     jwtSecret,
		DatabaseURL:   dbURL,
		RedisURL:      getEnv("REDIS_URL", ""),
		RabbitMQURL:   getEnv("RABBITMQ_URL", ""),
		EncryptionKey: encKey,
		CORSOrigins:   origins,
		AdminEmail:    getEnv("ADMIN_EMAIL", "admin@mealcart.local"),
		AdminPassword: adminPassword,

		Gateway:            gateway,
		StripeSecretKey:    stripeKey,
		StripePriceID:      stripePrice,
		WebhookSecret:      webhookSecret,
		PlanAmount:         amount,
		Currency:           strings.ToLower(getEnv("PLAN_CURRENCY", "usd")),
		BreakerFailures:    uint32(getIntEnv("GATEWAY_BREAKER_FAILURES", 5)),
		BreakerOpenTimeout: getDurationEnv("GATEWAY_BREAKER_TIMEOUT", 30*time.Second),
		GatewayCallTimeout: getDurationEnv("GATEWAY_CALL_TIMEOUT", 10*time.Second),

		TrialPeriod:       getDurationEnv("TRIAL_PERIOD", 7*24*time.Hour),
		MaxFailedPayments: getIntEnv("MAX_FAILED_PAYMENTS", 3),
		WebhookTimeout:    getDurationEnv("WEBHOOK_TIMEOUT", 10*time.Second),
		ExpiryGrace:       getDurationEnv("EXPIRY_GRACE", 72*time.Hour),
		SweepInterval:     getDurationEnv("SWEEP_INTERVAL", 15*time.Minute),
		StatusCacheTTL:    getDurationEnv("STATUS_CACHE_TTL", 30*time.Second),
	}, nil
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
