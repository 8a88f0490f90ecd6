package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is read once at startup and treated as immutable afterwards.
type Config struct {
	Env  string
	Port string

	DatabaseURL     string
	DBMaxOpenConns  int
	SeedCatalog     bool
	JournalCryptKey []byte // nil disables at-rest encryption

	JWTSecret   []byte
	TokenTTL    time.Duration
	TokenIssuer string

	StripeSecretKey     string
	StripeWebhookSecret string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string
	CheckoutCurrency    string
	ProviderTimeout     time.Duration

	CORSAllowedOrigins []string
	AuthRatePerMinute  int

	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// friends. Only safe behind a proxy that overwrites them.
	TrustProxyHeaders bool
}

// Development reports whether APP_ENV selects the development profile.
func (c *Config) Development() bool { return c.Env == "development" }

// PaymentsConfigured reports whether outbound checkout calls can be made.
func (c *Config) PaymentsConfigured() bool { return c.StripeSecretKey != "" }

// WebhooksConfigured reports whether inbound webhook signatures can be verified.
func (c *Config) WebhooksConfigured() bool { return c.StripeWebhookSecret != "" }

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function. JWT_SECRET is the only
// value whose absence is fatal.
func FromEnv(getenv func(string) string) (*Config, error) {
	env := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return fallback
	}

	cfg := &Config{
		Env:                 env("APP_ENV", "production"),
		Port:                env("PORT", "8080"),
		DatabaseURL:         getenv("DATABASE_URL"),
		TokenIssuer:         env("TOKEN_ISSUER", "sanctuary"),
		StripeSecretKey:     getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: getenv("STRIPE_WEBHOOK_SECRET"),
		CheckoutSuccessURL:  env("CHECKOUT_SUCCESS_URL", "http://localhost:3000/success?session_id={CHECKOUT_SESSION_ID}"),
		CheckoutCancelURL:   env("CHECKOUT_CANCEL_URL", "http://localhost:3000/shop"),
		CheckoutCurrency:    strings.ToLower(env("CHECKOUT_CURRENCY", "usd")),
	}

	secret := getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	cfg.JWTSecret = []byte(secret)

	var err error
	if cfg.TokenTTL, err = parseDuration(env("TOKEN_TTL", "30m"), "TOKEN_TTL"); err != nil {
		return nil, err
	}
	if cfg.ProviderTimeout, err = parseDuration(env("PAYMENT_PROVIDER_TIMEOUT", "5s"), "PAYMENT_PROVIDER_TIMEOUT"); err != nil {
		return nil, err
	}
	if cfg.DBMaxOpenConns, err = parseInt(env("DB_MAX_OPEN_CONNS", "10"), "DB_MAX_OPEN_CONNS"); err != nil {
		return nil, err
	}
	if cfg.AuthRatePerMinute, err = parseInt(env("AUTH_RATE_LIMIT_PER_MIN", "20"), "AUTH_RATE_LIMIT_PER_MIN"); err != nil {
		return nil, err
	}
	if cfg.SeedCatalog, err = strconv.ParseBool(env("SEED_CATALOG", "true")); err != nil {
		return nil, fmt.Errorf("SEED_CATALOG: %w", err)
	}
	if cfg.TrustProxyHeaders, err = strconv.ParseBool(env("TRUST_PROXY_HEADERS", "false")); err != nil {
		return nil, fmt.Errorf("TRUST_PROXY_HEADERS: %w", err)
	}

	if raw := getenv("JOURNAL_ENCRYPTION_KEY"); raw != "" {
		key, err := base64.StdEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("JOURNAL_ENCRYPTION_KEY must be base64: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("JOURNAL_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
		}
		cfg.JournalCryptKey = key
	}

	for _, o := range strings.Split(env("CORS_ALLOWED_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, o)
		}
	}

	return cfg, nil
}

func parseDuration(v, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}

func parseInt(v, key string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return n, nil
}
