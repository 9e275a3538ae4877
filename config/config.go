// Package config loads runtime configuration from the environment,
// with a .env file picked up in development when present.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config carries everything the API process needs to start.
type Config struct {
	Addr                string
	AppEnv              string
	DatabaseURL         string
	JWTSecret           string
	StripeSecretKey     string
	StripeWebhookSecret string
	SubscriptionPriceID string
	CheckoutSuccessURL  string
	CheckoutCancelURL   string
	UploadPrefix        string
}

// Development reports whether error detail may be exposed to clients.
func (c Config) Development() bool {
	return c.AppEnv == "development"
}

// Load reads the process environment. A .env file in the working
// directory is loaded first if it exists; real environment variables
// win over file entries.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := Config{
		Addr:                envOr("ADDR", ":8080"),
		AppEnv:              envOr("APP_ENV", "development"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		SubscriptionPriceID: os.Getenv("STRIPE_SUBSCRIPTION_PRICE_ID"),
		CheckoutSuccessURL:  envOr("CHECKOUT_SUCCESS_URL", "http://localhost:3000/payment-success"),
		CheckoutCancelURL:   envOr("CHECKOUT_CANCEL_URL", "http://localhost:3000/pricing"),
		UploadPrefix:        envOr("UPLOAD_PREFIX", "/uploads/"),
	}

	var missing []string
	for _, req := range []struct {
		name  string
		value string
	}{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"JWT_SECRET", cfg.JWTSecret},
	} {
		if req.value == "" {
			missing = append(missing, req.name)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("config: missing required environment: %v", missing)
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
