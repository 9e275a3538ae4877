package main

import (
	"context"
	"net/http"
	"os"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"

	"github.com/estatesaleconnect/estate-sale-connect/account"
	"github.com/estatesaleconnect/estate-sale-connect/config"
	"github.com/estatesaleconnect/estate-sale-connect/db"
	"github.com/estatesaleconnect/estate-sale-connect/lead"
	"github.com/estatesaleconnect/estate-sale-connect/mailer"
	"github.com/estatesaleconnect/estate-sale-connect/payment"
	"github.com/estatesaleconnect/estate-sale-connect/token"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load configuration")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("bootstrap database pool")
	}
	defer pool.Close()

	stripe.Key = cfg.StripeSecretKey

	issuer := token.NewIssuer(cfg.JWTSecret)
	accountRepo := account.NewRepository(pool)
	leadRepo := lead.NewRepository(pool)

	accounts := account.NewService(accountRepo, issuer, mailer.NewLogMailer(log))
	leads := lead.NewService(leadRepo, cfg.UploadPrefix)
	checkout := payment.NewStripeSessionCreator(cfg.SubscriptionPriceID, cfg.CheckoutSuccessURL, cfg.CheckoutCancelURL)
	webhook := payment.NewWebhookHandler(accountRepo, leadRepo, cfg.StripeWebhookSecret, log)

	server := NewServer(accounts, leads, checkout, webhook, issuer, log, cfg.Development())

	log.Info().Str("addr", cfg.Addr).Msg("api listening")
	if err := http.ListenAndServe(cfg.Addr, server.Routes()); err != nil {
		log.Fatal().Err(err).Msg("http server stopped")
	}
}
