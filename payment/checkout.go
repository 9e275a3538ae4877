// Package payment integrates the Stripe billing provider: checkout session
// creation for subscriptions and exclusive lead purchases, and webhook event
// handling that drives subscription and purchase state.
package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
)

// CheckoutType selects what a checkout session pays for.
type CheckoutType string

const (
	CheckoutSubscription CheckoutType = "subscription"
	CheckoutExclusive    CheckoutType = "exclusive"
)

// ErrInvalidCheckout signals a checkout request the provider cannot serve.
var ErrInvalidCheckout = errors.New("payment: invalid checkout request")

// CheckoutParams describes one checkout session request.
type CheckoutParams struct {
	Type         CheckoutType
	CompanyEmail string
	CompanyName  string
	// LeadID and PriceCents are required for exclusive purchases.
	LeadID     string
	PriceCents int64
}

// CheckoutSession is the provider session handed back to the frontend.
type CheckoutSession struct {
	SessionID string
	URL       string
}

// SessionCreator abstracts checkout session creation so handlers can be
// tested without the provider.
type SessionCreator interface {
	CreateSession(ctx context.Context, params CheckoutParams) (CheckoutSession, error)
}

// StripeSessionCreator implements SessionCreator against the Stripe API.
type StripeSessionCreator struct {
	subscriptionPriceID string
	successURL          string
	cancelURL           string
}

// NewStripeSessionCreator configures the Stripe-backed creator. The API key
// is expected to be set globally via stripe.Key during bootstrap.
func NewStripeSessionCreator(subscriptionPriceID, successURL, cancelURL string) *StripeSessionCreator {
	return &StripeSessionCreator{
		subscriptionPriceID: subscriptionPriceID,
		successURL:          successURL,
		cancelURL:           cancelURL,
	}
}

// CreateSession builds a subscription-mode or one-time payment session with
// metadata the webhook handler later uses to resolve the company and lead.
func (c *StripeSessionCreator) CreateSession(ctx context.Context, p CheckoutParams) (CheckoutSession, error) {
	if p.CompanyEmail == "" {
		return CheckoutSession{}, ErrInvalidCheckout
	}

	params := &stripe.CheckoutSessionParams{
		SuccessURL:    stripe.String(c.successURL),
		CancelURL:     stripe.String(c.cancelURL),
		CustomerEmail: stripe.String(p.CompanyEmail),
	}
	params.Context = ctx
	params.AddMetadata("type", string(p.Type))
	params.AddMetadata("companyEmail", p.CompanyEmail)
	params.AddMetadata("companyName", p.CompanyName)

	switch p.Type {
	case CheckoutSubscription:
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(c.subscriptionPriceID),
			Quantity: stripe.Int64(1),
		}}

	case CheckoutExclusive:
		if p.LeadID == "" || p.PriceCents <= 0 {
			return CheckoutSession{}, ErrInvalidCheckout
		}
		params.Mode = stripe.String(string(stripe.CheckoutSessionModePayment))
		params.LineItems = []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(string(stripe.CurrencyUSD)),
				UnitAmount: stripe.Int64(p.PriceCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String("Exclusive estate sale lead"),
				},
			},
			Quantity: stripe.Int64(1),
		}}
		params.AddMetadata("leadId", p.LeadID)

	default:
		return CheckoutSession{}, ErrInvalidCheckout
	}

	s, err := session.New(params)
	if err != nil {
		return CheckoutSession{}, fmt.Errorf("payment: create checkout session: %w", err)
	}
	return CheckoutSession{SessionID: s.ID, URL: s.URL}, nil
}
