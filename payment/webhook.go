package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/estatesaleconnect/estate-sale-connect/account"
	"github.com/estatesaleconnect/estate-sale-connect/lead"
)

// ErrBadSignature signals a webhook payload that fails signature verification.
var ErrBadSignature = errors.New("payment: bad webhook signature")

// AccountStore is the slice of the account repository the webhook needs.
type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (account.Company, error)
	UpdateSubscriptionByEmail(ctx context.Context, email string, status account.SubscriptionStatus, customerID, subscriptionID *string) (account.Company, error)
	UpdateSubscriptionByCustomer(ctx context.Context, customerID string, status account.SubscriptionStatus) (account.Company, error)
}

// LeadStore is the slice of the lead repository the webhook needs.
type LeadStore interface {
	MarkExclusivelyPurchased(ctx context.Context, id, buyerID string) (lead.Lead, error)
}

// WebhookHandler reacts to Stripe callback events and updates account
// subscription state and lead purchase state.
type WebhookHandler struct {
	accounts AccountStore
	leads    LeadStore
	secret   string
	log      zerolog.Logger
}

// NewWebhookHandler wires the webhook against the given stores.
func NewWebhookHandler(accounts AccountStore, leads LeadStore, secret string, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{
		accounts: accounts,
		leads:    leads,
		secret:   secret,
		log:      log,
	}
}

// ParseEvent verifies the provider signature and decodes the event.
// Signature verification is the authentication mechanism for this endpoint;
// a failure here must surface as 400, never be swallowed.
func (h *WebhookHandler) ParseEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, h.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, ErrBadSignature
	}
	return event, nil
}

// HandleEvent dispatches one verified event. Unknown event types are ignored.
func (h *WebhookHandler) HandleEvent(ctx context.Context, event stripe.Event) error {
	switch string(event.Type) {
	case "checkout.session.completed":
		return h.handleCheckoutCompleted(ctx, event)
	case "customer.subscription.updated":
		return h.handleSubscriptionUpdated(ctx, event)
	case "customer.subscription.deleted":
		return h.handleSubscriptionDeleted(ctx, event)
	case "invoice.payment_failed":
		return h.handlePaymentFailed(ctx, event)
	default:
		h.log.Debug().Str("type", string(event.Type)).Msg("ignoring webhook event")
		return nil
	}
}

func (h *WebhookHandler) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return fmt.Errorf("payment: decode checkout session: %w", err)
	}

	email := cs.Metadata["companyEmail"]
	if email == "" && cs.CustomerEmail != "" {
		email = cs.CustomerEmail
	}
	if email == "" {
		return fmt.Errorf("payment: checkout session %s carries no company email", cs.ID)
	}

	switch CheckoutType(cs.Metadata["type"]) {
	case CheckoutSubscription:
		var customerID, subscriptionID *string
		if cs.Customer != nil && cs.Customer.ID != "" {
			customerID = &cs.Customer.ID
		}
		if cs.Subscription != nil && cs.Subscription.ID != "" {
			subscriptionID = &cs.Subscription.ID
		}
		if _, err := h.accounts.UpdateSubscriptionByEmail(ctx, email, account.SubscriptionActive, customerID, subscriptionID); err != nil {
			return fmt.Errorf("payment: activate subscription for %s: %w", email, err)
		}
		h.log.Info().Str("email", email).Msg("subscription activated")
		return nil

	case CheckoutExclusive:
		leadID := cs.Metadata["leadId"]
		if leadID == "" {
			return fmt.Errorf("payment: exclusive checkout %s carries no lead id", cs.ID)
		}
		buyer, err := h.accounts.GetByEmail(ctx, email)
		if err != nil {
			return fmt.Errorf("payment: resolve buyer %s: %w", email, err)
		}
		if _, err := h.leads.MarkExclusivelyPurchased(ctx, leadID, buyer.ID); err != nil {
			if errors.Is(err, lead.ErrAlreadyPurchased) {
				// Provider retries must not flip an existing buyer.
				h.log.Warn().Str("lead_id", leadID).Str("buyer", buyer.ID).Msg("lead already purchased, keeping first buyer")
				return nil
			}
			return fmt.Errorf("payment: mark lead %s purchased: %w", leadID, err)
		}
		h.log.Info().Str("lead_id", leadID).Str("buyer", buyer.ID).Msg("exclusive lead purchase recorded")
		return nil

	default:
		h.log.Warn().Str("session_id", cs.ID).Str("type", cs.Metadata["type"]).Msg("checkout session with unknown type")
		return nil
	}
}

func (h *WebhookHandler) handleSubscriptionUpdated(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("payment: decode subscription: %w", err)
	}
	if sub.Customer == nil || sub.Customer.ID == "" {
		return fmt.Errorf("payment: subscription %s carries no customer", sub.ID)
	}

	status := mapSubscriptionStatus(sub.Status)
	if _, err := h.accounts.UpdateSubscriptionByCustomer(ctx, sub.Customer.ID, status); err != nil {
		return fmt.Errorf("payment: update subscription for customer %s: %w", sub.Customer.ID, err)
	}
	h.log.Info().Str("customer", sub.Customer.ID).Str("status", string(status)).Msg("subscription updated")
	return nil
}

func (h *WebhookHandler) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("payment: decode subscription: %w", err)
	}
	if sub.Customer == nil || sub.Customer.ID == "" {
		return fmt.Errorf("payment: subscription %s carries no customer", sub.ID)
	}

	if _, err := h.accounts.UpdateSubscriptionByCustomer(ctx, sub.Customer.ID, account.SubscriptionCancelled); err != nil {
		return fmt.Errorf("payment: cancel subscription for customer %s: %w", sub.Customer.ID, err)
	}
	h.log.Info().Str("customer", sub.Customer.ID).Msg("subscription cancelled")
	return nil
}

func (h *WebhookHandler) handlePaymentFailed(ctx context.Context, event stripe.Event) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return fmt.Errorf("payment: decode invoice: %w", err)
	}
	if inv.Customer == nil || inv.Customer.ID == "" {
		return fmt.Errorf("payment: invoice %s carries no customer", inv.ID)
	}

	if _, err := h.accounts.UpdateSubscriptionByCustomer(ctx, inv.Customer.ID, account.SubscriptionPastDue); err != nil {
		return fmt.Errorf("payment: flag past due for customer %s: %w", inv.Customer.ID, err)
	}
	h.log.Warn().Str("customer", inv.Customer.ID).Msg("payment failed, subscription past due")
	return nil
}

func mapSubscriptionStatus(s stripe.SubscriptionStatus) account.SubscriptionStatus {
	switch s {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return account.SubscriptionActive
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return account.SubscriptionPastDue
	case stripe.SubscriptionStatusCanceled:
		return account.SubscriptionCancelled
	default:
		return account.SubscriptionNone
	}
}
