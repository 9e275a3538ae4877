package actors

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/estatesaleconnect/estate-sale-connect/account"
	"github.com/estatesaleconnect/estate-sale-connect/lead"
	"github.com/estatesaleconnect/estate-sale-connect/validate"
)

// Registry shares ids between actors and remembers the first buyer that won
// each lead, so a later flip of the database row is detectable.
type Registry struct {
	mu      sync.Mutex
	leadIDs []string
	buyers  []string
	winners map[string]string
}

func NewRegistry() *Registry {
	return &Registry{winners: make(map[string]string)}
}

func (r *Registry) AddLead(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leadIDs = append(r.leadIDs, id)
}

func (r *Registry) RandomLead() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.leadIDs) == 0 {
		return "", false
	}
	return r.leadIDs[rand.Intn(len(r.leadIDs))], true
}

func (r *Registry) AddBuyer(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buyers = append(r.buyers, id)
}

func (r *Registry) RandomBuyer() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buyers) == 0 {
		return "", false
	}
	return r.buyers[rand.Intn(len(r.buyers))], true
}

// RecordWin notes the first buyer of a lead. A second distinct winner for the
// same lead means the one-way purchase transition was violated.
func (r *Registry) RecordWin(leadID, buyerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.winners[leadID]; ok && prev != buyerID {
		return fmt.Errorf("lead %s won by %s after %s already won it", leadID, buyerID, prev)
	}
	r.winners[leadID] = buyerID
	return nil
}

// Winners returns a copy of the recorded lead -> buyer wins.
func (r *Registry) Winners() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.winners))
	for k, v := range r.winners {
		out[k] = v
	}
	return out
}

// Submitter keeps feeding fresh public lead submissions through the service.
func Submitter(ctx context.Context, svc *lead.Service, reg *Registry, stop <-chan struct{}) error {
	propertyTypes := []string{"house", "condo", "storage_unit", "other"}
	timelines := []string{"asap", "within_week", "within_month", "flexible"}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		n := rand.Int63()
		raw := map[string]any{
			"firstName":    fmt.Sprintf("Seller%d", n),
			"lastName":     "Stress",
			"email":        fmt.Sprintf("seller%d@family.example", n),
			"phone":        "(555) 867-5309",
			"address":      "812 Maple Ave, Springfield, IL 62704",
			"propertyType": propertyTypes[rand.Intn(len(propertyTypes))],
			"timeline":     timelines[rand.Intn(len(timelines))],
		}
		created, err := svc.Submit(ctx, raw, nil)
		var verr *validate.Error
		switch {
		case errors.As(err, &verr):
			return fmt.Errorf("submitter: %w", err)
		case err != nil:
			// transient, likely a chaos-killed backend
		default:
			reg.AddLead(created.ID)
		}
		time.Sleep(time.Duration(15+rand.Intn(30)) * time.Millisecond)
	}
}

// Buyer races other buyers for exclusive ownership of known leads. A win is
// recorded; losing to an existing buyer is expected under contention.
func Buyer(ctx context.Context, repo lead.Repository, reg *Registry, buyerID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		leadID, ok := reg.RandomLead()
		if !ok {
			time.Sleep(20 * time.Millisecond)
			continue
		}
		won, err := repo.MarkExclusivelyPurchased(ctx, leadID, buyerID)
		switch {
		case err == nil:
			if won.ExclusiveBuyerID == nil || *won.ExclusiveBuyerID != buyerID {
				return fmt.Errorf("buyer %s: win returned buyer %v", buyerID, won.ExclusiveBuyerID)
			}
			if err := reg.RecordWin(leadID, buyerID); err != nil {
				return err
			}
		case errors.Is(err, lead.ErrAlreadyPurchased), errors.Is(err, lead.ErrNotFound):
			// lost the race
		default:
			// transient, likely a chaos-killed backend
		}
		time.Sleep(time.Duration(10+rand.Intn(25)) * time.Millisecond)
	}
}

// Verifier runs the signup, verify, replay lifecycle end to end and registers
// each created company as a potential buyer.
func Verifier(ctx context.Context, svc *account.Service, reg *Registry, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		n := rand.Int63()
		company, err := svc.Signup(ctx, map[string]any{
			"companyName":     fmt.Sprintf("Stress Estates %d", n),
			"contactName":     "Stress Actor",
			"email":           fmt.Sprintf("stress%d@companies.example", n),
			"phone":           "555-000-1234",
			"password":        "Str0ngPassword",
			"confirmPassword": "Str0ngPassword",
			"businessType":    "estate_sale_company",
		})
		var verr *validate.Error
		switch {
		case errors.As(err, &verr), errors.Is(err, account.ErrDuplicateEmail):
			return fmt.Errorf("verifier signup: %w", err)
		case err != nil:
			// transient, likely a chaos-killed backend
			time.Sleep(50 * time.Millisecond)
			continue
		}
		reg.AddBuyer(company.ID)

		if company.VerificationToken == nil {
			return fmt.Errorf("verifier: company %s has no pending token", company.ID)
		}
		tok := *company.VerificationToken

		first, err := svc.VerifyEmail(ctx, tok)
		switch {
		case errors.Is(err, account.ErrNotFound), errors.Is(err, account.ErrTokenInvalidOrExpired):
			return fmt.Errorf("verifier verify: %w", err)
		case err != nil:
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if first.AlreadyVerified {
			return fmt.Errorf("verifier: fresh token for %s reported already-verified", company.ID)
		}

		replay, err := svc.VerifyEmail(ctx, tok)
		switch {
		case errors.Is(err, account.ErrNotFound), errors.Is(err, account.ErrTokenInvalidOrExpired):
			return fmt.Errorf("verifier replay: %w", err)
		case err != nil:
			time.Sleep(50 * time.Millisecond)
			continue
		}
		if !replay.AlreadyVerified {
			return fmt.Errorf("verifier: replay for %s not reported already-verified", company.ID)
		}
		time.Sleep(time.Duration(40+rand.Intn(60)) * time.Millisecond)
	}
}

// Reader lists leads under random entitlements and checks that contact
// redaction is always all-or-nothing.
func Reader(ctx context.Context, svc *lead.Service, reg *Registry, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		caller := lead.Entitlement{}
		if rand.Intn(2) == 0 {
			if buyerID, ok := reg.RandomBuyer(); ok {
				caller = lead.Entitlement{UserID: buyerID, SubscriptionActive: true}
			}
		}
		result, err := svc.List(ctx, map[string]any{}, caller)
		if err != nil {
			// transient, likely a chaos-killed backend
			time.Sleep(50 * time.Millisecond)
			continue
		}
		for _, item := range result.Items {
			placeholders := 0
			for _, pair := range [][2]string{
				{item.FirstName, lead.PlaceholderFirstName},
				{item.LastName, lead.PlaceholderLastName},
				{item.Email, lead.PlaceholderEmail},
				{item.Phone, lead.PlaceholderPhone},
				{item.Address, lead.PlaceholderAddress},
			} {
				if pair[0] == pair[1] {
					placeholders++
				}
			}
			if placeholders != 0 && placeholders != 5 {
				return fmt.Errorf("reader: lead %s has mixed redaction (%d placeholders)", item.ID, placeholders)
			}
			if item.HasContactAccess != (placeholders == 0) {
				return fmt.Errorf("reader: lead %s hasContactAccess=%v with %d placeholders", item.ID, item.HasContactAccess, placeholders)
			}
		}
		time.Sleep(time.Duration(25+rand.Intn(40)) * time.Millisecond)
	}
}
