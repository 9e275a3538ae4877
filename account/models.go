package account

import "time"

// Status tracks where a company account sits in its lifecycle.
type Status string

const (
	StatusPendingVerification Status = "pending_verification"
	StatusEmailVerified       Status = "email_verified"
	StatusActive              Status = "active"
	StatusDeactivated         Status = "deactivated"
)

// SubscriptionStatus mirrors the billing provider's view of the account.
// Exactly one status holds at a time; transitions are driven exclusively by
// payment provider callback events.
type SubscriptionStatus string

const (
	SubscriptionNone      SubscriptionStatus = "none"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// Company is the domain representation of a registered company account.
// It mirrors the companies table and carries no JSON annotations so it can be
// reused by different presentation layers.
type Company struct {
	ID                   string
	Email                string
	CompanyName          string
	ContactName          string
	Phone                string
	PasswordHash         string
	BusinessType         string
	YearsInBusiness      string
	EmailVerified        bool
	VerificationToken    *string
	Status               Status
	SubscriptionStatus   SubscriptionStatus
	StripeCustomerID     *string
	StripeSubscriptionID *string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// LoginResult bundles the session token and company returned after login.
type LoginResult struct {
	Token   string
	Company Company
}

// VerifyResult reports the outcome of an email verification attempt.
type VerifyResult struct {
	Company         Company
	AlreadyVerified bool
}
