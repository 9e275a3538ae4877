package lead

import "time"

// ExclusiveWindow is the period after submission during which a lead can
// still be purchased exclusively.
const ExclusiveWindow = 24 * time.Hour

// Placeholder values substituted for contact fields when the caller has no
// contact access. Callers always receive a well-shaped record; redaction is
// all five fields or none.
const (
	PlaceholderFirstName = "Subscription"
	PlaceholderLastName  = "Required"
	PlaceholderEmail     = "subscribe@estatesaleconnect.com"
	PlaceholderPhone     = "XXX-XXX-XXXX"
	PlaceholderAddress   = "Subscribe to view the full address"
)

// Entitlement describes what the authenticated caller is allowed to see.
// An unauthenticated caller is the zero value.
type Entitlement struct {
	UserID             string
	SubscriptionActive bool
}

// PublicLead is the caller-specific projection of a lead record.
type PublicLead struct {
	ID                  string     `json:"id"`
	FirstName           string     `json:"firstName"`
	LastName            string     `json:"lastName"`
	Email               string     `json:"email"`
	Phone               string     `json:"phone"`
	Address             string     `json:"address"`
	ZipCode             string     `json:"zipCode"`
	PropertyType        string     `json:"propertyType"`
	Timeline            string     `json:"timeline"`
	Details             string     `json:"details"`
	Photos              []string   `json:"photos"`
	PriceCents          int64      `json:"priceCents"`
	IsInExclusiveWindow bool       `json:"isInExclusiveWindow"`
	HasContactAccess    bool       `json:"hasContactAccess"`
	ExclusiveBuyerID    *string    `json:"exclusiveBuyerId"`
	PurchasedAt         *time.Time `json:"purchasedAt"`
	CreatedAt           time.Time  `json:"createdAt"`
}

// IsInExclusiveWindow reports whether the lead is younger than the exclusive
// window and has no exclusive buyer yet. Derived per read, never stored: it
// flips to false the moment either condition fails and never flips back.
func IsInExclusiveWindow(l Lead, now time.Time) bool {
	return now.Sub(l.CreatedAt) < ExclusiveWindow && l.ExclusiveBuyerID == nil
}

// Project computes the caller-visible view of a lead. Contact fields are
// returned verbatim only when the caller holds an active subscription and
// the lead has not been exclusively purchased; otherwise all five are
// replaced with the fixed placeholders. Everything else is always visible.
func Project(l Lead, caller Entitlement, now time.Time) PublicLead {
	hasContactAccess := caller.SubscriptionActive && l.ExclusiveBuyerID == nil

	p := PublicLead{
		ID:                  l.ID,
		ZipCode:             l.ZipCode,
		PropertyType:        l.PropertyType,
		Timeline:            l.Timeline,
		Details:             l.Details,
		Photos:              l.Photos,
		PriceCents:          l.PriceCents,
		IsInExclusiveWindow: IsInExclusiveWindow(l, now),
		HasContactAccess:    hasContactAccess,
		ExclusiveBuyerID:    l.ExclusiveBuyerID,
		PurchasedAt:         l.PurchasedAt,
		CreatedAt:           l.CreatedAt,
	}

	if hasContactAccess {
		p.FirstName = l.FirstName
		p.LastName = l.LastName
		p.Email = l.Email
		p.Phone = l.Phone
		p.Address = l.Address
	} else {
		p.FirstName = PlaceholderFirstName
		p.LastName = PlaceholderLastName
		p.Email = PlaceholderEmail
		p.Phone = PlaceholderPhone
		p.Address = PlaceholderAddress
	}

	return p
}
