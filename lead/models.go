package lead

import "time"

// DefaultPriceCents is the fixed price of a lead at submission time.
const DefaultPriceCents int64 = 2500

// Lead is the domain representation of a seller inquiry. It mirrors the
// leads table; contact fields are stored verbatim and only redacted at
// projection time.
type Lead struct {
	ID               string
	FirstName        string
	LastName         string
	Email            string
	Phone            string
	Address          string
	ZipCode          string
	PropertyType     string
	Timeline         string
	Details          string
	Photos           []string
	PriceCents       int64
	ExclusiveBuyerID *string
	PurchasedAt      *time.Time
	CreatedAt        time.Time
}

// Filters narrows a lead listing. Zero values mean no constraint.
type Filters struct {
	ZipCode      string
	Timeline     string
	PropertyType string
	Limit        int
	Offset       int
}

// ListResult bundles a projected page with the unfiltered total.
type ListResult struct {
	Items []PublicLead
	Total int
}
