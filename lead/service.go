package lead

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/estatesaleconnect/estate-sale-connect/validate"
)

// Service handles lead submission and entitlement-aware listing.
type Service struct {
	repo         Repository
	uploadPrefix string
	now          func() time.Time
	idGen        func() string
}

// NewService creates a lead service. uploadPrefix is the allowed photo host
// prefix for public submissions.
func NewService(repo Repository, uploadPrefix string) *Service {
	return &Service{
		repo:         repo,
		uploadPrefix: uploadPrefix,
		now:          time.Now,
		idGen:        func() string { return uuid.NewString() },
	}
}

// WithClock overrides the time source, used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithIDGenerator overrides lead ID generation, used by tests.
func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGen = gen
	return s
}

// Submit validates and stores a public lead submission. Photo references not
// matching the upload host or inline data images are dropped silently.
func (s *Service) Submit(ctx context.Context, raw map[string]any, photos []string) (Lead, error) {
	res := validate.Apply(validate.LeadSubmission, raw)
	if err := res.Err(); err != nil {
		return Lead{}, err
	}

	l := Lead{
		ID:           s.idGen(),
		FirstName:    res.Data["firstName"],
		LastName:     res.Data["lastName"],
		Email:        res.Data["email"],
		Phone:        res.Data["phone"],
		Address:      res.Data["address"],
		ZipCode:      res.Data["zipCode"],
		PropertyType: res.Data["propertyType"],
		Timeline:     res.Data["timeline"],
		Details:      res.Data["details"],
		Photos:       validate.FilterPhotoRefs(photos, s.uploadPrefix),
		PriceCents:   DefaultPriceCents,
	}

	return s.repo.Create(ctx, l)
}

// List validates the raw query parameters, fetches the matching page and
// projects every lead through the access policy for the calling entitlement.
// Projection is recomputed per request; it is never cached, since exclusivity
// and subscription state change over time.
func (s *Service) List(ctx context.Context, rawQuery map[string]any, caller Entitlement) (ListResult, error) {
	res := validate.Apply(validate.LeadQuery, rawQuery)
	if err := res.Err(); err != nil {
		return ListResult{}, err
	}

	filters := Filters{
		ZipCode:      res.Data["zipCode"],
		Timeline:     res.Data["timeline"],
		PropertyType: res.Data["propertyType"],
		Limit:        validate.PositiveInt(res.Data, "limit", 50, 100),
		Offset:       validate.PositiveInt(res.Data, "offset", 0, 0),
	}

	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return ListResult{}, err
	}

	now := s.now()
	projected := make([]PublicLead, 0, len(items))
	for _, l := range items {
		projected = append(projected, Project(l, caller, now))
	}

	return ListResult{Items: projected, Total: total}, nil
}

// MarkExclusivelyPurchased records buyerID as the exclusive buyer of the
// lead. The transition is one-way; a second buyer gets ErrAlreadyPurchased.
func (s *Service) MarkExclusivelyPurchased(ctx context.Context, id, buyerID string) (Lead, error) {
	return s.repo.MarkExclusivelyPurchased(ctx, id, buyerID)
}

// GetByID retrieves a lead by ID.
func (s *Service) GetByID(ctx context.Context, id string) (Lead, error) {
	return s.repo.GetByID(ctx, id)
}
