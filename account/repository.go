package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals that the company does not exist.
	ErrNotFound = errors.New("account: company not found")
	// ErrDuplicateEmail signals that the email is already registered.
	ErrDuplicateEmail = errors.New("account: email already exists")
)

// Repository handles data access for company accounts.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (Company, error)
	GetByEmail(ctx context.Context, email string) (Company, error)
	GetByID(ctx context.Context, id string) (Company, error)
	// GetByVerificationToken matches both the pending token and the token a
	// company was verified with, so replayed verification links can be
	// reported as already-verified instead of unknown.
	GetByVerificationToken(ctx context.Context, tok string) (Company, error)
	// MarkVerified flips the account to verified, clears the pending token
	// and remembers it as the consumed one.
	MarkVerified(ctx context.Context, id string) (Company, error)
	// SetVerificationToken replaces the pending token; the previous one
	// becomes permanently invalid.
	SetVerificationToken(ctx context.Context, id, tok string) error
	UpdateSubscriptionByEmail(ctx context.Context, email string, status SubscriptionStatus, customerID, subscriptionID *string) (Company, error)
	UpdateSubscriptionByCustomer(ctx context.Context, customerID string, status SubscriptionStatus) (Company, error)
}

// CreateParams contains write parameters for registering a company.
type CreateParams struct {
	Email             string
	CompanyName       string
	ContactName       string
	Phone             string
	PasswordHash      string
	BusinessType      string
	YearsInBusiness   string
	VerificationToken string
}

const companyColumns = `id, email, company_name, contact_name, phone, password_hash,
	business_type, years_in_business, email_verified, verification_token,
	status, subscription_status, stripe_customer_id, stripe_subscription_id,
	created_at, updated_at`

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed account repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Create inserts a new pending-verification company.
func (r *PGRepository) Create(ctx context.Context, params CreateParams) (Company, error) {
	insertSQL := fmt.Sprintf(`
		INSERT INTO companies (email, company_name, contact_name, phone, password_hash,
			business_type, years_in_business, verification_token, status, subscription_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending_verification', 'none')
		RETURNING %s
	`, companyColumns)

	company, err := scanCompany(r.pool.QueryRow(ctx, insertSQL,
		params.Email,
		params.CompanyName,
		params.ContactName,
		params.Phone,
		params.PasswordHash,
		params.BusinessType,
		nullable(params.YearsInBusiness),
		params.VerificationToken,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Company{}, ErrDuplicateEmail
		}
		return Company{}, fmt.Errorf("account: create company: %w", err)
	}
	return company, nil
}

// GetByEmail retrieves a company by email address.
func (r *PGRepository) GetByEmail(ctx context.Context, email string) (Company, error) {
	query := fmt.Sprintf(`SELECT %s FROM companies WHERE email = $1`, companyColumns)
	company, err := scanCompany(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Company{}, ErrNotFound
		}
		return Company{}, fmt.Errorf("account: get by email: %w", err)
	}
	return company, nil
}

// GetByID retrieves a company by ID.
func (r *PGRepository) GetByID(ctx context.Context, id string) (Company, error) {
	query := fmt.Sprintf(`SELECT %s FROM companies WHERE id = $1`, companyColumns)
	company, err := scanCompany(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Company{}, ErrNotFound
		}
		return Company{}, fmt.Errorf("account: get by id: %w", err)
	}
	return company, nil
}

// GetByVerificationToken retrieves a company by pending or consumed token.
func (r *PGRepository) GetByVerificationToken(ctx context.Context, tok string) (Company, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM companies
		WHERE verification_token = $1 OR verified_with_token = $1
	`, companyColumns)
	company, err := scanCompany(r.pool.QueryRow(ctx, query, tok))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Company{}, ErrNotFound
		}
		return Company{}, fmt.Errorf("account: get by verification token: %w", err)
	}
	return company, nil
}

// MarkVerified advances the account to email_verified and consumes the token.
func (r *PGRepository) MarkVerified(ctx context.Context, id string) (Company, error) {
	updateSQL := fmt.Sprintf(`
		UPDATE companies
		SET email_verified = TRUE,
		    status = 'email_verified',
		    verified_with_token = verification_token,
		    verification_token = NULL,
		    updated_at = now()
		WHERE id = $1
		RETURNING %s
	`, companyColumns)
	company, err := scanCompany(r.pool.QueryRow(ctx, updateSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Company{}, ErrNotFound
		}
		return Company{}, fmt.Errorf("account: mark verified: %w", err)
	}
	return company, nil
}

// SetVerificationToken overwrites the pending token.
func (r *PGRepository) SetVerificationToken(ctx context.Context, id, tok string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE companies
		SET verification_token = $2, updated_at = now()
		WHERE id = $1
	`, id, tok)
	if err != nil {
		return fmt.Errorf("account: set verification token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSubscriptionByEmail records a billing transition keyed by email,
// optionally attaching provider references.
func (r *PGRepository) UpdateSubscriptionByEmail(ctx context.Context, email string, status SubscriptionStatus, customerID, subscriptionID *string) (Company, error) {
	updateSQL := fmt.Sprintf(`
		UPDATE companies
		SET subscription_status = $2,
		    stripe_customer_id = COALESCE($3, stripe_customer_id),
		    stripe_subscription_id = COALESCE($4, stripe_subscription_id),
		    status = CASE WHEN $2 = 'active' THEN 'active' ELSE status END,
		    updated_at = now()
		WHERE email = $1
		RETURNING %s
	`, companyColumns)
	company, err := scanCompany(r.pool.QueryRow(ctx, updateSQL, email, status, customerID, subscriptionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Company{}, ErrNotFound
		}
		return Company{}, fmt.Errorf("account: update subscription by email: %w", err)
	}
	return company, nil
}

// UpdateSubscriptionByCustomer records a billing transition keyed by the
// provider customer reference.
func (r *PGRepository) UpdateSubscriptionByCustomer(ctx context.Context, customerID string, status SubscriptionStatus) (Company, error) {
	updateSQL := fmt.Sprintf(`
		UPDATE companies
		SET subscription_status = $2,
		    updated_at = now()
		WHERE stripe_customer_id = $1
		RETURNING %s
	`, companyColumns)
	company, err := scanCompany(r.pool.QueryRow(ctx, updateSQL, customerID, status))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Company{}, ErrNotFound
		}
		return Company{}, fmt.Errorf("account: update subscription by customer: %w", err)
	}
	return company, nil
}

func scanCompany(row pgx.Row) (Company, error) {
	var (
		c               Company
		yearsInBusiness *string
	)
	err := row.Scan(
		&c.ID,
		&c.Email,
		&c.CompanyName,
		&c.ContactName,
		&c.Phone,
		&c.PasswordHash,
		&c.BusinessType,
		&yearsInBusiness,
		&c.EmailVerified,
		&c.VerificationToken,
		&c.Status,
		&c.SubscriptionStatus,
		&c.StripeCustomerID,
		&c.StripeSubscriptionID,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return Company{}, err
	}
	if yearsInBusiness != nil {
		c.YearsInBusiness = *yearsInBusiness
	}
	return c, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
