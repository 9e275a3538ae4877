package lead

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals that the lead does not exist.
	ErrNotFound = errors.New("lead: not found")
	// ErrAlreadyPurchased signals that an exclusive buyer is already recorded.
	// The exclusive-purchase transition is one-way and first-writer-wins.
	ErrAlreadyPurchased = errors.New("lead: already exclusively purchased")
)

// Repository handles data access for leads.
type Repository interface {
	Create(ctx context.Context, l Lead) (Lead, error)
	List(ctx context.Context, f Filters) ([]Lead, int, error)
	GetByID(ctx context.Context, id string) (Lead, error)
	// MarkExclusivelyPurchased records the buyer only if no buyer is set yet.
	MarkExclusivelyPurchased(ctx context.Context, id, buyerID string) (Lead, error)
}

const leadColumns = `id, first_name, last_name, email, phone, address, zip_code,
	property_type, timeline, details, photos, price_cents,
	exclusive_buyer_id, purchased_at, created_at`

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed lead repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Create inserts a lead from a public submission.
func (r *PGRepository) Create(ctx context.Context, l Lead) (Lead, error) {
	insertSQL := fmt.Sprintf(`
		INSERT INTO leads (id, first_name, last_name, email, phone, address, zip_code,
			property_type, timeline, details, photos, price_cents)
		VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING %s
	`, leadColumns)

	row := r.pool.QueryRow(ctx, insertSQL,
		l.ID,
		l.FirstName,
		l.LastName,
		l.Email,
		l.Phone,
		l.Address,
		l.ZipCode,
		l.PropertyType,
		l.Timeline,
		l.Details,
		l.Photos,
		l.PriceCents,
	)
	created, err := scanLead(row)
	if err != nil {
		return Lead{}, fmt.Errorf("lead: create: %w", err)
	}
	return created, nil
}

// List returns a filtered page of leads newest first, plus the total count
// matching the filters.
func (r *PGRepository) List(ctx context.Context, f Filters) ([]Lead, int, error) {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	base := fmt.Sprintf(`SELECT %s FROM leads`, leadColumns)
	where := []string{"1=1"}
	args := []any{}

	if f.ZipCode != "" {
		where = append(where, fmt.Sprintf("zip_code=$%d", len(args)+1))
		args = append(args, f.ZipCode)
	}
	if f.Timeline != "" {
		where = append(where, fmt.Sprintf("timeline=$%d", len(args)+1))
		args = append(args, f.Timeline)
	}
	if f.PropertyType != "" {
		where = append(where, fmt.Sprintf("property_type=$%d", len(args)+1))
		args = append(args, f.PropertyType)
	}

	whereClause := " WHERE " + strings.Join(where, " AND ")
	query := fmt.Sprintf("%s%s ORDER BY created_at DESC LIMIT %d OFFSET %d", base, whereClause, f.Limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("lead: query list: %w", err)
	}
	defer rows.Close()

	list := []Lead{}
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("lead: scan list: %w", err)
		}
		list = append(list, l)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("lead: iterate list: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM leads%s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("lead: count list: %w", err)
	}

	return list, total, nil
}

// GetByID retrieves a lead by ID.
func (r *PGRepository) GetByID(ctx context.Context, id string) (Lead, error) {
	query := fmt.Sprintf(`SELECT %s FROM leads WHERE id = $1`, leadColumns)
	l, err := scanLead(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, fmt.Errorf("lead: get by id: %w", err)
	}
	return l, nil
}

// MarkExclusivelyPurchased records buyerID as the exclusive buyer using a
// conditional update, so concurrent purchase confirmations cannot overwrite
// an existing buyer. The losing writer gets ErrAlreadyPurchased.
func (r *PGRepository) MarkExclusivelyPurchased(ctx context.Context, id, buyerID string) (Lead, error) {
	updateSQL := fmt.Sprintf(`
		UPDATE leads
		SET exclusive_buyer_id = $2,
		    purchased_at = now()
		WHERE id = $1 AND exclusive_buyer_id IS NULL
		RETURNING %s
	`, leadColumns)

	l, err := scanLead(r.pool.QueryRow(ctx, updateSQL, id, buyerID))
	if err == nil {
		return l, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, fmt.Errorf("lead: mark purchased: %w", err)
	}

	// Distinguish a missing lead from one that already has a buyer.
	var existing *string
	if err := r.pool.QueryRow(ctx, `SELECT exclusive_buyer_id FROM leads WHERE id = $1`, id).Scan(&existing); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, fmt.Errorf("lead: check purchase state: %w", err)
	}
	return Lead{}, ErrAlreadyPurchased
}

func scanLead(row pgx.Row) (Lead, error) {
	var l Lead
	err := row.Scan(
		&l.ID,
		&l.FirstName,
		&l.LastName,
		&l.Email,
		&l.Phone,
		&l.Address,
		&l.ZipCode,
		&l.PropertyType,
		&l.Timeline,
		&l.Details,
		&l.Photos,
		&l.PriceCents,
		&l.ExclusiveBuyerID,
		&l.PurchasedAt,
		&l.CreatedAt,
	)
	if err != nil {
		return Lead{}, err
	}
	if l.Photos == nil {
		l.Photos = []string{}
	}
	return l, nil
}
