package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

// All returns the cross-table invariants checked during stress runs. Each
// query selects violating rows; an empty result means the invariant holds.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_token_iff_unverified",
			SQL: `SELECT id, email FROM companies
                  WHERE email_verified = (verification_token IS NOT NULL)`,
		},
		{
			Name: "O2_purchase_fields_paired",
			SQL: `SELECT id FROM leads
                  WHERE (exclusive_buyer_id IS NULL) <> (purchased_at IS NULL)`,
		},
		{
			Name: "O3_buyer_is_known_company",
			SQL: `SELECT l.id FROM leads l
                  LEFT JOIN companies c ON c.id = l.exclusive_buyer_id
                  WHERE l.exclusive_buyer_id IS NOT NULL AND c.id IS NULL`,
		},
		{
			Name: "O4_verified_status_advanced",
			SQL: `SELECT id, email FROM companies
                  WHERE email_verified AND status = 'pending_verification'`,
		},
		{
			Name: "O5_unique_email",
			SQL: `SELECT email, COUNT(*) FROM companies
                  GROUP BY email HAVING COUNT(*) > 1`,
		},
		{
			Name: "O6_positive_price",
			SQL:  `SELECT id FROM leads WHERE price_cents <= 0`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
