package lead

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// TestExclusivePurchase_Integration connects to a real PostgreSQL via
// DATABASE_URL and verifies that concurrent purchase attempts on one lead
// produce exactly one winner.
func TestExclusivePurchase_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	if !tableExists(ctx, t, pool, "leads") || !tableExists(ctx, t, pool, "companies") {
		t.Skip("database schema missing; apply migrations/ first")
	}

	repo := NewRepository(pool)

	// Buyers must exist for the foreign key on exclusive_buyer_id.
	buyers := make([]string, 4)
	for i := range buyers {
		if err := pool.QueryRow(ctx, `
			INSERT INTO companies (email, company_name, contact_name, phone, password_hash,
				business_type, verification_token)
			VALUES ($1, 'Race Estates', 'Race Owner', '555-000-1234', 'x', 'liquidator', $2)
			RETURNING id
		`, fmt.Sprintf("race%d-%d@companies.example", i, time.Now().UnixNano()),
			fmt.Sprintf("tok%d%d", i, time.Now().UnixNano())).Scan(&buyers[i]); err != nil {
			t.Fatalf("seed buyer: %v", err)
		}
	}

	created, err := repo.Create(ctx, Lead{
		FirstName:    "Dorothy",
		LastName:     "Greene",
		Email:        "dorothy@family.example",
		Phone:        "555-867-5309",
		Address:      "812 Maple Ave, Springfield, IL 62704",
		ZipCode:      "62704",
		PropertyType: "house",
		Timeline:     "asap",
		Photos:       []string{},
		PriceCents:   DefaultPriceCents,
	})
	if err != nil {
		t.Fatalf("create lead: %v", err)
	}

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		_, _ = pool.Exec(ctx2, `DELETE FROM leads WHERE id = $1`, created.ID)
		for _, b := range buyers {
			_, _ = pool.Exec(ctx2, `DELETE FROM companies WHERE id = $1`, b)
		}
	})

	wins := make([]string, len(buyers))
	g, gctx := errgroup.WithContext(ctx)
	for i, buyerID := range buyers {
		g.Go(func() error {
			won, err := repo.MarkExclusivelyPurchased(gctx, created.ID, buyerID)
			switch {
			case err == nil:
				if won.ExclusiveBuyerID == nil || *won.ExclusiveBuyerID != buyerID {
					return fmt.Errorf("winner %s got buyer %v back", buyerID, won.ExclusiveBuyerID)
				}
				wins[i] = buyerID
				return nil
			case errors.Is(err, ErrAlreadyPurchased):
				return nil
			default:
				return err
			}
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("purchase race: %v", err)
	}

	var winners []string
	for _, w := range wins {
		if w != "" {
			winners = append(winners, w)
		}
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %v", winners)
	}

	stored, err := repo.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("reload lead: %v", err)
	}
	if stored.ExclusiveBuyerID == nil || *stored.ExclusiveBuyerID != winners[0] {
		t.Fatalf("stored buyer %v does not match winner %s", stored.ExclusiveBuyerID, winners[0])
	}
	if stored.PurchasedAt == nil {
		t.Fatal("expected purchased_at to be set")
	}

	// A retry for the winner is still rejected; the transition is one-way.
	if _, err := repo.MarkExclusivelyPurchased(ctx, created.ID, winners[0]); !errors.Is(err, ErrAlreadyPurchased) {
		t.Fatalf("expected ErrAlreadyPurchased on retry, got %v", err)
	}
}

func tableExists(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) bool {
	t.Helper()
	var exists bool
	if err := pool.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM information_schema.tables WHERE table_name = $1
	)`, name).Scan(&exists); err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return exists
}
