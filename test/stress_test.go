package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/estatesaleconnect/estate-sale-connect/account"
	"github.com/estatesaleconnect/estate-sale-connect/lead"
	"github.com/estatesaleconnect/estate-sale-connect/test/actors"
	"github.com/estatesaleconnect/estate-sale-connect/test/chaos"
	"github.com/estatesaleconnect/estate-sale-connect/test/infra"
	"github.com/estatesaleconnect/estate-sale-connect/test/oracles"
	"github.com/estatesaleconnect/estate-sale-connect/token"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent buyers")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func seedRNG(seed int64) { rand.Seed(seed) }

// TestMarketplaceConcurrency runs submitters, competing exclusive buyers,
// signup/verify lifecycles and projection readers against a real PostgreSQL,
// checking the schema-level oracles on a timer and the recorded purchase
// winners at the end.
func TestMarketplaceConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	seedRNG(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("MARKET_TEST_PG_DSN") != "":
		dsn = os.Getenv("MARKET_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	accountRepo := account.NewRepository(pool)
	leadRepo := lead.NewRepository(pool)
	accountSvc := account.NewService(accountRepo, token.NewIssuer("stress-secret"), nil)
	leadSvc := lead.NewService(leadRepo, "/uploads/")

	reg := actors.NewRegistry()
	mustSeed(t, ctx, accountSvc, leadSvc, reg)

	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	for i := 0; i < *flConcurrency; i++ {
		buyerID, ok := reg.RandomBuyer()
		if !ok {
			t.Fatal("no seeded buyers")
		}
		g.Go(func() error { return actors.Buyer(ctx2, leadRepo, reg, buyerID, stop) })
	}
	g.Go(func() error { return actors.Submitter(ctx2, leadSvc, reg, stop) })
	g.Go(func() error { return actors.Verifier(ctx2, accountSvc, reg, stop) })
	g.Go(func() error { return actors.Reader(ctx2, leadSvc, reg, stop) })
	go chaos.TerminateRandomBackend(ctx2, pool, "", stop)

	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				continue // transient, likely a chaos-killed backend
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v (seed=%d)", err, seed)
		}
	}

	verifyWinners(t, context.Background(), pool, reg)
}

// verifyWinners cross-checks every purchase win recorded in memory against
// the database row: the first winner must still be the stored buyer.
func verifyWinners(t *testing.T, ctx context.Context, pool *pgxpool.Pool, reg *actors.Registry) {
	t.Helper()
	for leadID, buyerID := range reg.Winners() {
		var stored *string
		if err := pool.QueryRow(ctx, `SELECT exclusive_buyer_id::text FROM leads WHERE id = $1`, leadID).Scan(&stored); err != nil {
			t.Fatalf("read winner of lead %s: %v", leadID, err)
		}
		if stored == nil || *stored != buyerID {
			t.Fatalf("lead %s: recorded winner %s, stored buyer %v", leadID, buyerID, stored)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

func mustSeed(t *testing.T, ctx context.Context, accountSvc *account.Service, leadSvc *lead.Service, reg *actors.Registry) {
	t.Helper()

	for i := 0; i < 3; i++ {
		company, err := accountSvc.Signup(ctx, map[string]any{
			"companyName":     fmt.Sprintf("Seed Estates %d-%d", i, rand.Int63()),
			"contactName":     "Seed Owner",
			"email":           fmt.Sprintf("seed%d-%d@companies.example", i, rand.Int63()),
			"phone":           "555-000-1234",
			"password":        "Str0ngPassword",
			"confirmPassword": "Str0ngPassword",
			"businessType":    "estate_sale_company",
		})
		if err != nil {
			t.Fatalf("seed company: %v", err)
		}
		reg.AddBuyer(company.ID)
	}

	for i := 0; i < 5; i++ {
		created, err := leadSvc.Submit(ctx, map[string]any{
			"firstName":    fmt.Sprintf("Seed%d", i),
			"lastName":     "Seller",
			"email":        fmt.Sprintf("seed-seller%d-%d@family.example", i, rand.Int63()),
			"phone":        "(555) 867-5309",
			"address":      "812 Maple Ave, Springfield, IL 62704",
			"propertyType": "house",
			"timeline":     "asap",
		}, nil)
		if err != nil {
			t.Fatalf("seed lead: %v", err)
		}
		reg.AddLead(created.ID)
	}
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	for _, d := range []dump{
		{"companies", `SELECT id, email, email_verified, verification_token IS NOT NULL, status, subscription_status FROM companies ORDER BY created_at DESC LIMIT 10`},
		{"leads", `SELECT id, zip_code, exclusive_buyer_id, purchased_at, created_at FROM leads ORDER BY created_at DESC LIMIT 10`},
	} {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s: %v", d.name, err)
			continue
		}
		t.Logf("recent %s:", d.name)
		for rows.Next() {
			vals, err := rows.Values()
			if err != nil {
				break
			}
			t.Logf("  %v", vals)
		}
		rows.Close()
	}
}
