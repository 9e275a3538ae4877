package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/estatesaleconnect/estate-sale-connect/token"
	"github.com/estatesaleconnect/estate-sale-connect/validate"
)

func signupForm() map[string]any {
	return map[string]any{
		"companyName":     "Greene Estate Sales",
		"contactName":     "Martha Greene",
		"email":           "owner@greene.example",
		"phone":           "(555) 867-5309",
		"password":        "Sup3rsafe",
		"confirmPassword": "Sup3rsafe",
		"businessType":    "estate_sale_company",
		"yearsInBusiness": "6-10",
	}
}

func newTestService(repo Repository) *Service {
	return NewService(repo, token.NewIssuer("test-secret"), nil)
}

func TestService_SignupAndLogin(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	company, err := svc.Signup(ctx, signupForm())
	if err != nil {
		t.Fatalf("signup: unexpected error: %v", err)
	}
	if company.Email != "owner@greene.example" {
		t.Fatalf("unexpected email %q", company.Email)
	}
	if company.EmailVerified {
		t.Fatal("new account must start unverified")
	}
	if company.Status != StatusPendingVerification {
		t.Fatalf("expected status %s, got %s", StatusPendingVerification, company.Status)
	}
	if company.VerificationToken == nil || len(*company.VerificationToken) != 32 {
		t.Fatalf("expected 32-character verification token, got %v", company.VerificationToken)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(company.PasswordHash), []byte("Sup3rsafe")); err != nil {
		t.Fatalf("stored hash does not match password: %v", err)
	}

	res, err := svc.Login(ctx, "Owner@Greene.example", "Sup3rsafe")
	if err != nil {
		t.Fatalf("login: unexpected error: %v", err)
	}
	if res.Token == "" {
		t.Fatal("login: expected token")
	}
	claims, err := token.NewIssuer("test-secret").Verify(res.Token)
	if err != nil {
		t.Fatalf("verify issued token: %v", err)
	}
	if claims.UserID != company.ID {
		t.Fatalf("token user id %q, want %q", claims.UserID, company.ID)
	}
	if claims.SubscriptionStatus != string(SubscriptionNone) {
		t.Fatalf("token subscription %q, want none", claims.SubscriptionStatus)
	}
}

func TestService_SignupValidation(t *testing.T) {
	svc := newTestService(newFakeRepository())

	form := signupForm()
	form["email"] = "nope"
	form["password"] = "short"
	form["confirmPassword"] = "short"

	_, err := svc.Signup(context.Background(), form)
	var verr *validate.Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected validate.Error, got %v", err)
	}
	if len(verr.Problems) < 2 {
		t.Fatalf("expected every field problem reported, got %v", verr.Problems)
	}
}

func TestService_SignupDuplicateEmail(t *testing.T) {
	svc := newTestService(newFakeRepository())
	ctx := context.Background()

	if _, err := svc.Signup(ctx, signupForm()); err != nil {
		t.Fatalf("first signup failed: %v", err)
	}
	if _, err := svc.Signup(ctx, signupForm()); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestService_LoginInvalidCredentials(t *testing.T) {
	svc := newTestService(newFakeRepository())
	ctx := context.Background()

	if _, err := svc.Login(ctx, "unknown@example.com", "whatever"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}

	if _, err := svc.Signup(ctx, signupForm()); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if _, err := svc.Login(ctx, "owner@greene.example", "WrongPass1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
}

func TestService_VerifyEmailLifecycle(t *testing.T) {
	repo := newFakeRepository()
	now := time.Now().UTC()
	svc := newTestService(repo).WithClock(func() time.Time { return now })
	ctx := context.Background()

	company, err := svc.Signup(ctx, signupForm())
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	tok := *company.VerificationToken

	now = now.Add(time.Hour)
	res, err := svc.VerifyEmail(ctx, tok)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if res.AlreadyVerified {
		t.Fatal("first verification must not report already-verified")
	}
	if !res.Company.EmailVerified || res.Company.Status != StatusEmailVerified {
		t.Fatalf("expected verified account, got %+v", res.Company)
	}
	if res.Company.VerificationToken != nil {
		t.Fatal("verification token must be cleared after success")
	}

	// Replaying the consumed token is idempotent success.
	again, err := svc.VerifyEmail(ctx, tok)
	if err != nil {
		t.Fatalf("replay verify: %v", err)
	}
	if !again.AlreadyVerified {
		t.Fatal("replay must report already-verified")
	}
}

func TestService_VerifyEmailUnknownToken(t *testing.T) {
	svc := newTestService(newFakeRepository())
	if _, err := svc.VerifyEmail(context.Background(), "deadbeefdeadbeefdeadbeefdeadbeef"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestService_VerifyEmailExpiredWindow(t *testing.T) {
	repo := newFakeRepository()
	now := time.Now().UTC()
	svc := newTestService(repo).WithClock(func() time.Time { return now })
	ctx := context.Background()

	company, err := svc.Signup(ctx, signupForm())
	if err != nil {
		t.Fatalf("signup: %v", err)
	}

	now = now.Add(VerificationWindow + time.Minute)
	if _, err := svc.VerifyEmail(ctx, *company.VerificationToken); !errors.Is(err, ErrTokenInvalidOrExpired) {
		t.Fatalf("expected ErrTokenInvalidOrExpired after window, got %v", err)
	}
}

func TestService_ResendInvalidatesOldToken(t *testing.T) {
	repo := newFakeRepository()
	svc := newTestService(repo)
	ctx := context.Background()

	company, err := svc.Signup(ctx, signupForm())
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	oldToken := *company.VerificationToken

	if err := svc.ResendVerification(ctx, company.Email); err != nil {
		t.Fatalf("resend: %v", err)
	}

	if _, err := svc.VerifyEmail(ctx, oldToken); !errors.Is(err, ErrTokenInvalidOrExpired) {
		t.Fatalf("old token must be invalid after resend, got %v", err)
	}

	refreshed, err := repo.GetByID(ctx, company.ID)
	if err != nil {
		t.Fatalf("get company: %v", err)
	}
	if refreshed.VerificationToken == nil || *refreshed.VerificationToken == oldToken {
		t.Fatal("resend must store a fresh token")
	}
	if _, err := svc.VerifyEmail(ctx, *refreshed.VerificationToken); err != nil {
		t.Fatalf("fresh token must verify: %v", err)
	}
}

func TestService_ResendUnknownEmail(t *testing.T) {
	svc := newTestService(newFakeRepository())
	if err := svc.ResendVerification(context.Background(), "ghost@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// fakeRecord pairs a company with the consumed-token column the fake mimics.
type fakeRecord struct {
	Company
	verifiedWith string
}

type fakeRepository struct {
	byEmail map[string]*fakeRecord
	byID    map[string]*fakeRecord
	nextID  int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		byEmail: make(map[string]*fakeRecord),
		byID:    make(map[string]*fakeRecord),
		nextID:  1,
	}
}

func (f *fakeRepository) Create(_ context.Context, params CreateParams) (Company, error) {
	email := strings.ToLower(params.Email)
	if _, exists := f.byEmail[email]; exists {
		return Company{}, ErrDuplicateEmail
	}

	tok := params.VerificationToken
	c := &fakeRecord{Company: Company{
		ID:                 fmt.Sprintf("company-%d", f.nextID),
		Email:              email,
		CompanyName:        params.CompanyName,
		ContactName:        params.ContactName,
		Phone:              params.Phone,
		PasswordHash:       params.PasswordHash,
		BusinessType:       params.BusinessType,
		YearsInBusiness:    params.YearsInBusiness,
		VerificationToken:  &tok,
		Status:             StatusPendingVerification,
		SubscriptionStatus: SubscriptionNone,
		CreatedAt:          time.Now().UTC(),
		UpdatedAt:          time.Now().UTC(),
	}}
	f.nextID++
	f.byEmail[email] = c
	f.byID[c.ID] = c
	return c.Company, nil
}

func (f *fakeRepository) GetByEmail(_ context.Context, email string) (Company, error) {
	c, ok := f.byEmail[strings.ToLower(email)]
	if !ok {
		return Company{}, ErrNotFound
	}
	return c.Company, nil
}

func (f *fakeRepository) GetByID(_ context.Context, id string) (Company, error) {
	c, ok := f.byID[id]
	if !ok {
		return Company{}, ErrNotFound
	}
	return c.Company, nil
}

var _ Repository = (*fakeRepository)(nil)

func (f *fakeRepository) GetByVerificationToken(_ context.Context, tok string) (Company, error) {
	for _, c := range f.byID {
		if c.VerificationToken != nil && *c.VerificationToken == tok {
			return c.Company, nil
		}
		if c.verifiedWith == tok && tok != "" {
			return c.Company, nil
		}
	}
	return Company{}, ErrNotFound
}

func (f *fakeRepository) MarkVerified(_ context.Context, id string) (Company, error) {
	c, ok := f.byID[id]
	if !ok {
		return Company{}, ErrNotFound
	}
	if c.VerificationToken != nil {
		c.verifiedWith = *c.VerificationToken
	}
	c.VerificationToken = nil
	c.EmailVerified = true
	c.Status = StatusEmailVerified
	c.UpdatedAt = time.Now().UTC()
	return c.Company, nil
}

func (f *fakeRepository) SetVerificationToken(_ context.Context, id, tok string) error {
	c, ok := f.byID[id]
	if !ok {
		return ErrNotFound
	}
	c.VerificationToken = &tok
	return nil
}

func (f *fakeRepository) UpdateSubscriptionByEmail(_ context.Context, email string, status SubscriptionStatus, customerID, subscriptionID *string) (Company, error) {
	c, ok := f.byEmail[strings.ToLower(email)]
	if !ok {
		return Company{}, ErrNotFound
	}
	c.SubscriptionStatus = status
	if customerID != nil {
		c.StripeCustomerID = customerID
	}
	if subscriptionID != nil {
		c.StripeSubscriptionID = subscriptionID
	}
	if status == SubscriptionActive {
		c.Status = StatusActive
	}
	return c.Company, nil
}

func (f *fakeRepository) UpdateSubscriptionByCustomer(_ context.Context, customerID string, status SubscriptionStatus) (Company, error) {
	for _, c := range f.byID {
		if c.StripeCustomerID != nil && *c.StripeCustomerID == customerID {
			c.SubscriptionStatus = status
			return c.Company, nil
		}
	}
	return Company{}, ErrNotFound
}
