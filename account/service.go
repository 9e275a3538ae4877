package account

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/estatesaleconnect/estate-sale-connect/mailer"
	"github.com/estatesaleconnect/estate-sale-connect/token"
	"github.com/estatesaleconnect/estate-sale-connect/validate"
)

var (
	// ErrInvalidCredentials signals wrong email or password.
	ErrInvalidCredentials = errors.New("account: invalid credentials")
	// ErrTokenInvalidOrExpired signals an unknown verification token or one
	// presented outside its 24-hour window.
	ErrTokenInvalidOrExpired = errors.New("account: verification token invalid or expired")
)

// VerificationWindow is how long after signup a verification token is honored.
const VerificationWindow = 24 * time.Hour

// Service handles company signup, login and the verification lifecycle.
type Service struct {
	repo     Repository
	issuer   *token.Issuer
	mail     mailer.Mailer
	now      func() time.Time
	tokenGen func() string
}

// NewService creates a new account service.
func NewService(repo Repository, issuer *token.Issuer, mail mailer.Mailer) *Service {
	return &Service{
		repo:     repo,
		issuer:   issuer,
		mail:     mail,
		now:      time.Now,
		tokenGen: newVerificationToken,
	}
}

// WithClock overrides the time source, used by tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithTokenGenerator overrides verification token generation, used by tests.
func (s *Service) WithTokenGenerator(gen func() string) *Service {
	s.tokenGen = gen
	return s
}

// Signup validates the raw form, hashes the password and creates a
// pending-verification company. The verification mail is best effort; a
// delivery failure never fails the signup.
func (s *Service) Signup(ctx context.Context, raw map[string]any) (Company, error) {
	res := validate.Apply(validate.Signup, raw)
	if err := res.Err(); err != nil {
		return Company{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(res.Data["password"]), bcrypt.DefaultCost)
	if err != nil {
		return Company{}, fmt.Errorf("account: hash password: %w", err)
	}

	verificationToken := s.tokenGen()
	company, err := s.repo.Create(ctx, CreateParams{
		Email:             res.Data["email"],
		CompanyName:       res.Data["companyName"],
		ContactName:       res.Data["contactName"],
		Phone:             res.Data["phone"],
		PasswordHash:      string(hash),
		BusinessType:      res.Data["businessType"],
		YearsInBusiness:   res.Data["yearsInBusiness"],
		VerificationToken: verificationToken,
	})
	if err != nil {
		return Company{}, err
	}

	s.sendVerificationMail(ctx, company, verificationToken)
	return company, nil
}

// Login authenticates a company and issues a session token.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	normalized, ok := validate.NormalizeEmail(email)
	if !ok {
		return LoginResult{}, ErrInvalidCredentials
	}

	company, err := s.repo.GetByEmail(ctx, normalized)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(company.PasswordHash), []byte(password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	signed, err := s.issuer.Issue(company.ID, company.Email, company.CompanyName, string(company.SubscriptionStatus))
	if err != nil {
		return LoginResult{}, fmt.Errorf("account: issue token: %w", err)
	}

	return LoginResult{Token: signed, Company: company}, nil
}

// VerifyEmail consumes a verification token. A token replayed after the
// account is verified reports already-verified instead of an error. An
// unknown token fails with ErrNotFound; one presented more than
// VerificationWindow after signup fails with ErrTokenInvalidOrExpired.
func (s *Service) VerifyEmail(ctx context.Context, tok string) (VerifyResult, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return VerifyResult{}, ErrTokenInvalidOrExpired
	}

	company, err := s.repo.GetByVerificationToken(ctx, tok)
	if err != nil {
		return VerifyResult{}, err
	}

	if company.EmailVerified {
		return VerifyResult{Company: company, AlreadyVerified: true}, nil
	}

	if s.now().Sub(company.CreatedAt) >= VerificationWindow {
		return VerifyResult{}, ErrTokenInvalidOrExpired
	}

	verified, err := s.repo.MarkVerified(ctx, company.ID)
	if err != nil {
		return VerifyResult{}, err
	}

	// Welcome mail is a side effect; a failure here never surfaces.
	if s.mail != nil {
		_ = s.mail.Send(ctx, verified.Email, "Welcome to Estate Sale Connect",
			fmt.Sprintf("Hi %s, your email is verified and your account is ready.", verified.ContactName))
	}

	return VerifyResult{Company: verified}, nil
}

// ResendVerification issues a fresh token, invalidating any prior one. It
// returns ErrNotFound for unknown emails; callers that must not reveal
// account existence translate that into a generic success.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	normalized, ok := validate.NormalizeEmail(email)
	if !ok {
		return ErrNotFound
	}

	company, err := s.repo.GetByEmail(ctx, normalized)
	if err != nil {
		return err
	}
	if company.EmailVerified {
		// Nothing to resend; keep the response indistinguishable.
		return nil
	}

	fresh := s.tokenGen()
	if err := s.repo.SetVerificationToken(ctx, company.ID, fresh); err != nil {
		return err
	}

	company.VerificationToken = &fresh
	s.sendVerificationMail(ctx, company, fresh)
	return nil
}

// GetByID retrieves a company by ID.
func (s *Service) GetByID(ctx context.Context, id string) (Company, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) sendVerificationMail(ctx context.Context, company Company, tok string) {
	if s.mail == nil {
		return
	}
	body := fmt.Sprintf("Hi %s, confirm your email with token %s. The link is valid for 24 hours.",
		company.ContactName, tok)
	_ = s.mail.Send(ctx, company.Email, "Verify your email", body)
}

// newVerificationToken returns a 32-character hex token.
func newVerificationToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
