// Package token issues and verifies the signed session tokens carried by
// company users. Tokens are not persisted; validity is determined solely by
// signature and expiry at verification time.
package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken signals a token whose signature or payload cannot be verified.
	ErrInvalidToken = errors.New("token: invalid token")
	// ErrTokenExpired signals a structurally valid token past its expiry.
	ErrTokenExpired = errors.New("token: token expired")
	// ErrSubscriptionRequired signals a caller without an active subscription.
	ErrSubscriptionRequired = errors.New("token: active subscription required")
)

// Validity is how long an issued session token remains usable.
const Validity = 24 * time.Hour

// Claims is the decoded payload of a session token.
type Claims struct {
	jwt.RegisteredClaims
	UserID             string `json:"userId"`
	Email              string `json:"email"`
	CompanyName        string `json:"companyName"`
	SubscriptionStatus string `json:"subscriptionStatus"`
}

// Issuer signs and verifies session tokens with a shared HMAC secret.
type Issuer struct {
	secret []byte
	now    func() time.Time
}

// NewIssuer creates an Issuer from the configured shared secret.
func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret), now: time.Now}
}

// WithClock overrides the time source, used by tests.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// Issue produces a signed token embedding identity and subscription status,
// expiring Validity after issue.
func (i *Issuer) Issue(userID, email, companyName, subscriptionStatus string) (string, error) {
	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(Validity)),
		},
		UserID:             userID,
		Email:              email,
		CompanyName:        companyName,
		SubscriptionStatus: subscriptionStatus,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", err
	}
	return signed, nil
}

// Verify decodes and validates a presented token. Expired tokens fail with
// ErrTokenExpired; anything else undecodable or unsigned by us fails with
// ErrInvalidToken.
func (i *Issuer) Verify(raw string) (Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrInvalidToken
	}
	if !tok.Valid || claims.UserID == "" {
		return Claims{}, ErrInvalidToken
	}
	return *claims, nil
}

// FromAuthHeader extracts the bearer token from an Authorization header.
// A missing or non-bearer header means the request is unauthenticated, which
// is not an error on endpoints with a public tier.
func FromAuthHeader(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	raw := strings.TrimSpace(parts[1])
	return raw, raw != ""
}

// RequireActiveSubscription gates subscription-tier operations.
func RequireActiveSubscription(claims Claims) error {
	if claims.SubscriptionStatus != "active" {
		return ErrSubscriptionRequired
	}
	return nil
}
