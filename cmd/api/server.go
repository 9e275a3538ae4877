package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v82"

	"github.com/estatesaleconnect/estate-sale-connect/account"
	"github.com/estatesaleconnect/estate-sale-connect/lead"
	"github.com/estatesaleconnect/estate-sale-connect/payment"
	"github.com/estatesaleconnect/estate-sale-connect/ratelimit"
	"github.com/estatesaleconnect/estate-sale-connect/token"
	"github.com/estatesaleconnect/estate-sale-connect/validate"
)

type accountService interface {
	Signup(ctx context.Context, raw map[string]any) (account.Company, error)
	Login(ctx context.Context, email, password string) (account.LoginResult, error)
	VerifyEmail(ctx context.Context, tok string) (account.VerifyResult, error)
	ResendVerification(ctx context.Context, email string) error
}

type leadService interface {
	Submit(ctx context.Context, raw map[string]any, photos []string) (lead.Lead, error)
	List(ctx context.Context, rawQuery map[string]any, caller lead.Entitlement) (lead.ListResult, error)
	GetByID(ctx context.Context, id string) (lead.Lead, error)
}

type webhookProcessor interface {
	ParseEvent(payload []byte, sigHeader string) (stripe.Event, error)
	HandleEvent(ctx context.Context, event stripe.Event) error
}

// Server wires the HTTP surface to the domain services.
type Server struct {
	accounts accountService
	leads    leadService
	checkout payment.SessionCreator
	webhook  webhookProcessor
	issuer   *token.Issuer

	configLimiter ratelimit.Limiter
	leadsLimiter  ratelimit.Limiter
	resendLimiter ratelimit.Limiter

	body        *validator.Validate
	log         zerolog.Logger
	development bool
}

func NewServer(accounts accountService, leads leadService, checkout payment.SessionCreator, webhook webhookProcessor, issuer *token.Issuer, log zerolog.Logger, development bool) *Server {
	return &Server{
		accounts:      accounts,
		leads:         leads,
		checkout:      checkout,
		webhook:       webhook,
		issuer:        issuer,
		configLimiter: ratelimit.NewMemoryLimiter(60, time.Hour),
		leadsLimiter:  ratelimit.NewMemoryLimiter(1000, time.Hour),
		resendLimiter: ratelimit.NewMemoryLimiter(3, 15*time.Minute),
		body:          validator.New(),
		log:           log,
		development:   development,
	}
}

// Routes builds the router. Handlers never depend on mux path variables, so
// tests exercise them directly.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/signup", s.handleSignup).Methods(http.MethodPost)
	api.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/verify-email", s.handleVerifyEmail).Methods(http.MethodPost)
	api.HandleFunc("/resend-verification", s.handleResendVerification).Methods(http.MethodPost)
	api.HandleFunc("/leads", s.handleListLeads).Methods(http.MethodGet)
	api.HandleFunc("/leads", s.handleSubmitLead).Methods(http.MethodPost)
	api.HandleFunc("/checkout", s.handleCheckout).Methods(http.MethodPost)
	api.HandleFunc("/webhook", s.handleWebhook).Methods(http.MethodPost)
	api.HandleFunc("/config", s.handleConfig).Methods(http.MethodGet)
	return r
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type verifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

type resendRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type checkoutRequest struct {
	Type         string `json:"type" validate:"required,oneof=subscription exclusive"`
	CompanyEmail string `json:"companyEmail" validate:"required,email"`
	CompanyName  string `json:"companyName" validate:"required"`
	LeadID       string `json:"leadId" validate:"required_if=Type exclusive"`
}

type requestBody interface {
	loginRequest | verifyEmailRequest | resendRequest | checkoutRequest
}

func decodeValidBody[B requestBody](v *validator.Validate, r *http.Request) (B, error) {
	var body B
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return body, fmt.Errorf("decode body: %w", err)
	}
	if err := v.Struct(body); err != nil {
		return body, err
	}
	return body, nil
}

type errorResponse struct {
	Success    bool     `json:"success"`
	Error      string   `json:"error"`
	Details    []string `json:"details,omitempty"`
	RetryAfter int      `json:"retryAfter,omitempty"`
}

type userResponse struct {
	ID                 string `json:"id"`
	Email              string `json:"email"`
	CompanyName        string `json:"companyName"`
	ContactName        string `json:"contactName"`
	BusinessType       string `json:"businessType"`
	EmailVerified      bool   `json:"emailVerified"`
	Status             string `json:"status"`
	SubscriptionStatus string `json:"subscriptionStatus"`
	CreatedAt          string `json:"createdAt"`
}

func newUserResponse(c account.Company) userResponse {
	return userResponse{
		ID:                 c.ID,
		Email:              c.Email,
		CompanyName:        c.CompanyName,
		ContactName:        c.ContactName,
		BusinessType:       c.BusinessType,
		EmailVerified:      c.EmailVerified,
		Status:             string(c.Status),
		SubscriptionStatus: string(c.SubscriptionStatus),
		CreatedAt:          c.CreatedAt.Format(time.RFC3339),
	}
}

type signupResponse struct {
	Success              bool   `json:"success"`
	CompanyID            string `json:"companyId"`
	VerificationRequired bool   `json:"verificationRequired"`
}

type loginResponse struct {
	Success bool         `json:"success"`
	Token   string       `json:"token"`
	User    userResponse `json:"user"`
}

type verifyEmailResponse struct {
	Success         bool `json:"success"`
	AlreadyVerified bool `json:"alreadyVerified"`
}

type statusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type listMeta struct {
	Total int `json:"total"`
	Count int `json:"count"`
}

type leadListResponse struct {
	Success bool              `json:"success"`
	Data    []lead.PublicLead `json:"data"`
	Meta    listMeta          `json:"meta"`
}

type submitLeadResponse struct {
	Success bool   `json:"success"`
	LeadID  string `json:"leadId"`
}

type checkoutResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

type webhookResponse struct {
	Received bool `json:"received"`
}

type configResponse struct {
	Tier                 string   `json:"tier"`
	LeadPriceCents       int64    `json:"leadPriceCents"`
	MaxPhotos            int      `json:"maxPhotos"`
	PropertyTypes        []string `json:"propertyTypes"`
	Timelines            []string `json:"timelines"`
	BusinessTypes        []string `json:"businessTypes,omitempty"`
	SubscriptionStatus   string   `json:"subscriptionStatus,omitempty"`
	ExclusiveWindowHours int      `json:"exclusiveWindowHours,omitempty"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	created, err := s.accounts.Signup(r.Context(), raw)
	var verr *validate.Error
	switch {
	case errors.As(err, &verr):
		s.writeValidationError(w, verr)
	case errors.Is(err, account.ErrDuplicateEmail):
		s.writeError(w, http.StatusConflict, "an account with that email already exists")
	case err != nil:
		s.writeUpstreamError(w, err)
	default:
		s.writeJSON(w, http.StatusCreated, signupResponse{
			Success:              true,
			CompanyID:            created.ID,
			VerificationRequired: true,
		})
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	body, err := decodeValidBody[loginRequest](s.body, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	result, err := s.accounts.Login(r.Context(), body.Email, body.Password)
	switch {
	case errors.Is(err, account.ErrInvalidCredentials):
		s.writeError(w, http.StatusUnauthorized, "invalid email or password")
	case err != nil:
		s.writeUpstreamError(w, err)
	default:
		s.writeJSON(w, http.StatusOK, loginResponse{
			Success: true,
			Token:   result.Token,
			User:    newUserResponse(result.Company),
		})
	}
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	body, err := decodeValidBody[verifyEmailRequest](s.body, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	result, err := s.accounts.VerifyEmail(r.Context(), body.Token)
	switch {
	case errors.Is(err, account.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "verification token not found")
	case errors.Is(err, account.ErrTokenInvalidOrExpired):
		s.writeError(w, http.StatusBadRequest, "verification token is invalid or expired")
	case err != nil:
		s.writeUpstreamError(w, err)
	default:
		s.writeJSON(w, http.StatusOK, verifyEmailResponse{
			Success:         true,
			AlreadyVerified: result.AlreadyVerified,
		})
	}
}

// handleResendVerification answers the same generic success whether or not
// the account exists, so the endpoint cannot be used to probe for emails.
func (s *Server) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	body, err := decodeValidBody[resendRequest](s.body, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}

	key := body.Email
	if normalized, ok := validate.NormalizeEmail(body.Email); ok {
		key = normalized
	}
	if d := s.resendLimiter.Allow("resend:" + key); !d.Allowed {
		s.writeRateLimited(w, d)
		return
	}

	err = s.accounts.ResendVerification(r.Context(), body.Email)
	if err != nil && !errors.Is(err, account.ErrNotFound) {
		s.writeUpstreamError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, statusResponse{
		Success: true,
		Message: "If that account exists, a verification email has been sent.",
	})
}

func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	caller, err := s.bearerEntitlement(r)
	if err != nil {
		s.writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}
	if d := s.leadsLimiter.Allow(limitKey("leads", caller.UserID, r)); !d.Allowed {
		s.writeRateLimited(w, d)
		return
	}

	rawQuery := map[string]any{}
	for _, key := range []string{"zipCode", "timeline", "propertyType", "limit", "offset"} {
		if v := r.URL.Query().Get(key); v != "" {
			rawQuery[key] = v
		}
	}

	result, err := s.leads.List(r.Context(), rawQuery, caller)
	var verr *validate.Error
	switch {
	case errors.As(err, &verr):
		s.writeValidationError(w, verr)
	case err != nil:
		s.writeUpstreamError(w, err)
	default:
		s.writeJSON(w, http.StatusOK, leadListResponse{
			Success: true,
			Data:    result.Items,
			Meta:    listMeta{Total: result.Total, Count: len(result.Items)},
		})
	}
}

func (s *Server) handleSubmitLead(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}

	created, err := s.leads.Submit(r.Context(), raw, stringSlice(raw["photos"]))
	var verr *validate.Error
	switch {
	case errors.As(err, &verr):
		s.writeValidationError(w, verr)
	case err != nil:
		s.writeUpstreamError(w, err)
	default:
		s.writeJSON(w, http.StatusCreated, submitLeadResponse{Success: true, LeadID: created.ID})
	}
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	body, err := decodeValidBody[checkoutRequest](s.body, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "type, companyEmail and companyName are required; exclusive checkouts also need leadId")
		return
	}

	params := payment.CheckoutParams{
		Type:         payment.CheckoutType(body.Type),
		CompanyEmail: body.CompanyEmail,
		CompanyName:  body.CompanyName,
		LeadID:       body.LeadID,
	}

	if params.Type == payment.CheckoutExclusive {
		l, err := s.leads.GetByID(r.Context(), body.LeadID)
		switch {
		case errors.Is(err, lead.ErrNotFound):
			s.writeError(w, http.StatusNotFound, "lead not found")
			return
		case err != nil:
			s.writeUpstreamError(w, err)
			return
		}
		if l.ExclusiveBuyerID != nil {
			s.writeError(w, http.StatusConflict, "lead already has an exclusive buyer")
			return
		}
		params.PriceCents = l.PriceCents
	}

	sess, err := s.checkout.CreateSession(r.Context(), params)
	switch {
	case errors.Is(err, payment.ErrInvalidCheckout):
		s.writeError(w, http.StatusBadRequest, "invalid checkout request")
	case err != nil:
		s.writeUpstreamError(w, err)
	default:
		s.writeJSON(w, http.StatusOK, checkoutResponse{SessionID: sess.SessionID, URL: sess.URL})
	}
}

// handleWebhook answers 200 even when event handling fails internally, so the
// provider does not retry into an outage; only a bad signature is rejected.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	event, err := s.webhook.ParseEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "signature verification failed")
		return
	}

	if err := s.webhook.HandleEvent(r.Context(), event); err != nil {
		s.log.Error().Err(err).Str("event_type", string(event.Type)).Msg("webhook event handling failed")
	}

	s.writeJSON(w, http.StatusOK, webhookResponse{Received: true})
}

// handleConfig serves capability limits. A valid bearer upgrades the response
// to the company tier; a missing or invalid one falls back to public.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	resp := configResponse{
		Tier:           "public",
		LeadPriceCents: lead.DefaultPriceCents,
		MaxPhotos:      validate.MaxPhotoRefs,
		PropertyTypes:  validate.PropertyTypes,
		Timelines:      validate.Timelines,
	}

	var userID string
	if raw, ok := token.FromAuthHeader(r.Header.Get("Authorization")); ok {
		if claims, err := s.issuer.Verify(raw); err == nil {
			userID = claims.UserID
			resp.Tier = "company"
			resp.BusinessTypes = validate.BusinessTypes
			resp.SubscriptionStatus = claims.SubscriptionStatus
			resp.ExclusiveWindowHours = int(lead.ExclusiveWindow / time.Hour)
		}
	}

	if d := s.configLimiter.Allow(limitKey("config", userID, r)); !d.Allowed {
		s.writeRateLimited(w, d)
		return
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// bearerEntitlement decodes the optional Authorization header. A missing
// header yields the public entitlement; a present but unverifiable token is
// an authentication failure.
func (s *Server) bearerEntitlement(r *http.Request) (lead.Entitlement, error) {
	raw, ok := token.FromAuthHeader(r.Header.Get("Authorization"))
	if !ok {
		return lead.Entitlement{}, nil
	}
	claims, err := s.issuer.Verify(raw)
	if err != nil {
		return lead.Entitlement{}, err
	}
	return lead.Entitlement{
		UserID:             claims.UserID,
		SubscriptionActive: claims.SubscriptionStatus == string(account.SubscriptionActive),
	}, nil
}

func limitKey(prefix, userID string, r *http.Request) string {
	if userID != "" {
		return prefix + ":" + userID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return prefix + ":" + host
}

func stringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) writeValidationError(w http.ResponseWriter, verr *validate.Error) {
	s.writeJSON(w, http.StatusBadRequest, errorResponse{
		Error:   "validation failed",
		Details: verr.Problems,
	})
}

func (s *Server) writeRateLimited(w http.ResponseWriter, d ratelimit.Decision) {
	retry := int(d.RetryAfter / time.Second)
	if retry < 1 {
		retry = 1
	}
	s.writeJSON(w, http.StatusTooManyRequests, errorResponse{
		Error:      "rate limit exceeded",
		RetryAfter: retry,
	})
}

// writeUpstreamError hides collaborator failure detail outside development.
func (s *Server) writeUpstreamError(w http.ResponseWriter, err error) {
	s.log.Error().Err(err).Msg("upstream failure")
	msg := "internal error"
	if s.development {
		msg = err.Error()
	}
	s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msg})
}
