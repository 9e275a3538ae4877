// Package validate sanitizes and validates externally supplied field sets
// against named schemas. Every rule violation is collected so callers can
// report all problems in one response instead of failing on the first.
package validate

import (
	"fmt"
	"strconv"
	"strings"
)

// Allowed enum values shared by the signup and lead schemas.
var (
	PropertyTypes   = []string{"house", "apartment", "condo", "townhouse", "storage_unit", "other"}
	Timelines       = []string{"asap", "within_week", "within_month", "flexible"}
	BusinessTypes   = []string{"estate_sale_company", "auction_house", "liquidator", "antique_dealer", "other"}
	YearsInBusiness = []string{"0-1", "2-5", "6-10", "10+"}
)

// Kind selects the rule set applied to a field.
type Kind int

const (
	KindText Kind = iota
	KindEmail
	KindPhone
	KindPassword
	KindEnum
	KindAddress
)

// Field declares one schema entry.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
	MaxLen   int
	Allowed  []string
}

// Schema is an ordered list of field rules plus schema-level options.
type Schema struct {
	Name string
	// ConfirmField, when set, must match the password field verbatim.
	ConfirmField string
	Fields       []Field
}

// Error aggregates every field problem found in one payload so handlers can
// return them itemized.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	return "validate: " + strings.Join(e.Problems, "; ")
}

// Err converts a failed Result into an *Error, or nil when valid.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return &Error{Problems: r.Errors}
}

// Result carries the outcome of applying a schema to raw input. Data holds
// the sanitized values for every field that passed; Errors holds one
// human-readable message per violation in schema order.
type Result struct {
	Valid  bool
	Data   map[string]string
	Errors []string
}

// Signup validates the company signup form.
var Signup = Schema{
	Name:         "signup",
	ConfirmField: "confirmPassword",
	Fields: []Field{
		{Name: "companyName", Kind: KindText, Required: true, MaxLen: 100},
		{Name: "contactName", Kind: KindText, Required: true, MaxLen: 50},
		{Name: "email", Kind: KindEmail, Required: true},
		{Name: "phone", Kind: KindPhone, Required: true},
		{Name: "password", Kind: KindPassword, Required: true},
		{Name: "businessType", Kind: KindEnum, Required: true, Allowed: BusinessTypes},
		{Name: "yearsInBusiness", Kind: KindEnum, Required: false, Allowed: YearsInBusiness},
	},
}

// LeadSubmission validates the public lead intake form. The address field
// additionally yields a derived "zipCode" entry in Result.Data when a
// zip-shaped token is present.
var LeadSubmission = Schema{
	Name: "lead-submission",
	Fields: []Field{
		{Name: "firstName", Kind: KindText, Required: true, MaxLen: 50},
		{Name: "lastName", Kind: KindText, Required: true, MaxLen: 50},
		{Name: "email", Kind: KindEmail, Required: true},
		{Name: "phone", Kind: KindPhone, Required: true},
		{Name: "address", Kind: KindAddress, Required: true, MaxLen: 200},
		{Name: "propertyType", Kind: KindEnum, Required: true, Allowed: PropertyTypes},
		{Name: "timeline", Kind: KindEnum, Required: true, Allowed: Timelines},
		{Name: "details", Kind: KindText, Required: false, MaxLen: 2000},
	},
}

// LeadQuery validates the query parameters accepted by lead listing.
var LeadQuery = Schema{
	Name: "query-params",
	Fields: []Field{
		{Name: "zipCode", Kind: KindText, Required: false, MaxLen: 10},
		{Name: "timeline", Kind: KindEnum, Required: false, Allowed: Timelines},
		{Name: "propertyType", Kind: KindEnum, Required: false, Allowed: PropertyTypes},
		{Name: "limit", Kind: KindText, Required: false, MaxLen: 6},
		{Name: "offset", Kind: KindText, Required: false, MaxLen: 6},
	},
}

// Apply runs every field rule of the schema against raw input and returns the
// sanitized data together with all collected errors.
func Apply(schema Schema, raw map[string]any) Result {
	res := Result{Data: make(map[string]string, len(schema.Fields))}

	for _, f := range schema.Fields {
		value, present := stringField(raw, f.Name)
		trimmed := strings.TrimSpace(value)

		if trimmed == "" {
			if f.Required {
				res.Errors = append(res.Errors, fmt.Sprintf("%s is required", f.Name))
			} else if present {
				// Blank optional fields are dropped, not stored.
				continue
			}
			continue
		}

		switch f.Kind {
		case KindText:
			res.Data[f.Name] = SanitizeText(value, f.MaxLen)

		case KindAddress:
			clean := SanitizeText(value, f.MaxLen)
			res.Data[f.Name] = clean
			if zip := ZipFromAddress(clean); zip != "" {
				res.Data["zipCode"] = zip
			}

		case KindEmail:
			email, ok := NormalizeEmail(value)
			if !ok {
				res.Errors = append(res.Errors, fmt.Sprintf("%s is not a valid email address", f.Name))
				continue
			}
			res.Data[f.Name] = email

		case KindPhone:
			phone, ok := NormalizePhone(value)
			if !ok {
				res.Errors = append(res.Errors, fmt.Sprintf("%s is not a valid phone number", f.Name))
				continue
			}
			res.Data[f.Name] = phone

		case KindPassword:
			problems := CheckPassword(value)
			if len(problems) > 0 {
				res.Errors = append(res.Errors, problems...)
				continue
			}
			res.Data[f.Name] = value

		case KindEnum:
			if !contains(f.Allowed, trimmed) {
				res.Errors = append(res.Errors, fmt.Sprintf("%s has an unknown value %q", f.Name, trimmed))
				continue
			}
			res.Data[f.Name] = trimmed
		}
	}

	if schema.ConfirmField != "" {
		confirm, _ := stringField(raw, schema.ConfirmField)
		password, _ := stringField(raw, "password")
		if password != "" && confirm != password {
			res.Errors = append(res.Errors, "password confirmation does not match")
		}
	}

	res.Valid = len(res.Errors) == 0
	return res
}

// PositiveInt parses a sanitized numeric query value, falling back to def
// when absent and clamping to max.
func PositiveInt(data map[string]string, key string, def, max int) int {
	raw, ok := data[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	if max > 0 && n > max {
		return max
	}
	return n
}

func stringField(raw map[string]any, name string) (string, bool) {
	v, ok := raw[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		// Non-string payloads are treated as absent rather than coerced.
		return "", false
	}
	return s, true
}

func contains(allowed []string, v string) bool {
	for _, a := range allowed {
		if a == v {
			return true
		}
	}
	return false
}
