package validate

import (
	"regexp"
	"strings"
)

var (
	scriptTagRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	iframeTagRe = regexp.MustCompile(`(?is)<iframe\b[^>]*>.*?</iframe>`)
	jsURIRe     = regexp.MustCompile(`(?i)javascript\s*:`)
	eventAttrRe = regexp.MustCompile(`(?i)\bon\w+\s*=\s*("[^"]*"|'[^']*'|[^\s>]+)`)
	markupTagRe = regexp.MustCompile(`<[^>]*>`)

	emailRe    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	zipRe      = regexp.MustCompile(`(^|\D)(\d{5})(-\d{4})?($|\D)`)
	phoneJunk  = regexp.MustCompile(`[^0-9+\-() ]`)
	phoneDigit = regexp.MustCompile(`[0-9]`)

	upperRe = regexp.MustCompile(`[A-Z]`)
	lowerRe = regexp.MustCompile(`[a-z]`)
	digitRe = regexp.MustCompile(`[0-9]`)
)

// SanitizeText strips active markup (script/iframe blocks, javascript: URIs,
// inline event handlers) then any residual tags, trims whitespace and
// truncates the result to maxLen runes. maxLen <= 0 means no truncation.
func SanitizeText(s string, maxLen int) string {
	s = scriptTagRe.ReplaceAllString(s, "")
	s = iframeTagRe.ReplaceAllString(s, "")
	s = jsURIRe.ReplaceAllString(s, "")
	s = eventAttrRe.ReplaceAllString(s, "")
	s = markupTagRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	if maxLen > 0 {
		runes := []rune(s)
		if len(runes) > maxLen {
			s = strings.TrimSpace(string(runes[:maxLen]))
		}
	}
	return s
}

// NormalizeEmail lowercases and trims the address and reports whether it has a
// plausible local@domain.tld shape no longer than 254 characters.
func NormalizeEmail(s string) (string, bool) {
	email := strings.ToLower(strings.TrimSpace(s))
	if email == "" || len(email) > 254 {
		return email, false
	}
	return email, emailRe.MatchString(email)
}

// NormalizePhone drops every character that is not a digit, "+", "-", "(",
// ")" or a space, and reports whether at least ten digits remain.
func NormalizePhone(s string) (string, bool) {
	phone := strings.TrimSpace(phoneJunk.ReplaceAllString(s, ""))
	digits := len(phoneDigit.FindAllString(phone, -1))
	return phone, digits >= 10
}

// CheckPassword enforces the signup password policy: minimum eight characters
// with at least one upper case letter, one lower case letter and one digit.
func CheckPassword(s string) []string {
	var problems []string
	if len(s) < 8 {
		problems = append(problems, "password must be at least 8 characters")
	}
	if !upperRe.MatchString(s) {
		problems = append(problems, "password must contain an upper case letter")
	}
	if !lowerRe.MatchString(s) {
		problems = append(problems, "password must contain a lower case letter")
	}
	if !digitRe.MatchString(s) {
		problems = append(problems, "password must contain a digit")
	}
	return problems
}

// ZipFromAddress extracts the first 5-digit (optionally +4) token from a free
// form address. Returns "" when no zip-shaped token is present.
func ZipFromAddress(address string) string {
	m := zipRe.FindStringSubmatch(address)
	if m == nil {
		return ""
	}
	return m[2] + m[3]
}

// MaxPhotoRefs caps how many photo references a lead may carry.
const MaxPhotoRefs = 12

// FilterPhotoRefs keeps only references pointing at the upload host or inline
// data images, capped at MaxPhotoRefs. Rejected entries are dropped silently.
func FilterPhotoRefs(refs []string, uploadPrefix string) []string {
	kept := make([]string, 0, len(refs))
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		if uploadPrefix != "" && strings.HasPrefix(ref, uploadPrefix) {
			kept = append(kept, ref)
		} else if strings.HasPrefix(ref, "data:image/") {
			kept = append(kept, ref)
		}
		if len(kept) == MaxPhotoRefs {
			break
		}
	}
	return kept
}
