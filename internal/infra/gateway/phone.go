package gateway

import (
	"regexp"
	"strings"

	"engage-notify/internal/domain/entity"
)

var (
	nonPhoneChars = regexp.MustCompile(`[^\d+]`)
	e164Phone     = regexp.MustCompile(`^\+\d{10,15}$`)
)

// NormalizePhone strips formatting from raw and prefixes defaultCountryCode
// when the number has no leading "+". The result is "+" followed by 10 to
// 15 digits.
func NormalizePhone(raw, defaultCountryCode string) (string, error) {
	cleaned := nonPhoneChars.ReplaceAllString(raw, "")
	if cleaned == "" {
		return "", &entity.ValidationError{Field: "phone_number", Message: "Invalid phone number format."}
	}
	if !strings.HasPrefix(cleaned, "+") {
		cleaned = defaultCountryCode + cleaned
	}
	if !e164Phone.MatchString(cleaned) {
		return "", &entity.ValidationError{
			Field:   "phone_number",
			Message: "Phone number must be 10-15 digits with country code.",
		}
	}
	return cleaned, nil
}

func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
