package validator

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
)

var (
	ErrEmptyPhone    = errors.New("phone number cannot be empty")
	ErrInvalidFormat = errors.New("phone number can only contain digits")
	ErrInvalidLength = errors.New("phone number must be exactly 10 digits")
	ErrInvalidPrefix = errors.New("phone number must be a Sri Lankan mobile number (070-078)")
	ErrInvalidEmail  = errors.New("email address is not valid")
)

// Sri Lankan mobile operator prefixes
var mobilePrefixes = map[string]bool{
	"070": true, "071": true, "072": true, "074": true, "075": true,
	"076": true, "077": true, "078": true,
}

var digitsOnly = regexp.MustCompile(`^\d+$`)

var phoneSeparators = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "+", "", ".", "")

// NormalizePhone returns the passenger phone as 10 digits (07XXXXXXXX).
// Separators and a leading 94 country code are accepted.
func NormalizePhone(phone string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", ErrEmptyPhone
	}

	sanitized := phoneSeparators.Replace(phone)
	if strings.HasPrefix(sanitized, "94") && len(sanitized) == 11 {
		sanitized = "0" + sanitized[2:]
	}

	if !digitsOnly.MatchString(sanitized) {
		return "", ErrInvalidFormat
	}
	if len(sanitized) != 10 {
		return "", ErrInvalidLength
	}
	if !mobilePrefixes[sanitized[:3]] {
		return "", ErrInvalidPrefix
	}
	return sanitized, nil
}

// NormalizeEmail lower-cases a bare address and rejects display-name forms
func NormalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}
