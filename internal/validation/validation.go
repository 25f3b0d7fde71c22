// Package validation provides input validation for the connect API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxStringLength is the maximum length for free-text string fields
const MaxStringLength = 2000

// phoneRegex accepts E.164-style numbers: optional +, 8-15 digits.
var phoneRegex = regexp.MustCompile(`^\+?[1-9][0-9]{7,14}$`)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidPhone checks if a string is a plausible WhatsApp phone number.
func IsValidPhone(phone string) bool {
	return phoneRegex.MatchString(NormalizePhone(phone))
}

// NormalizePhone strips spaces, dashes, dots and parentheses so that
// "+55 (11) 99999-0000" and "+5511999990000" compare equal.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(phone) {
		switch r {
		case ' ', '-', '.', '(', ')':
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	s = strings.ReplaceAll(s, "\x00", "")
	return s
}

// Error represents a single field validation failure.
type Error struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors is a collection of validation failures.
type Errors []Error

// Error implements the error interface
func (e Errors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs the given validators and collects failures.
func Validate(validators ...func() *Error) Errors {
	var errs Errors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required checks if a field is non-empty
func Required(field, value string) func() *Error {
	return func() *Error {
		if strings.TrimSpace(value) == "" {
			return &Error{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidPhone checks if a field is a plausible phone number.
func ValidPhone(field, value string) func() *Error {
	return func() *Error {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidPhone(value) {
			return &Error{Field: field, Message: "must be a valid phone number (+country code, digits only)"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *Error {
	return func() *Error {
		if len(value) > max {
			return &Error{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// NonNegativeCents checks that a monetary amount in cents is not negative.
// Zero is allowed; quotes and reminders may carry no monetary value.
func NonNegativeCents(field string, cents int64) func() *Error {
	return func() *Error {
		if cents < 0 {
			return &Error{Field: field, Message: "must not be negative"}
		}
		return nil
	}
}
