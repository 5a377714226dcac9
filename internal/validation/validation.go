// Package validation provides input validation helpers for the API layer.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB).
const MaxRequestSize = 1 << 20

var (
	// idRegex validates internal identifiers (prefix + hex, e.g. "esc_a1b2...").
	idRegex = regexp.MustCompile(`^[a-z]{2,8}_[a-f0-9]{8,64}$`)
	// addressRegex validates custody addresses: base58/bech32/hex style
	// identifiers without whitespace or punctuation beyond what chains use.
	addressRegex = regexp.MustCompile(`^[a-zA-Z0-9:]{8,128}$`)
	// assetRegex validates asset symbols (e.g. "BTC", "ETH", "USDT").
	assetRegex = regexp.MustCompile(`^[A-Z0-9]{2,10}$`)
)

// RequestSizeMiddleware limits request body size.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidID checks if a string is a well-formed internal identifier.
func IsValidID(id string) bool {
	return idRegex.MatchString(id)
}

// IsValidAddress checks if a string looks like a custody address.
func IsValidAddress(addr string) bool {
	return addressRegex.MatchString(addr)
}

// IsValidAsset checks if a string is a well-formed asset symbol.
func IsValidAsset(asset string) bool {
	return assetRegex.MatchString(asset)
}

// ValidationError represents a single field validation failure.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs the given validators and collects their failures.
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required checks that a field is non-empty.
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidAddress checks that a field is a well-formed custody address.
func ValidAddress(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidAddress(value) {
			return &ValidationError{Field: field, Message: "must be a valid address"}
		}
		return nil
	}
}

// ValidAsset checks that a field is a well-formed asset symbol.
func ValidAsset(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !IsValidAsset(value) {
			return &ValidationError{Field: field, Message: "must be an uppercase asset symbol"}
		}
		return nil
	}
}

// ValidAmount checks that a value is a positive decimal amount.
func ValidAmount(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		decimalCount := 0
		hasNonZero := false
		for i, c := range value {
			if c == '.' {
				decimalCount++
				if decimalCount > 1 || i == 0 || i == len(value)-1 {
					return &ValidationError{Field: field, Message: "invalid amount format"}
				}
				continue
			}
			if c < '0' || c > '9' {
				return &ValidationError{Field: field, Message: "invalid amount format"}
			}
			if c != '0' {
				hasNonZero = true
			}
		}
		if !hasNonZero {
			return &ValidationError{Field: field, Message: "amount must be greater than zero"}
		}
		return nil
	}
}

// MaxLength checks that a field does not exceed max length.
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}
