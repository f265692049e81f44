package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrValidationFailed is the sentinel wrapped by all field validators.
var ErrValidationFailed = fmt.Errorf("validation failed")

const (
	DefaultMaxStringLength = 255
	MaxSymbolLength        = 10
	MaxMessageLength       = 2048
)

var symbolRegex = regexp.MustCompile(`^[A-Z0-9.\-]+$`)

// ValidateStringNotEmpty checks if a string is not empty after trimming.
func ValidateStringNotEmpty(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrValidationFailed, fieldName)
	}
	return nil
}

// ValidateStringMaxLength checks if a string's UTF-8 character count is within max bounds.
func ValidateStringMaxLength(s string, maxLength int, fieldName string) error {
	if utf8.RuneCountInString(s) > maxLength {
		return fmt.Errorf("%w: %s exceeds maximum length of %d characters", ErrValidationFailed, fieldName, maxLength)
	}
	return nil
}

// ValidateSymbol checks that a ticker symbol is a plausible exchange symbol
// (uppercase letters, digits, dots and hyphens).
func ValidateSymbol(s string) error {
	trimmed := strings.ToUpper(strings.TrimSpace(s))
	if err := ValidateStringNotEmpty(trimmed, "Symbol"); err != nil {
		return err
	}
	if err := ValidateStringMaxLength(trimmed, MaxSymbolLength, "Symbol"); err != nil {
		return err
	}
	if !symbolRegex.MatchString(trimmed) {
		return fmt.Errorf("%w: Symbol ('%s') is not in the expected format (uppercase letters, digits, dots, hyphens)", ErrValidationFailed, s)
	}
	return nil
}
