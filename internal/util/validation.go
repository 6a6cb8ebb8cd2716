// Package util holds small validation helpers shared across the service.
package util

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
)

var (
	// ErrInvalidEmail is returned when an email address cannot be parsed.
	ErrInvalidEmail = errors.New("invalid email address")
	// ErrInvalidURL indicates that a URL failed validation.
	ErrInvalidURL = errors.New("invalid url")
)

// NormalizeEmail validates and normalizes an email address. The returned value
// is lowercased and stripped of surrounding whitespace.
func NormalizeEmail(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%w: value is empty", ErrInvalidEmail)
	}

	addr, err := mail.ParseAddress(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}

	// Disallow display names to keep addresses deterministic.
	if addr.Name != "" || addr.Address == "" {
		return "", fmt.Errorf("%w: must not include display name", ErrInvalidEmail)
	}

	if addr.Address != trimmed {
		return "", fmt.Errorf("%w: unexpected formatting", ErrInvalidEmail)
	}

	return strings.ToLower(addr.Address), nil
}

// ValidateHTTPURL ensures the provided string is a valid HTTP or HTTPS URL.
func ValidateHTTPURL(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%w: value is empty", ErrInvalidURL)
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: host is required", ErrInvalidURL)
	}

	return trimmed, nil
}

// EnsureMaxBytes checks that a byte slice does not exceed the specified size.
func EnsureMaxBytes(field string, b []byte, max int) error {
	if max <= 0 {
		return nil
	}
	if len(b) > max {
		return fmt.Errorf("%s exceeds maximum size of %d bytes", field, max)
	}
	return nil
}
