package store

import (
	"fmt"
	"net/mail"
	"strings"
)

// MaxEmailLength bounds subscriber/user email strings; the schema's email
// columns are TEXT, so this check is the only length limit.
const MaxEmailLength = 255

// ValidateEmail checks RFC-validity and length, returning ErrInvalidEmail
// wrapped with detail on failure.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" || len(email) > MaxEmailLength {
		return fmt.Errorf("email %q: %w", email, ErrInvalidEmail)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("email %q: %w", email, ErrInvalidEmail)
	}
	return nil
}

// ValidateName checks that a job/tag name is non-empty and reasonably
// bounded, mirroring the teacher's slug validation in
// gateway/methods/cron.go without reintroducing the HTTP slug regex (this
// package has no transport concerns).
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name must not be empty: %w", ErrInvalidSchedule)
	}
	return nil
}
