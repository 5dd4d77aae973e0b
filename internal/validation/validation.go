package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// usernameRegex allows letters, digits, spaces, hyphens and apostrophes
var usernameRegex = regexp.MustCompile(`^[\p{L}\p{N}][\p{L}\p{N} '\-]*$`)

const (
	MinUsernameLength = 2
	MaxUsernameLength = 24
	MinPasswordLength = 8
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateEmail checks if an email address is valid
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ValidationError{Field: "email", Message: "email is required"}
	}
	if !emailRegex.MatchString(email) {
		return ValidationError{Field: "email", Message: "invalid email format"}
	}
	return nil
}

// ValidatePassword checks if a password meets requirements
func ValidatePassword(password string) error {
	if password == "" {
		return ValidationError{Field: "password", Message: "password is required"}
	}
	if len(password) < MinPasswordLength {
		return ValidationError{Field: "password", Message: fmt.Sprintf("password must be at least %d characters", MinPasswordLength)}
	}
	return nil
}

// ValidateUsername checks the display name shown to the child
func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return ValidationError{Field: "username", Message: "username is required"}
	}
	n := utf8.RuneCountInString(username)
	if n < MinUsernameLength {
		return ValidationError{Field: "username", Message: fmt.Sprintf("username must be at least %d characters", MinUsernameLength)}
	}
	if n > MaxUsernameLength {
		return ValidationError{Field: "username", Message: fmt.Sprintf("username must be at most %d characters", MaxUsernameLength)}
	}
	if !usernameRegex.MatchString(username) {
		return ValidationError{Field: "username", Message: "username may only contain letters, numbers, spaces, hyphens and apostrophes"}
	}
	return nil
}

// ValidateImageRef accepts an empty reference or an absolute http(s)/gs URI
func ValidateImageRef(ref string) error {
	if ref == "" {
		return nil
	}
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return ValidationError{Field: "profileImageRef", Message: "must be an absolute URI"}
	}
	switch u.Scheme {
	case "http", "https", "gs":
		return nil
	}
	return ValidationError{Field: "profileImageRef", Message: "unsupported URI scheme"}
}
