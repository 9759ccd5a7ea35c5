package auth

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength is the shortest accepted password, in characters.
	MinPasswordLength = 12
	// MaxPasswordBytes is the bcrypt input limit.
	MaxPasswordBytes = 72
)

// PasswordValidationError lists every rule a password failed.
type PasswordValidationError struct {
	Messages []string
}

func (e *PasswordValidationError) Error() string {
	return strings.Join(e.Messages, "; ")
}

type charClass struct {
	name  string
	match func(rune) bool
}

// Each class must appear at least once.
var requiredClasses = []charClass{
	{"an uppercase letter", unicode.IsUpper},
	{"a lowercase letter", unicode.IsLower},
	{"a digit", unicode.IsDigit},
	{"a special character (!@#$%^&*...)", func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSymbol(r) }},
}

// ValidatePassword checks length and character classes.
func ValidatePassword(password string) error {
	var messages []string
	if utf8.RuneCountInString(password) < MinPasswordLength {
		messages = append(messages, fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	if len(password) > MaxPasswordBytes {
		messages = append(messages, fmt.Sprintf("password must be at most %d bytes", MaxPasswordBytes))
	}
	for _, class := range requiredClasses {
		if !strings.ContainsFunc(password, class.match) {
			messages = append(messages, "password must contain "+class.name)
		}
	}
	if messages != nil {
		return &PasswordValidationError{Messages: messages}
	}
	return nil
}

// ValidatePasswordFor also rejects passwords built around the email name.
func ValidatePasswordFor(email, password string) error {
	if err := ValidatePassword(password); err != nil {
		return err
	}
	name, _, _ := strings.Cut(NormalizeEmail(email), "@")
	if len(name) >= 4 && strings.Contains(strings.ToLower(password), name) {
		return &PasswordValidationError{Messages: []string{"password must not contain the email name"}}
	}
	return nil
}

// ValidatePasswordOrError reduces ValidatePassword to its first message, for
// API responses.
func ValidatePasswordOrError(password string) error {
	return firstMessage(ValidatePassword(password))
}

// ValidatePasswordForOrError reduces ValidatePasswordFor to its first message.
func ValidatePasswordForOrError(email, password string) error {
	return firstMessage(ValidatePasswordFor(email, password))
}

func firstMessage(err error) error {
	var perr *PasswordValidationError
	if errors.As(err, &perr) {
		return errors.New(perr.Messages[0])
	}
	return err
}

// NormalizeEmail lowercases and trims an address; emails are the login key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail accepts a bare address only, no display name.
func ValidateEmail(email string) error {
	switch {
	case email == "":
		return errors.New("email is required")
	case len(email) > 254:
		return errors.New("email is too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return errors.New("email is not a valid address")
	}
	return nil
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
