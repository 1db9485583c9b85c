package auth

import (
	"fmt"
	"unicode"
)

const maxPasswordLength = 128

// PasswordPolicy is the set of rules a new password must satisfy.
type PasswordPolicy struct {
	MinLength      int
	RequireUpper   bool
	RequireDigit   bool
	RequireSpecial bool
}

// Check returns a user-facing error describing the first rule password breaks.
func (p PasswordPolicy) Check(password string) error {
	length := len([]rune(password))
	if length < p.MinLength {
		return fmt.Errorf("password must be at least %d characters", p.MinLength)
	}
	if length > maxPasswordLength {
		return fmt.Errorf("password must be at most %d characters", maxPasswordLength)
	}

	var hasUpper, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if p.RequireUpper && !hasUpper {
		return fmt.Errorf("password must contain an upper-case letter")
	}
	if p.RequireDigit && !hasDigit {
		return fmt.Errorf("password must contain a number")
	}
	if p.RequireSpecial && !hasSpecial {
		return fmt.Errorf("password must contain a special character")
	}
	return nil
}
