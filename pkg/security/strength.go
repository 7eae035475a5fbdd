// Package security provides master password policy checks: a fixed-threshold
// score from length and character-class diversity, plus an entropy-based
// strength estimate. The policy is advisory UX at setup time, not a security
// boundary enforced elsewhere.
package security

import (
	"fmt"
	"unicode"

	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

// Password policy constants.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 128

	// MinScore is the fixed threshold a password must reach at setup.
	MinScore = 3
)

// PasswordStrength represents the strength level of a password.
type PasswordStrength int

const (
	PasswordWeak PasswordStrength = iota
	PasswordFair
	PasswordGood
	PasswordStrong
)

// String returns a human-readable representation of password strength.
func (s PasswordStrength) String() string {
	switch s {
	case PasswordWeak:
		return "weak"
	case PasswordFair:
		return "fair"
	case PasswordGood:
		return "good"
	case PasswordStrong:
		return "strong"
	default:
		return "unknown"
	}
}

// PasswordValidationResult contains the result of password validation.
type PasswordValidationResult struct {
	Valid    bool             // Whether the password meets the policy threshold
	Score    int              // Length + character-class score
	Strength PasswordStrength // Estimated strength
	Warnings []string         // Suggestions for improvement (not errors)
}

// ValidateMasterPassword scores a candidate master password.
//
// The score counts character classes (upper, lower, digit, special) and adds
// a length bonus (+1 at 12 characters, +2 at 16). Passwords below MinScore or
// outside the length bounds are rejected. The zxcvbn entropy estimate only
// informs the reported strength level, never the accept/reject decision, so
// the policy stays deterministic and documentable.
func ValidateMasterPassword(password string) *PasswordValidationResult {
	result := &PasswordValidationResult{}

	if len(password) < MinPasswordLength {
		result.Strength = PasswordWeak
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
		return result
	}
	if len(password) > MaxPasswordLength {
		result.Strength = PasswordWeak
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Password must be at most %d characters", MaxPasswordLength))
		return result
	}

	classes := countClasses(password)
	result.Score = classes
	switch {
	case len(password) >= 16:
		result.Score += 2
	case len(password) >= 12:
		result.Score++
	}

	if classes < 2 {
		result.Warnings = append(result.Warnings,
			"Consider using a mix of uppercase, lowercase, numbers, and symbols")
	}
	if len(password) < 12 {
		result.Warnings = append(result.Warnings,
			"Longer passwords (12+ characters) are more secure")
	}

	result.Valid = result.Score >= MinScore

	// Entropy estimate for the displayed strength level.
	estimate := zxcvbn.PasswordStrength(password, nil)
	switch {
	case !result.Valid:
		result.Strength = PasswordWeak
	case estimate.Score >= 4 && result.Score >= 5:
		result.Strength = PasswordStrong
	case estimate.Score >= 3:
		result.Strength = PasswordGood
	default:
		result.Strength = PasswordFair
	}

	return result
}

// countClasses counts the distinct character classes present.
func countClasses(password string) int {
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSpecial = true
		}
	}

	n := 0
	for _, b := range []bool{hasUpper, hasLower, hasDigit, hasSpecial} {
		if b {
			n++
		}
	}
	return n
}
