package security

import (
	"strings"
	"testing"
)

func TestValidateMasterPassword(t *testing.T) {
	cases := []struct {
		name     string
		password string
		valid    bool
	}{
		{"empty", "", false},
		{"too short", "Ab1!", false},
		{"lowercase only", "password", false},
		{"two classes short", "password1", false},
		{"mixed classes", "Tr0ub4dor&3", true},
		{"long lowercase", "correcthorsebatterystaple", true},
		{"strong", "X9$mQ2@vLp7#wT4z", true},
		{"over max length", strings.Repeat("Aa1!", 40), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := ValidateMasterPassword(tc.password)
			if result.Valid != tc.valid {
				t.Errorf("ValidateMasterPassword(%q).Valid = %v, want %v (score %d)",
					tc.password, result.Valid, tc.valid, result.Score)
			}
			if !result.Valid && result.Strength != PasswordWeak {
				t.Errorf("invalid password reported strength %s", result.Strength)
			}
		})
	}
}

func TestShortPasswordWarning(t *testing.T) {
	result := ValidateMasterPassword("abc")
	if result.Valid {
		t.Fatal("3-character password accepted")
	}
	if len(result.Warnings) == 0 {
		t.Fatal("no warning for short password")
	}
	if !strings.Contains(result.Warnings[0], "at least 8") {
		t.Errorf("warning = %q", result.Warnings[0])
	}
}

func TestStrengthOrdering(t *testing.T) {
	weak := ValidateMasterPassword("password1")
	strong := ValidateMasterPassword("X9$mQ2@vLp7#wT4z")
	if strong.Strength <= weak.Strength {
		t.Errorf("strength(%s) should exceed strength(%s)", "X9$mQ2@vLp7#wT4z", "password1")
	}
	if strong.Strength < PasswordGood {
		t.Errorf("random 16-char password rated %s", strong.Strength)
	}
}

func TestCountClasses(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abc", 1},
		{"Abc", 2},
		{"Abc1", 3},
		{"Abc1!", 4},
		{"1234", 1},
	}
	for _, tc := range cases {
		if got := countClasses(tc.in); got != tc.want {
			t.Errorf("countClasses(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestStrengthString(t *testing.T) {
	if PasswordWeak.String() != "weak" || PasswordStrong.String() != "strong" {
		t.Error("strength labels wrong")
	}
	if PasswordStrength(99).String() != "unknown" {
		t.Error("out-of-range strength should be unknown")
	}
}
