// Package validate holds the pure answer-format checks used by the
// conversation engine. Inputs are expected to be pre-trimmed.
package validate

import (
	"strings"
	"time"
	"unicode"
)

// NationalID accepts 5 to 9 digits, nothing else.
func NationalID(s string) bool {
	if len(s) < 5 || len(s) > 9 {
		return false
	}
	return digitsOnly(s)
}

// PassportNumber accepts exactly two letters followed by five digits,
// e.g. AB12345. Callers upper-case before checking.
func PassportNumber(s string) bool {
	if len(s) != 7 {
		return false
	}
	for _, r := range s[:2] {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return digitsOnly(s[2:])
}

// TaxPIN accepts exactly 11 alphanumeric characters. Callers upper-case
// before checking.
func TaxPIN(s string) bool {
	if len(s) != 11 {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// DateOfBirth accepts DD/MM/YYYY dates that actually exist on the calendar.
func DateOfBirth(s string) bool {
	_, err := time.Parse("02/01/2006", s)
	return err == nil
}

// YesNo interprets a free-text yes/no answer. The second return is false
// when the answer is neither.
func YesNo(s string) (yes bool, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y":
		return true, true
	case "no", "n":
		return false, true
	}
	return false, false
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
