package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MinLength = 8
	MaxLength = 128

	// Symbols is the set a password must draw at least one character from.
	Symbols = "!@#$%^&*(),.?\":{}|<>[]\\/~`+=_-"
)

// Violation is one failed policy rule.
type Violation struct {
	Rule    string
	Message string
}

// CheckPolicy returns every rule password breaks, or nil when it is acceptable.
// Length is measured in runes.
func CheckPolicy(password string) []Violation {
	var out []Violation

	n := utf8.RuneCountInString(password)
	if n < MinLength {
		out = append(out, Violation{"too_short", "password must be at least 8 characters"})
	}
	if n > MaxLength {
		out = append(out, Violation{"too_long", "password must be at most 128 characters"})
	}

	var space, control, lower, upper, digit, symbol bool
	for _, r := range password {
		switch {
		case r == 0x7f || r < 0x20:
			// \t \n \r are both whitespace and control; report both.
			if unicode.IsSpace(r) {
				space = true
			}
			control = true
		case unicode.IsSpace(r):
			space = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(Symbols, r):
			symbol = true
		}
	}

	if space {
		out = append(out, Violation{"whitespace", "password must not contain whitespace"})
	}
	if control {
		out = append(out, Violation{"control", "password must not contain control characters"})
	}
	if !lower {
		out = append(out, Violation{"lowercase", "password must contain a lowercase letter"})
	}
	if !upper {
		out = append(out, Violation{"uppercase", "password must contain an uppercase letter"})
	}
	if !digit {
		out = append(out, Violation{"digit", "password must contain a number"})
	}
	if !symbol {
		out = append(out, Violation{"symbol", "password must contain a special character"})
	}
	return out
}
