package identity

import "strings"

// NormalizeUsername trims and lower-cases; uniqueness is case-insensitive.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeEmail trims and lower-cases. Emails are stored normalized.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
