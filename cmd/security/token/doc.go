// Package token hashes high-entropy secrets (refresh tokens) for storage.
//
// Digests are 64-char lowercase hex: HMAC-SHA256 under a server key when one
// is configured, plain SHA-256 otherwise. Comparison is constant time.
//
// Environment:
//   - PLAZA_TOKEN_HMAC_KEY: enables HMAC mode; must be at least MinKeyBytes long.
package token
