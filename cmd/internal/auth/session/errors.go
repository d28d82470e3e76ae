package session

import "errors"

var (
	// ErrInvalidToken covers bad signatures, wrong token kinds, expiry and
	// malformed claims.
	ErrInvalidToken = errors.New("invalid token")

	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrSessionRevoked  = errors.New("session revoked")

	// ErrStaleToken means the presented refresh token was already rotated away.
	ErrStaleToken = errors.New("stale refresh token")

	ErrConfig = errors.New("invalid session config")
)

// Unauthenticated reports whether err is one of the errors a caller should
// surface as a plain authentication failure.
func Unauthenticated(err error) bool {
	return errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrSessionExpired) ||
		errors.Is(err, ErrSessionRevoked) ||
		errors.Is(err, ErrStaleToken)
}
