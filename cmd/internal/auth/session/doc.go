// Package session implements refresh-token sessions and the token codec.
//
// Access tokens are short-lived HS256 JWTs carrying the user's identity and
// role; nothing about them is stored. Refresh tokens are HS256 JWTs whose
// jti is the session id. A session row keeps only the fast hash of the
// current refresh token, and rotation swaps that hash in place under a row
// lock so a stale token can never be redeemed twice.
package session
