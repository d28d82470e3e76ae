// Package auth is the account and session lifecycle: signup, signin,
// refresh, signout, profile changes and the admin operations on users.
// HTTP transport lives in auth/api; this package only speaks in Go types
// and the error taxonomy in errors.go.
package auth
