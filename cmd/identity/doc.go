// Package identity holds the User principal and its persistence boundary.
//
// Usernames and emails are unique among active (not soft-deleted) accounts,
// compared case-insensitively. Users are never hard-deleted.
package identity
