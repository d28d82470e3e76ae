// Package db owns the embedded SQL migrations shared by every Postgres store.
package db

import "embed"

// MigrationFS holds migrations/*.sql in golang-migrate naming
// (<version>_<name>.up.sql / .down.sql).
//
//go:embed migrations/*.sql
var MigrationFS embed.FS

// InitialSchema returns the first up migration. Integration tests apply it
// into a throwaway schema.
func InitialSchema() (string, error) {
	b, err := MigrationFS.ReadFile("migrations/0001_init.up.sql")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
