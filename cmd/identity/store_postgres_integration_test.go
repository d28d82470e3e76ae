package identity

import (
	"testing"

	"plaza/cmd/internal/db/dbtest"
)

func TestPostgresStore(t *testing.T) {
	pool := dbtest.OpenPool(t)

	runStoreSuite(t, func(t *testing.T) Store {
		schema := dbtest.NewSchema(t, pool)
		s, err := NewPostgresStore(pool, WithSchema(schema))
		if err != nil {
			t.Fatalf("NewPostgresStore: %v", err)
		}
		return s
	})
}

func TestWithSchema_RejectsBadIdentifier(t *testing.T) {
	s := &PostgresStore{}
	if err := WithSchema(`x"; DROP TABLE users; --`)(s); err == nil {
		t.Fatalf("expected error for hostile schema name")
	}
}
