package migrate

import (
	"errors"
	"testing"

	"plaza/cmd/internal/db"
)

func TestRun_RejectsMissingDSN(t *testing.T) {
	if err := Run("  ", "up"); !errors.Is(err, ErrNoDSN) {
		t.Fatalf("err = %v, want ErrNoDSN", err)
	}
}

func TestRun_RejectsBadDirection(t *testing.T) {
	if err := Run("postgres://localhost/x", "sideways"); !errors.Is(err, ErrBadDirection) {
		t.Fatalf("err = %v, want ErrBadDirection", err)
	}
}

func TestMigrationFS_HasPairedFiles(t *testing.T) {
	entries, err := db.MigrationFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	ups, downs := 0, 0
	for _, e := range entries {
		switch n := e.Name(); {
		case len(n) > 7 && n[len(n)-7:] == ".up.sql":
			ups++
		case len(n) > 9 && n[len(n)-9:] == ".down.sql":
			downs++
		}
	}
	if ups == 0 || ups != downs {
		t.Fatalf("ups=%d downs=%d, want equal and non-zero", ups, downs)
	}
}
