package identity

import (
	"context"
	"errors"
	"testing"
	"time"
)

// runStoreSuite exercises the Store contract; both implementations must pass it.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	create := func(t *testing.T, s Store, username, email string) User {
		t.Helper()
		u, err := s.CreateUser(ctx, CreateUserInput{Username: username, Email: email, PasswordHash: "$argon2id$x", Now: now})
		if err != nil {
			t.Fatalf("CreateUser(%s): %v", username, err)
		}
		return u
	}

	t.Run("create defaults role and normalizes email", func(t *testing.T) {
		s := newStore(t)
		u := create(t, s, "Alice_1", "  Alice@Example.COM ")
		if u.Role != RoleUser {
			t.Fatalf("role = %q, want USER", u.Role)
		}
		if u.Email != "alice@example.com" || u.Username != "Alice_1" {
			t.Fatalf("unexpected user %+v", u)
		}
		if len(u.ID) != 26 {
			t.Fatalf("id %q is not a ULID", u.ID)
		}
	})

	t.Run("username and email are unique case-insensitively", func(t *testing.T) {
		s := newStore(t)
		create(t, s, "bob", "bob@example.com")

		_, err := s.CreateUser(ctx, CreateUserInput{Username: "BOB", Email: "other@example.com", PasswordHash: "h", Now: now})
		if f, ok := ConflictField(err); !ok || f != "username" {
			t.Fatalf("err = %v, want username conflict", err)
		}
		_, err = s.CreateUser(ctx, CreateUserInput{Username: "bobby", Email: "BOB@example.com", PasswordHash: "h", Now: now})
		if f, ok := ConflictField(err); !ok || f != "email" {
			t.Fatalf("err = %v, want email conflict", err)
		}
	})

	t.Run("lookups by username and email", func(t *testing.T) {
		s := newStore(t)
		u := create(t, s, "carol", "carol@example.com")

		got, err := s.GetUserByUsername(ctx, "CAROL")
		if err != nil || got.ID != u.ID {
			t.Fatalf("GetUserByUsername: %+v %v", got, err)
		}
		got, err = s.GetUserByEmail(ctx, "Carol@Example.com")
		if err != nil || got.ID != u.ID {
			t.Fatalf("GetUserByEmail: %+v %v", got, err)
		}
		if _, err := s.GetUser(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ"); !IsNotFound(err) {
			t.Fatalf("GetUser(missing) err = %v", err)
		}
	})

	t.Run("update ignores own row for uniqueness", func(t *testing.T) {
		s := newStore(t)
		u := create(t, s, "dave", "dave@example.com")
		create(t, s, "erin", "erin@example.com")

		same := "Dave"
		got, err := s.UpdateUser(ctx, UpdateUserInput{ID: u.ID, Username: &same, Now: now})
		if err != nil || got.Username != "Dave" {
			t.Fatalf("UpdateUser(own name): %+v %v", got, err)
		}

		taken := "erin@example.com"
		_, err = s.UpdateUser(ctx, UpdateUserInput{ID: u.ID, Email: &taken, Now: now})
		if f, ok := ConflictField(err); !ok || f != "email" {
			t.Fatalf("err = %v, want email conflict", err)
		}

		key := "avatars/x.png"
		hash := "$argon2id$new"
		got, err = s.UpdateUser(ctx, UpdateUserInput{ID: u.ID, AvatarKey: &key, PasswordHash: &hash, Now: now})
		if err != nil || got.AvatarKey == nil || *got.AvatarKey != key || got.PasswordHash != hash {
			t.Fatalf("UpdateUser(avatar,password): %+v %v", got, err)
		}
		if got.Email != "dave@example.com" {
			t.Fatalf("untouched email changed to %q", got.Email)
		}

		if _, err := s.UpdateUser(ctx, UpdateUserInput{ID: u.ID}); !IsInvalidInput(err) {
			t.Fatalf("empty update err = %v, want invalid input", err)
		}
	})

	t.Run("set role", func(t *testing.T) {
		s := newStore(t)
		u := create(t, s, "frank", "frank@example.com")

		got, err := s.SetRole(ctx, u.ID, RoleAdmin, now)
		if err != nil || got.Role != RoleAdmin {
			t.Fatalf("SetRole: %+v %v", got, err)
		}
		if _, err := s.SetRole(ctx, u.ID, Role("ROOT"), now); !IsInvalidInput(err) {
			t.Fatalf("SetRole(ROOT) err = %v", err)
		}
	})

	t.Run("soft delete hides user and frees handle", func(t *testing.T) {
		s := newStore(t)
		u := create(t, s, "gina", "gina@example.com")

		if err := s.SoftDeleteUser(ctx, u.ID, now); err != nil {
			t.Fatalf("SoftDeleteUser: %v", err)
		}
		if err := s.SoftDeleteUser(ctx, u.ID, now); !IsNotFound(err) {
			t.Fatalf("second delete err = %v, want not found", err)
		}
		if _, err := s.GetUser(ctx, u.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("GetUser after delete err = %v", err)
		}
		create(t, s, "gina", "gina@example.com")
	})

	t.Run("batch soft delete reports deleted ids", func(t *testing.T) {
		s := newStore(t)
		a := create(t, s, "hank", "hank@example.com")
		b := create(t, s, "ivy", "ivy@example.com")
		if err := s.SoftDeleteUser(ctx, b.ID, now); err != nil {
			t.Fatalf("SoftDeleteUser: %v", err)
		}

		got, err := s.SoftDeleteUsers(ctx, []string{a.ID, b.ID, "01HZZZZZZZZZZZZZZZZZZZZZZZ"}, now)
		if err != nil {
			t.Fatalf("SoftDeleteUsers: %v", err)
		}
		if len(got) != 1 || got[0] != a.ID {
			t.Fatalf("deleted = %v, want [%s]", got, a.ID)
		}
	})
}
