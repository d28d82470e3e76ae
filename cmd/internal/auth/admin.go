package auth

import (
	"context"
	"fmt"
	"strings"

	"plaza/cmd/identity"
	"plaza/cmd/internal/auth/session"
)

type SetRoleInput struct {
	Role string `json:"role" validate:"required,oneof=USER ADMIN"`
}

func requireAdmin(actor session.Principal) error {
	if actor.Role != identity.RoleAdmin {
		return ErrForbidden
	}
	return nil
}

// SetRole changes userID's role. The new role reaches access tokens on the
// user's next refresh.
func (s *Service) SetRole(ctx context.Context, actor session.Principal, userID string, in SetRoleInput) (identity.User, error) {
	if err := requireAdmin(actor); err != nil {
		return identity.User{}, err
	}
	in.Role = strings.ToUpper(strings.TrimSpace(in.Role))
	if err := Validate(in); err != nil {
		return identity.User{}, err
	}
	u, err := s.users.SetRole(ctx, strings.TrimSpace(userID), identity.Role(in.Role), s.now())
	if err != nil {
		if identity.IsNotFound(err) {
			return identity.User{}, ErrNotFound
		}
		return identity.User{}, err
	}
	s.log.Info("auth.admin.set_role", "actor", actor.UserID, "user_id", u.ID, "role", u.Role)
	return u, nil
}

type DeleteUsersInput struct {
	CurrentPassword string   `json:"current_password" validate:"required,max=128"`
	UserIDs         []string `json:"user_ids" validate:"required,min=1,max=1000,dive,ulid"`
}

// DeleteUsers soft-deletes a batch of users and revokes their sessions. It
// returns the ids that were actually active.
func (s *Service) DeleteUsers(ctx context.Context, actor session.Principal, in DeleteUsersInput) ([]string, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	for i := range in.UserIDs {
		in.UserIDs[i] = strings.TrimSpace(in.UserIDs[i])
	}
	if err := Validate(in); err != nil {
		return nil, err
	}
	if _, err := s.reverify(ctx, actor.UserID, in.CurrentPassword); err != nil {
		return nil, err
	}

	now := s.now()
	deleted, err := s.users.SoftDeleteUsers(ctx, dedupe(in.UserIDs), now)
	if err != nil {
		return nil, fmt.Errorf("auth.delete_users: %w", err)
	}
	for _, id := range deleted {
		if _, err := s.sessions.CloseAll(ctx, now, id); err != nil {
			s.log.Error("auth.delete_users.revoke.fail", "user_id", id, "err", err)
		}
	}
	s.log.Info("auth.admin.delete_users", "actor", actor.UserID, "requested", len(in.UserIDs), "deleted", len(deleted))
	return deleted, nil
}

// GrantAdmin promotes the user named by identifier. It is the bootstrap
// path for the first administrator and is only reachable from the CLI.
func (s *Service) GrantAdmin(ctx context.Context, identifier string) (identity.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return identity.User{}, invalidField("identifier", "required", "is required")
	}
	u, err := s.lookup(ctx, identifier)
	if err != nil {
		if identity.IsNotFound(err) {
			return identity.User{}, ErrNotFound
		}
		return identity.User{}, err
	}
	return s.users.SetRole(ctx, u.ID, identity.RoleAdmin, s.now())
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
