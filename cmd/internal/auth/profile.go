package auth

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"plaza/cmd/identity"
	"plaza/cmd/identity/ids"
	"plaza/cmd/internal/blob"
)

type UpdateProfileInput struct {
	CurrentPassword string  `json:"current_password" validate:"required,max=128"`
	Username        *string `json:"new_username" validate:"omitempty,min=3,max=32,username"`
	Email           *string `json:"new_email" validate:"omitempty,max=254,email"`
	Password        *string `json:"new_password"`
	AvatarKey       *string `json:"new_avatar_key" validate:"omitempty,max=512"`
}

func (in UpdateProfileInput) empty() bool {
	return in.Username == nil && in.Email == nil && in.Password == nil && in.AvatarKey == nil
}

// UpdateProfile re-verifies the current password and applies the requested
// changes. A password change revokes every session of the user.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in UpdateProfileInput) (identity.User, error) {
	in.Username = trim(in.Username)
	in.AvatarKey = trim(in.AvatarKey)
	if in.Email != nil {
		e := identity.NormalizeEmail(*in.Email)
		in.Email = &e
	}

	ve := &ValidationError{}
	if err := merge(ve, Validate(in)); err != nil {
		return identity.User{}, err
	}
	if in.empty() {
		ve.add("profile", "empty", "at least one field must change")
	}
	if in.Password != nil {
		checkPassword(ve, "new_password", *in.Password)
	}
	if err := ve.orNil(); err != nil {
		return identity.User{}, err
	}

	if _, err := s.reverify(ctx, userID, in.CurrentPassword); err != nil {
		return identity.User{}, err
	}

	if in.AvatarKey != nil {
		if !strings.HasPrefix(*in.AvatarKey, "avatars/"+userID+"/") {
			return identity.User{}, invalidField("new_avatar_key", "owner", "avatar does not belong to this user")
		}
		ok, err := s.blobs.Exists(ctx, *in.AvatarKey)
		if err != nil {
			return identity.User{}, fmt.Errorf("auth.update_profile: %w", err)
		}
		if !ok {
			return identity.User{}, invalidField("new_avatar_key", "missing", "avatar does not exist")
		}
	}

	upd := identity.UpdateUserInput{ID: userID, Username: in.Username, Email: in.Email, AvatarKey: in.AvatarKey, Now: s.now()}
	if in.Password != nil {
		hash, err := s.hasher.HashPassword(*in.Password)
		if err != nil {
			return identity.User{}, fmt.Errorf("auth.update_profile: hash: %w", err)
		}
		upd.PasswordHash = &hash
	}

	u, err := s.users.UpdateUser(ctx, upd)
	if err != nil {
		if identity.IsNotFound(err) {
			return identity.User{}, ErrUnauthorized
		}
		return identity.User{}, err
	}

	if upd.PasswordHash != nil {
		n, err := s.sessions.CloseAll(ctx, s.now(), userID)
		if err != nil {
			s.log.Error("auth.update_profile.revoke.fail", "user_id", userID, "err", err)
		} else {
			s.log.Info("auth.update_profile.sessions_revoked", "user_id", userID, "count", n)
		}
	}
	return u, nil
}

// DeleteAccount soft-deletes the caller after re-verifying the password.
func (s *Service) DeleteAccount(ctx context.Context, userID, currentPassword string) error {
	u, err := s.reverify(ctx, userID, currentPassword)
	if err != nil {
		return err
	}
	now := s.now()
	if err := s.users.SoftDeleteUser(ctx, userID, now); err != nil {
		if identity.IsNotFound(err) {
			return ErrUnauthorized
		}
		return err
	}
	if _, err := s.sessions.CloseAll(ctx, now, userID); err != nil {
		s.log.Error("auth.delete_account.revoke.fail", "user_id", userID, "err", err)
	}
	s.dropBlob(ctx, u.AvatarKey)
	return nil
}

// ReplaceAvatar validates data as an image, stores it under a fresh key and
// points the user at it. The previous object is deleted best-effort.
func (s *Service) ReplaceAvatar(ctx context.Context, userID string, data []byte) (identity.User, error) {
	img, err := blob.InspectImage(data)
	if err != nil {
		return identity.User{}, invalidField("avatar", "image", err.Error())
	}
	prev, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if identity.IsNotFound(err) {
			return identity.User{}, ErrUnauthorized
		}
		return identity.User{}, err
	}

	now := s.now()
	id, err := ids.NewULID(now)
	if err != nil {
		return identity.User{}, err
	}
	key := fmt.Sprintf("avatars/%s/%s.%s", userID, id, img.Ext)
	if err := s.blobs.Put(ctx, key, img.ContentType, bytes.NewReader(data), int64(len(data))); err != nil {
		return identity.User{}, fmt.Errorf("auth.replace_avatar: %w", err)
	}

	u, err := s.users.UpdateUser(ctx, identity.UpdateUserInput{ID: userID, AvatarKey: &key, Now: now})
	if err != nil {
		s.dropBlob(ctx, &key)
		if identity.IsNotFound(err) {
			return identity.User{}, ErrUnauthorized
		}
		return identity.User{}, err
	}
	s.dropBlob(ctx, prev.AvatarKey)
	return u, nil
}

func (s *Service) dropBlob(ctx context.Context, key *string) {
	if key == nil || *key == "" {
		return
	}
	if err := s.blobs.Delete(ctx, *key); err != nil {
		s.log.Warn("auth.blob.delete.fail", "key", *key, "err", err)
	}
}
