package api

import (
	"time"

	"plaza/cmd/identity"
)

type userResponse struct {
	ID        string        `json:"id"`
	Username  string        `json:"username"`
	Email     string        `json:"email"`
	Role      identity.Role `json:"role"`
	AvatarKey *string       `json:"avatar_key,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

func toUserResponse(u identity.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		AvatarKey: u.AvatarKey,
		CreatedAt: u.CreatedAt,
	}
}

type signupRequest struct {
	Username string `json:"username"`
	// Handle is accepted as an alias for Username.
	Handle   string `json:"handle"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type signupResponse struct {
	ID string `json:"id"`
}

type signinResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int64        `json:"expires_in"`
	User        userResponse `json:"user"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type deleteAccountRequest struct {
	CurrentPassword string `json:"current_password"`
}

type deleteUsersResponse struct {
	Deleted []string `json:"deleted"`
}
