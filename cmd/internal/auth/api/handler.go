// Package api is the HTTP surface of the auth service: account endpoints,
// the refresh cookie, bearer-token middleware and the audit trail.
package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"plaza/cmd/identity"
	"plaza/cmd/internal/auth"
	"plaza/cmd/internal/auth/session"
)

// Handler wires HTTP endpoints to the auth service.
type Handler struct {
	log   *slog.Logger
	cfg   Config
	svc   *auth.Service
	audit Auditor
}

type HandlerOption func(*Handler)

// WithAuditor overrides the default log-backed auditor.
func WithAuditor(a Auditor) HandlerOption {
	return func(h *Handler) {
		if a != nil {
			h.audit = a
		}
	}
}

func NewHandler(log *slog.Logger, cfg Config, svc *auth.Service, opts ...HandlerOption) (*Handler, error) {
	if svc == nil {
		return nil, errors.New("api: nil auth service")
	}
	if log == nil {
		log = slog.Default()
	}
	h := &Handler{log: log, cfg: cfg, svc: svc, audit: LogAuditor{Log: log}}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h, nil
}

// Verifier returns the access-token verifier used by RequireAuth.
func (h *Handler) Verifier() AccessVerifier { return h.svc.Sessions() }

// Register mounts /auth, /users and /admin on r.
func (h *Handler) Register(r chi.Router) {
	v := h.Verifier()

	r.Route("/auth", func(r chi.Router) {
		r.With(OptionalAuth(v)).Post("/signup", h.handleSignup)
		r.Post("/signin", h.handleSignin)
		r.Post("/refresh", h.handleRefresh)
		r.Post("/signout", h.handleSignout)
	})

	r.Route("/users/me", func(r chi.Router) {
		r.Use(RequireAuth(v))
		r.Get("/", h.handleMe)
		r.Patch("/", h.handleUpdateProfile)
		r.Delete("/", h.handleDeleteAccount)
		r.Put("/avatar", h.handleAvatar)
	})

	r.Route("/admin/users", func(r chi.Router) {
		r.Use(RequireAuth(v), RequireRole(identity.RoleAdmin))
		r.Put("/{id}/role", h.handleSetRole)
		r.Post("/delete", h.handleDeleteUsers)
	})
}

func (h *Handler) event(r *http.Request, action string) AuditEvent {
	return AuditEvent{
		Action:    action,
		IP:        ClientIP(r, h.cfg.TrustProxy),
		UserAgent: r.UserAgent(),
	}
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeBadJSON(w, err)
		return
	}
	username := req.Username
	if strings.TrimSpace(username) == "" {
		username = req.Handle
	}

	var actor *session.Principal
	if p, ok := PrincipalFrom(r.Context()); ok {
		actor = &p
	}
	u, err := h.svc.Signup(r.Context(), actor, auth.SignupInput{
		Username: username,
		Email:    req.Email,
		Password: req.Password,
		Role:     req.Role,
	})
	if err != nil {
		WriteServiceError(w, r, h.log, err)
		return
	}

	ev := h.event(r, "auth.signup")
	ev.UserID = u.ID
	ev.Meta = map[string]any{"role": string(u.Role)}
	h.audit.Record(r.Context(), ev)

	WriteJSON(w, http.StatusCreated, signupResponse{ID: u.ID})
}

func (h *Handler) handleSignin(w http.ResponseWriter, r *http.Request) {
	var in auth.SigninInput
	if err := DecodeJSON(w, r, h.cfg.MaxBodyBytes, &in); err != nil {
		writeBadJSON(w, err)
		return
	}

	toks, err := h.svc.Signin(r.Context(), in, r.UserAgent())
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			ev := h.event(r, "auth.signin.fail")
			ev.Meta = map[string]any{"identifier": strings.ToLower(strings.TrimSpace(in.Identifier))}
			h.audit.Record(r.Context(), ev)
		}
		WriteServiceError(w, r, h.log, err)
		return
	}

	ev := h.event(r, "auth.signin.ok")
	ev.UserID, ev.SessionID = toks.User.ID, toks.Refresh.SessionID
	h.audit.Record(r.Context(), ev)

	h.setRefreshCookie(w, toks.Refresh.Token, toks.Refresh.TTL)
	WriteJSON(w, http.StatusOK, signinResponse{
		AccessToken: toks.Access.Token,
		TokenType:   "Bearer",
		ExpiresIn:   toks.Access.ExpiresIn(),
		User:        toUserResponse(toks.User),
	})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	presented, _ := refreshTokenFromCookie(r)

	toks, err := h.svc.Refresh(r.Context(), presented)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			h.audit.Record(r.Context(), h.event(r, "auth.refresh.fail"))
			h.clearRefreshCookie(w)
		}
		WriteServiceError(w, r, h.log, err)
		return
	}

	ev := h.event(r, "auth.refresh.ok")
	ev.UserID, ev.SessionID = toks.User.ID, toks.Refresh.SessionID
	h.audit.Record(r.Context(), ev)

	h.setRefreshCookie(w, toks.Refresh.Token, toks.Refresh.TTL)
	WriteJSON(w, http.StatusOK, refreshResponse{
		AccessToken: toks.Access.Token,
		TokenType:   "Bearer",
		ExpiresIn:   toks.Access.ExpiresIn(),
	})
}

// handleSignout always answers 204 and clears the cookie; the outcome on
// the server side is only logged.
func (h *Handler) handleSignout(w http.ResponseWriter, r *http.Request) {
	if presented, ok := refreshTokenFromCookie(r); ok {
		claims, err := h.svc.Signout(r.Context(), presented)
		switch {
		case err == nil:
			ev := h.event(r, "auth.signout")
			ev.UserID, ev.SessionID = claims.UserID(), claims.SessionID()
			h.audit.Record(r.Context(), ev)
		case errors.Is(err, auth.ErrUnauthorized):
			h.log.Debug("auth.signout.noop", "request_id", RequestID(r.Context()))
		default:
			h.log.Error("auth.signout.fail", "err", err, "request_id", RequestID(r.Context()))
		}
	}
	h.clearRefreshCookie(w)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	u, err := h.svc.Me(r.Context(), p.UserID)
	if err != nil {
		WriteServiceError(w, r, h.log, err)
		return
	}
	WriteJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	var in auth.UpdateProfileInput
	if err := DecodeJSON(w, r, h.cfg.MaxBodyBytes, &in); err != nil {
		writeBadJSON(w, err)
		return
	}
	u, err := h.svc.UpdateProfile(r.Context(), p.UserID, in)
	if err != nil {
		WriteServiceError(w, r, h.log, err)
		return
	}

	ev := h.event(r, "user.profile.update")
	ev.UserID = u.ID
	ev.Meta = map[string]any{
		"username": in.Username != nil,
		"email":    in.Email != nil,
		"password": in.Password != nil,
		"avatar":   in.AvatarKey != nil,
	}
	h.audit.Record(r.Context(), ev)

	WriteJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *Handler) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	var req deleteAccountRequest
	if err := DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeBadJSON(w, err)
		return
	}
	if err := h.svc.DeleteAccount(r.Context(), p.UserID, req.CurrentPassword); err != nil {
		WriteServiceError(w, r, h.log, err)
		return
	}

	ev := h.event(r, "user.delete")
	ev.UserID = p.UserID
	h.audit.Record(r.Context(), ev)

	h.clearRefreshCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// handleAvatar takes a multipart upload in the "avatar" field.
func (h *Handler) handleAvatar(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	file, _, err := r.FormFile("avatar")
	if err != nil {
		writeErrorDetails(w, http.StatusBadRequest, "invalid_upload", "multipart field avatar is required",
			[]auth.FieldError{{Field: "avatar", Message: "is required", Code: "required"}})
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		writeBadJSON(w, err)
		return
	}
	u, err := h.svc.ReplaceAvatar(r.Context(), p.UserID, data)
	if err != nil {
		WriteServiceError(w, r, h.log, err)
		return
	}
	WriteJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *Handler) handleSetRole(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	userID := chi.URLParam(r, "id")

	var in auth.SetRoleInput
	if err := DecodeJSON(w, r, h.cfg.MaxBodyBytes, &in); err != nil {
		writeBadJSON(w, err)
		return
	}
	u, err := h.svc.SetRole(r.Context(), p, userID, in)
	if err != nil {
		WriteServiceError(w, r, h.log, err)
		return
	}

	ev := h.event(r, "admin.user.role")
	ev.UserID = p.UserID
	ev.Meta = map[string]any{"target": u.ID, "role": string(u.Role)}
	h.audit.Record(r.Context(), ev)

	WriteJSON(w, http.StatusOK, toUserResponse(u))
}

func (h *Handler) handleDeleteUsers(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	var in auth.DeleteUsersInput
	if err := DecodeJSON(w, r, h.cfg.MaxBodyBytes, &in); err != nil {
		writeBadJSON(w, err)
		return
	}
	deleted, err := h.svc.DeleteUsers(r.Context(), p, in)
	if err != nil {
		WriteServiceError(w, r, h.log, err)
		return
	}

	ev := h.event(r, "admin.user.delete")
	ev.UserID = p.UserID
	ev.Meta = map[string]any{"requested": len(in.UserIDs), "deleted": len(deleted)}
	h.audit.Record(r.Context(), ev)

	if deleted == nil {
		deleted = []string{}
	}
	WriteJSON(w, http.StatusOK, deleteUsersResponse{Deleted: deleted})
}
