package world

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"plaza/cmd/identity"
	"plaza/cmd/internal/auth/api"
)

type Handler struct {
	log      *slog.Logger
	svc      *Service
	verifier api.AccessVerifier
	maxBody  int64
}

func NewHandler(log *slog.Logger, svc *Service, verifier api.AccessVerifier, maxBody int64) *Handler {
	if log == nil {
		log = slog.Default()
	}
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Handler{log: log, svc: svc, verifier: verifier, maxBody: maxBody}
}

func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(api.RequireAuth(h.verifier))
		r.With(api.RequireRole(identity.RoleAdmin)).Post("/maps", h.handleCreateMap)
		r.Post("/spaces", h.handleCreateSpace)
		r.Get("/spaces/{id}", h.handleGetSpace)
	})
}

func (h *Handler) handleCreateMap(w http.ResponseWriter, r *http.Request) {
	p, _ := api.PrincipalFrom(r.Context())

	var in CreateMapRequest
	if err := api.DecodeJSON(w, r, h.maxBody, &in); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	m, err := h.svc.CreateMap(r.Context(), p.UserID, in)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.log.Info("world.map.create", "map_id", m.ID, "user_id", p.UserID)
	api.WriteJSON(w, http.StatusCreated, m)
}

func (h *Handler) handleCreateSpace(w http.ResponseWriter, r *http.Request) {
	p, _ := api.PrincipalFrom(r.Context())

	var in CreateSpaceRequest
	if err := api.DecodeJSON(w, r, h.maxBody, &in); err != nil {
		api.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	sp, err := h.svc.CreateSpace(r.Context(), p.UserID, in)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.log.Info("world.space.create", "space_id", sp.ID, "map_id", sp.MapID, "user_id", p.UserID)
	api.WriteJSON(w, http.StatusCreated, sp)
}

func (h *Handler) handleGetSpace(w http.ResponseWriter, r *http.Request) {
	sp, err := h.svc.GetSpace(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, sp)
}

func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrSpaceNotFound):
		api.WriteError(w, http.StatusNotFound, "not_found", "space not found")
	case errors.Is(err, ErrMapNotFound):
		api.WriteError(w, http.StatusNotFound, "not_found", "map not found")
	case errors.Is(err, ErrInvalidInput):
		api.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid input")
	default:
		api.WriteServiceError(w, r, h.log, err)
	}
}
