package api

import (
	"errors"
	"log/slog"
	"net/http"

	"plaza/cmd/identity"
	"plaza/cmd/internal/auth"
)

// WriteServiceError maps the auth error taxonomy onto HTTP. Anything it does
// not recognize is logged with the request id and reported as a bare 500.
func WriteServiceError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	if ve, ok := auth.AsValidation(err); ok {
		writeErrorDetails(w, http.StatusBadRequest, "validation_failed", "request is invalid", ve.Fields)
		return
	}
	if field, ok := identity.ConflictField(err); ok {
		writeErrorDetails(w, http.StatusConflict, "conflict", field+" is already taken", map[string]string{"field": field})
		return
	}

	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication failed")
	case errors.Is(err, auth.ErrForbidden):
		WriteError(w, http.StatusForbidden, "forbidden", "insufficient role")
	case errors.Is(err, auth.ErrNotFound), identity.IsNotFound(err):
		WriteError(w, http.StatusNotFound, "not_found", "resource not found")
	case identity.IsInvalidInput(err):
		WriteError(w, http.StatusBadRequest, "invalid_request", "invalid input")
	default:
		if log == nil {
			log = slog.Default()
		}
		log.Error("http.internal_error", "err", err, "request_id", RequestID(r.Context()), "path", r.URL.Path)
		WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

func writeBadJSON(w http.ResponseWriter, err error) {
	writeErrorDetails(w, http.StatusBadRequest, "invalid_json", "invalid request body",
		[]auth.FieldError{{Field: "body", Message: err.Error(), Code: "json"}})
}
