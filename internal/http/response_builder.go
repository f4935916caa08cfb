package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"budget/internal/core"
	"budget/internal/log"
	"budget/internal/middleware/trace"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

const internalErrorMessage = "internal server error"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps a service error to its HTTP status and client message.
// Messages of 5xx errors are never exposed.
func statusFor(err error) (int, errorBody) {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, errorBody{Error: ve.Message, Field: ve.Field}
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest, errorBody{Error: "invalid request"}
	case errors.Is(err, core.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorBody{Error: "invalid username or password"}
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusUnauthorized, errorBody{Error: "authentication required"}
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, errorBody{Error: "not found"}
	case errors.Is(err, core.ErrDuplicateName):
		return http.StatusConflict, errorBody{Error: "a category with this name already exists"}
	case errors.Is(err, core.ErrCategoryInUse):
		return http.StatusConflict, errorBody{Error: "category is still used by records"}
	case errors.Is(err, core.ErrUsernameTaken):
		return http.StatusConflict, errorBody{Error: "username already taken"}
	default:
		return http.StatusInternalServerError, errorBody{Error: internalErrorMessage}
	}
}

// writeError answers with the mapped status. Server-side failures are logged
// with the full error.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, body := statusFor(err)
	if status >= http.StatusInternalServerError {
		fields := log.NewFields().
			WithHTTPRequest(r.Method, r.URL.Path, "", "").
			WithRequestID(trace.GetRequestID(r.Context()))
		if user, ok := userFrom(r.Context()); ok {
			fields = fields.WithTenant(user.ID)
		}
		s.errors.LogError(r.Context(), "Request failed", err, op, fields)
	}
	writeJSON(w, status, body)
}
