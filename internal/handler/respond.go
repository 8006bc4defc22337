package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/promptlab/promptlab/internal/ctxkeys"
	"github.com/promptlab/promptlab/internal/i18n"
	"github.com/promptlab/promptlab/internal/service"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError maps a service error to its status and a message in the
// request's locale. Errors that are not service errors are logged and
// reported as internal.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	locale := ctxkeys.Locale(r.Context())
	kind := service.KindOf(err)

	body := errorBody{
		Code:    string(kind),
		Message: i18n.T(locale, "error."+string(kind)),
	}

	var se *service.Error
	if errors.As(err, &se) {
		if se.MessageKey != "" && i18n.Has(se.MessageKey) {
			body.Message = i18n.T(locale, se.MessageKey, se.Args...)
		}
		if kind == service.KindProviderError {
			body.Detail = se.Detail
		}
	}

	status := kind.Status()
	if status >= http.StatusInternalServerError {
		slog.Error("request failed",
			"error", err,
			"kind", kind,
			"method", r.Method,
			"path", r.URL.Path,
			"user_id", ctxkeys.UserID(r.Context()),
		)
	}

	writeJSON(w, status, map[string]errorBody{"error": body})
}

func invalidRequest(key string, err error, args ...any) error {
	return &service.Error{Kind: service.KindInvalidRequest, MessageKey: key, Args: args, Err: err}
}

// decodeJSON reads a strict JSON body: unknown fields and trailing data are
// rejected.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(v)
	if err != nil {
		return invalidRequest("error.invalid_request", err)
	}
	if dec.More() {
		return invalidRequest("error.invalid_request", errors.New("unexpected data after JSON body"))
	}
	return nil
}
