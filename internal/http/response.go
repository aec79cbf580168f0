package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"secureflow/internal/core"
	"secureflow/internal/ingest"
	"secureflow/internal/log"
	"secureflow/internal/storage"
)

type errorBody struct {
	Error string `json:"error"`
}

type okBody struct {
	OK  bool   `json:"ok"`
	Msg string `json:"msg"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// statusFor maps the error taxonomy onto HTTP statuses. Anything not
// recognized is the server's fault.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, ingest.ErrMissingFile),
		errors.Is(err, core.ErrInvalidStatus),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, core.ErrUnknownKind):
		return http.StatusNotFound
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// fail logs err with the request logger and writes it as {"error": msg}.
// Missing files keep their fixed message; everything else reports the
// underlying error text.
func fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	logger := log.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		fields := log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "")
		log.NewStructuredLogger(logger).LogError(r.Context(), "Request failed", err, log.ComponentHTTP, op, fields)
	} else {
		logger.WarnContext(r.Context(), "Request rejected", log.FieldOperation, op, log.FieldError, err)
	}
	writeError(w, status, err.Error())
}
