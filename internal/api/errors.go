package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/p-n-ai/medq/internal/content"
	"github.com/p-n-ai/medq/internal/quiz"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Code       string `json:"code"`
	Kind       string `json:"kind,omitempty"`
	Identifier string `json:"identifier,omitempty"`
	Violation  string `json:"violation,omitempty"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
}

func statusFor(code content.Code) int {
	switch code {
	case content.CodeReferenceViolation:
		return http.StatusUnprocessableEntity
	case content.CodeDuplicateIdentifier:
		return http.StatusConflict
	case content.CodeNotFound:
		return http.StatusNotFound
	case content.CodeSchemaViolation:
		return http.StatusBadRequest
	case content.CodeTransactionAborted:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError maps err to a status and error body. Unknown errors are logged
// and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if ce, ok := content.AsError(err); ok {
		status := statusFor(ce.Code)
		msg := ce.Message
		if msg == "" {
			msg = string(ce.Code)
		}
		if ce.Retryable() {
			w.Header().Set("Retry-After", "1")
		}
		writeErrorBody(w, status, errorBody{
			Code:       string(ce.Code),
			Kind:       string(ce.Kind),
			Identifier: ce.Identifier,
			Violation:  ce.Violation,
			Message:    msg,
			Retryable:  ce.Retryable(),
		})
		if status == http.StatusServiceUnavailable {
			slog.Warn("request aborted", "method", r.Method, "path", r.URL.Path, "error", err)
		}
		return
	}

	switch {
	case errors.Is(err, quiz.ErrNoStudent):
		writeErrorBody(w, http.StatusUnauthorized, errorBody{Code: "unauthenticated", Message: err.Error()})
	case errors.Is(err, quiz.ErrInvalidSubmission):
		writeErrorBody(w, http.StatusBadRequest, errorBody{Code: "invalid_submission", Message: err.Error()})
	case errors.Is(err, quiz.ErrLimitExceeded):
		writeErrorBody(w, http.StatusTooManyRequests, errorBody{Code: "rate_limited", Message: err.Error()})
	case errors.Is(err, errBadRequest):
		writeErrorBody(w, http.StatusBadRequest, errorBody{Code: "bad_request", Message: err.Error()})
	default:
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeErrorBody(w, http.StatusInternalServerError, errorBody{Code: "internal", Message: "internal error"})
	}
}

func writeErrorBody(w http.ResponseWriter, status int, body errorBody) {
	writeJSON(w, status, map[string]errorBody{"error": body})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response failed", "error", err)
	}
}
