package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/yashasviy/bank-ledger-api/bank"
)

type errorResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}

func writeValidationError(w http.ResponseWriter, details []ValidationError) {
	writeJSON(w, http.StatusBadRequest, BadRequestErrorResponse{
		Message: "Invalid request data",
		Details: details,
	})
}

// writeEngineError maps engine errors onto HTTP statuses.
func (h *Handler) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, bank.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "Account not found")
	case errors.Is(err, bank.ErrDuplicateAccount):
		writeError(w, http.StatusConflict, "Account already exists")
	case errors.Is(err, bank.ErrInsufficientFunds):
		writeError(w, http.StatusUnprocessableEntity, "Insufficient funds")
	default:
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// decode reads a JSON body into dst and validates it. It writes the 400
// response itself and reports false when the request cannot proceed.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if details := validateRequest(dst); len(details) > 0 {
		writeValidationError(w, details)
		return false
	}
	return true
}
