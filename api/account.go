package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yashasviy/bank-ledger-api/models"
)

// CreateAccount handles POST /api/account.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAccountRequest
	if !decode(w, r, &req) {
		return
	}

	view, err := h.ledger.CreateAccount(r.Context(), req.FirstName, req.LastName)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// GetAccount handles GET /api/account/{lastName}.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	view, err := h.ledger.GetAccount(r.Context(), chi.URLParam(r, "lastName"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
