package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yashasviy/bank-ledger-api/models"
)

// Deposit handles POST /api/transaction/{lastName}/deposit.
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req models.TransactionRequest
	if !decode(w, r, &req) {
		return
	}

	view, err := h.ledger.Deposit(r.Context(), chi.URLParam(r, "lastName"), *req.Amount)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, view)
}

// Withdraw handles POST /api/transaction/{lastName}/withdraw.
func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req models.TransactionRequest
	if !decode(w, r, &req) {
		return
	}

	view, err := h.ledger.Withdraw(r.Context(), chi.URLParam(r, "lastName"), *req.Amount)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, view)
}

// Transfer handles POST /api/transaction/{lastName}/transfer. The response is
// the source account after the debit.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req models.TransferRequest
	if !decode(w, r, &req) {
		return
	}

	view, err := h.ledger.Transfer(r.Context(), chi.URLParam(r, "lastName"), req.DestinationAccountLastName, *req.Amount)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, view)
}
