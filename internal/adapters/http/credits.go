package httpadapter

import (
	"net/http"
	"strconv"

	"github.com/kirillkom/studyforge/internal/core/domain"
)

const (
	defaultTransactionsLimit = 50
	maxTransactionsLimit     = 200
)

func (rt *Router) getBalance(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	if err := rt.authorizeUser(r, userID); err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err)
		return
	}

	balance, err := rt.services.Accounts.Balance(r.Context(), userID)
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id": userID,
		"credits": balance,
	})
}

func (rt *Router) listTransactions(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	if err := rt.authorizeUser(r, userID); err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err)
		return
	}

	limit := defaultTransactionsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, r, http.StatusBadRequest, domain.WrapError(domain.ErrInvalidInput, "list transactions", strconv.ErrSyntax))
			return
		}
		limit = min(parsed, maxTransactionsLimit)
	}

	txs, err := rt.services.Accounts.ListTransactions(r.Context(), userID, limit)
	if err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err)
		return
	}
	if txs == nil {
		txs = []domain.CreditTransaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

type verifyPaymentRequest struct {
	Reference string `json:"reference"`
	UserID    string `json:"user_id"`
}

func (rt *Router) verifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, domain.WrapError(domain.ErrInvalidInput, "verify payment", err))
		return
	}
	if err := rt.authorizeUser(r, req.UserID); err != nil {
		writeError(w, r, mapErrorToHTTPStatus(err), err)
		return
	}

	result, err := rt.services.Payments.VerifyPayment(r.Context(), req.UserID, req.Reference)
	if rt.metrics != nil {
		rt.metrics.RecordPayment(serviceName, paymentOutcome(err))
	}
	if err != nil {
		writeError(w, r, mapCommandErrorToHTTPStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
