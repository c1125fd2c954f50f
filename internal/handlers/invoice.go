package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"coin-wallet/internal/model"
	"coin-wallet/internal/store"

	"github.com/go-chi/chi"
)

type invoiceRequest struct {
	Amount       int64  `json:"amount"`
	Reason       string `json:"reason"`
	InvoiceType  string `json:"invoice_type"`
	InvoiceTitle string `json:"invoice_title"`
	TaxNumber    string `json:"tax_number"`
	Email        string `json:"email"`
}

func (s *Server) CreateInvoiceRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	var req invoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Amount <= 0 {
		http.Error(w, "Amount must be positive", http.StatusBadRequest)
		return
	}
	if req.InvoiceType != "" && req.InvoiceType != "personal" && req.InvoiceType != "company" {
		http.Error(w, "Invoice type must be personal or company", http.StatusBadRequest)
		return
	}

	inv := &model.InvoiceRequest{
		UserID:       user.ID,
		Amount:       req.Amount,
		Reason:       req.Reason,
		InvoiceType:  req.InvoiceType,
		InvoiceTitle: req.InvoiceTitle,
		TaxNumber:    req.TaxNumber,
		Email:        req.Email,
	}
	if err := s.Store.CreateInvoiceRequest(inv); err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			http.Error(w, "Requested amount exceeds current balance", http.StatusUnprocessableEntity)
			return
		}
		http.Error(w, "Failed to create invoice request", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "invoice": inv})
}

func (s *Server) GetInvoiceRequests(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	invoices, err := s.Store.GetInvoiceRequests(user.ID, limitParam(r, 20))
	if err != nil {
		http.Error(w, "Failed to fetch invoice requests", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "invoices": invoices})
}

func (s *Server) ResubmitInvoiceRequest(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	id, ok := idParam(w, r)
	if !ok {
		return
	}

	err := s.Store.ResubmitInvoiceRequest(id, user.ID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	case errors.Is(err, store.ErrInvoiceNotFound):
		http.Error(w, "Invoice request not found", http.StatusNotFound)
	case errors.Is(err, store.ErrInvoiceNotRejected):
		http.Error(w, "Only rejected requests can be resubmitted", http.StatusUnprocessableEntity)
	case errors.Is(err, store.ErrResubmitExhausted):
		http.Error(w, "Resubmit limit reached", http.StatusUnprocessableEntity)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := parseInt64(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		http.Error(w, "Invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
