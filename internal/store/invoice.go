package store

import (
	"database/sql"
	"errors"
	"time"

	"coin-wallet/internal/model"
)

var (
	ErrInvoiceNotFound    = errors.New("invoice request not found")
	ErrInvoiceNotPending  = errors.New("invoice request is not pending")
	ErrInvoiceNotRejected = errors.New("invoice request is not rejected")
	ErrResubmitExhausted  = errors.New("invoice resubmit limit reached")
)

// CreateInvoiceRequest records an invoice request after checking the amount
// against the user's current balance.
func (r *Database) CreateInvoiceRequest(inv *model.InvoiceRequest) error {
	balance, err := r.GetOrCreateBalance(inv.UserID)
	if err != nil {
		return err
	}
	if inv.Amount > balance {
		return ErrInsufficientFunds
	}

	inv.Status = model.InvoicePending
	inv.CreatedAt = time.Now().UTC()
	return r.DB.QueryRow(
		`INSERT INTO coin_invoice_requests
		 (user_id, amount, status, reason, invoice_type, invoice_title, tax_number, email, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		inv.UserID, inv.Amount, inv.Status, inv.Reason, nullString(inv.InvoiceType),
		nullString(inv.InvoiceTitle), nullString(inv.TaxNumber), nullString(inv.Email),
		inv.CreatedAt).Scan(&inv.ID)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

const selectInvoice = `
	SELECT id, user_id, amount, status, COALESCE(reason, ''), COALESCE(invoice_type, ''),
	       COALESCE(invoice_title, ''), COALESCE(tax_number, ''), COALESCE(email, ''),
	       COALESCE(invoice_url, ''), COALESCE(admin_note, ''), resubmit_count, created_at
	FROM coin_invoice_requests`

func scanInvoice(row rowScanner) (*model.InvoiceRequest, error) {
	var inv model.InvoiceRequest
	err := row.Scan(&inv.ID, &inv.UserID, &inv.Amount, &inv.Status, &inv.Reason, &inv.InvoiceType,
		&inv.InvoiceTitle, &inv.TaxNumber, &inv.Email, &inv.InvoiceURL, &inv.AdminNote,
		&inv.ResubmitCount, &inv.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrInvoiceNotFound
		}
		return nil, err
	}
	return &inv, nil
}

func (r *Database) GetInvoiceRequest(id int64) (*model.InvoiceRequest, error) {
	return scanInvoice(r.DB.QueryRow(selectInvoice+` WHERE id = $1`, id))
}

func (r *Database) GetInvoiceRequests(userID int64, limit int) ([]model.InvoiceRequest, error) {
	return r.queryInvoices(selectInvoice+` WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
}

// GetInvoiceRequestsByStatus lists requests for the admin view; an empty
// status means all.
func (r *Database) GetInvoiceRequestsByStatus(status model.InvoiceStatus, limit int) ([]model.InvoiceRequest, error) {
	if status == "" {
		return r.queryInvoices(selectInvoice+` ORDER BY created_at DESC LIMIT $1`, limit)
	}
	return r.queryInvoices(selectInvoice+` WHERE status = $1 ORDER BY created_at DESC LIMIT $2`, status, limit)
}

func (r *Database) queryInvoices(query string, args ...any) ([]model.InvoiceRequest, error) {
	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []model.InvoiceRequest
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return invoices, nil
}

// CompleteInvoiceRequest marks a pending request completed and attaches the
// issued invoice URL.
func (r *Database) CompleteInvoiceRequest(id int64, invoiceURL, adminNote string) error {
	res, err := r.DB.Exec(
		`UPDATE coin_invoice_requests SET status = $1, invoice_url = $2, admin_note = $3
		 WHERE id = $4 AND status = $5`,
		model.InvoiceCompleted, invoiceURL, nullString(adminNote), id, model.InvoicePending)
	if err != nil {
		return err
	}
	return requireRow(res, ErrInvoiceNotPending)
}

func (r *Database) RejectInvoiceRequest(id int64, adminNote string) error {
	res, err := r.DB.Exec(
		`UPDATE coin_invoice_requests SET status = $1, admin_note = $2
		 WHERE id = $3 AND status = $4`,
		model.InvoiceRejected, nullString(adminNote), id, model.InvoicePending)
	if err != nil {
		return err
	}
	return requireRow(res, ErrInvoiceNotPending)
}

// ResubmitInvoiceRequest moves a rejected request back to pending, bounded by
// the resubmit limit.
func (r *Database) ResubmitInvoiceRequest(id, userID int64) error {
	inv, err := r.GetInvoiceRequest(id)
	if err != nil {
		return err
	}
	if inv.UserID != userID {
		return ErrInvoiceNotFound
	}
	if inv.Status != model.InvoiceRejected {
		return ErrInvoiceNotRejected
	}
	if !inv.CanResubmit() {
		return ErrResubmitExhausted
	}

	res, err := r.DB.Exec(
		`UPDATE coin_invoice_requests SET status = $1, resubmit_count = resubmit_count + 1
		 WHERE id = $2 AND status = $3 AND resubmit_count < $4`,
		model.InvoicePending, id, model.InvoiceRejected, model.MaxInvoiceResubmits)
	if err != nil {
		return err
	}
	return requireRow(res, ErrResubmitExhausted)
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
