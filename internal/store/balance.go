package store

import (
	"database/sql"
	"errors"
	"time"

	"coin-wallet/internal/logging"
	"coin-wallet/internal/model"
)

var ErrInsufficientFunds = errors.New("insufficient balance")

// GetOrCreateBalance returns the user's balance, creating the row with a zero
// balance on first access.
func (r *Database) GetOrCreateBalance(userID int64) (int64, error) {
	_, err := r.DB.Exec(
		`INSERT INTO coin_user_balances (user_id, balance) VALUES ($1, 0)
		 ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return 0, err
	}

	var balance int64
	err = r.DB.QueryRow(
		`SELECT balance FROM coin_user_balances WHERE user_id = $1`, userID).Scan(&balance)
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// adjustInTx is the single balance-mutation primitive: it locks the user's
// balance row, rejects debits that would go below zero, writes the new
// balance and appends the ledger entry with its balance_after snapshot. Both
// payment settlement and admin adjustment funnel through here, always inside
// a caller-owned transaction.
func adjustInTx(tx *sql.Tx, userID, amount int64, reason string, ttype model.TType, outTradeNo string) (*model.BalanceChange, error) {
	_, err := tx.Exec(
		`INSERT INTO coin_user_balances (user_id, balance) VALUES ($1, 0)
		 ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return nil, err
	}

	var oldBalance int64
	err = tx.QueryRow(
		`SELECT balance FROM coin_user_balances WHERE user_id = $1 FOR UPDATE`, userID).Scan(&oldBalance)
	if err != nil {
		return nil, err
	}

	newBalance := oldBalance + amount
	if newBalance < 0 {
		return nil, ErrInsufficientFunds
	}

	_, err = tx.Exec(
		`UPDATE coin_user_balances SET balance = $1 WHERE user_id = $2`, newBalance, userID)
	if err != nil {
		return nil, err
	}

	var tradeNo sql.NullString
	if outTradeNo != "" {
		tradeNo = sql.NullString{String: outTradeNo, Valid: true}
	}
	_, err = tx.Exec(
		`INSERT INTO coin_transactions (user_id, amount, balance_after, reason, transaction_type, out_trade_no, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		userID, amount, newBalance, reason, ttype, tradeNo, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	return &model.BalanceChange{
		UserID:     userID,
		Amount:     amount,
		OldBalance: oldBalance,
		NewBalance: newBalance,
	}, nil
}

// AdjustBalance atomically applies a signed delta to the user's balance and
// appends the matching ledger entry. A debit below zero fails with
// ErrInsufficientFunds and leaves both untouched.
func (r *Database) AdjustBalance(userID, amount int64, reason string, ttype model.TType) (*model.BalanceChange, error) {
	tx, err := r.DB.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	change, err := adjustInTx(tx, userID, amount, reason, ttype, "")
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		logging.Logg.Error("Failed to commit balance adjustment", "user_id", userID, "error", err)
		return nil, err
	}
	return change, nil
}

func (r *Database) GetTransactions(userID int64, limit int) ([]model.Transaction, error) {
	rows, err := r.DB.Query(
		`SELECT id, user_id, amount, balance_after, reason, transaction_type, out_trade_no, created_at
		 FROM coin_transactions
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// GetRecentRecharges lists the newest recharge ledger entries across all
// users, for the admin dashboard.
func (r *Database) GetRecentRecharges(limit int) ([]model.Transaction, error) {
	rows, err := r.DB.Query(
		`SELECT id, user_id, amount, balance_after, reason, transaction_type, out_trade_no, created_at
		 FROM coin_transactions
		 WHERE transaction_type = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`, model.TypeRecharge, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]model.Transaction, error) {
	var transactions []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var tradeNo sql.NullString
		err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.BalanceAfter, &t.Reason, &t.TransactionType, &tradeNo, &t.CreatedAt)
		if err != nil {
			return nil, err
		}
		t.OutTradeNo = tradeNo.String
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return transactions, nil
}

func (r *Database) GetStatistics() (*model.Statistics, error) {
	var stats model.Statistics
	err := r.DB.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(balance), 0) FROM coin_user_balances`).
		Scan(&stats.TotalUsers, &stats.TotalBalance)
	if err != nil {
		return nil, err
	}
	if stats.TotalUsers > 0 {
		stats.AverageBalance = float64(stats.TotalBalance) / float64(stats.TotalUsers)
	}
	return &stats, nil
}

func (r *Database) GetAllBalances(limit int) ([]model.UserBalance, error) {
	rows, err := r.DB.Query(
		`SELECT user_id, balance FROM coin_user_balances ORDER BY balance DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var balances []model.UserBalance
	for rows.Next() {
		var b model.UserBalance
		if err := rows.Scan(&b.UserID, &b.Balance); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return balances, nil
}
