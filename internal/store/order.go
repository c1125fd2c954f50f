package store

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"coin-wallet/internal/logging"
	"coin-wallet/internal/model"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrOrderNotPending = errors.New("order is not pending")
	ErrOrderExpired    = errors.New("order expired")
	ErrAmountMismatch  = errors.New("paid amount does not match order price")
)

// amountToleranceCents is the largest accepted difference between the
// gateway's reported amount and the order price, covering currency rounding.
const amountToleranceCents = 1

// AmountWithinTolerance compares prices in whole cents, so a delta of exactly
// one cent is accepted no matter how the floats are represented.
func AmountWithinTolerance(expected, paid float64) bool {
	diff := int64(math.Round(expected*100)) - int64(math.Round(paid*100))
	if diff < 0 {
		diff = -diff
	}
	return diff <= amountToleranceCents
}

func (r *Database) CreateOrder(o *model.PaymentOrder) error {
	var pkgID sql.NullInt64
	if o.PackageID != 0 {
		pkgID = sql.NullInt64{Int64: o.PackageID, Valid: true}
	}

	err := r.DB.QueryRow(
		`INSERT INTO coin_payment_orders
		 (user_id, out_trade_no, recharge_package_id, coin_amount, original_price, actual_price, discount_rate, payment_type, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING order_id`,
		o.UserID, o.OutTradeNo, pkgID, o.CoinAmount, o.OriginalPrice, o.ActualPrice,
		o.DiscountRate, o.PaymentType, model.OrderPending, time.Now().UTC()).Scan(&o.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	o.Status = model.OrderPending
	return nil
}

func (r *Database) GetOrderByTradeNo(outTradeNo string) (*model.PaymentOrder, error) {
	return scanOrder(r.DB.QueryRow(selectOrder+` WHERE out_trade_no = $1`, outTradeNo))
}

const selectOrder = `
	SELECT order_id, user_id, out_trade_no, trade_no, recharge_package_id, coin_amount,
	       original_price, actual_price, discount_rate, payment_type, pay_url, status,
	       created_at, paid_at
	FROM coin_payment_orders`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*model.PaymentOrder, error) {
	var o model.PaymentOrder
	var tradeNo, payURL sql.NullString
	var pkgID sql.NullInt64
	var paidAt sql.NullTime

	err := row.Scan(&o.ID, &o.UserID, &o.OutTradeNo, &tradeNo, &pkgID, &o.CoinAmount,
		&o.OriginalPrice, &o.ActualPrice, &o.DiscountRate, &o.PaymentType, &payURL, &o.Status,
		&o.CreatedAt, &paidAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	o.TradeNo = tradeNo.String
	o.PayURL = payURL.String
	o.PackageID = pkgID.Int64
	if paidAt.Valid {
		o.PaidAt = &paidAt.Time
	}
	return &o, nil
}

// SettleOrder reconciles a confirmed gateway payment against the local order
// inside one transaction. The order row is locked first, so a concurrent
// delivery of the same callback blocks here and then takes the already-paid
// branch; the paid transition, the balance credit and the ledger append are
// all-or-nothing.
func (r *Database) SettleOrder(outTradeNo, tradeNo string, paidAmount float64, timeout time.Duration, coinName string) (*model.SettleResult, error) {
	tx, err := r.DB.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	order, err := scanOrder(tx.QueryRow(selectOrder+` WHERE out_trade_no = $1 FOR UPDATE`, outTradeNo))
	if err != nil {
		return nil, err
	}

	if order.Status == model.OrderPaid {
		return &model.SettleResult{Order: order, AlreadyPaid: true}, nil
	}

	now := time.Now().UTC()
	if order.Status != model.OrderPending {
		return nil, fmt.Errorf("%w: %s is %s", ErrOrderNotPending, outTradeNo, order.Status)
	}
	if order.ExpiredByTime(timeout, now) {
		_, uerr := tx.Exec(`UPDATE coin_payment_orders SET status = $1 WHERE order_id = $2`,
			model.OrderExpired, order.ID)
		if uerr == nil {
			uerr = tx.Commit()
		}
		if uerr != nil {
			logging.Logg.Error("Failed to expire order", "out_trade_no", outTradeNo, "error", uerr)
		}
		return nil, ErrOrderExpired
	}

	if !AmountWithinTolerance(order.ActualPrice, paidAmount) {
		return nil, fmt.Errorf("%w: expected %.2f, got %.2f", ErrAmountMismatch, order.ActualPrice, paidAmount)
	}

	_, err = tx.Exec(
		`UPDATE coin_payment_orders SET status = $1, trade_no = $2, paid_at = $3 WHERE order_id = $4`,
		model.OrderPaid, tradeNo, now, order.ID)
	if err != nil {
		return nil, err
	}

	reason := fmt.Sprintf("Recharge %d %s", order.CoinAmount, coinName)
	change, err := adjustInTx(tx, order.UserID, order.CoinAmount, reason, model.TypeRecharge, order.OutTradeNo)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		logging.Logg.Error("Failed to commit settlement", "out_trade_no", outTradeNo, "error", err)
		return nil, err
	}

	order.Status = model.OrderPaid
	order.TradeNo = tradeNo
	order.PaidAt = &now
	return &model.SettleResult{Order: order, NewBalance: change.NewBalance}, nil
}

// MarkOrderFailed moves a pending order to the terminal failed state.
func (r *Database) MarkOrderFailed(outTradeNo string) error {
	res, err := r.DB.Exec(
		`UPDATE coin_payment_orders SET status = $1 WHERE out_trade_no = $2 AND status = $3`,
		model.OrderFailed, outTradeNo, model.OrderPending)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrOrderNotPending
	}
	return nil
}

// ExpirePendingOrders sweeps every pending order past its deadline into the
// expired state and returns how many were moved.
func (r *Database) ExpirePendingOrders(timeout time.Duration) (int64, error) {
	res, err := r.DB.Exec(
		`UPDATE coin_payment_orders SET status = $1 WHERE status = $2 AND created_at < $3`,
		model.OrderExpired, model.OrderPending, time.Now().UTC().Add(-timeout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetPendingOrder returns the user's newest pending order, lazily expiring it
// when the checkout window has passed.
func (r *Database) GetPendingOrder(userID int64, timeout time.Duration) (*model.PaymentOrder, error) {
	order, err := scanOrder(r.DB.QueryRow(
		selectOrder+` WHERE user_id = $1 AND status = $2 ORDER BY created_at DESC LIMIT 1`,
		userID, model.OrderPending))
	if err != nil {
		return nil, err
	}

	if order.ExpiredByTime(timeout, time.Now().UTC()) {
		if _, err := r.DB.Exec(
			`UPDATE coin_payment_orders SET status = $1 WHERE order_id = $2 AND status = $3`,
			model.OrderExpired, order.ID, model.OrderPending); err != nil {
			return nil, err
		}
		return nil, ErrOrderNotFound
	}
	return order, nil
}

// GetOrderStatus returns the user's order by trade number, lazily expiring a
// pending order past its deadline before reporting.
func (r *Database) GetOrderStatus(outTradeNo string, userID int64, timeout time.Duration) (*model.PaymentOrder, error) {
	order, err := scanOrder(r.DB.QueryRow(
		selectOrder+` WHERE out_trade_no = $1 AND user_id = $2`, outTradeNo, userID))
	if err != nil {
		return nil, err
	}

	if order.Status == model.OrderPending && order.ExpiredByTime(timeout, time.Now().UTC()) {
		if _, err := r.DB.Exec(
			`UPDATE coin_payment_orders SET status = $1 WHERE order_id = $2 AND status = $3`,
			model.OrderExpired, order.ID, model.OrderPending); err != nil {
			return nil, err
		}
		order.Status = model.OrderExpired
	}
	return order, nil
}

func (r *Database) GetOrders(userID int64, limit int) ([]model.PaymentOrder, error) {
	rows, err := r.DB.Query(
		selectOrder+` WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.PaymentOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// SetOrderPayURL records the gateway checkout URL on the order so a pending
// checkout can be resumed.
func (r *Database) SetOrderPayURL(orderID int64, payURL string) error {
	_, err := r.DB.Exec(`UPDATE coin_payment_orders SET pay_url = $1 WHERE order_id = $2`, payURL, orderID)
	return err
}
