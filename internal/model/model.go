package model

import "time"

type User struct {
	ID           int64  `json:"user_id"`
	Username     string `json:"login"`
	PasswordHash string `json:"-"`
	IsAdmin      bool   `json:"is_admin"`
}

// UserBalance is the single mutable row per user. It is created lazily with a
// zero balance and only ever changed together with a ledger append.
type UserBalance struct {
	UserID  int64 `json:"user_id"`
	Balance int64 `json:"balance"`
}

type TType string

const (
	TypeRecharge    TType = "recharge"
	TypeAdminAdjust TType = "admin_adjust"
	TypeConsumption TType = "consumption"
)

// Transaction is an append-only ledger entry. BalanceAfter snapshots the
// user's balance at the moment the entry was written.
type Transaction struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	Amount          int64     `json:"amount"`
	BalanceAfter    int64     `json:"balance_after"`
	Reason          string    `json:"reason"`
	TransactionType TType     `json:"transaction_type"`
	OutTradeNo      string    `json:"out_trade_no,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type OrderStatus string

const (
	OrderPending OrderStatus = "pending"
	OrderPaid    OrderStatus = "paid"
	OrderFailed  OrderStatus = "failed"
	OrderExpired OrderStatus = "expired"
)

// PaymentOrder is one checkout attempt. OutTradeNo is the merchant-side trade
// number handed to the gateway; TradeNo is the gateway's own reference, set
// only when the order is paid. paid, failed and expired are terminal.
type PaymentOrder struct {
	ID            int64       `json:"id"`
	UserID        int64       `json:"user_id"`
	OutTradeNo    string      `json:"out_trade_no"`
	TradeNo       string      `json:"trade_no,omitempty"`
	PackageID     int64       `json:"recharge_package_id,omitempty"`
	CoinAmount    int64       `json:"coin_amount"`
	OriginalPrice float64     `json:"original_price"`
	ActualPrice   float64     `json:"actual_price"`
	DiscountRate  int         `json:"discount_rate"`
	PaymentType   string      `json:"payment_type"`
	PayURL        string      `json:"pay_url,omitempty"`
	Status        OrderStatus `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
	PaidAt        *time.Time  `json:"paid_at,omitempty"`
}

// ExpiredByTime reports whether the order has outlived the checkout window.
// It says nothing about the stored status.
func (o *PaymentOrder) ExpiredByTime(timeout time.Duration, now time.Time) bool {
	return now.Sub(o.CreatedAt) > timeout
}

// CanProcessCallback reports whether a gateway callback may still settle this
// order: it must be pending and inside the checkout window.
func (o *PaymentOrder) CanProcessCallback(timeout time.Duration, now time.Time) bool {
	return o.Status == OrderPending && !o.ExpiredByTime(timeout, now)
}

// RemainingSeconds returns how long the user still has to pay, zero for
// non-pending or timed-out orders.
func (o *PaymentOrder) RemainingSeconds(timeout time.Duration, now time.Time) int64 {
	if o.Status != OrderPending || o.ExpiredByTime(timeout, now) {
		return 0
	}
	left := o.CreatedAt.Add(timeout).Sub(now)
	secs := int64(left.Seconds())
	if secs < 0 {
		return 0
	}
	return secs
}

// BalanceChange is the result of one atomic balance adjustment.
type BalanceChange struct {
	UserID     int64 `json:"user_id"`
	Amount     int64 `json:"amount"`
	OldBalance int64 `json:"old_balance"`
	NewBalance int64 `json:"new_balance"`
}

// SettleResult is the outcome of reconciling a successful payment callback.
type SettleResult struct {
	Order       *PaymentOrder
	AlreadyPaid bool
	NewBalance  int64
}

type DiscountGroup struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	DiscountRate int    `json:"discount_rate"`
	Description  string `json:"description,omitempty"`
	UserCount    int64  `json:"user_count,omitempty"`
}

type RechargePackage struct {
	ID           int64   `json:"id"`
	CoinAmount   int64   `json:"coin_amount"`
	Price        float64 `json:"price"`
	Description  string  `json:"description,omitempty"`
	DisplayOrder int     `json:"display_order"`
	Recommended  bool    `json:"recommended"`
	Active       bool    `json:"active"`
}

type InvoiceStatus string

const (
	InvoicePending   InvoiceStatus = "pending"
	InvoiceCompleted InvoiceStatus = "completed"
	InvoiceRejected  InvoiceStatus = "rejected"
)

// MaxInvoiceResubmits bounds how many times a rejected request can be
// resubmitted.
const MaxInvoiceResubmits = 2

type InvoiceRequest struct {
	ID            int64         `json:"id"`
	UserID        int64         `json:"user_id"`
	Amount        int64         `json:"amount"`
	Status        InvoiceStatus `json:"status"`
	Reason        string        `json:"reason,omitempty"`
	InvoiceType   string        `json:"invoice_type,omitempty"`
	InvoiceTitle  string        `json:"invoice_title,omitempty"`
	TaxNumber     string        `json:"tax_number,omitempty"`
	Email         string        `json:"email,omitempty"`
	InvoiceURL    string        `json:"invoice_url,omitempty"`
	AdminNote     string        `json:"admin_note,omitempty"`
	ResubmitCount int           `json:"resubmit_count"`
	CreatedAt     time.Time     `json:"created_at"`
}

func (i *InvoiceRequest) CanResubmit() bool {
	return i.Status == InvoiceRejected && i.ResubmitCount < MaxInvoiceResubmits
}

type PaymentChannel struct {
	Type string `json:"type"`
	Name string `json:"name"`
	Icon string `json:"icon"`
}

// PaymentChannelConfig is the admin view of a payment channel row: the
// user-facing listing only shows enabled channels in display order.
type PaymentChannelConfig struct {
	ID           int64  `json:"id"`
	Type         string `json:"type"`
	Name         string `json:"name"`
	Icon         string `json:"icon"`
	Enabled      bool   `json:"enabled"`
	DisplayOrder int    `json:"display_order"`
}

type Statistics struct {
	TotalUsers     int64   `json:"total_users"`
	TotalBalance   int64   `json:"total_balance"`
	AverageBalance float64 `json:"average_balance"`
}
