// Package payment implements the order lifecycle and the reconciliation of
// gateway callbacks against local orders.
package payment

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"coin-wallet/internal/discount"
	"coin-wallet/internal/logging"
	"coin-wallet/internal/metrics"
	"coin-wallet/internal/model"
	"coin-wallet/internal/store"
)

var (
	ErrBadAmount   = errors.New("invalid payment amount")
	ErrCoinBounds  = errors.New("coin amount out of bounds")
	ErrTradeNoBusy = errors.New("could not allocate a unique trade number")
)

// Custom (non-package) orders are bounded to keep a typo from creating an
// absurd checkout.
const (
	MinCustomCoins = 1
	MaxCustomCoins = 10000
)

const tradeNoRetries = 3

// OrderStore is the slice of the database the payment service needs for the
// order lifecycle.
type OrderStore interface {
	CreateOrder(o *model.PaymentOrder) error
	GetOrderByTradeNo(outTradeNo string) (*model.PaymentOrder, error)
	SettleOrder(outTradeNo, tradeNo string, paidAmount float64, timeout time.Duration, coinName string) (*model.SettleResult, error)
	GetPendingOrder(userID int64, timeout time.Duration) (*model.PaymentOrder, error)
	GetOrderStatus(outTradeNo string, userID int64, timeout time.Duration) (*model.PaymentOrder, error)
	GetOrders(userID int64, limit int) ([]model.PaymentOrder, error)
	ExpirePendingOrders(timeout time.Duration) (int64, error)
}

// Ledger is the balance-mutation primitive shared with admin adjustment.
type Ledger interface {
	AdjustBalance(userID, amount int64, reason string, ttype model.TType) (*model.BalanceChange, error)
	GetOrCreateBalance(userID int64) (int64, error)
}

// DiscountStore resolves a user's effective discount rate.
type DiscountStore interface {
	GetUserDiscountRate(userID int64) (int, error)
}

type Service struct {
	Orders    OrderStore
	Ledger    Ledger
	Discounts DiscountStore
	Timeout   time.Duration
	CoinName  string
}

func NewService(orders OrderStore, ledger Ledger, discounts DiscountStore, timeout time.Duration, coinName string) *Service {
	return &Service{
		Orders:    orders,
		Ledger:    ledger,
		Discounts: discounts,
		Timeout:   timeout,
		CoinName:  coinName,
	}
}

// NewTradeNo builds a merchant trade number: fixed prefix, second-resolution
// timestamp, 4 random bytes in uppercase hex.
func NewTradeNo() string {
	return "COIN" + time.Now().Format("20060102150405") + tradeSuffix(rand.Reader)
}

// tradeSuffix draws 4 random bytes; if the entropy source fails it falls back
// to the clock so the suffix never collapses to a constant.
func tradeSuffix(r io.Reader) string {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		binary.BigEndian.PutUint32(buf, uint32(time.Now().UnixNano()))
	}
	return strings.ToUpper(hex.EncodeToString(buf))
}

// CreateOrder opens a pending order for a recharge package at the user's
// discounted price. Trade-number collisions are astronomically unlikely but
// retried a few times anyway, since the unique index makes them loud.
func (s *Service) CreateOrder(userID int64, pkg *model.RechargePackage, paymentType string) (*model.PaymentOrder, error) {
	return s.createOrder(userID, pkg.ID, pkg.CoinAmount, pkg.Price, paymentType)
}

// CreateCustomOrder opens a pending order for a caller-chosen coin amount;
// the list price is one currency unit per coin.
func (s *Service) CreateCustomOrder(userID, coinAmount int64, paymentType string) (*model.PaymentOrder, error) {
	if coinAmount < MinCustomCoins || coinAmount > MaxCustomCoins {
		return nil, ErrCoinBounds
	}
	return s.createOrder(userID, 0, coinAmount, float64(coinAmount), paymentType)
}

func (s *Service) createOrder(userID, packageID, coinAmount int64, price float64, paymentType string) (*model.PaymentOrder, error) {
	rate, err := s.Discounts.GetUserDiscountRate(userID)
	if err != nil {
		return nil, err
	}
	actual := discount.Apply(price, rate)

	for i := 0; i < tradeNoRetries; i++ {
		order := &model.PaymentOrder{
			UserID:        userID,
			OutTradeNo:    NewTradeNo(),
			PackageID:     packageID,
			CoinAmount:    coinAmount,
			OriginalPrice: price,
			ActualPrice:   actual,
			DiscountRate:  rate,
			PaymentType:   paymentType,
			Status:        model.OrderPending,
			CreatedAt:     time.Now().UTC(),
		}
		err = s.Orders.CreateOrder(order)
		if errors.Is(err, store.ErrDuplicate) {
			continue
		}
		if err != nil {
			return nil, err
		}
		metrics.OrdersCreatedTotal.Inc()
		return order, nil
	}
	return nil, ErrTradeNoBusy
}

// ProcessPaymentSuccess reconciles a gateway-confirmed payment. It is safe to
// call any number of times for the same trade number: the first call credits,
// every later one is a no-op success. Signature and trade-status checks
// belong to the caller; amount, state and expiry checks happen inside the
// settlement transaction.
func (s *Service) ProcessPaymentSuccess(outTradeNo, tradeNo, money string) (*model.SettleResult, error) {
	amount, err := strconv.ParseFloat(strings.TrimSpace(money), 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrBadAmount, money)
	}

	result, err := s.Orders.SettleOrder(outTradeNo, tradeNo, amount, s.Timeout, s.CoinName)
	if err != nil {
		return nil, err
	}

	if result.AlreadyPaid {
		metrics.CallbacksTotal.WithLabelValues("duplicate").Inc()
		logging.Logg.Info("Duplicate payment callback ignored", "out_trade_no", outTradeNo)
		return result, nil
	}

	metrics.CallbacksTotal.WithLabelValues("settled").Inc()
	metrics.CoinsCreditedTotal.Add(float64(result.Order.CoinAmount))
	logging.Logg.Info("Payment settled",
		"out_trade_no", outTradeNo,
		"trade_no", tradeNo,
		"coin_amount", result.Order.CoinAmount,
		"new_balance", result.NewBalance,
	)
	return result, nil
}

// Adjust applies an admin or consumption delta through the shared ledger
// primitive.
func (s *Service) Adjust(userID, amount int64, reason string, ttype model.TType) (*model.BalanceChange, error) {
	change, err := s.Ledger.AdjustBalance(userID, amount, reason, ttype)
	if err != nil {
		metrics.AdjustmentsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	metrics.AdjustmentsTotal.WithLabelValues("applied").Inc()
	logging.Logg.Info("Balance adjusted",
		"user_id", userID,
		"amount", amount,
		"new_balance", change.NewBalance,
		"type", ttype,
	)
	return change, nil
}

// ExpirePendingOrders sweeps timed-out pending orders into the expired state.
func (s *Service) ExpirePendingOrders() (int64, error) {
	n, err := s.Orders.ExpirePendingOrders(s.Timeout)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.OrdersExpiredTotal.Add(float64(n))
		logging.Logg.Info("Expired pending orders", "count", n)
	}
	return n, nil
}

// GetPendingOrder returns the user's newest still-payable order, or nil.
func (s *Service) GetPendingOrder(userID int64) (*model.PaymentOrder, error) {
	order, err := s.Orders.GetPendingOrder(userID, s.Timeout)
	if errors.Is(err, store.ErrOrderNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *Service) GetOrderStatus(outTradeNo string, userID int64) (*model.PaymentOrder, error) {
	return s.Orders.GetOrderStatus(outTradeNo, userID, s.Timeout)
}

func (s *Service) GetOrders(userID int64, limit int) ([]model.PaymentOrder, error) {
	return s.Orders.GetOrders(userID, limit)
}
