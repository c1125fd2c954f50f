package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"coin-wallet/internal/discount"
	"coin-wallet/internal/epay"
	"coin-wallet/internal/logging"
	"coin-wallet/internal/model"
	"coin-wallet/internal/payment"
	"coin-wallet/internal/store"
)

// GetPackages lists active recharge packages together with the user's
// discount and the price they would actually pay.
func (s *Server) GetPackages(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	packages, err := s.Store.GetActivePackages()
	if err != nil {
		http.Error(w, "Failed to fetch packages", http.StatusInternalServerError)
		return
	}
	rate, err := s.Store.GetUserDiscountRate(user.ID)
	if err != nil {
		http.Error(w, "Failed to resolve discount", http.StatusInternalServerError)
		return
	}
	balance, err := s.Store.GetOrCreateBalance(user.ID)
	if err != nil {
		http.Error(w, "Failed to read balance", http.StatusInternalServerError)
		return
	}

	type pkgView struct {
		model.RechargePackage
		DiscountedPrice float64 `json:"discounted_price"`
	}
	views := make([]pkgView, 0, len(packages))
	for _, p := range packages {
		views = append(views, pkgView{p, discount.Apply(p.Price, rate)})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"packages":      views,
		"discount_rate": rate,
		"has_discount":  rate < discount.NoDiscount,
		"balance":       balance,
		"coin_name":     s.Config.CoinName,
	})
}

// GetPaymentChannels lists the channels a user may pay through. Admin-curated
// channel rows win; the gateway listing (with its static fallback) covers a
// never-seeded table.
func (s *Server) GetPaymentChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.Store.GetEnabledChannels()
	if err != nil {
		logging.Logg.Error("Failed to read payment channels", "error", err)
	}
	if len(channels) == 0 {
		channels = s.Epay.PaymentChannels(r.Context())
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "channels": channels})
}

type createOrderRequest struct {
	PackageID   int64  `json:"package_id"`
	CoinAmount  int64  `json:"coin_amount"`
	PaymentType string `json:"payment_type"`
	Mode        string `json:"mode"` // page or qrcode
}

func (s *Server) CreateOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	pkg, err := s.Store.GetActivePackage(req.PackageID)
	if err != nil {
		if errors.Is(err, store.ErrPackageNotFound) {
			http.Error(w, "Package does not exist or is inactive", http.StatusBadRequest)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	order, err := s.Payment.CreateOrder(user.ID, pkg, paymentType(req.PaymentType))
	if err != nil {
		logging.Logg.Error("Failed to create order", "user_id", user.ID, "error", err)
		http.Error(w, "Failed to create order", http.StatusInternalServerError)
		return
	}

	s.respondWithPayment(w, r, order, req.Mode)
}

func (s *Server) CreateCustomOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	order, err := s.Payment.CreateCustomOrder(user.ID, req.CoinAmount, paymentType(req.PaymentType))
	if err != nil {
		if errors.Is(err, payment.ErrCoinBounds) {
			http.Error(w, fmt.Sprintf("Coin amount must be between %d and %d",
				payment.MinCustomCoins, payment.MaxCustomCoins), http.StatusBadRequest)
			return
		}
		logging.Logg.Error("Failed to create custom order", "user_id", user.ID, "error", err)
		http.Error(w, "Failed to create order", http.StatusInternalServerError)
		return
	}

	s.respondWithPayment(w, r, order, req.Mode)
}

// respondWithPayment asks the gateway for a checkout (hosted page or QR) for
// a freshly created order and returns it to the client. Gateway failures are
// surfaced as a retryable error, never a hang: the client keeps a pending
// order it can resume.
func (s *Server) respondWithPayment(w http.ResponseWriter, r *http.Request, order *model.PaymentOrder, mode string) {
	params := epay.PayParams{
		Type:       order.PaymentType,
		OutTradeNo: order.OutTradeNo,
		NotifyURL:  s.Config.BaseURL + "/coin/pay/notify",
		ReturnURL:  s.Config.BaseURL + "/coin/pay/return",
		Name:       fmt.Sprintf("Recharge %d %s", order.CoinAmount, s.Config.CoinName),
		Money:      fmt.Sprintf("%.2f", order.ActualPrice),
	}

	resp := map[string]any{
		"success":      true,
		"order_id":     order.ID,
		"out_trade_no": order.OutTradeNo,
	}

	if mode == "qrcode" {
		result, err := s.Epay.CreateAPIPay(r.Context(), params)
		if err != nil {
			logging.Logg.Error("Gateway payment creation failed",
				"out_trade_no", order.OutTradeNo, "error", err)
			status := http.StatusBadGateway
			msg := "Payment gateway unavailable, please try again"
			if errors.Is(err, epay.ErrGatewayTimeout) {
				status = http.StatusGatewayTimeout
				msg = "Payment gateway timed out, please try again"
			} else if errors.Is(err, epay.ErrPayRejected) {
				status = http.StatusBadRequest
				msg = err.Error()
				// A rejection is final for this order; timeouts and
				// outages keep it pending so the client can retry.
				if ferr := s.Store.MarkOrderFailed(order.OutTradeNo); ferr != nil {
					logging.Logg.Error("Failed to mark order failed",
						"out_trade_no", order.OutTradeNo, "error", ferr)
				}
			}
			http.Error(w, msg, status)
			return
		}
		if result.PayURL != "" {
			if err := s.Store.SetOrderPayURL(order.ID, result.PayURL); err != nil {
				logging.Logg.Error("Failed to save pay_url", "order_id", order.ID, "error", err)
			}
		}
		resp["qrcode"] = result.QRCode
		resp["pay_url"] = result.PayURL
		writeJSON(w, http.StatusOK, resp)
		return
	}

	payURL := s.Epay.CreatePagePay(params)
	if err := s.Store.SetOrderPayURL(order.ID, payURL); err != nil {
		logging.Logg.Error("Failed to save pay_url", "order_id", order.ID, "error", err)
	}
	resp["pay_url"] = payURL
	writeJSON(w, http.StatusOK, resp)
}

func paymentType(t string) string {
	if t == "" {
		return "alipay"
	}
	return t
}

func (s *Server) GetOrderStatus(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	outTradeNo := r.URL.Query().Get("out_trade_no")
	if outTradeNo == "" {
		http.Error(w, "out_trade_no is required", http.StatusBadRequest)
		return
	}

	order, err := s.Payment.GetOrderStatus(outTradeNo, user.ID)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			http.Error(w, "Order not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"status":            order.Status,
		"paid":              order.Status == model.OrderPaid,
		"expired":           order.Status == model.OrderExpired,
		"coin_amount":       order.CoinAmount,
		"remaining_seconds": order.RemainingSeconds(s.Config.OrderTimeout(), time.Now().UTC()),
	})
}

func (s *Server) GetPendingOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	order, err := s.Payment.GetPendingOrder(user.ID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if order == nil {
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "has_pending": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"has_pending": true,
		"order": map[string]any{
			"out_trade_no":      order.OutTradeNo,
			"coin_amount":       order.CoinAmount,
			"actual_price":      order.ActualPrice,
			"payment_type":      order.PaymentType,
			"remaining_seconds": order.RemainingSeconds(s.Config.OrderTimeout(), time.Now().UTC()),
			"pay_url":           order.PayURL,
			"created_at":        order.CreatedAt.Format(time.RFC3339),
		},
	})
}

func (s *Server) GetOrders(w http.ResponseWriter, r *http.Request) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return
	}

	orders, err := s.Payment.GetOrders(user.ID, limitParam(r, 20))
	if err != nil {
		http.Error(w, "Failed to fetch orders", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "orders": orders})
}
