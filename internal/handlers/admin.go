package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"coin-wallet/internal/epay"
	"coin-wallet/internal/logging"
	"coin-wallet/internal/model"
	"coin-wallet/internal/store"

	"github.com/go-chi/chi"
)

// requireAdmin resolves the authenticated user and rejects non-admins.
func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	user, ok := s.currentUser(w, r)
	if !ok {
		return nil, false
	}
	if !user.IsAdmin {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return nil, false
	}
	return user, true
}

type adjustRequest struct {
	Username string `json:"username"`
	Amount   int64  `json:"amount"`
	Reason   string `json:"reason"`
}

func (s *Server) AdminAdjustBalance(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}

	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Amount == 0 {
		http.Error(w, "username and a non-zero amount are required", http.StatusBadRequest)
		return
	}
	if req.Reason == "" {
		req.Reason = "Admin adjustment"
	}

	target, err := s.Store.GetUserByLogin(req.Username)
	if err != nil {
		http.Error(w, "Target user does not exist", http.StatusNotFound)
		return
	}

	change, err := s.Payment.Adjust(target.ID, req.Amount, req.Reason, model.TypeAdminAdjust)
	if err != nil {
		if errors.Is(err, store.ErrInsufficientFunds) {
			http.Error(w, "Insufficient balance for this deduction", http.StatusUnprocessableEntity)
			return
		}
		logging.Logg.Error("Admin adjustment failed",
			"admin", admin.Username, "target", target.Username, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	logging.Logg.Info("Admin adjusted balance",
		"admin", admin.Username,
		"target", target.Username,
		"amount", req.Amount,
		"reason", req.Reason,
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"user_id":     target.ID,
		"username":    target.Username,
		"old_balance": change.OldBalance,
		"new_balance": change.NewBalance,
		"amount":      change.Amount,
		"reason":      req.Reason,
	})
}

type reconcileRequest struct {
	OutTradeNo string `json:"out_trade_no"`
	TradeNo    string `json:"trade_no"`
}

// AdminReconcileOrder manually settles an order whose notify callback never
// arrived. It asks the gateway for the trade by either identifier and, when
// the gateway reports it paid, runs the same idempotent settlement as the
// callback path.
func (s *Server) AdminReconcileOrder(w http.ResponseWriter, r *http.Request) {
	admin, ok := s.requireAdmin(w, r)
	if !ok {
		return
	}

	var req reconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.OutTradeNo == "" && req.TradeNo == "" {
		http.Error(w, "out_trade_no or trade_no is required", http.StatusBadRequest)
		return
	}

	var (
		q   *epay.OrderQuery
		err error
	)
	if req.TradeNo != "" {
		q, err = s.Epay.QueryOrder(r.Context(), req.TradeNo)
	} else {
		q, err = s.Epay.QueryByOutTradeNo(r.Context(), req.OutTradeNo)
	}
	if err != nil {
		logging.Logg.Error("Gateway order query failed",
			"out_trade_no", req.OutTradeNo, "trade_no", req.TradeNo, "error", err)
		http.Error(w, "Payment gateway unavailable", http.StatusBadGateway)
		return
	}

	outTradeNo := req.OutTradeNo
	if outTradeNo == "" {
		outTradeNo = q.OutTradeNo
	}
	order, err := s.Store.GetOrderByTradeNo(outTradeNo)
	if err != nil {
		http.Error(w, "No local order for this trade", http.StatusNotFound)
		return
	}

	if !q.Paid() {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"settled":      false,
			"out_trade_no": order.OutTradeNo,
			"status":       order.Status,
			"gateway":      "unpaid",
		})
		return
	}

	result, err := s.Payment.ProcessPaymentSuccess(order.OutTradeNo, q.TradeNo, q.Money)
	if err != nil {
		logging.Logg.Error("Manual reconciliation failed",
			"admin", admin.Username, "out_trade_no", order.OutTradeNo, "error", err)
		http.Error(w, "Reconciliation failed: "+err.Error(), http.StatusConflict)
		return
	}

	logging.Logg.Info("Order reconciled manually",
		"admin", admin.Username,
		"out_trade_no", order.OutTradeNo,
		"already_paid", result.AlreadyPaid,
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"settled":      true,
		"already_paid": result.AlreadyPaid,
		"out_trade_no": order.OutTradeNo,
		"coin_amount":  result.Order.CoinAmount,
		"new_balance":  result.NewBalance,
	})
}

func (s *Server) AdminGetBalances(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	balances, err := s.Store.GetAllBalances(limitParam(r, 50))
	if err != nil {
		http.Error(w, "Failed to fetch balances", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "balances": balances})
}

func (s *Server) AdminGetStatistics(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	stats, err := s.Store.GetStatistics()
	if err != nil {
		http.Error(w, "Failed to fetch statistics", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "statistics": stats})
}

func (s *Server) AdminGetRecentRecharges(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	recharges, err := s.Store.GetRecentRecharges(limitParam(r, 20))
	if err != nil {
		http.Error(w, "Failed to fetch recharges", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "recharges": recharges})
}

// ---- recharge packages ----

func (s *Server) AdminGetPackages(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	packages, err := s.Store.GetAllPackages()
	if err != nil {
		http.Error(w, "Failed to fetch packages", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "packages": packages})
}

func (s *Server) AdminCreatePackage(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	var pkg model.RechargePackage
	if err := json.NewDecoder(r.Body).Decode(&pkg); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if pkg.CoinAmount <= 0 || pkg.Price <= 0 {
		http.Error(w, "coin_amount and price must be positive", http.StatusBadRequest)
		return
	}

	if err := s.Store.CreatePackage(&pkg); err != nil {
		http.Error(w, "Failed to create package", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "package": pkg})
}

func (s *Server) AdminUpdatePackage(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var pkg model.RechargePackage
	if err := json.NewDecoder(r.Body).Decode(&pkg); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	pkg.ID = id

	if err := s.Store.UpdatePackage(&pkg); err != nil {
		if errors.Is(err, store.ErrPackageNotFound) {
			http.Error(w, "Package not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to update package", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "package": pkg})
}

func (s *Server) AdminDeletePackage(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	if err := s.Store.DeletePackage(id); err != nil {
		http.Error(w, "Failed to delete package", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) AdminSeedPackages(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	created, err := s.Store.SeedPackages()
	if err != nil {
		http.Error(w, "Failed to seed packages", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "created_count": created})
}

// ---- payment channels ----

func (s *Server) AdminGetChannels(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	channels, err := s.Store.GetChannels()
	if err != nil {
		http.Error(w, "Failed to fetch channels", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "channels": channels})
}

// channelUpdateRequest carries a partial update; absent fields keep the
// stored value.
type channelUpdateRequest struct {
	Name         *string `json:"name"`
	Enabled      *bool   `json:"enabled"`
	DisplayOrder *int    `json:"display_order"`
}

func applyChannelUpdate(c *model.PaymentChannelConfig, req channelUpdateRequest) {
	if req.Name != nil && *req.Name != "" {
		c.Name = *req.Name
	}
	if req.Enabled != nil {
		c.Enabled = *req.Enabled
	}
	if req.DisplayOrder != nil {
		c.DisplayOrder = *req.DisplayOrder
	}
}

func (s *Server) AdminUpdateChannel(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var req channelUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	channel, err := s.Store.GetChannel(id)
	if err != nil {
		if errors.Is(err, store.ErrChannelNotFound) {
			http.Error(w, "Channel not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	applyChannelUpdate(channel, req)
	if err := s.Store.UpdateChannel(channel); err != nil {
		http.Error(w, "Failed to update channel", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "channel": channel})
}

func (s *Server) AdminSeedChannels(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	created, err := s.Store.SeedChannels()
	if err != nil {
		http.Error(w, "Failed to seed channels", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "created_count": created})
}

// ---- per-user lookups ----

// adminTargetUser resolves the {username} route parameter to a user row.
func (s *Server) adminTargetUser(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	username := chi.URLParam(r, "username")
	if username == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return nil, false
	}
	user, err := s.Store.GetUserByLogin(username)
	if err != nil {
		http.Error(w, "User does not exist", http.StatusNotFound)
		return nil, false
	}
	return user, true
}

func (s *Server) AdminGetUserBalance(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	user, ok := s.adminTargetUser(w, r)
	if !ok {
		return
	}

	balance, err := s.Store.GetOrCreateBalance(user.ID)
	if err != nil {
		http.Error(w, "Failed to read balance", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"username": user.Username,
		"balance":  balance,
	})
}

func (s *Server) AdminGetUserTransactions(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	user, ok := s.adminTargetUser(w, r)
	if !ok {
		return
	}

	transactions, err := s.Store.GetTransactions(user.ID, limitParam(r, 20))
	if err != nil {
		http.Error(w, "Failed to fetch transactions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"username":     user.Username,
		"transactions": transactions,
		"total":        len(transactions),
	})
}

// ---- discount groups ----

func (s *Server) AdminGetDiscountGroups(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	groups, err := s.Store.GetDiscountGroups()
	if err != nil {
		http.Error(w, "Failed to fetch discount groups", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "groups": groups})
}

type discountGroupRequest struct {
	Name         string `json:"name"`
	DiscountRate int    `json:"discount_rate"`
	Description  string `json:"description"`
}

func (g *discountGroupRequest) valid() bool {
	return g.Name != "" && g.DiscountRate > 0 && g.DiscountRate <= 100
}

func (s *Server) AdminCreateDiscountGroup(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	var req discountGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.valid() {
		http.Error(w, "name and a discount_rate in 1..100 are required", http.StatusBadRequest)
		return
	}

	group, err := s.Store.CreateDiscountGroup(req.Name, req.DiscountRate, req.Description)
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			http.Error(w, "Group name already exists", http.StatusConflict)
			return
		}
		http.Error(w, "Failed to create discount group", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "group": group})
}

func (s *Server) AdminUpdateDiscountGroup(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var req discountGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !req.valid() {
		http.Error(w, "name and a discount_rate in 1..100 are required", http.StatusBadRequest)
		return
	}

	group := &model.DiscountGroup{ID: id, Name: req.Name, DiscountRate: req.DiscountRate, Description: req.Description}
	if err := s.Store.UpdateDiscountGroup(group); err != nil {
		if errors.Is(err, store.ErrGroupNotFound) {
			http.Error(w, "Discount group not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to update discount group", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "group": group})
}

func (s *Server) AdminDeleteDiscountGroup(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	if err := s.Store.DeleteDiscountGroup(id); err != nil {
		http.Error(w, "Failed to delete discount group", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) AdminGetDiscountGroupUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	users, err := s.Store.GetDiscountGroupUsers(id, limitParam(r, 100))
	if err != nil {
		http.Error(w, "Failed to fetch group users", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "users": users})
}

type groupUserRequest struct {
	Username string `json:"username"`
	UserID   int64  `json:"user_id"`
}

func (s *Server) AdminAddDiscountGroupUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var req groupUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}

	user, err := s.Store.GetUserByLogin(req.Username)
	if err != nil {
		http.Error(w, "User does not exist", http.StatusNotFound)
		return
	}

	inGroup, err := s.Store.UserInDiscountGroup(user.ID, id)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if inGroup {
		http.Error(w, "User is already in this group", http.StatusConflict)
		return
	}

	if err := s.Store.AddUserToDiscountGroup(user.ID, id); err != nil {
		http.Error(w, "Failed to add user to group", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    map[string]any{"id": user.ID, "username": user.Username},
	})
}

func (s *Server) AdminRemoveDiscountGroupUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var req groupUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == 0 {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	if err := s.Store.RemoveUserFromDiscountGroup(req.UserID, id); err != nil {
		http.Error(w, "Failed to remove user from group", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ---- invoice administration ----

func (s *Server) AdminGetInvoiceRequests(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}

	status := model.InvoiceStatus(r.URL.Query().Get("status"))
	switch status {
	case "", model.InvoicePending, model.InvoiceCompleted, model.InvoiceRejected:
	default:
		http.Error(w, "Invalid status filter", http.StatusBadRequest)
		return
	}

	invoices, err := s.Store.GetInvoiceRequestsByStatus(status, limitParam(r, 50))
	if err != nil {
		http.Error(w, "Failed to fetch invoice requests", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "invoices": invoices})
}

type invoiceDecision struct {
	InvoiceURL string `json:"invoice_url"`
	AdminNote  string `json:"admin_note"`
}

func (s *Server) AdminCompleteInvoiceRequest(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var req invoiceDecision
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.InvoiceURL == "" {
		http.Error(w, "invoice_url is required", http.StatusBadRequest)
		return
	}

	if err := s.Store.CompleteInvoiceRequest(id, req.InvoiceURL, req.AdminNote); err != nil {
		if errors.Is(err, store.ErrInvoiceNotPending) {
			http.Error(w, "Invoice request is not pending", http.StatusUnprocessableEntity)
			return
		}
		http.Error(w, "Failed to complete invoice request", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) AdminRejectInvoiceRequest(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireAdmin(w, r); !ok {
		return
	}
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var req invoiceDecision
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.Store.RejectInvoiceRequest(id, req.AdminNote); err != nil {
		if errors.Is(err, store.ErrInvoiceNotPending) {
			http.Error(w, "Invoice request is not pending", http.StatusUnprocessableEntity)
			return
		}
		http.Error(w, "Failed to reject invoice request", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}
