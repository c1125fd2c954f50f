package handlers

import (
	"coin-wallet/internal/logging"
	"coin-wallet/internal/middleware"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router mounts every route. Callback endpoints are deliberately outside the
// auth group: the gateway calls them unauthenticated, guarded by the
// signature check instead.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.LoggingMiddleware(logging.Logg))

	r.Post("/api/user/register", s.RegisterUser)
	r.Post("/api/user/login", s.LoginUser)

	r.HandleFunc("/coin/pay/notify", s.NotifyCallback)
	r.Get("/coin/pay/return", s.ReturnCallback)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/coin", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(&s.Config))

		r.Get("/balance", s.GetBalance)
		r.Get("/transactions", s.GetTransactions)

		r.Get("/pay/packages", s.GetPackages)
		r.Get("/pay/channels", s.GetPaymentChannels)
		r.Post("/pay/orders", s.CreateOrder)
		r.Post("/pay/orders/custom", s.CreateCustomOrder)
		r.Get("/pay/orders", s.GetOrders)
		r.Get("/pay/orders/pending", s.GetPendingOrder)
		r.Get("/pay/orders/status", s.GetOrderStatus)

		r.Post("/invoices", s.CreateInvoiceRequest)
		r.Get("/invoices", s.GetInvoiceRequests)
		r.Post("/invoices/{id}/resubmit", s.ResubmitInvoiceRequest)
	})

	r.Route("/api/admin/coin", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(&s.Config))

		r.Post("/adjust", s.AdminAdjustBalance)
		r.Post("/orders/reconcile", s.AdminReconcileOrder)
		r.Get("/balances", s.AdminGetBalances)
		r.Get("/statistics", s.AdminGetStatistics)
		r.Get("/recharges", s.AdminGetRecentRecharges)

		r.Get("/users/{username}/balance", s.AdminGetUserBalance)
		r.Get("/users/{username}/transactions", s.AdminGetUserTransactions)

		r.Get("/channels", s.AdminGetChannels)
		r.Put("/channels/{id}", s.AdminUpdateChannel)
		r.Post("/channels/seed", s.AdminSeedChannels)

		r.Get("/packages", s.AdminGetPackages)
		r.Post("/packages", s.AdminCreatePackage)
		r.Put("/packages/{id}", s.AdminUpdatePackage)
		r.Delete("/packages/{id}", s.AdminDeletePackage)
		r.Post("/packages/seed", s.AdminSeedPackages)

		r.Get("/discount-groups", s.AdminGetDiscountGroups)
		r.Post("/discount-groups", s.AdminCreateDiscountGroup)
		r.Put("/discount-groups/{id}", s.AdminUpdateDiscountGroup)
		r.Delete("/discount-groups/{id}", s.AdminDeleteDiscountGroup)
		r.Get("/discount-groups/{id}/users", s.AdminGetDiscountGroupUsers)
		r.Post("/discount-groups/{id}/users", s.AdminAddDiscountGroupUser)
		r.Delete("/discount-groups/{id}/users", s.AdminRemoveDiscountGroupUser)

		r.Get("/invoices", s.AdminGetInvoiceRequests)
		r.Post("/invoices/{id}/complete", s.AdminCompleteInvoiceRequest)
		r.Post("/invoices/{id}/reject", s.AdminRejectInvoiceRequest)
	})

	return r
}
