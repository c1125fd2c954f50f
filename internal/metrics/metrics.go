// Package metrics exposes the service's Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CallbacksTotal counts inbound gateway callbacks by outcome:
	// settled, duplicate, bad_signature, ignored, rejected.
	CallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coin_callbacks_total",
		Help: "Inbound payment gateway callbacks by outcome.",
	}, []string{"outcome"})

	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coin_orders_created_total",
		Help: "Payment orders created.",
	})

	CoinsCreditedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coin_coins_credited_total",
		Help: "Coins credited through settled payments.",
	})

	OrdersExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coin_orders_expired_total",
		Help: "Pending orders moved to expired by the sweep.",
	})

	AdjustmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coin_balance_adjustments_total",
		Help: "Manual balance adjustments by result.",
	}, []string{"result"})
)
