package handlers

import (
	"io"
	"net/http"

	"coin-wallet/internal/epay"
	"coin-wallet/internal/logging"
	"coin-wallet/internal/metrics"
)

// The gateway keys its retry logic off these exact plain-text bodies; any
// other body (or a non-200) makes it redeliver the callback.
const (
	callbackOK   = "success"
	callbackFail = "fail"
)

// NotifyCallback handles the asynchronous server-to-server payment
// notification. Everything that can go wrong is folded into the plain-text
// fail response — a 5xx would put the gateway into an endless retry loop.
func (s *Server) NotifyCallback(w http.ResponseWriter, r *http.Request) {
	io.WriteString(w, s.reconcileCallback(r))
}

// ReturnCallback handles the synchronous browser redirect after checkout. It
// deliberately re-runs the full verification and reconciliation rather than
// just reading order state, so the credit lands even when the asynchronous
// notify is delayed or dropped; settlement is idempotent, whichever path
// arrives first wins.
func (s *Server) ReturnCallback(w http.ResponseWriter, r *http.Request) {
	outcome := s.reconcileCallback(r)
	if outcome == callbackOK {
		http.Redirect(w, r, "/coin/pay?payment=success", http.StatusFound)
	} else {
		http.Redirect(w, r, "/coin/pay?payment=failed", http.StatusFound)
	}
}

func (s *Server) reconcileCallback(r *http.Request) (outcome string) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Logg.Error("Panic during callback reconciliation", "panic", rec)
			metrics.CallbacksTotal.WithLabelValues("rejected").Inc()
			outcome = callbackFail
		}
	}()

	params := callbackParams(r)

	if !epay.Verify(params, params["sign"], s.Config.EpayKey) {
		logging.Logg.Warn("Callback signature verification failed",
			"out_trade_no", params["out_trade_no"], "params", redactSign(params))
		metrics.CallbacksTotal.WithLabelValues("bad_signature").Inc()
		return callbackFail
	}

	// A non-final trade status is acknowledged to stop vendor retries but
	// must not settle anything.
	if params["trade_status"] != epay.TradeSuccess {
		logging.Logg.Info("Callback with non-success trade status",
			"out_trade_no", params["out_trade_no"], "trade_status", params["trade_status"])
		metrics.CallbacksTotal.WithLabelValues("ignored").Inc()
		return callbackOK
	}

	_, err := s.Payment.ProcessPaymentSuccess(params["out_trade_no"], params["trade_no"], params["money"])
	if err != nil {
		logging.Logg.Error("Callback reconciliation failed",
			"out_trade_no", params["out_trade_no"], "error", err)
		metrics.CallbacksTotal.WithLabelValues("rejected").Inc()
		return callbackFail
	}
	return callbackOK
}

// callbackParams flattens query and form values; the vendor sends callbacks
// as GET or POST interchangeably.
func callbackParams(r *http.Request) map[string]string {
	_ = r.ParseForm()
	params := make(map[string]string, len(r.Form))
	for k := range r.Form {
		params[k] = r.Form.Get(k)
	}
	return params
}

// redactSign strips the signature before the parameter set hits the logs.
func redactSign(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		if k == "sign" {
			continue
		}
		out[k] = v
	}
	return out
}
