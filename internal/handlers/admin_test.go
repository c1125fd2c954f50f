package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"coin-wallet/internal/model"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
func intPtr(n int) *int       { return &n }

func TestApplyChannelUpdate(t *testing.T) {
	base := model.PaymentChannelConfig{
		ID: 1, Type: "alipay", Name: "Alipay", Icon: "alipay", Enabled: true, DisplayOrder: 1,
	}

	tests := []struct {
		name string
		req  channelUpdateRequest
		want model.PaymentChannelConfig
	}{
		{
			"empty request keeps everything",
			channelUpdateRequest{},
			base,
		},
		{
			"disable only",
			channelUpdateRequest{Enabled: boolPtr(false)},
			model.PaymentChannelConfig{ID: 1, Type: "alipay", Name: "Alipay", Icon: "alipay", Enabled: false, DisplayOrder: 1},
		},
		{
			"rename and reorder",
			channelUpdateRequest{Name: strPtr("Alipay Intl"), DisplayOrder: intPtr(5)},
			model.PaymentChannelConfig{ID: 1, Type: "alipay", Name: "Alipay Intl", Icon: "alipay", Enabled: true, DisplayOrder: 5},
		},
		{
			"blank name is ignored",
			channelUpdateRequest{Name: strPtr("")},
			base,
		},
		{
			"zero display order is a real value",
			channelUpdateRequest{DisplayOrder: intPtr(0)},
			model.PaymentChannelConfig{ID: 1, Type: "alipay", Name: "Alipay", Icon: "alipay", Enabled: true, DisplayOrder: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := base
			applyChannelUpdate(&got, tt.req)
			if got != tt.want {
				t.Errorf("applyChannelUpdate() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// Every authenticated route must bounce a request without a token before any
// handler logic runs.
func TestRoutesRequireAuth(t *testing.T) {
	s := newCallbackServer(newCallbackStore())
	router := s.Router()

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/coin/pay/channels"},
		{http.MethodGet, "/api/coin/balance"},
		{http.MethodGet, "/api/admin/coin/channels"},
		{http.MethodPut, "/api/admin/coin/channels/1"},
		{http.MethodPost, "/api/admin/coin/channels/seed"},
		{http.MethodGet, "/api/admin/coin/users/alice/balance"},
		{http.MethodGet, "/api/admin/coin/users/alice/transactions"},
		{http.MethodPost, "/api/admin/coin/orders/reconcile"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			req := httptest.NewRequest(rt.method, rt.path, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}
