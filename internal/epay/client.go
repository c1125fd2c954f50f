package epay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"coin-wallet/internal/logging"
	"coin-wallet/internal/model"
)

var (
	ErrGatewayTimeout     = errors.New("gateway request timed out")
	ErrGatewayUnavailable = errors.New("gateway unavailable")
	ErrPayRejected        = errors.New("gateway rejected the payment request")
)

const requestTimeout = 10 * time.Second

// Client talks to an epay-protocol payment gateway. All network and parse
// failures come back as errors; nothing here panics past the boundary, since
// gateway flakiness must not break order creation or callback handling.
type Client struct {
	PID string
	Key string

	submitURL   string
	mapiURL     string
	apiEndpoint string

	httpClient *http.Client
}

func NewClient(apiURL, pid, key string) *Client {
	base := strings.TrimRight(apiURL, "/")
	return &Client{
		PID:         pid,
		Key:         key,
		submitURL:   base + "/submit.php",
		mapiURL:     base + "/mapi.php",
		apiEndpoint: base + "/api.php",
		httpClient:  &http.Client{Timeout: requestTimeout},
	}
}

// PayParams describes one outbound payment request.
type PayParams struct {
	Type       string // payment channel, e.g. alipay
	OutTradeNo string
	NotifyURL  string
	ReturnURL  string
	Name       string // human-readable order description
	Money      string // decimal string, e.g. "9.00"
}

func (p PayParams) toMap() map[string]string {
	return map[string]string{
		"type":         p.Type,
		"out_trade_no": p.OutTradeNo,
		"notify_url":   p.NotifyURL,
		"return_url":   p.ReturnURL,
		"name":         p.Name,
		"money":        p.Money,
	}
}

func (c *Client) signedParams(p PayParams) map[string]string {
	params := p.toMap()
	params["pid"] = c.PID
	params["sign"] = Sign(params, c.Key)
	params["sign_type"] = SignType
	return params
}

// CreatePagePay builds the signed URL of the gateway's hosted checkout page.
// Pure string work, no I/O.
func (c *Client) CreatePagePay(p PayParams) string {
	values := url.Values{}
	for k, v := range c.signedParams(p) {
		values.Set(k, v)
	}
	return c.submitURL + "?" + values.Encode()
}

// APIPayResult is the gateway's answer to an API (QR-code) payment request.
type APIPayResult struct {
	QRCode  string
	PayURL  string
	TradeNo string
}

type mapiResponse struct {
	Code    json.Number `json:"code"`
	Msg     string      `json:"msg"`
	QRCode  string      `json:"qrcode"`
	PayURL  string      `json:"payurl"`
	URL     string      `json:"url"`
	TradeNo string      `json:"trade_no"`
}

// CreateAPIPay posts a signed form to the gateway's API endpoint and expects
// a QR payload or a direct pay URL back.
func (c *Client) CreateAPIPay(ctx context.Context, p PayParams) (*APIPayResult, error) {
	form := url.Values{}
	for k, v := range c.signedParams(p) {
		form.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.mapiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "*/*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, wrapTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var result mapiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrGatewayUnavailable, err)
	}

	code, _ := result.Code.Int64()
	if code != 1 && result.QRCode == "" {
		msg := result.Msg
		if msg == "" {
			msg = "payment creation failed"
		}
		return nil, fmt.Errorf("%w: %s", ErrPayRejected, msg)
	}

	payURL := result.PayURL
	if payURL == "" {
		payURL = result.URL
	}
	return &APIPayResult{
		QRCode:  result.QRCode,
		PayURL:  payURL,
		TradeNo: result.TradeNo,
	}, nil
}

// OrderQuery is the gateway's view of one settled or in-flight trade. Used
// for manual dispute resolution, not on the callback path.
type OrderQuery struct {
	Status     int
	TradeNo    string
	OutTradeNo string
	Money      string
}

type orderResponse struct {
	Status     json.Number `json:"status"`
	TradeNo    string      `json:"trade_no"`
	OutTradeNo string      `json:"out_trade_no"`
	Money      string      `json:"money"`
}

// QueryOrder asks the gateway about a trade by its own trade number.
func (c *Client) QueryOrder(ctx context.Context, tradeNo string) (*OrderQuery, error) {
	return c.queryOrder(ctx, "trade_no", tradeNo)
}

// QueryByOutTradeNo asks the gateway about a trade by the merchant-side trade
// number, which is all we have for an order whose notify never arrived.
func (c *Client) QueryByOutTradeNo(ctx context.Context, outTradeNo string) (*OrderQuery, error) {
	return c.queryOrder(ctx, "out_trade_no", outTradeNo)
}

func (c *Client) queryOrder(ctx context.Context, param, value string) (*OrderQuery, error) {
	u := fmt.Sprintf("%s?act=order&pid=%s&key=%s&%s=%s",
		c.apiEndpoint, url.QueryEscape(c.PID), url.QueryEscape(c.Key), param, url.QueryEscape(value))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "*/*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, wrapTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status code %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var result orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrGatewayUnavailable, err)
	}

	status, _ := result.Status.Int64()
	return &OrderQuery{
		Status:     int(status),
		TradeNo:    result.TradeNo,
		OutTradeNo: result.OutTradeNo,
		Money:      result.Money,
	}, nil
}

// Paid reports whether the gateway considers the trade settled.
func (q *OrderQuery) Paid() bool {
	return q.Status == 1
}

// PaymentChannels fetches the channels enabled for the merchant account.
// Falls back to the static default set when the endpoint is missing or broken.
func (c *Client) PaymentChannels(ctx context.Context) []model.PaymentChannel {
	u := fmt.Sprintf("%s?act=type&pid=%s", c.apiEndpoint, url.QueryEscape(c.PID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return DefaultChannels()
	}
	req.Header.Set("Accept", "*/*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logging.Logg.Warn("Failed to fetch payment channels", "error", err)
		return DefaultChannels()
	}
	defer resp.Body.Close()

	var channels []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
		Icon string `json:"icon"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&channels); err != nil || len(channels) == 0 {
		return DefaultChannels()
	}

	out := make([]model.PaymentChannel, 0, len(channels))
	for _, ch := range channels {
		t := ch.Type
		if t == "" {
			t = ch.ID
		}
		out = append(out, model.PaymentChannel{Type: t, Name: ch.Name, Icon: ch.Icon})
	}
	return out
}

func DefaultChannels() []model.PaymentChannel {
	return []model.PaymentChannel{
		{Type: "alipay", Name: "Alipay", Icon: "alipay"},
		{Type: "wxpay", Name: "WeChat Pay", Icon: "wechat"},
		{Type: "paypal", Name: "PayPal", Icon: "paypal"},
	}
}

func wrapTransportError(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Timeout() {
		return fmt.Errorf("%w: %v", ErrGatewayTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
}
