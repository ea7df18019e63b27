// Package gateway is the client side of the easypay-style payment gateway:
// it builds the signed submit URL the user is redirected to, and queries the
// merchant order API used for reconciliation when callbacks go missing.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cinescript/internal/sign"
)

type Config struct {
	BaseURL     string
	MerchantID  string
	SignKey     string
	NotifyURL   string
	ReturnURL   string
	ProductName string
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// BuildSubmitURL assembles the gateway-required parameter map, signs it, and
// returns the redirect/QR URL together with the exact signed payload, which
// the caller retains on the order for audit.
func (c *Client) BuildSubmitURL(orderID, channel, amount, clientIP string) (string, map[string]string, error) {
	if c.cfg.BaseURL == "" {
		return "", nil, errors.New("gateway base url is not configured")
	}

	payload := map[string]string{
		"pid":          c.cfg.MerchantID,
		"type":         channel,
		"out_trade_no": orderID,
		"notify_url":   c.cfg.NotifyURL,
		"return_url":   c.cfg.ReturnURL,
		"name":         c.cfg.ProductName,
		"money":        amount,
		"clientip":     clientIP,
		"sign_type":    "MD5",
	}
	signature := sign.Build(payload, c.cfg.SignKey)

	values := url.Values{}
	for k, v := range payload {
		if v == "" {
			continue
		}
		values.Set(k, v)
	}
	values.Set("sign", signature)

	submitURL := strings.TrimRight(c.cfg.BaseURL, "/") + "/submit.php?" + values.Encode()
	return submitURL, payload, nil
}

// OrderInfo is the merchant query API's view of an order.
type OrderInfo struct {
	Code        int         `json:"code"`
	Msg         string      `json:"msg"`
	TradeNo     string      `json:"trade_no"`
	OutTradeNo  string      `json:"out_trade_no"`
	Type        string      `json:"type"`
	Money       string      `json:"money"`
	TradeStatus string      `json:"trade_status"`
	Status      json.Number `json:"status"`
}

// Paid reports whether the gateway considers the order settled.
func (o *OrderInfo) Paid() bool {
	if s, err := o.Status.Int64(); err == nil && s == 1 {
		return true
	}
	switch o.TradeStatus {
	case "TRADE_SUCCESS", "SUCCESS", "success":
		return true
	}
	return false
}

// QueryOrder fetches order state from api.php. The query is authenticated by
// the merchant key, not by a response signature.
func (c *Client) QueryOrder(ctx context.Context, orderID string) (*OrderInfo, error) {
	u, err := url.Parse(strings.TrimRight(c.cfg.BaseURL, "/") + "/api.php")
	if err != nil {
		return nil, err
	}
	values := url.Values{}
	values.Set("act", "order")
	values.Set("pid", c.cfg.MerchantID)
	values.Set("key", c.cfg.SignKey)
	values.Set("out_trade_no", orderID)
	u.RawQuery = values.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway query status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var info OrderInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}
	if info.Code != 1 {
		return nil, fmt.Errorf("gateway query failed: %s", info.Msg)
	}
	return &info, nil
}
