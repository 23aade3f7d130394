package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/currency"
)

type GatewayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type Gateway interface {
	CreateOrder(ctx context.Context, amountMinor int64, cur, receipt string) (GatewayOrder, error)
}

// Client talks to a Razorpay-compatible orders API.
type Client struct {
	BaseURL string
	KeyID   string
	Secret  string
	HTTP    *http.Client
}

func NewClient(baseURL, keyID, secret string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		KeyID:   keyID,
		Secret:  secret,
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) CreateOrder(ctx context.Context, amountMinor int64, cur, receipt string) (GatewayOrder, error) {
	if amountMinor <= 0 {
		return GatewayOrder{}, fmt.Errorf("payment: amount must be positive, got %d", amountMinor)
	}
	unit, err := currency.ParseISO(cur)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("payment: currency %q: %w", cur, err)
	}

	payload, err := json.Marshal(map[string]any{
		"amount":   amountMinor,
		"currency": unit.String(),
		"receipt":  receipt,
	})
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("payment: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/orders", bytes.NewReader(payload))
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("payment: build request: %w", err)
	}
	req.SetBasicAuth(c.KeyID, c.Secret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("payment: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("payment: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error struct {
				Code        string `json:"code"`
				Description string `json:"description"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &e) == nil && e.Error.Description != "" {
			return GatewayOrder{}, fmt.Errorf("payment: %d %s: %s", resp.StatusCode, e.Error.Code, e.Error.Description)
		}
		return GatewayOrder{}, fmt.Errorf("payment: unexpected status %d", resp.StatusCode)
	}

	var out GatewayOrder
	if err := json.Unmarshal(raw, &out); err != nil {
		return GatewayOrder{}, fmt.Errorf("payment: decode response: %w", err)
	}
	if out.ID == "" {
		return GatewayOrder{}, fmt.Errorf("payment: response without order id")
	}
	return out, nil
}

// Sign returns the hex HMAC-SHA256 of "orderID|paymentID".
func Sign(secret, gatewayOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a checkout signature in constant time.
func VerifySignature(secret, gatewayOrderID, paymentID, signature string) bool {
	want := Sign(secret, gatewayOrderID, paymentID)
	return hmac.Equal([]byte(want), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

// minorScale is the number of minor-unit digits for cur; INR has 2.
func minorScale(cur string) (int32, error) {
	unit, err := currency.ParseISO(cur)
	if err != nil {
		return 0, err
	}
	scale, _ := currency.Standard.Rounding(unit)
	return int32(scale), nil
}
