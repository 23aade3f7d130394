package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Receipt is what the provider returned for an accepted message.
type Receipt struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type Sender interface {
	Send(ctx context.Context, to, body string) (Receipt, error)
}

// TwilioClient sends SMS or WhatsApp messages through the Messages API.
type TwilioClient struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	From       string
	// Prefix is "whatsapp:" for the WhatsApp channel and empty for SMS.
	Prefix string
	HTTP   *http.Client
}

func NewTwilioSMS(baseURL, sid, token, from string) *TwilioClient {
	return &TwilioClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		AccountSID: sid,
		AuthToken:  token,
		From:       from,
		HTTP:       &http.Client{Timeout: 10 * time.Second},
	}
}

func NewTwilioWhatsApp(baseURL, sid, token, from string) *TwilioClient {
	c := NewTwilioSMS(baseURL, sid, token, from)
	c.Prefix = "whatsapp:"
	return c
}

type twilioMessage struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *TwilioClient) Send(ctx context.Context, to, body string) (Receipt, error) {
	form := url.Values{}
	form.Set("To", c.Prefix+to)
	form.Set("From", c.Prefix+c.From)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.BaseURL, url.PathEscape(c.AccountSID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Receipt{}, fmt.Errorf("twilio: build request: %w", err)
	}
	req.SetBasicAuth(c.AccountSID, c.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("twilio: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Receipt{}, fmt.Errorf("twilio: read response: %w", err)
	}

	var m twilioMessage
	_ = json.Unmarshal(raw, &m)

	if resp.StatusCode >= 300 {
		if m.Message != "" {
			return Receipt{}, fmt.Errorf("twilio: %d: %s (code %d)", resp.StatusCode, m.Message, m.Code)
		}
		return Receipt{}, fmt.Errorf("twilio: unexpected status %d", resp.StatusCode)
	}
	if m.SID == "" {
		return Receipt{}, fmt.Errorf("twilio: response without message sid")
	}
	return Receipt{ID: m.SID, Status: m.Status}, nil
}
