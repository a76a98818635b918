package gateway

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

// maxSendResponseBytes caps how much of the send response is read.
const maxSendResponseBytes = 64 << 10

// CustomConfig contains configuration for the custom HTTP gateway.
type CustomConfig struct {
	// URL is the send endpoint.
	URL string

	// APIKey is sent as a bearer token when set.
	APIKey string
}

// CustomGateway posts the phone number to an HTTP send endpoint. The provider
// generates and delivers the code itself; the message text is not sent.
//
// Wire format: form-encoded POST with field phone. The response is JSON
// {"result": bool, "phone": ..., "error": ..., "error_description": ...}.
type CustomGateway struct {
	url    string
	apiKey string
	client *http.Client
}

// sendResponse is the send endpoint's answer.
type sendResponse struct {
	Result           *bool  `json:"result"`
	Phone            string `json:"phone,omitempty"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// NewCustomGateway creates a CustomGateway.
// Returns an error if the URL is empty or invalid.
func NewCustomGateway(config CustomConfig, client *http.Client) (*CustomGateway, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("%s gateway: parameter %q is required", KindCustom, "url")
	}
	if _, err := url.ParseRequestURI(config.URL); err != nil {
		return nil, fmt.Errorf("invalid send URL: %w", err)
	}
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeoutSeconds * time.Second}
	}
	return &CustomGateway{
		url:    config.URL,
		apiKey: config.APIKey,
		client: client,
	}, nil
}

func newCustomFromParams(p Params, opts Options) (*CustomGateway, error) {
	client := opts.HTTPClient
	if client == nil {
		timeout, err := p.Timeout()
		if err != nil {
			return nil, err
		}
		client = &http.Client{Timeout: timeout}
	}
	return NewCustomGateway(CustomConfig{URL: p.Get("url"), APIKey: p.Get("apiKey")}, client)
}

// Kind returns KindCustom.
func (g *CustomGateway) Kind() string {
	return KindCustom
}

// Send posts the phone number to the send endpoint.
func (g *CustomGateway) Send(ctx context.Context, phone, message string) error {
	form := url.Values{}
	form.Set("phone", phone)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, strings.NewReader(form.Encode()))
	if err != nil {
		return newDeliveryError(KindCustom, phone, "create request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return newDeliveryError(KindCustom, phone, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSendResponseBytes))
	if err != nil {
		return newDeliveryError(KindCustom, phone, "read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newDeliveryError(KindCustom, phone, fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	var parsed sendResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return newDeliveryError(KindCustom, phone, "decode response", err)
	}
	if parsed.Result == nil {
		return newDeliveryError(KindCustom, phone, "response has no boolean result field", nil)
	}
	if !*parsed.Result {
		reason := "rejected"
		if parsed.Error != "" {
			reason = "rejected: " + parsed.Error
		}
		if parsed.ErrorDescription != "" {
			reason += " (" + parsed.ErrorDescription + ")"
		}
		return newDeliveryError(KindCustom, phone, reason, nil)
	}

	return nil
}
