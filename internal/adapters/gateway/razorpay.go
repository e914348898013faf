package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/viralforge/porter-dispatch/internal/domain"
	"github.com/viralforge/porter-dispatch/internal/ports"
)

const defaultBaseURL = "https://api.razorpay.com"

type Config struct {
	BaseURL    string
	KeyID      string
	KeySecret  string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client talks to the Razorpay orders API with basic auth.
type Client struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
}

type orderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
}

type orderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type errorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.KeyID) == "" || strings.TrimSpace(cfg.KeySecret) == "" {
		return nil, fmt.Errorf("gateway key id and secret are required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 8 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: baseURL, keyID: cfg.KeyID, keySecret: cfg.KeySecret, httpClient: httpClient}, nil
}

func (c *Client) OpenOrder(ctx context.Context, req ports.GatewayOrderRequest) (ports.GatewayOrder, error) {
	if len(req.Receipt) > domain.MaxReceiptLength {
		return ports.GatewayOrder{}, fmt.Errorf("%w: receipt longer than %d characters", domain.ErrValidation, domain.MaxReceiptLength)
	}
	body, err := json.Marshal(orderRequest{Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt})
	if err != nil {
		return ports.GatewayOrder{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return ports.GatewayOrder{}, err
	}
	httpReq.SetBasicAuth(c.keyID, c.keySecret)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return ports.GatewayOrder{}, fmt.Errorf("%w: create order: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var gwErr errorResponse
		if json.Unmarshal(raw, &gwErr) == nil && gwErr.Error.Description != "" {
			return ports.GatewayOrder{}, fmt.Errorf("%w: create order: status=%d code=%s: %s",
				domain.ErrUpstreamUnavailable, resp.StatusCode, gwErr.Error.Code, gwErr.Error.Description)
		}
		return ports.GatewayOrder{}, fmt.Errorf("%w: create order: status=%d body=%s",
			domain.ErrUpstreamUnavailable, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out orderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ports.GatewayOrder{}, fmt.Errorf("%w: decode order: %v", domain.ErrUpstreamUnavailable, err)
	}
	if out.ID == "" {
		return ports.GatewayOrder{}, fmt.Errorf("%w: gateway returned an order without id", domain.ErrUpstreamUnavailable)
	}
	return ports.GatewayOrder{
		ExternalOrderID: out.ID,
		Amount:          out.Amount,
		Currency:        out.Currency,
		CheckoutKey:     c.keyID,
	}, nil
}

func (c *Client) VerifySignature(payload, signature string) (bool, error) {
	return verify(c.keySecret, payload, signature)
}
