// Package chapa is a narrow client for the Chapa payment gateway: initialize
// a hosted checkout, then verify the transaction outcome by reference.
package chapa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tanamarket/tana/internal/observability"
)

const defaultTimeout = 30 * time.Second

type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

func NewClient(baseURL, secretKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
		httpClient: observability.NewHTTPClient(defaultTimeout),
	}
}

// GatewayError carries the provider's own message so callers can relay it.
type GatewayError struct {
	StatusCode int
	Message    string
}

func (e *GatewayError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("chapa gateway error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("chapa gateway error: %s", e.Message)
}

// InitializeRequest carries everything Chapa needs to open a hosted checkout.
// TxRef is the caller-chosen correlation reference echoed back on verify.
type InitializeRequest struct {
	AmountCents int
	Currency    string
	Email       string
	FirstName   string
	LastName    string
	PhoneNumber string
	TxRef       string
	CallbackURL string
	ReturnURL   string
}

// Checkout is the gateway's answer to a successful initialization.
type Checkout struct {
	CheckoutURL string
	TxRef       string
}

// VerifyResult is the gateway's verdict on a transaction reference.
type VerifyResult struct {
	Success       bool
	TransactionID string
	Status        string
	Timestamp     time.Time
	PayerEmail    string
}

type envelope struct {
	Message string          `json:"message"`
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
}

type initializeData struct {
	CheckoutURL string `json:"checkout_url"`
}

type verifyData struct {
	Status    string    `json:"status"`
	Reference string    `json:"reference"`
	TxRef     string    `json:"tx_ref"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (*Checkout, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if req.TxRef == "" {
		return nil, fmt.Errorf("tx_ref is required")
	}

	payload := map[string]string{
		"amount":       formatAmount(req.AmountCents),
		"currency":     req.Currency,
		"email":        req.Email,
		"first_name":   req.FirstName,
		"last_name":    req.LastName,
		"phone_number": req.PhoneNumber,
		"tx_ref":       req.TxRef,
		"callback_url": req.CallbackURL,
		"return_url":   req.ReturnURL,
	}

	env, err := c.post(ctx, "/transaction/initialize", payload)
	if err != nil {
		return nil, err
	}

	var data initializeData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode checkout data: %w", err)
	}
	if data.CheckoutURL == "" {
		return nil, &GatewayError{Message: "gateway returned empty checkout URL"}
	}

	return &Checkout{CheckoutURL: data.CheckoutURL, TxRef: req.TxRef}, nil
}

func (c *Client) Verify(ctx context.Context, txRef string) (*VerifyResult, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if txRef == "" {
		return nil, fmt.Errorf("tx_ref is required")
	}

	env, err := c.get(ctx, "/transaction/verify/"+txRef)
	if err != nil {
		return nil, err
	}

	var data verifyData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to decode verification data: %w", err)
	}

	result := &VerifyResult{
		Success:       strings.EqualFold(data.Status, "success"),
		TransactionID: data.Reference,
		Status:        data.Status,
		Timestamp:     data.CreatedAt,
		PayerEmail:    data.Email,
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (*envelope, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *Client) get(ctx context.Context, path string) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (*envelope, error) {
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to reach chapa: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read chapa response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	if !strings.EqualFold(env.Status, "success") {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Message: env.Message}
	}

	return &env, nil
}

// formatAmount renders cents as the decimal string Chapa expects.
func formatAmount(cents int) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
