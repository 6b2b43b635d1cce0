// Package gateway is a client for a Paystack-compatible card and bank
// transfer gateway.
package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrRejected is returned when the gateway answers with status=false.
var ErrRejected = errors.New("gateway rejected request")

// Client talks to the gateway REST API.
type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
}

// NewClient creates a gateway client.
func NewClient(baseURL, secretKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		http:      &http.Client{Timeout: timeout},
	}
}

// InitializeRequest starts a hosted checkout.
type InitializeRequest struct {
	Email       string
	Amount      float64 // major units
	Currency    string
	Reference   string
	CallbackURL string
	Metadata    map[string]string
}

// InitializeResult is where the payer is redirected.
type InitializeResult struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// Transaction is the verified state of a checkout.
type Transaction struct {
	Reference string
	Status    string // "success", "failed", "abandoned", ...
	Amount    float64
	Currency  string
	PaidAt    time.Time
}

// Succeeded reports whether the payer was charged.
func (t *Transaction) Succeeded() bool { return t.Status == "success" }

// BankAccount identifies a payout destination.
type BankAccount struct {
	Name          string
	AccountNumber string
	BankCode      string
	Currency      string
}

// TransferRequest sends money to a recipient.
type TransferRequest struct {
	RecipientCode string
	Amount        float64
	Reference     string
	Reason        string
}

// TransferResult is the gateway's view of a transfer.
type TransferResult struct {
	TransferCode string `json:"transfer_code"`
	Status       string `json:"status"`
	Reference    string `json:"reference"`
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Initialize creates a checkout and returns the redirect URL.
func (c *Client) Initialize(ctx context.Context, req InitializeRequest) (*InitializeResult, error) {
	body := map[string]any{
		"email":     req.Email,
		"amount":    toMinor(req.Amount),
		"currency":  req.Currency,
		"reference": req.Reference,
		"channels":  []string{"card", "bank", "ussd", "mobile_money"},
	}
	if req.CallbackURL != "" {
		body["callback_url"] = req.CallbackURL
	}
	if len(req.Metadata) > 0 {
		body["metadata"] = req.Metadata
	}

	var out InitializeResult
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", body, &out); err != nil {
		return nil, fmt.Errorf("initialize %s: %w", req.Reference, err)
	}
	return &out, nil
}

// Verify fetches the current state of a checkout.
func (c *Client) Verify(ctx context.Context, reference string) (*Transaction, error) {
	var raw struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
		Currency  string `json:"currency"`
		PaidAt    string `json:"paid_at"`
	}
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+reference, nil, &raw); err != nil {
		return nil, fmt.Errorf("verify %s: %w", reference, err)
	}
	tx := &Transaction{
		Reference: raw.Reference,
		Status:    raw.Status,
		Amount:    fromMinor(raw.Amount),
		Currency:  raw.Currency,
	}
	if raw.PaidAt != "" {
		tx.PaidAt, _ = time.Parse(time.RFC3339, raw.PaidAt)
	}
	return tx, nil
}

// CreateRecipient registers a bank account for transfers and returns its code.
func (c *Client) CreateRecipient(ctx context.Context, acct BankAccount) (string, error) {
	body := map[string]any{
		"type":           "nuban",
		"name":           acct.Name,
		"account_number": acct.AccountNumber,
		"bank_code":      acct.BankCode,
		"currency":       acct.Currency,
	}
	var out struct {
		RecipientCode string `json:"recipient_code"`
	}
	if err := c.do(ctx, http.MethodPost, "/transferrecipient", body, &out); err != nil {
		return "", fmt.Errorf("create recipient: %w", err)
	}
	return out.RecipientCode, nil
}

// Transfer pays out from the platform balance.
func (c *Client) Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error) {
	reason := req.Reason
	if reason == "" {
		reason = "Driver payout"
	}
	body := map[string]any{
		"source":    "balance",
		"amount":    toMinor(req.Amount),
		"recipient": req.RecipientCode,
		"reference": req.Reference,
		"reason":    reason,
	}
	var out TransferResult
	if err := c.do(ctx, http.MethodPost, "/transfer", body, &out); err != nil {
		return nil, fmt.Errorf("transfer %s: %w", req.Reference, err)
	}
	return &out, nil
}

// ValidSignature checks a webhook body against its X-Paystack-Signature
// header: hex HMAC-SHA512 of the raw body keyed with the secret key.
func (c *Client) ValidSignature(body []byte, signature string) bool {
	return ValidSignature(c.secretKey, body, signature)
}

// ValidSignature is the key-explicit form of Client.ValidSignature.
func ValidSignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// Sign returns the signature ValidSignature expects. Used by tests and tools.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response (HTTP %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode >= 300 || !env.Status {
		return fmt.Errorf("%w: HTTP %d: %s", ErrRejected, resp.StatusCode, env.Message)
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}

// toMinor converts major units to kobo without float drift.
func toMinor(amount float64) int64 {
	return decimal.NewFromFloat(amount).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func fromMinor(amount int64) float64 {
	f, _ := decimal.New(amount, -2).Float64()
	return f
}
