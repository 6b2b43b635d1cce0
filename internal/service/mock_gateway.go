package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"ridehail/internal/provider/gateway"
)

// MockGateway is an in-process Gateway used when no gateway key is
// configured. Checkouts succeed once marked paid; transfers succeed at once.
type MockGateway struct {
	mu       sync.Mutex
	secret   string
	checkout map[string]*gateway.Transaction

	// TransferStatus is returned by Transfer. Defaults to "success".
	TransferStatus string
	// Err, when set, is returned by every call.
	Err error
}

// NewMockGateway creates a MockGateway whose webhooks are signed with secret.
func NewMockGateway(secret string) *MockGateway {
	return &MockGateway{secret: secret, checkout: make(map[string]*gateway.Transaction)}
}

// Initialize records a pending checkout.
func (g *MockGateway) Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.InitializeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	g.checkout[req.Reference] = &gateway.Transaction{
		Reference: req.Reference,
		Status:    "pending",
		Amount:    req.Amount,
		Currency:  req.Currency,
	}
	return &gateway.InitializeResult{
		AuthorizationURL: "https://checkout.mock/" + req.Reference,
		AccessCode:       uuid.NewString(),
		Reference:        req.Reference,
	}, nil
}

// MarkPaid simulates the payer completing checkout for amount.
func (g *MockGateway) MarkPaid(reference string, amount float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.checkout[reference]
	if !ok {
		t = &gateway.Transaction{Reference: reference}
		g.checkout[reference] = t
	}
	t.Status = "success"
	t.Amount = amount
	t.PaidAt = time.Now()
}

// Verify returns the recorded checkout state.
func (g *MockGateway) Verify(ctx context.Context, reference string) (*gateway.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.Err != nil {
		return nil, g.Err
	}
	t, ok := g.checkout[reference]
	if !ok {
		return nil, gateway.ErrRejected
	}
	cp := *t
	return &cp, nil
}

// CreateRecipient returns a fresh recipient code.
func (g *MockGateway) CreateRecipient(ctx context.Context, acct gateway.BankAccount) (string, error) {
	if g.Err != nil {
		return "", g.Err
	}
	return "RCP_" + acct.AccountNumber, nil
}

// Transfer answers with TransferStatus.
func (g *MockGateway) Transfer(ctx context.Context, req gateway.TransferRequest) (*gateway.TransferResult, error) {
	if g.Err != nil {
		return nil, g.Err
	}
	status := g.TransferStatus
	if status == "" {
		status = "success"
	}
	return &gateway.TransferResult{TransferCode: "TRF_" + req.Reference, Status: status, Reference: req.Reference}, nil
}

// ValidSignature checks the HMAC-SHA512 of body with the mock secret.
func (g *MockGateway) ValidSignature(body []byte, signature string) bool {
	return gateway.ValidSignature(g.secret, body, signature)
}

var _ Gateway = (*MockGateway)(nil)
