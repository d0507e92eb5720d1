package testing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/valzstore/topup-engine/app/services"
	"github.com/valzstore/topup-engine/models"
)

// FakeGateway is a scripted payment gateway for tests. Intents are synthetic
// and the transaction list is whatever the test loads via SetTransactions.
type FakeGateway struct {
	mu           sync.Mutex
	transactions []models.GatewayTransaction
	intentErr    error
	listErr      error
	intentCalls  int
	listCalls    int
}

// NewFakeGateway creates an empty fake gateway
func NewFakeGateway() *FakeGateway {
	return &FakeGateway{}
}

func (g *FakeGateway) CreateIntent(ctx context.Context, totalAmount uint64) (*services.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intentCalls++
	if g.intentErr != nil {
		return nil, g.intentErr
	}
	return &services.PaymentIntent{
		TotalAmount: totalAmount,
		QRPayload:   fmt.Sprintf("00020101TESTQR%d", totalAmount),
		QRImageURL:  fmt.Sprintf("https://qr.test/%d.png", totalAmount),
	}, nil
}

func (g *FakeGateway) ListRecentTransactions(ctx context.Context, window time.Duration) ([]models.GatewayTransaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listCalls++
	if g.listErr != nil {
		return nil, g.listErr
	}
	out := make([]models.GatewayTransaction, len(g.transactions))
	copy(out, g.transactions)
	return out, nil
}

// SetTransactions replaces the scripted transaction list
func (g *FakeGateway) SetTransactions(txns []models.GatewayTransaction) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transactions = txns
}

// AddTransaction appends a scripted transaction
func (g *FakeGateway) AddTransaction(txn models.GatewayTransaction) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.transactions = append(g.transactions, txn)
}

// FailIntents makes CreateIntent return err until cleared with nil
func (g *FakeGateway) FailIntents(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.intentErr = err
}

// FailListing makes ListRecentTransactions return err until cleared with nil
func (g *FakeGateway) FailListing(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listErr = err
}

// IntentCalls returns how many intents were requested
func (g *FakeGateway) IntentCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.intentCalls
}

// ListCalls returns how many transaction listings were requested
func (g *FakeGateway) ListCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.listCalls
}

// LedgerCall records one balance increase applied through the fake ledger
type LedgerCall struct {
	AccountRef string
	Amount     uint64
}

// FakeLedger records balance increases and can be told to fail
type FakeLedger struct {
	mu    sync.Mutex
	calls []LedgerCall
	err   error
}

// NewFakeLedger creates an empty fake ledger
func NewFakeLedger() *FakeLedger {
	return &FakeLedger{}
}

func (l *FakeLedger) AddBalance(ctx context.Context, accountRef string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.calls = append(l.calls, LedgerCall{AccountRef: accountRef, Amount: amount})
	return nil
}

// Fail makes AddBalance return err until cleared with nil
func (l *FakeLedger) Fail(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

// Calls returns a copy of the recorded balance increases
func (l *FakeLedger) Calls() []LedgerCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LedgerCall, len(l.calls))
	copy(out, l.calls)
	return out
}
