package testing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valzstore/topup-engine/models"
	"github.com/valzstore/topup-engine/utils"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	Deposits *InMemoryDepositRequestRepository
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(deposits *InMemoryDepositRequestRepository) *TestFixtures {
	return &TestFixtures{Deposits: deposits}
}

// DepositOption mutates a deposit request before it is saved
type DepositOption func(*models.DepositRequest)

// WithStatus sets the request status
func WithStatus(status models.DepositRequestStatus) DepositOption {
	return func(d *models.DepositRequest) { d.Status = status }
}

// WithCreatedAt sets creation time (and shifts expiry to keep the TTL)
func WithCreatedAt(t time.Time) DepositOption {
	return func(d *models.DepositRequest) {
		ttl := d.ExpiresAt.Sub(d.CreatedAt)
		d.CreatedAt = t
		d.UpdatedAt = t
		d.ExpiresAt = t.Add(ttl)
	}
}

// WithExpiresAt sets the settlement deadline directly
func WithExpiresAt(t time.Time) DepositOption {
	return func(d *models.DepositRequest) { d.ExpiresAt = t }
}

// WithMatchedTxn marks the request settled by the given transaction id
func WithMatchedTxn(externalID string, at time.Time) DepositOption {
	return func(d *models.DepositRequest) {
		d.MatchedTxnID = utils.ToPtr(externalID)
		d.MatchedAt = &at
	}
}

// CreateDepositRequest saves a deposit request with sensible defaults:
// awaiting_payment, 15 minute TTL, amounts derived from requested+fee.
func (tf *TestFixtures) CreateDepositRequest(accountRef string, requested, fee uint64, opts ...DepositOption) (*models.DepositRequest, error) {
	now := time.Now().UTC()
	meta, _ := json.Marshal(map[string]any{"source": "test"})
	request := &models.DepositRequest{
		AccountRef:      accountRef,
		RequestedAmount: requested,
		Fee:             fee,
		TotalAmount:     requested + fee,
		Currency:        utils.RupiahCurrency,
		QRPayload:       fmt.Sprintf("00020101TESTQR%d", requested+fee),
		Status:          models.DepositStatusAwaitingPayment,
		StatusReason:    "qr issued, awaiting payment",
		Metadata:        meta,
		CreatedAt:       now,
		UpdatedAt:       now,
		ExpiresAt:       now.Add(utils.DepositRequestTTL),
	}
	for _, opt := range opts {
		opt(request)
	}
	if err := tf.Deposits.Save(context.Background(), request); err != nil {
		return nil, err
	}
	return request, nil
}

// GatewayTxn builds a gateway transaction for scripting the fake gateway
func GatewayTxn(externalID string, amount uint64, occurredAt time.Time) models.GatewayTransaction {
	return models.GatewayTransaction{
		ExternalID: externalID,
		Amount:     amount,
		OccurredAt: occurredAt,
	}
}
