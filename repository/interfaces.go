// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/valzstore/topup-engine/models"
)

// txContextKey is the context key type for passing transactions
type txContextKey string

// TxContextKey is the context key for passing a *gorm.DB transaction
const TxContextKey txContextKey = "tx"

// DepositRequestRepository owns DepositRequest records. All status writes
// go through TransitionStatus, a compare-and-swap keyed on the expected
// prior status; concurrent writers lose with ErrStaleState and must treat
// that as "someone else already handled it".
type DepositRequestRepository interface {
	ByID(ctx context.Context, id uint) (*models.DepositRequest, error)
	ByUUID(ctx context.Context, uuid string) (*models.DepositRequest, error)
	ByAccountRef(ctx context.Context, accountRef string, limit, offset int) ([]*models.DepositRequest, error)
	ByStatus(ctx context.Context, status models.DepositRequestStatus, limit, offset int) ([]*models.DepositRequest, error)
	ListAwaitingPayment(ctx context.Context) ([]*models.DepositRequest, error)
	ByFilter(ctx context.Context, filter models.DepositRequestFilter, orderBy string, limit, offset int) ([]*models.DepositRequest, error)
	Save(ctx context.Context, request *models.DepositRequest) error
	Count(ctx context.Context, filter models.DepositRequestFilter) (int64, error)

	// TransitionStatus atomically moves the request from one status to
	// another, applying the optional field updates in the same write.
	// Returns ErrStaleState when the current status differs from `from`.
	TransitionStatus(ctx context.Context, id uint, from, to models.DepositRequestStatus, fields TransitionFields) error
}

// TransitionFields carries the columns set alongside a status transition.
// Nil pointers are left untouched.
type TransitionFields struct {
	StatusReason string
	MatchedTxnID *string
	MatchedAt    *time.Time
	CreditedAt   *time.Time
}

// TransactionRepository records the local audit trail of ledger mutations
type TransactionRepository interface {
	ByID(ctx context.Context, id uint) (*models.Transaction, error)
	ByCorrelationID(ctx context.Context, correlationID uuid.UUID) ([]*models.Transaction, error)
	ByDepositRequestID(ctx context.Context, depositRequestID uint) ([]*models.Transaction, error)
	ByFilter(ctx context.Context, filter models.TransactionFilter, orderBy string, limit, offset int) ([]*models.Transaction, error)
	Save(ctx context.Context, transaction *models.Transaction) error
	Count(ctx context.Context, filter models.TransactionFilter) (int64, error)
}

// OTPCodeRepository owns OTPCode records. The backing store is expected to
// delete codes when their TTL lapses; Delete on an already-gone code is a
// no-op so consumption and expiry can race safely.
type OTPCodeRepository interface {
	Save(ctx context.Context, code *models.OTPCode, ttl time.Duration) error
	Get(ctx context.Context, accountRef, code string) (*models.OTPCode, error)
	// GetAndDelete atomically fetches and removes the code; returns nil
	// without error when the code does not exist.
	GetAndDelete(ctx context.Context, accountRef, code string) (*models.OTPCode, error)
	Delete(ctx context.Context, accountRef, code string) error
	ListActive(ctx context.Context) ([]*models.OTPCode, error)
}
