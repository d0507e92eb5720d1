package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TransactionType represents the kind of ledger mutation recorded
type TransactionType string

const (
	TransactionTypeDepositCredit TransactionType = "deposit_credit"
)

// TransactionStatus represents the outcome of a ledger mutation
type TransactionStatus string

const (
	TransactionStatusCompleted   TransactionStatus = "completed"
	TransactionStatusApplyFailed TransactionStatus = "apply_failed" // CAS flipped but the external ledger call failed
)

// Transaction is the local audit record of every attempted balance
// mutation. The account ledger itself is external; these rows are the
// administrative reconciliation trail, in particular for apply_failed
// credits which are never retried automatically.
type Transaction struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID          uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	CorrelationID uuid.UUID `gorm:"type:uuid;index;not null" json:"correlation_id"`

	DepositRequestID uint   `gorm:"not null;index" json:"deposit_request_id"`
	AccountRef       string `gorm:"type:varchar(32);not null;index" json:"account_ref"`

	Type   TransactionType   `gorm:"type:varchar(30);not null" json:"type"`
	Status TransactionStatus `gorm:"type:varchar(20);not null;index" json:"status"`

	// Amount applied to the account ledger (the requested amount; the fee
	// is platform revenue and never credited)
	Amount   uint64 `gorm:"not null" json:"amount"`
	Fee      uint64 `gorm:"not null" json:"fee"`
	Currency string `gorm:"type:varchar(3);not null;default:'IDR'" json:"currency"`

	// Gateway transaction that funded the credit
	ExternalReference string `gorm:"type:varchar(255);index" json:"external_reference"`

	Description string          `gorm:"type:text" json:"description"`
	Metadata    json.RawMessage `gorm:"type:jsonb;default:'{}'" json:"metadata"`
	CreatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

// BeforeCreate ensures UUID is set
func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.UUID == uuid.Nil {
		t.UUID = uuid.New()
	}
	return nil
}

// TransactionFilter represents filter criteria for transaction queries
type TransactionFilter struct {
	ID               *uint              `json:"id,omitempty"`
	UUID             *uuid.UUID         `json:"uuid,omitempty"`
	CorrelationID    *uuid.UUID         `json:"correlation_id,omitempty"`
	DepositRequestID *uint              `json:"deposit_request_id,omitempty"`
	AccountRef       *string            `json:"account_ref,omitempty"`
	Status           *TransactionStatus `json:"status,omitempty"`
	CreatedAfter     *time.Time         `json:"created_after,omitempty"`
	CreatedBefore    *time.Time         `json:"created_before,omitempty"`
}
