// Package models contains domain entities and business models for the top-up engine
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/valzstore/topup-engine/utils"
	"gorm.io/gorm"
)

// DepositRequestStatus represents the status of a deposit request
type DepositRequestStatus string

const (
	DepositStatusCreated         DepositRequestStatus = "created"          // Record persisted, gateway intent not yet issued
	DepositStatusAwaitingPayment DepositRequestStatus = "awaiting_payment" // QR issued, waiting for the user to pay
	DepositStatusMatched         DepositRequestStatus = "matched"          // A gateway transaction settled this request
	DepositStatusCredited        DepositRequestStatus = "credited"         // Balance applied to the account ledger
	DepositStatusFailed          DepositRequestStatus = "failed"           // Credit acknowledged but balance apply failed
	DepositStatusExpired         DepositRequestStatus = "expired"          // TTL passed without a matching transaction
)

// DepositRequest represents a pending promise to pay a specific total amount.
// The fee is generated once at creation and never changes: the resulting
// total is the disambiguation key the matcher relies on, so requests sharing
// one payment channel stay distinguishable.
type DepositRequest struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID          uuid.UUID `gorm:"type:uuid;uniqueIndex;not null;default:gen_random_uuid()" json:"uuid"`
	CorrelationID uuid.UUID `gorm:"type:uuid;index;not null" json:"correlation_id"`

	// Account to credit, opaque to the engine (phone number in production)
	AccountRef string `gorm:"type:varchar(32);not null;index" json:"account_ref"`

	// Amounts in minor currency units. TotalAmount = RequestedAmount + Fee,
	// fixed at creation.
	RequestedAmount uint64 `gorm:"not null" json:"requested_amount"`
	Fee             uint64 `gorm:"not null" json:"fee"`
	TotalAmount     uint64 `gorm:"not null;index" json:"total_amount"`
	Currency        string `gorm:"type:varchar(3);not null;default:'IDR'" json:"currency"`

	// Gateway intent data, used only for display
	QRPayload  string `gorm:"type:text" json:"qr_payload"`
	QRImageRef string `gorm:"type:text" json:"qr_image_ref"`

	// Status tracking. Writers go through the repository CAS; terminal
	// states are never left.
	Status       DepositRequestStatus `gorm:"type:varchar(20);not null;default:'created';index" json:"status"`
	StatusReason string               `gorm:"type:text" json:"status_reason"`

	// Gateway transaction that settled this request, immutable once set
	MatchedTxnID *string `gorm:"type:varchar(255);uniqueIndex" json:"matched_txn_id,omitempty"`

	Metadata  json.RawMessage `gorm:"type:jsonb;default:'{}'" json:"metadata"`
	CreatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	ExpiresAt time.Time       `gorm:"not null;index" json:"expires_at"`

	MatchedAt  *time.Time `json:"matched_at,omitempty"`
	CreditedAt *time.Time `json:"credited_at,omitempty"`
}

func (DepositRequest) TableName() string {
	return "deposit_requests"
}

// BeforeCreate ensures UUID and CorrelationID are set
func (d *DepositRequest) BeforeCreate(tx *gorm.DB) error {
	if d.UUID == uuid.Nil {
		d.UUID = uuid.New()
	}
	if d.CorrelationID == uuid.Nil {
		d.CorrelationID = uuid.New()
	}
	return nil
}

// IsFinal returns true if the deposit request is in a terminal state
func (d *DepositRequest) IsFinal() bool {
	return d.Status == DepositStatusCredited ||
		d.Status == DepositStatusFailed ||
		d.Status == DepositStatusExpired
}

// IsAwaitingPayment returns true if the request can still be settled by the matcher
func (d *DepositRequest) IsAwaitingPayment() bool {
	return d.Status == DepositStatusAwaitingPayment
}

// IsExpired returns true if the request TTL has passed
func (d *DepositRequest) IsExpired() bool {
	return utils.IsExpired(d.ExpiresAt)
}

// DepositRequestFilter represents filter criteria for deposit request queries
type DepositRequestFilter struct {
	ID            *uint                 `json:"id,omitempty"`
	UUID          *uuid.UUID            `json:"uuid,omitempty"`
	CorrelationID *uuid.UUID            `json:"correlation_id,omitempty"`
	AccountRef    *string               `json:"account_ref,omitempty"`
	TotalAmount   *uint64               `json:"total_amount,omitempty"`
	Status        *DepositRequestStatus `json:"status,omitempty"`
	MatchedTxnID  *string               `json:"matched_txn_id,omitempty"`
	CreatedAfter  *time.Time            `json:"created_after,omitempty"`
	CreatedBefore *time.Time            `json:"created_before,omitempty"`
	ExpiresAfter  *time.Time            `json:"expires_after,omitempty"`
	ExpiresBefore *time.Time            `json:"expires_before,omitempty"`
}
