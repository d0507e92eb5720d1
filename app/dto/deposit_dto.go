package dto

import "time"

// CreateDepositRequest represents the request to open a deposit top-up
type CreateDepositRequest struct {
	AccountRef string `json:"account_ref" validate:"required,min=1,max=64"` // Account to credit on settlement
	Amount     uint64 `json:"amount" validate:"required,min=1"`             // Requested top-up amount in Rupiah
}

// DepositRequestDTO represents a deposit request as exposed to clients
type DepositRequestDTO struct {
	UUID            string `json:"uuid"`                     // Stable public identifier
	AccountRef      string `json:"account_ref"`              // Account to credit
	RequestedAmount uint64 `json:"requested_amount"`         // Amount the account is credited with
	Fee             uint64 `json:"fee"`                      // Randomized fee fixed at creation
	TotalAmount     uint64 `json:"total_amount"`             // Amount the payer must transfer (requested + fee)
	Currency        string `json:"currency"`                 // Currency code (IDR)
	QRPayload       string `json:"qr_payload"`               // Dynamic QRIS string
	QRImageURL      string `json:"qr_image_url"`             // Rendered QR image location
	Status          string `json:"status"`                   // Lifecycle status
	CreatedAt       string `json:"created_at"`               // Creation time (RFC3339)
	ExpiresAt       string `json:"expires_at"`               // Settlement deadline (RFC3339)
	MatchedTxnID    string `json:"matched_txn_id,omitempty"` // Gateway transaction that settled the request
	CreditedAt      string `json:"credited_at,omitempty"`    // When the balance was applied (RFC3339)
}

// CreateDepositResponse represents the response to a deposit creation
type CreateDepositResponse struct {
	Message string            `json:"message"`
	Success bool              `json:"success"`
	Deposit DepositRequestDTO `json:"deposit"`
}

// ListDepositsRequest represents the request to list deposit history
type ListDepositsRequest struct {
	AccountRef string `json:"account_ref" validate:"required,min=1,max=64"` // Account whose history is listed
	Page       int    `json:"page" validate:"omitempty,min=1"`              // Page number (1-based)
	PageSize   int    `json:"page_size" validate:"omitempty,min=1,max=100"` // Items per page
}

// ListDepositsResponse represents a page of deposit history, newest first
type ListDepositsResponse struct {
	Items    []DepositRequestDTO `json:"items"`
	Total    int64               `json:"total"`
	Page     int                 `json:"page"`
	PageSize int                 `json:"page_size"`
}

// PollOutcome summarizes one reconciliation cycle
type PollOutcome struct {
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Matched       int       `json:"matched"`        // Requests paired with a gateway transaction
	Credited      int       `json:"credited"`       // Balance mutations applied this cycle
	Expired       int       `json:"expired"`        // Requests swept past their deadline
	ApplyFailures int       `json:"apply_failures"` // Credits acknowledged but not applied
}

// CreditResult reports the effect of a single credit attempt
type CreditResult struct {
	Applied bool   `json:"applied"` // False when another attempt already won
	Amount  uint64 `json:"amount"`  // Amount added to the ledger when applied
}
