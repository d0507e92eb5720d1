package models

import (
	"time"
)

// GatewayTransaction is a settled payment observed at the QRIS gateway.
// It is owned by the gateway and read-only to the engine; rows are fetched
// on demand by the poller and never persisted here.
type GatewayTransaction struct {
	ExternalID string    `json:"external_id"`
	Amount     uint64    `json:"amount"`
	OccurredAt time.Time `json:"occurred_at"`
}
