// Package audit records which commands were submitted to the gateway and how
// they ended. This is the operator's log, not provenance: the ledger's own
// event stream is the sole source of truth for history, and this log may be
// sampled or dropped without affecting it.
package audit

import (
	"context"
	"time"

	id "chaintrail/pkg/domain"
)

// Action names a submitted command.
type Action string

const (
	ActionProductAdded        Action = "product_added"
	ActionProductTransferred  Action = "product_transferred"
	ActionProductAccepted     Action = "product_accepted"
	ActionProductReceived     Action = "product_received"
	ActionAvailabilityUpdated Action = "availability_updated"
	ActionCounterfeitReported Action = "counterfeit_reported"
)

// Outcome classifies how the ledger answered.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeFailed    Outcome = "failed"
)

// Entry is one submitted command. Transport-agnostic so sinks can fan out.
type Entry struct {
	Timestamp time.Time    `json:"timestamp"`
	Actor     id.Address   `json:"actor"`
	Action    Action       `json:"action"`
	ProductID id.ProductID `json:"productId"`
	Outcome   Outcome      `json:"outcome"`
	// Reason carries the failure code when Outcome is failed.
	Reason string `json:"reason,omitempty"`
	// TxRef is set when the ledger confirmed the command.
	TxRef string `json:"txRef,omitempty"`
	// RequestID correlates with the HTTP request log.
	RequestID string `json:"requestId,omitempty"`
}

// Store is the persistence sink for audit entries.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	ListByActor(ctx context.Context, actor id.Address) ([]Entry, error)
}
