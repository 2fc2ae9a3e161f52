// Package ledger is the boundary to the external append-only ledger that owns
// product records and custody events. Implementations enforce the authoritative
// guards (ownership, manufacturer, status preconditions) inside a single atomic
// transaction: a mutation either commits whole, with its event, or leaves no
// trace. Services layered above may fast-fail on stale reads, but the ledger's
// own checks decide.
package ledger

import (
	"context"

	id "chaintrail/pkg/domain"
)

// EventKind tags a custody event variant. The names are the ledger's canonical
// event names and appear verbatim in reconstructed history.
type EventKind string

const (
	EventOwnershipTransferred EventKind = "OwnershipTransferred"
	EventProductAccepted      EventKind = "ProductAccepted"
	EventProductReceived      EventKind = "ProductReceived"
	EventAvailabilityUpdated  EventKind = "AvailabilityUpdated"
	EventCounterfeitReported  EventKind = "CounterfeitReported"
)

// EventKinds lists every variant, in the order the history reconstructor fans
// out its filtered queries.
var EventKinds = []EventKind{
	EventOwnershipTransferred,
	EventProductAccepted,
	EventProductReceived,
	EventAvailabilityUpdated,
	EventCounterfeitReported,
}

// SeqPosition locates an event on the ledger: a coarse block number plus the
// event's index within that block. Index breaks ties deterministically when
// several events land in the same block.
type SeqPosition struct {
	Block uint64 `json:"block"`
	Index uint32 `json:"index"`
}

// Before reports whether s precedes other in ledger order.
func (s SeqPosition) Before(other SeqPosition) bool {
	if s.Block != other.Block {
		return s.Block < other.Block
	}
	return s.Index < other.Index
}

// Event is an immutable fact appended to the ledger. Which argument fields are
// meaningful depends on Kind: transfers carry From/To, confirmations and
// counterfeit reports carry By, availability updates carry By and Available.
type Event struct {
	Kind      EventKind    `json:"kind"`
	ProductID id.ProductID `json:"productId"`
	From      id.Address   `json:"from,omitempty"`
	To        id.Address   `json:"to,omitempty"`
	By        id.Address   `json:"by,omitempty"`
	Available bool         `json:"available,omitempty"`
	Seq       SeqPosition  `json:"seq"`
	TxRef     id.TxRef     `json:"txRef"`
}

// ProductRecord is the ledger's materialized projection of a product's event
// stream. The projection and the event log never diverge: both are written in
// the same transaction.
type ProductRecord struct {
	ID            id.ProductID
	Name          string
	Description   string
	Owner         id.Address
	Status        id.CustodyStatus
	IsCounterfeit bool
	Available     bool
}

// Ledger is the external collaborator interface. Mutating calls are one-shot
// request/await-confirmation operations returning the confirmed transaction
// reference; there is no cancellation once submitted. Implementations return
// sentinel errors (pkg/platform/sentinel) for guard failures:
//
//	ErrNotFound         product id out of range
//	ErrNotManufacturer  AddProduct by a non-manufacturer
//	ErrNotOwner         mutation by a party that is not the current custodian
//	ErrInvalidState     status precondition not met (accept/receive on non-pending)
//	ErrRejected         transaction refused after submission (lost a race)
//	ErrUnavailable      ledger unreachable
type Ledger interface {
	// AddProduct mints the next sequential product id. Manufacturer only.
	AddProduct(ctx context.Context, caller id.Address, name, description string) (id.ProductID, id.TxRef, error)
	// GetProduct returns the materialized record for an assigned id.
	GetProduct(ctx context.Context, productID id.ProductID) (ProductRecord, error)
	// NextProductID returns the next unused id; assigned ids are [0, next).
	NextProductID(ctx context.Context) (id.ProductID, error)
	// TransferProduct moves custody to another party and resets the hop to
	// pending acceptance, whatever the prior status. Current owner only.
	TransferProduct(ctx context.Context, caller id.Address, productID id.ProductID, to id.Address) (id.TxRef, error)
	// AcceptProduct confirms receipt of a pending product. Owner only.
	AcceptProduct(ctx context.Context, caller id.Address, productID id.ProductID) (id.TxRef, error)
	// ReceiveProduct confirms receipt of a pending product. Owner only. Same
	// effect as AcceptProduct; the distinct event kind keeps audits readable.
	ReceiveProduct(ctx context.Context, caller id.Address, productID id.ProductID) (id.TxRef, error)
	// UpdateAvailability toggles the retailer-facing availability flag without
	// touching custody status. Owner only.
	UpdateAvailability(ctx context.Context, caller id.Address, productID id.ProductID, available bool) (id.TxRef, error)
	// ReportCounterfeit sets the one-way counterfeit taint. Any caller.
	ReportCounterfeit(ctx context.Context, caller id.Address, productID id.ProductID) (id.TxRef, error)
	// Events returns all events of one kind concerning a product, in append
	// order. One filtered query per kind; the history reconstructor merges them.
	Events(ctx context.Context, kind EventKind, productID id.ProductID) ([]Event, error)
}
