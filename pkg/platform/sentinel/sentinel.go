package sentinel

import "errors"

// Sentinel errors for ledger and store facts. Infrastructure layers return these
// (optionally wrapped) so services can translate them into coded domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: product id outside the assigned range
// - ErrNotOwner: caller is not the product's current custodian
// - ErrNotManufacturer: caller may not mint products
// - ErrInvalidState: custody status does not satisfy the operation's precondition
// - ErrRejected: transaction submitted but refused by the ledger (lost a race)
// - ErrUnavailable: ledger or store unreachable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound        = errors.New("not found")
	ErrNotOwner        = errors.New("not current owner")
	ErrNotManufacturer = errors.New("not manufacturer")
	ErrInvalidState    = errors.New("invalid state")
	ErrRejected        = errors.New("rejected")
	ErrUnavailable     = errors.New("unavailable")
)
