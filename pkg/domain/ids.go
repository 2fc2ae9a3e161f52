// Package domain holds the typed primitives shared across the gateway. Keeping
// them in one place gives the compiler a chance to reject cross-type mixups
// (a product id is not a block number, an address is not a free string).
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "chaintrail/pkg/domain-errors"
)

// ProductID identifies a product on the ledger. IDs are assigned sequentially at
// creation from a monotonic counter and are never reused.
type ProductID uint64

// ParseProductID validates a decimal product id at a trust boundary.
func ParseProductID(s string) (ProductID, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "product id is required")
	}
	var n uint64
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, dErrors.New(dErrors.CodeInvalidInput, "product id must be a non-negative integer")
		}
		d := uint64(r - '0')
		if n > (^uint64(0)-d)/10 {
			return 0, dErrors.New(dErrors.CodeInvalidInput, "product id out of range")
		}
		n = n*10 + d
	}
	return ProductID(n), nil
}

// Address is the externally-authenticated identity of a supply-chain party, in
// the ledger's 0x-prefixed hex form. Comparison is case-insensitive, so addresses
// are normalized to lower case at parse time.
type Address string

const addressHexLen = 40

// ParseAddress validates and normalizes a ledger address.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address is required")
	}
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address must be 0x-prefixed")
	}
	hex := s[2:]
	if len(hex) != addressHexLen {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address must be 20 bytes of hex")
	}
	for _, r := range hex {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return "", dErrors.New(dErrors.CodeInvalidInput, "address contains non-hex characters")
		}
	}
	return Address(strings.ToLower(s)), nil
}

func (a Address) String() string { return string(a) }

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool { return a == "" }

// Equal compares two addresses; both sides are normalized already, but guard
// against unparsed values sneaking in from tests.
func (a Address) Equal(other Address) bool {
	return strings.EqualFold(string(a), string(other))
}

// TxRef is the confirmed-transaction reference returned by every mutating ledger
// call. Opaque to the core; surfaced verbatim to the presentation layer.
type TxRef uuid.UUID

// NewTxRef mints a fresh transaction reference.
func NewTxRef() TxRef { return TxRef(uuid.New()) }

// ParseTxRef validates a transaction reference string.
func ParseTxRef(s string) (TxRef, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return TxRef{}, dErrors.New(dErrors.CodeInvalidInput, "invalid transaction reference")
	}
	if u == uuid.Nil {
		return TxRef{}, dErrors.New(dErrors.CodeInvalidInput, "transaction reference cannot be nil")
	}
	return TxRef(u), nil
}

func (t TxRef) String() string { return uuid.UUID(t).String() }

// MarshalText renders the reference in canonical UUID form. Defined types do
// not inherit uuid.UUID's marshalers, so wire formats need these explicitly.
func (t TxRef) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *TxRef) UnmarshalText(b []byte) error {
	parsed, err := ParseTxRef(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// IsNil reports whether the reference is unset.
func (t TxRef) IsNil() bool { return uuid.UUID(t) == uuid.Nil }
