package domain

import dErrors "chaintrail/pkg/domain-errors"

// CustodyStatus is the per-hop custody state of a product. The same two-value
// pending/confirmed cycle is reused for every hop: what "confirmed" means is
// derived from which party currently holds ownership, not encoded in the status.
// A distributor-confirmed and a retailer-confirmed product therefore share
// StatusConfirmed.
type CustodyStatus uint8

const (
	// StatusCreated: the product exists and is still with the manufacturer;
	// nobody else has touched it.
	StatusCreated CustodyStatus = iota
	// StatusPendingAcceptance: ownership was transferred to a party that has not
	// yet confirmed receipt. Every transfer resets to this state.
	StatusPendingAcceptance
	// StatusConfirmed: the current owner confirmed receipt (accept or receive)
	// and may transfer onward or, as retailer, mark the product available.
	StatusConfirmed
)

var statusNames = map[CustodyStatus]string{
	StatusCreated:           "created",
	StatusPendingAcceptance: "pending_acceptance",
	StatusConfirmed:         "confirmed",
}

func (s CustodyStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// Code returns the wire value of the status (0, 1, 2), matching the ledger's
// canonical encoding.
func (s CustodyStatus) Code() uint8 { return uint8(s) }

// CustodyStatusFromCode decodes a wire status value.
func CustodyStatusFromCode(code uint8) (CustodyStatus, error) {
	s := CustodyStatus(code)
	if _, ok := statusNames[s]; !ok {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "unknown custody status code")
	}
	return s, nil
}

// ParseCustodyStatus decodes a status label, for query filters.
func ParseCustodyStatus(s string) (CustodyStatus, error) {
	for status, name := range statusNames {
		if name == s {
			return status, nil
		}
	}
	return 0, dErrors.New(dErrors.CodeInvalidInput, "unknown custody status")
}

// CanConfirm reports whether a confirm (accept/receive) is legal from this state.
func (s CustodyStatus) CanConfirm() bool { return s == StatusPendingAcceptance }
