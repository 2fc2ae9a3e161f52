package domain

import (
	"strings"

	dErrors "chaintrail/pkg/domain-errors"
)

// Role is the client-declared category of a supply-chain party. It gates which
// operations a dashboard presents; it is never the authoritative guard. The
// ledger enforces ownership and manufacturer checks regardless of the role a
// caller claims.
type Role uint8

const (
	RoleUnknown Role = iota
	RoleManufacturer
	RoleDistributor
	RoleRetailer
	RoleConsumer
)

var roleNames = map[Role]string{
	RoleManufacturer: "manufacturer",
	RoleDistributor:  "distributor",
	RoleRetailer:     "retailer",
	RoleConsumer:     "consumer",
}

var rolesByName = map[string]Role{
	"manufacturer": RoleManufacturer,
	"distributor":  RoleDistributor,
	"retailer":     RoleRetailer,
	"consumer":     RoleConsumer,
}

// ParseRole validates a role label at a trust boundary.
func ParseRole(s string) (Role, error) {
	role, ok := rolesByName[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return RoleUnknown, dErrors.New(dErrors.CodeInvalidInput, "unknown role")
	}
	return role, nil
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "unknown"
}

// IsValid reports whether the role is one of the four supply-chain parties.
func (r Role) IsValid() bool {
	_, ok := roleNames[r]
	return ok
}
