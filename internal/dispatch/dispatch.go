// Package dispatch gates operations by the caller's declared role. The role is
// a client-side label for dashboard routing, never an authorization boundary:
// the ledger's ownership and manufacturer guards are the real checks, and the
// dispatcher forwards calls unmodified once the label matches.
package dispatch

import (
	"context"

	id "chaintrail/pkg/domain"
	dErrors "chaintrail/pkg/domain-errors"
)

// Operation names one gateway operation a dashboard can invoke.
type Operation string

const (
	OpAddProduct        Operation = "add_product"
	OpTransferProduct   Operation = "transfer_product"
	OpAcceptProduct     Operation = "accept_product"
	OpReceiveProduct    Operation = "receive_product"
	OpSetAvailability   Operation = "set_availability"
	OpReportCounterfeit Operation = "report_counterfeit"
	OpGetProduct        Operation = "get_product"
	OpListProducts      Operation = "list_products"
	OpGetHistory        Operation = "get_history"
)

// roleOperations maps each role to its dashboard surface: the commands that
// role performs plus the reads it needs to render. Reads and history are
// deliberately broad.
var roleOperations = map[id.Role][]Operation{
	id.RoleManufacturer: {
		OpAddProduct, OpTransferProduct,
		OpGetProduct, OpListProducts, OpGetHistory,
	},
	id.RoleDistributor: {
		OpAcceptProduct, OpTransferProduct,
		OpGetProduct, OpListProducts, OpGetHistory,
	},
	id.RoleRetailer: {
		OpReceiveProduct, OpSetAvailability, OpTransferProduct,
		OpGetProduct, OpListProducts, OpGetHistory,
	},
	id.RoleConsumer: {
		OpReportCounterfeit,
		OpGetProduct, OpListProducts, OpGetHistory,
	},
}

// OperationsFor returns the operation set a role's dashboard exposes.
func OperationsFor(role id.Role) []Operation {
	ops := roleOperations[role]
	return append([]Operation{}, ops...)
}

// Allowed reports whether the role's dashboard exposes the operation.
func Allowed(role id.Role, op Operation) bool {
	for _, candidate := range roleOperations[role] {
		if candidate == op {
			return true
		}
	}
	return false
}

// RoleStore persists each identity's declared role selection. Selections
// expire so a stale browser session cannot pin an identity to a role forever.
type RoleStore interface {
	// Set records the identity's role selection.
	Set(ctx context.Context, caller id.Address, role id.Role) error
	// Get returns the identity's current selection, or RoleUnknown if none.
	Get(ctx context.Context, caller id.Address) (id.Role, error)
}

// Dispatcher resolves the caller's declared role and gates operations on it.
type Dispatcher struct {
	store RoleStore
}

func NewDispatcher(store RoleStore) *Dispatcher {
	return &Dispatcher{store: store}
}

// SelectRole records the caller's role selection for subsequent requests.
func (d *Dispatcher) SelectRole(ctx context.Context, caller id.Address, role id.Role) error {
	if !role.IsValid() {
		return dErrors.New(dErrors.CodeInvalidInput, "unknown role")
	}
	return d.store.Set(ctx, caller, role)
}

// RoleFor returns the caller's current role selection.
func (d *Dispatcher) RoleFor(ctx context.Context, caller id.Address) (id.Role, error) {
	return d.store.Get(ctx, caller)
}

// Gate checks the caller's declared role against the operation. A miss is a
// dashboard-routing refusal, not an authorization verdict; the ledger still
// guards every mutation on its own.
func (d *Dispatcher) Gate(ctx context.Context, caller id.Address, op Operation) error {
	role, err := d.store.Get(ctx, caller)
	if err != nil {
		return err
	}
	if role == id.RoleUnknown {
		return dErrors.New(dErrors.CodeUnauthorized, "no role selected")
	}
	if !Allowed(role, op) {
		return dErrors.New(dErrors.CodeUnauthorized, "operation not available for role "+role.String())
	}
	return nil
}
