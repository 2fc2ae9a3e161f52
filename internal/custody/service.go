// Package custody drives the custody state machine: minting, hop-by-hop
// transfer, acceptance, availability, and counterfeit taint. Every command is
// submitted to the ledger, which enforces the authoritative guards; this
// service validates input, fast-fails on obviously stale preconditions,
// translates ledger sentinels into coded errors, and records the outcome.
package custody

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"chaintrail/internal/audit"
	"chaintrail/internal/custody/metrics"
	"chaintrail/internal/ledger"
	id "chaintrail/pkg/domain"
	dErrors "chaintrail/pkg/domain-errors"
	"chaintrail/pkg/platform/sentinel"
	"chaintrail/pkg/requestcontext"
)

// Receipt confirms a committed command.
type Receipt struct {
	ProductID id.ProductID `json:"productId"`
	TxRef     id.TxRef     `json:"txRef"`
}

type Service struct {
	ledger  ledger.Ledger
	audit   *audit.Publisher
	metrics *metrics.Metrics
	tracer  trace.Tracer
	log     *slog.Logger
}

func NewService(l ledger.Ledger, pub *audit.Publisher, m *metrics.Metrics, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		ledger:  l,
		audit:   pub,
		metrics: m,
		tracer:  otel.Tracer("chaintrail/custody"),
		log:     log,
	}
}

// AddProduct mints a new product under the caller's custody. Manufacturer only;
// the ledger enforces the guard, this layer only validates the payload.
func (s *Service) AddProduct(ctx context.Context, caller id.Address, name, description string) (Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "custody.AddProduct")
	defer span.End()

	if name == "" {
		return Receipt{}, dErrors.New(dErrors.CodeInvalidInput, "product name is required")
	}

	productID, txRef, err := s.ledger.AddProduct(ctx, caller, name, description)
	if err != nil {
		translated := translateCommand(err)
		s.record(ctx, caller, audit.ActionProductAdded, productID, id.TxRef{}, translated)
		return Receipt{}, translated
	}
	span.SetAttributes(attribute.Int64("product.id", int64(productID)))
	s.metrics.IncrementProductsCreated()
	s.record(ctx, caller, audit.ActionProductAdded, productID, txRef, nil)
	s.log.InfoContext(ctx, "product minted",
		"product_id", uint64(productID),
		"owner", caller.String(),
		"tx_ref", txRef.String(),
	)
	return Receipt{ProductID: productID, TxRef: txRef}, nil
}

// Transfer moves custody to another party and resets the hop to pending
// acceptance, whatever the prior status. Current owner only.
func (s *Service) Transfer(ctx context.Context, caller id.Address, productID id.ProductID, to id.Address) (Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "custody.Transfer",
		trace.WithAttributes(attribute.Int64("product.id", int64(productID))))
	defer span.End()

	if to.IsZero() {
		return Receipt{}, dErrors.New(dErrors.CodeInvalidInput, "recipient address is required")
	}
	if to.Equal(caller) {
		return Receipt{}, dErrors.New(dErrors.CodeInvalidInput, "cannot transfer to self")
	}
	if err := s.precheckOwner(ctx, caller, productID); err != nil {
		s.record(ctx, caller, audit.ActionProductTransferred, productID, id.TxRef{}, err)
		return Receipt{}, err
	}

	txRef, err := s.ledger.TransferProduct(ctx, caller, productID, to)
	if err != nil {
		translated := translateCommand(err)
		s.record(ctx, caller, audit.ActionProductTransferred, productID, id.TxRef{}, translated)
		return Receipt{}, translated
	}
	s.record(ctx, caller, audit.ActionProductTransferred, productID, txRef, nil)
	s.log.InfoContext(ctx, "custody transferred",
		"product_id", uint64(productID),
		"from", caller.String(),
		"to", to.String(),
		"tx_ref", txRef.String(),
	)
	return Receipt{ProductID: productID, TxRef: txRef}, nil
}

// Accept confirms receipt of a pending product, distributor-side.
func (s *Service) Accept(ctx context.Context, caller id.Address, productID id.ProductID) (Receipt, error) {
	return s.confirm(ctx, caller, productID, audit.ActionProductAccepted, s.ledger.AcceptProduct)
}

// Receive confirms receipt of a pending product, retailer-side. Identical
// effect to Accept; the distinct event kind keeps the history readable.
func (s *Service) Receive(ctx context.Context, caller id.Address, productID id.ProductID) (Receipt, error) {
	return s.confirm(ctx, caller, productID, audit.ActionProductReceived, s.ledger.ReceiveProduct)
}

func (s *Service) confirm(ctx context.Context, caller id.Address, productID id.ProductID,
	action audit.Action, submit func(context.Context, id.Address, id.ProductID) (id.TxRef, error),
) (Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "custody."+string(action),
		trace.WithAttributes(attribute.Int64("product.id", int64(productID))))
	defer span.End()

	if err := s.precheckConfirmable(ctx, caller, productID); err != nil {
		s.record(ctx, caller, action, productID, id.TxRef{}, err)
		return Receipt{}, err
	}

	txRef, err := submit(ctx, caller, productID)
	if err != nil {
		translated := translateCommand(err)
		s.record(ctx, caller, action, productID, id.TxRef{}, translated)
		return Receipt{}, translated
	}
	s.record(ctx, caller, action, productID, txRef, nil)
	s.log.InfoContext(ctx, "custody confirmed",
		"product_id", uint64(productID),
		"owner", caller.String(),
		"action", string(action),
		"tx_ref", txRef.String(),
	)
	return Receipt{ProductID: productID, TxRef: txRef}, nil
}

// SetAvailability toggles the retailer-facing availability flag. Owner only;
// custody status is untouched.
func (s *Service) SetAvailability(ctx context.Context, caller id.Address, productID id.ProductID, available bool) (Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "custody.SetAvailability",
		trace.WithAttributes(attribute.Int64("product.id", int64(productID)), attribute.Bool("available", available)))
	defer span.End()

	if err := s.precheckOwner(ctx, caller, productID); err != nil {
		s.record(ctx, caller, audit.ActionAvailabilityUpdated, productID, id.TxRef{}, err)
		return Receipt{}, err
	}

	txRef, err := s.ledger.UpdateAvailability(ctx, caller, productID, available)
	if err != nil {
		translated := translateCommand(err)
		s.record(ctx, caller, audit.ActionAvailabilityUpdated, productID, id.TxRef{}, translated)
		return Receipt{}, translated
	}
	s.record(ctx, caller, audit.ActionAvailabilityUpdated, productID, txRef, nil)
	return Receipt{ProductID: productID, TxRef: txRef}, nil
}

// ReportCounterfeit sets the one-way counterfeit taint. Open to any caller:
// a consumer flagging a suspect product must not be blocked by custody checks.
func (s *Service) ReportCounterfeit(ctx context.Context, caller id.Address, productID id.ProductID) (Receipt, error) {
	ctx, span := s.tracer.Start(ctx, "custody.ReportCounterfeit",
		trace.WithAttributes(attribute.Int64("product.id", int64(productID))))
	defer span.End()

	txRef, err := s.ledger.ReportCounterfeit(ctx, caller, productID)
	if err != nil {
		translated := translateCommand(err)
		s.record(ctx, caller, audit.ActionCounterfeitReported, productID, id.TxRef{}, translated)
		return Receipt{}, translated
	}
	s.metrics.IncrementCounterfeitReports()
	s.record(ctx, caller, audit.ActionCounterfeitReported, productID, txRef, nil)
	s.log.WarnContext(ctx, "counterfeit reported",
		"product_id", uint64(productID),
		"reporter", caller.String(),
		"tx_ref", txRef.String(),
	)
	return Receipt{ProductID: productID, TxRef: txRef}, nil
}

// precheckOwner fast-fails commands whose custody precondition is already
// visibly unmet. The read may be stale; the ledger's own guard decides.
func (s *Service) precheckOwner(ctx context.Context, caller id.Address, productID id.ProductID) error {
	record, err := s.ledger.GetProduct(ctx, productID)
	if err != nil {
		return translateCommand(err)
	}
	if !record.Owner.Equal(caller) {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not the current custodian")
	}
	return nil
}

func (s *Service) precheckConfirmable(ctx context.Context, caller id.Address, productID id.ProductID) error {
	record, err := s.ledger.GetProduct(ctx, productID)
	if err != nil {
		return translateCommand(err)
	}
	if !record.Owner.Equal(caller) {
		return dErrors.New(dErrors.CodeUnauthorized, "caller is not the current custodian")
	}
	if !record.Status.CanConfirm() {
		return dErrors.New(dErrors.CodeInvalidState, "product is not pending acceptance")
	}
	return nil
}

// record writes the metric and the audit entry for one command outcome.
func (s *Service) record(ctx context.Context, caller id.Address, action audit.Action, productID id.ProductID, txRef id.TxRef, cmdErr error) {
	outcome := "confirmed"
	if cmdErr != nil {
		outcome = string(dErrors.CodeOf(cmdErr))
	}
	s.metrics.IncrementCommand(string(action), outcome)

	if s.audit == nil {
		return
	}
	entry := audit.Entry{
		Timestamp: requestcontext.Now(ctx),
		Actor:     caller,
		Action:    action,
		ProductID: productID,
		RequestID: requestcontext.RequestID(ctx),
	}
	if cmdErr != nil {
		entry.Outcome = audit.OutcomeFailed
		entry.Reason = string(dErrors.CodeOf(cmdErr))
	} else {
		entry.Outcome = audit.OutcomeConfirmed
		entry.TxRef = txRef.String()
	}
	if err := s.audit.Emit(ctx, entry); err != nil {
		s.log.WarnContext(ctx, "audit emit failed", "error", err)
	}
}

func translateCommand(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "product not found")
	case errors.Is(err, sentinel.ErrNotManufacturer):
		return dErrors.Wrap(err, dErrors.CodeUnauthorized, "only the manufacturer can mint products")
	case errors.Is(err, sentinel.ErrNotOwner):
		return dErrors.Wrap(err, dErrors.CodeUnauthorized, "caller is not the current custodian")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeInvalidState, "product is not pending acceptance")
	case errors.Is(err, sentinel.ErrRejected):
		return dErrors.Wrap(err, dErrors.CodeRejected, "ledger rejected the transaction")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeLedgerUnavailable, "ledger unreachable")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "command failed")
	}
}
