package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	id "chaintrail/pkg/domain"
	"chaintrail/pkg/platform/circuit"
	"chaintrail/pkg/platform/sentinel"
)

// Breakered wraps a ledger with a circuit breaker on connectivity. Consecutive
// ErrUnavailable failures open the circuit, after which calls fast-fail with
// ErrUnavailable instead of waiting out another timeout against a dead ledger.
// One call at a time is let through as a probe; a successful probe closes the
// circuit again. Guard failures (not-owner, invalid-state, rejected) are
// successful round trips and never trip the breaker.
type Breakered struct {
	inner   Ledger
	breaker *circuit.Breaker
	logger  *slog.Logger
	probing atomic.Bool
}

func WithBreaker(inner Ledger, logger *slog.Logger, opts ...circuit.Option) *Breakered {
	return &Breakered{
		inner:   inner,
		breaker: circuit.New("ledger", opts...),
		logger:  logger,
	}
}

func (b *Breakered) call(ctx context.Context, op string, fn func() error) error {
	if b.breaker.IsOpen() {
		// Single probe slot; everyone else fails fast.
		if !b.probing.CompareAndSwap(false, true) {
			return fmt.Errorf("%s: circuit open: %w", op, sentinel.ErrUnavailable)
		}
		defer b.probing.Store(false)
	}

	err := fn()
	if errors.Is(err, sentinel.ErrUnavailable) {
		if _, change := b.breaker.RecordFailure(); change.Opened {
			b.logger.WarnContext(ctx, "ledger circuit opened", "operation", op)
		}
		return err
	}
	if _, change := b.breaker.RecordSuccess(); change.Closed {
		b.logger.InfoContext(ctx, "ledger circuit closed", "operation", op)
	}
	return err
}

func (b *Breakered) AddProduct(ctx context.Context, caller id.Address, name, description string) (id.ProductID, id.TxRef, error) {
	var (
		productID id.ProductID
		txRef     id.TxRef
	)
	err := b.call(ctx, "AddProduct", func() error {
		var err error
		productID, txRef, err = b.inner.AddProduct(ctx, caller, name, description)
		return err
	})
	if err != nil {
		return 0, id.TxRef{}, err
	}
	return productID, txRef, nil
}

func (b *Breakered) GetProduct(ctx context.Context, productID id.ProductID) (ProductRecord, error) {
	var record ProductRecord
	err := b.call(ctx, "GetProduct", func() error {
		var err error
		record, err = b.inner.GetProduct(ctx, productID)
		return err
	})
	if err != nil {
		return ProductRecord{}, err
	}
	return record, nil
}

func (b *Breakered) NextProductID(ctx context.Context) (id.ProductID, error) {
	var next id.ProductID
	err := b.call(ctx, "NextProductID", func() error {
		var err error
		next, err = b.inner.NextProductID(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (b *Breakered) TransferProduct(ctx context.Context, caller id.Address, productID id.ProductID, to id.Address) (id.TxRef, error) {
	return b.mutate(ctx, "TransferProduct", func() (id.TxRef, error) {
		return b.inner.TransferProduct(ctx, caller, productID, to)
	})
}

func (b *Breakered) AcceptProduct(ctx context.Context, caller id.Address, productID id.ProductID) (id.TxRef, error) {
	return b.mutate(ctx, "AcceptProduct", func() (id.TxRef, error) {
		return b.inner.AcceptProduct(ctx, caller, productID)
	})
}

func (b *Breakered) ReceiveProduct(ctx context.Context, caller id.Address, productID id.ProductID) (id.TxRef, error) {
	return b.mutate(ctx, "ReceiveProduct", func() (id.TxRef, error) {
		return b.inner.ReceiveProduct(ctx, caller, productID)
	})
}

func (b *Breakered) UpdateAvailability(ctx context.Context, caller id.Address, productID id.ProductID, available bool) (id.TxRef, error) {
	return b.mutate(ctx, "UpdateAvailability", func() (id.TxRef, error) {
		return b.inner.UpdateAvailability(ctx, caller, productID, available)
	})
}

func (b *Breakered) ReportCounterfeit(ctx context.Context, caller id.Address, productID id.ProductID) (id.TxRef, error) {
	return b.mutate(ctx, "ReportCounterfeit", func() (id.TxRef, error) {
		return b.inner.ReportCounterfeit(ctx, caller, productID)
	})
}

func (b *Breakered) Events(ctx context.Context, kind EventKind, productID id.ProductID) ([]Event, error) {
	var events []Event
	err := b.call(ctx, "Events", func() error {
		var err error
		events, err = b.inner.Events(ctx, kind, productID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (b *Breakered) mutate(ctx context.Context, op string, fn func() (id.TxRef, error)) (id.TxRef, error) {
	var txRef id.TxRef
	err := b.call(ctx, op, func() error {
		var err error
		txRef, err = fn()
		return err
	})
	if err != nil {
		return id.TxRef{}, err
	}
	return txRef, nil
}
