// Package history rebuilds a product's custody trail from the ledger's event
// streams. There is no stored "history" object anywhere: the trail is derived
// on every request from the five per-kind event queries the ledger exposes,
// merged and ordered by ledger position. Nothing is cached, so the answer can
// never drift from the log.
package history

import (
	"context"
	"errors"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"chaintrail/internal/ledger"
	id "chaintrail/pkg/domain"
	dErrors "chaintrail/pkg/domain-errors"
	"chaintrail/pkg/platform/sentinel"
)

type Service struct {
	ledger ledger.Ledger
	tracer trace.Tracer
}

func NewService(l ledger.Ledger) *Service {
	return &Service{
		ledger: l,
		tracer: otel.Tracer("chaintrail/history"),
	}
}

// Reconstruct returns every event concerning the product, oldest first. The
// five per-kind queries run concurrently; a failure of any one fails the whole
// reconstruction, because a partial trail silently missing one event kind is
// worse than no trail.
func (s *Service) Reconstruct(ctx context.Context, productID id.ProductID) ([]ledger.Event, error) {
	ctx, span := s.tracer.Start(ctx, "history.Reconstruct",
		trace.WithAttributes(attribute.Int64("product.id", int64(productID))))
	defer span.End()

	if _, err := s.ledger.GetProduct(ctx, productID); err != nil {
		return nil, translate(err)
	}

	perKind := make([][]ledger.Event, len(ledger.EventKinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range ledger.EventKinds {
		g.Go(func() error {
			events, err := s.ledger.Events(gctx, kind, productID)
			if err != nil {
				return err
			}
			perKind[i] = events
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, translate(err)
	}

	merged := make([]ledger.Event, 0)
	for _, events := range perKind {
		merged = append(merged, events...)
	}
	// (block, index) is unique per event, so the order is total.
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Seq.Before(merged[j].Seq)
	})
	span.SetAttributes(attribute.Int("history.events", len(merged)))
	return merged, nil
}

func translate(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "product not found")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeLedgerUnavailable, "ledger unreachable")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "history reconstruction failed")
	}
}
