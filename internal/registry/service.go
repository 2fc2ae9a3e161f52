// Package registry is the read model over the ledger's materialized product
// records. Pure reads, no side effects. The ledger has no batch-read primitive,
// so enumeration walks ids 0..next-1 and filters client-side, exactly the way
// the role dashboards consume it.
package registry

import (
	"context"
	"errors"

	"chaintrail/internal/ledger"
	id "chaintrail/pkg/domain"
	dErrors "chaintrail/pkg/domain-errors"
	"chaintrail/pkg/platform/sentinel"
)

// View is the projected state returned to the presentation layer. It mirrors
// the ledger's canonical tuple plus the availability flag, which the ledger
// materializes anyway; hiding it would force callers to replay events for a
// boolean.
type View struct {
	ID            id.ProductID     `json:"id"`
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	Owner         id.Address       `json:"owner"`
	Status        id.CustodyStatus `json:"-"`
	StatusLabel   string           `json:"status"`
	StatusCode    uint8            `json:"statusCode"`
	IsCounterfeit bool             `json:"isCounterfeit"`
	Available     bool             `json:"available"`
}

// Filter narrows an enumeration client-side. Zero values match everything.
type Filter struct {
	Owner  id.Address
	Status *id.CustodyStatus
}

func (f Filter) matches(record ledger.ProductRecord) bool {
	if !f.Owner.IsZero() && !record.Owner.Equal(f.Owner) {
		return false
	}
	if f.Status != nil && record.Status != *f.Status {
		return false
	}
	return true
}

type Service struct {
	ledger ledger.Ledger
}

func NewService(l ledger.Ledger) *Service {
	return &Service{ledger: l}
}

// GetProduct returns the projection for one id, or not_found past the counter.
func (s *Service) GetProduct(ctx context.Context, productID id.ProductID) (View, error) {
	record, err := s.ledger.GetProduct(ctx, productID)
	if err != nil {
		return View{}, translateRead(err)
	}
	return toView(record), nil
}

// ListProducts enumerates every product ever created, filtered client-side.
// Cost is linear in total products, not in matches.
func (s *Service) ListProducts(ctx context.Context, filter Filter) ([]View, error) {
	next, err := s.ledger.NextProductID(ctx)
	if err != nil {
		return nil, translateRead(err)
	}
	views := make([]View, 0, next)
	for productID := id.ProductID(0); productID < next; productID++ {
		record, err := s.ledger.GetProduct(ctx, productID)
		if err != nil {
			return nil, translateRead(err)
		}
		if filter.matches(record) {
			views = append(views, toView(record))
		}
	}
	return views, nil
}

// PendingFor lists products awaiting the owner's confirmation, the
// distributor/retailer inbound view.
func (s *Service) PendingFor(ctx context.Context, owner id.Address) ([]View, error) {
	status := id.StatusPendingAcceptance
	return s.ListProducts(ctx, Filter{Owner: owner, Status: &status})
}

// ConfirmedFor lists products the owner has confirmed and may move onward.
func (s *Service) ConfirmedFor(ctx context.Context, owner id.Address) ([]View, error) {
	status := id.StatusConfirmed
	return s.ListProducts(ctx, Filter{Owner: owner, Status: &status})
}

func toView(record ledger.ProductRecord) View {
	return View{
		ID:            record.ID,
		Name:          record.Name,
		Description:   record.Description,
		Owner:         record.Owner,
		Status:        record.Status,
		StatusLabel:   record.Status.String(),
		StatusCode:    record.Status.Code(),
		IsCounterfeit: record.IsCounterfeit,
		Available:     record.Available,
	}
}

func translateRead(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "product not found")
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeLedgerUnavailable, "ledger unreachable")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "read failed")
	}
}
