package history

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chaintrail/internal/ledger"
	id "chaintrail/pkg/domain"
	dErrors "chaintrail/pkg/domain-errors"
	"chaintrail/pkg/platform/sentinel"
)

const (
	manufacturer = id.Address("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	distributor  = id.Address("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	retailer     = id.Address("0xcccccccccccccccccccccccccccccccccccccccc")
)

// fakeLedger serves canned per-kind event streams and lets individual kinds
// fail, which the in-memory ledger cannot simulate.
type fakeLedger struct {
	ledger.Ledger
	products map[id.ProductID]ledger.ProductRecord
	events   map[ledger.EventKind][]ledger.Event
	failKind ledger.EventKind
	failErr  error
}

func (f *fakeLedger) GetProduct(_ context.Context, productID id.ProductID) (ledger.ProductRecord, error) {
	record, ok := f.products[productID]
	if !ok {
		return ledger.ProductRecord{}, sentinel.ErrNotFound
	}
	return record, nil
}

func (f *fakeLedger) Events(_ context.Context, kind ledger.EventKind, productID id.ProductID) ([]ledger.Event, error) {
	if f.failErr != nil && kind == f.failKind {
		return nil, f.failErr
	}
	var matched []ledger.Event
	for _, event := range f.events[kind] {
		if event.ProductID == productID {
			matched = append(matched, event)
		}
	}
	return matched, nil
}

func at(block uint64) ledger.SeqPosition { return ledger.SeqPosition{Block: block} }

// TestReconstruct_MergesAndOrders feeds uneven per-kind streams (3 transfers,
// 1 accept, 4 availability flips, 1 receive, 5 counterfeit reports) appended
// out of kind-order and expects one totally-ordered trail containing all of
// them.
func TestReconstruct_MergesAndOrders(t *testing.T) {
	fake := &fakeLedger{
		products: map[id.ProductID]ledger.ProductRecord{0: {ID: 0, Name: "Widget"}},
		events: map[ledger.EventKind][]ledger.Event{
			ledger.EventOwnershipTransferred: {
				{Kind: ledger.EventOwnershipTransferred, ProductID: 0, From: manufacturer, To: distributor, Seq: at(1)},
				{Kind: ledger.EventOwnershipTransferred, ProductID: 0, From: distributor, To: retailer, Seq: at(5)},
				{Kind: ledger.EventOwnershipTransferred, ProductID: 0, From: retailer, To: distributor, Seq: at(12)},
			},
			ledger.EventProductAccepted: {
				{Kind: ledger.EventProductAccepted, ProductID: 0, By: distributor, Seq: at(2)},
			},
			ledger.EventAvailabilityUpdated: {
				{Kind: ledger.EventAvailabilityUpdated, ProductID: 0, By: retailer, Available: true, Seq: at(7)},
				{Kind: ledger.EventAvailabilityUpdated, ProductID: 0, By: retailer, Seq: at(8)},
				{Kind: ledger.EventAvailabilityUpdated, ProductID: 0, By: retailer, Available: true, Seq: at(9)},
				{Kind: ledger.EventAvailabilityUpdated, ProductID: 0, By: retailer, Seq: at(11)},
			},
			ledger.EventProductReceived: {
				{Kind: ledger.EventProductReceived, ProductID: 0, By: retailer, Seq: at(6)},
			},
			ledger.EventCounterfeitReported: {
				{Kind: ledger.EventCounterfeitReported, ProductID: 0, By: retailer, Seq: at(3)},
				{Kind: ledger.EventCounterfeitReported, ProductID: 0, By: retailer, Seq: at(4)},
				{Kind: ledger.EventCounterfeitReported, ProductID: 0, By: distributor, Seq: at(10)},
				{Kind: ledger.EventCounterfeitReported, ProductID: 0, By: distributor, Seq: at(13)},
				{Kind: ledger.EventCounterfeitReported, ProductID: 0, By: manufacturer, Seq: at(14)},
			},
		},
	}

	trail, err := NewService(fake).Reconstruct(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, trail, 14, "every event of every kind must appear")

	for i := 1; i < len(trail); i++ {
		assert.True(t, trail[i-1].Seq.Before(trail[i].Seq),
			"trail out of order at %d: %+v before %+v", i, trail[i-1].Seq, trail[i].Seq)
	}
	assert.Equal(t, ledger.EventOwnershipTransferred, trail[0].Kind)
	assert.Equal(t, ledger.EventCounterfeitReported, trail[13].Kind)
}

func TestReconstruct_IndexBreaksBlockTies(t *testing.T) {
	fake := &fakeLedger{
		products: map[id.ProductID]ledger.ProductRecord{0: {ID: 0}},
		events: map[ledger.EventKind][]ledger.Event{
			ledger.EventCounterfeitReported: {
				{Kind: ledger.EventCounterfeitReported, ProductID: 0, Seq: ledger.SeqPosition{Block: 3, Index: 1}},
			},
			ledger.EventProductAccepted: {
				{Kind: ledger.EventProductAccepted, ProductID: 0, Seq: ledger.SeqPosition{Block: 3, Index: 0}},
			},
		},
	}

	trail, err := NewService(fake).Reconstruct(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, ledger.EventProductAccepted, trail[0].Kind)
	assert.Equal(t, ledger.EventCounterfeitReported, trail[1].Kind)
}

func TestReconstruct_EmptyTrail(t *testing.T) {
	fake := &fakeLedger{
		products: map[id.ProductID]ledger.ProductRecord{0: {ID: 0}},
		events:   map[ledger.EventKind][]ledger.Event{},
	}

	trail, err := NewService(fake).Reconstruct(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, trail)
}

func TestReconstruct_UnknownProduct(t *testing.T) {
	fake := &fakeLedger{products: map[id.ProductID]ledger.ProductRecord{}}

	_, err := NewService(fake).Reconstruct(context.Background(), 9)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
}

// TestReconstruct_WholeOrNothing fails one of the five kind queries and expects
// the whole reconstruction to fail rather than return a partial trail.
func TestReconstruct_WholeOrNothing(t *testing.T) {
	fake := &fakeLedger{
		products: map[id.ProductID]ledger.ProductRecord{0: {ID: 0}},
		events: map[ledger.EventKind][]ledger.Event{
			ledger.EventOwnershipTransferred: {
				{Kind: ledger.EventOwnershipTransferred, ProductID: 0, Seq: at(1)},
			},
		},
		failKind: ledger.EventAvailabilityUpdated,
		failErr:  sentinel.ErrUnavailable,
	}

	trail, err := NewService(fake).Reconstruct(context.Background(), 0)
	assert.Nil(t, trail)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeLedgerUnavailable))
}

// TestReconstruct_AgainstLiveLedger drives the in-memory ledger through a real
// chain walk and checks the derived trail matches what happened.
func TestReconstruct_AgainstLiveLedger(t *testing.T) {
	ctx := context.Background()
	mem := ledger.NewInMemory(manufacturer)

	productID, _, err := mem.AddProduct(ctx, manufacturer, "Widget", "")
	require.NoError(t, err)
	_, err = mem.TransferProduct(ctx, manufacturer, productID, distributor)
	require.NoError(t, err)
	_, err = mem.AcceptProduct(ctx, distributor, productID)
	require.NoError(t, err)
	_, err = mem.TransferProduct(ctx, distributor, productID, retailer)
	require.NoError(t, err)
	_, err = mem.ReceiveProduct(ctx, retailer, productID)
	require.NoError(t, err)
	_, err = mem.UpdateAvailability(ctx, retailer, productID, true)
	require.NoError(t, err)

	trail, err := NewService(mem).Reconstruct(ctx, productID)
	require.NoError(t, err)
	require.Len(t, trail, 5, "creation emits no event; five mutations follow")

	kinds := make([]ledger.EventKind, len(trail))
	for i, event := range trail {
		kinds[i] = event.Kind
	}
	assert.Equal(t, []ledger.EventKind{
		ledger.EventOwnershipTransferred,
		ledger.EventProductAccepted,
		ledger.EventOwnershipTransferred,
		ledger.EventProductReceived,
		ledger.EventAvailabilityUpdated,
	}, kinds)
}
