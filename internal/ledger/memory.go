package ledger

import (
	"context"
	"sync"

	id "chaintrail/pkg/domain"
	"chaintrail/pkg/platform/sentinel"
)

// InMemory is the development and test backend. A single mutex serializes
// mutations, which is exactly the total-ordering guarantee the real ledger
// provides per transaction; concurrent losers observe the post-commit state and
// fail their guards the same way a rejected transaction would.
type InMemory struct {
	mu           sync.RWMutex
	manufacturer id.Address
	products     []ProductRecord
	events       []Event
	block        uint64
}

// NewInMemory builds an empty ledger. The manufacturer address is fixed for
// the ledger's lifetime.
func NewInMemory(manufacturer id.Address) *InMemory {
	return &InMemory{manufacturer: manufacturer}
}

func (l *InMemory) AddProduct(_ context.Context, caller id.Address, name, description string) (id.ProductID, id.TxRef, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !caller.Equal(l.manufacturer) {
		return 0, id.TxRef{}, sentinel.ErrNotManufacturer
	}
	productID := id.ProductID(len(l.products))
	l.products = append(l.products, ProductRecord{
		ID:          productID,
		Name:        name,
		Description: description,
		Owner:       l.manufacturer,
		Status:      id.StatusCreated,
	})
	l.block++
	return productID, id.NewTxRef(), nil
}

func (l *InMemory) GetProduct(_ context.Context, productID id.ProductID) (ProductRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if int(productID) >= len(l.products) {
		return ProductRecord{}, sentinel.ErrNotFound
	}
	return l.products[productID], nil
}

func (l *InMemory) NextProductID(_ context.Context) (id.ProductID, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return id.ProductID(len(l.products)), nil
}

func (l *InMemory) TransferProduct(_ context.Context, caller id.Address, productID id.ProductID, to id.Address) (id.TxRef, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, err := l.lockedGet(productID)
	if err != nil {
		return id.TxRef{}, err
	}
	if !record.Owner.Equal(caller) {
		return id.TxRef{}, sentinel.ErrNotOwner
	}
	if to.IsZero() {
		return id.TxRef{}, sentinel.ErrRejected
	}
	from := record.Owner
	record.Owner = to
	record.Status = id.StatusPendingAcceptance
	l.products[productID] = *record
	return l.append(Event{
		Kind:      EventOwnershipTransferred,
		ProductID: productID,
		From:      from,
		To:        to,
	}), nil
}

func (l *InMemory) AcceptProduct(_ context.Context, caller id.Address, productID id.ProductID) (id.TxRef, error) {
	return l.confirm(caller, productID, EventProductAccepted)
}

func (l *InMemory) ReceiveProduct(_ context.Context, caller id.Address, productID id.ProductID) (id.TxRef, error) {
	return l.confirm(caller, productID, EventProductReceived)
}

// confirm is the shared accept/receive transition: pending -> confirmed, owner
// only. The event kind is the only difference between the two operations.
func (l *InMemory) confirm(caller id.Address, productID id.ProductID, kind EventKind) (id.TxRef, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, err := l.lockedGet(productID)
	if err != nil {
		return id.TxRef{}, err
	}
	if !record.Owner.Equal(caller) {
		return id.TxRef{}, sentinel.ErrNotOwner
	}
	if !record.Status.CanConfirm() {
		return id.TxRef{}, sentinel.ErrInvalidState
	}
	record.Status = id.StatusConfirmed
	l.products[productID] = *record
	return l.append(Event{Kind: kind, ProductID: productID, By: caller}), nil
}

func (l *InMemory) UpdateAvailability(_ context.Context, caller id.Address, productID id.ProductID, available bool) (id.TxRef, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, err := l.lockedGet(productID)
	if err != nil {
		return id.TxRef{}, err
	}
	if !record.Owner.Equal(caller) {
		return id.TxRef{}, sentinel.ErrNotOwner
	}
	record.Available = available
	l.products[productID] = *record
	return l.append(Event{
		Kind:      EventAvailabilityUpdated,
		ProductID: productID,
		By:        caller,
		Available: available,
	}), nil
}

func (l *InMemory) ReportCounterfeit(_ context.Context, caller id.Address, productID id.ProductID) (id.TxRef, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	record, err := l.lockedGet(productID)
	if err != nil {
		return id.TxRef{}, err
	}
	// One-way taint: repeated reports keep it true and still record an event.
	record.IsCounterfeit = true
	l.products[productID] = *record
	return l.append(Event{Kind: EventCounterfeitReported, ProductID: productID, By: caller}), nil
}

func (l *InMemory) Events(_ context.Context, kind EventKind, productID id.ProductID) ([]Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var matched []Event
	for _, event := range l.events {
		if event.Kind == kind && event.ProductID == productID {
			matched = append(matched, event)
		}
	}
	return matched, nil
}

func (l *InMemory) lockedGet(productID id.ProductID) (*ProductRecord, error) {
	if int(productID) >= len(l.products) {
		return nil, sentinel.ErrNotFound
	}
	record := l.products[productID]
	return &record, nil
}

// append stamps the event with the next block position and a fresh tx ref.
// Caller holds the write lock.
func (l *InMemory) append(event Event) id.TxRef {
	event.Seq = SeqPosition{Block: l.block}
	event.TxRef = id.NewTxRef()
	l.block++
	l.events = append(l.events, event)
	return event.TxRef
}
