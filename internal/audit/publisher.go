package audit

import (
	"context"
	"sync"
	"time"

	id "chaintrail/pkg/domain"
)

// Publisher appends audit entries to a Store, either synchronously or through
// a buffered channel drained by a background goroutine. Async mode drops
// entries when the buffer is full rather than blocking a command path: this
// log is operational, losing an entry never loses provenance.
type Publisher struct {
	store Store

	async  bool
	inbox  chan Entry
	done   chan struct{}
	closed sync.Once
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to async mode with the given buffer.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.async = true
		p.inbox = make(chan Entry, size)
	}
}

func NewPublisher(store Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, done: make(chan struct{})}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		go p.drain()
	}
	return p
}

// Emit records one entry. In async mode a full buffer drops the entry.
func (p *Publisher) Emit(ctx context.Context, entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if !p.async {
		return p.store.Append(ctx, entry)
	}
	select {
	case p.inbox <- entry:
	case <-ctx.Done():
		return ctx.Err()
	default:
		// Buffer full: drop rather than stall the command path.
	}
	return nil
}

// List returns the entries recorded for one actor.
func (p *Publisher) List(ctx context.Context, actor id.Address) ([]Entry, error) {
	return p.store.ListByActor(ctx, actor)
}

// Close drains any buffered entries and stops the background goroutine.
func (p *Publisher) Close() {
	p.closed.Do(func() {
		if p.async {
			close(p.inbox)
			<-p.done
		}
	})
}

func (p *Publisher) drain() {
	defer close(p.done)
	for entry := range p.inbox {
		// Persistence failures only lose an operational record.
		_ = p.store.Append(context.Background(), entry)
	}
}
