// Package kafka decorates a ledger so every confirmed mutation is also produced
// to a Kafka topic for downstream consumers (indexers, alerting on counterfeit
// reports). The inner ledger remains the source of truth; production is
// best-effort and asynchronous, and a failed produce never fails the command.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"chaintrail/internal/ledger"
	id "chaintrail/pkg/domain"
)

// Relay wraps an inner ledger and mirrors its committed mutations onto a topic.
type Relay struct {
	inner  ledger.Ledger
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewClient builds a franz-go client for the given brokers.
func NewClient(brokers []string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return client, nil
}

// EnsureTopic creates the topic if it does not exist yet.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, 1, 1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, result := range resp {
		if result.Err != nil && !errors.Is(result.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", result.Topic, result.Err)
		}
	}
	return nil
}

// NewRelay wraps inner. The topic must already exist (see EnsureTopic).
func NewRelay(inner ledger.Ledger, client *kgo.Client, topic string, logger *slog.Logger) *Relay {
	return &Relay{inner: inner, client: client, topic: topic, logger: logger}
}

// message is the JSON payload produced per mutation. Sequence positions are not
// included: consumers needing exact ledger order re-query by TxRef.
type message struct {
	Kind      string `json:"kind"`
	ProductID uint64 `json:"productId"`
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	By        string `json:"by,omitempty"`
	Available bool   `json:"available,omitempty"`
	TxRef     string `json:"txRef"`
	At        string `json:"at"`
}

const kindProductCreated = "ProductCreated"

func (r *Relay) AddProduct(ctx context.Context, caller id.Address, name, description string) (id.ProductID, id.TxRef, error) {
	productID, txRef, err := r.inner.AddProduct(ctx, caller, name, description)
	if err != nil {
		return 0, id.TxRef{}, err
	}
	r.produce(ctx, message{Kind: kindProductCreated, ProductID: uint64(productID), By: caller.String(), TxRef: txRef.String()})
	return productID, txRef, nil
}

func (r *Relay) GetProduct(ctx context.Context, productID id.ProductID) (ledger.ProductRecord, error) {
	return r.inner.GetProduct(ctx, productID)
}

func (r *Relay) NextProductID(ctx context.Context) (id.ProductID, error) {
	return r.inner.NextProductID(ctx)
}

func (r *Relay) TransferProduct(ctx context.Context, caller id.Address, productID id.ProductID, to id.Address) (id.TxRef, error) {
	txRef, err := r.inner.TransferProduct(ctx, caller, productID, to)
	if err != nil {
		return id.TxRef{}, err
	}
	r.produce(ctx, message{
		Kind:      string(ledger.EventOwnershipTransferred),
		ProductID: uint64(productID),
		From:      caller.String(),
		To:        to.String(),
		TxRef:     txRef.String(),
	})
	return txRef, nil
}

func (r *Relay) AcceptProduct(ctx context.Context, caller id.Address, productID id.ProductID) (id.TxRef, error) {
	txRef, err := r.inner.AcceptProduct(ctx, caller, productID)
	if err != nil {
		return id.TxRef{}, err
	}
	r.produce(ctx, message{
		Kind:      string(ledger.EventProductAccepted),
		ProductID: uint64(productID),
		By:        caller.String(),
		TxRef:     txRef.String(),
	})
	return txRef, nil
}

func (r *Relay) ReceiveProduct(ctx context.Context, caller id.Address, productID id.ProductID) (id.TxRef, error) {
	txRef, err := r.inner.ReceiveProduct(ctx, caller, productID)
	if err != nil {
		return id.TxRef{}, err
	}
	r.produce(ctx, message{
		Kind:      string(ledger.EventProductReceived),
		ProductID: uint64(productID),
		By:        caller.String(),
		TxRef:     txRef.String(),
	})
	return txRef, nil
}

func (r *Relay) UpdateAvailability(ctx context.Context, caller id.Address, productID id.ProductID, available bool) (id.TxRef, error) {
	txRef, err := r.inner.UpdateAvailability(ctx, caller, productID, available)
	if err != nil {
		return id.TxRef{}, err
	}
	r.produce(ctx, message{
		Kind:      string(ledger.EventAvailabilityUpdated),
		ProductID: uint64(productID),
		By:        caller.String(),
		Available: available,
		TxRef:     txRef.String(),
	})
	return txRef, nil
}

func (r *Relay) ReportCounterfeit(ctx context.Context, caller id.Address, productID id.ProductID) (id.TxRef, error) {
	txRef, err := r.inner.ReportCounterfeit(ctx, caller, productID)
	if err != nil {
		return id.TxRef{}, err
	}
	r.produce(ctx, message{
		Kind:      string(ledger.EventCounterfeitReported),
		ProductID: uint64(productID),
		By:        caller.String(),
		TxRef:     txRef.String(),
	})
	return txRef, nil
}

func (r *Relay) Events(ctx context.Context, kind ledger.EventKind, productID id.ProductID) ([]ledger.Event, error) {
	return r.inner.Events(ctx, kind, productID)
}

// produce fires the record asynchronously, keyed by product id so per-product
// ordering is preserved within a partition.
func (r *Relay) produce(ctx context.Context, msg message) {
	msg.At = time.Now().UTC().Format(time.RFC3339Nano)
	payload, err := json.Marshal(msg)
	if err != nil {
		r.logger.ErrorContext(ctx, "marshal relay message", "error", err, "kind", msg.Kind)
		return
	}
	record := &kgo.Record{
		Topic: r.topic,
		Key:   []byte(strconv.FormatUint(msg.ProductID, 10)),
		Value: payload,
	}
	r.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			r.logger.Error("relay produce failed", "error", err, "kind", msg.Kind, "product_id", msg.ProductID)
		}
	})
}

// Close flushes pending produces and releases the client.
func (r *Relay) Close(ctx context.Context) error {
	if err := r.client.Flush(ctx); err != nil {
		return fmt.Errorf("flush relay: %w", err)
	}
	r.client.Close()
	return nil
}
