//go:build integration

package kafka

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"chaintrail/internal/ledger"
	id "chaintrail/pkg/domain"
	"chaintrail/pkg/testutil/containers"
)

const (
	manufacturer = id.Address("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	distributor  = id.Address("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func TestRelay_MirrorsCommittedMutations(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	ctx := context.Background()
	broker := containers.NewRedpandaContainer(t)

	const topic = "custody-events-test"
	producer, err := NewClient(broker.Brokers)
	require.NoError(t, err)
	require.NoError(t, EnsureTopic(ctx, producer, topic))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	relay := NewRelay(ledger.NewInMemory(manufacturer), producer, topic, log)

	productID, _, err := relay.AddProduct(ctx, manufacturer, "Widget", "A widget")
	require.NoError(t, err)
	transferRef, err := relay.TransferProduct(ctx, manufacturer, productID, distributor)
	require.NoError(t, err)

	// A refused command must not produce anything.
	_, err = relay.TransferProduct(ctx, manufacturer, productID, distributor)
	require.Error(t, err)

	require.NoError(t, relay.Close(ctx))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetchCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var records []*kgo.Record
	for len(records) < 2 {
		fetches := consumer.PollFetches(fetchCtx)
		require.NoError(t, fetches.Err())
		records = append(records, fetches.Records()...)
	}
	require.Len(t, records, 2)

	var created, transferred message
	require.NoError(t, json.Unmarshal(records[0].Value, &created))
	require.NoError(t, json.Unmarshal(records[1].Value, &transferred))

	assert.Equal(t, "ProductCreated", created.Kind)
	assert.Equal(t, uint64(productID), created.ProductID)
	assert.Equal(t, manufacturer.String(), created.By)

	assert.Equal(t, string(ledger.EventOwnershipTransferred), transferred.Kind)
	assert.Equal(t, manufacturer.String(), transferred.From)
	assert.Equal(t, distributor.String(), transferred.To)
	assert.Equal(t, transferRef.String(), transferred.TxRef)

	// Same key, so both land in the same partition in submit order.
	assert.Equal(t, records[0].Key, records[1].Key)
}
