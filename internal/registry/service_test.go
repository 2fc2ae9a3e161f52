package registry

import (
	"context"
	"errors"
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

func seededService(t *testing.T) (*Service, *ledger.InMemory) {
	t.Helper()
	l := ledger.NewInMemory(manufacturer)
	ctx := context.Background()

	// Three products: one still with the manufacturer, one pending at the
	// distributor, one confirmed at the distributor.
	_, _, err := l.AddProduct(ctx, manufacturer, "Widget", "A widget")
	require.NoError(t, err)
	_, _, err = l.AddProduct(ctx, manufacturer, "Gadget", "A gadget")
	require.NoError(t, err)
	_, _, err = l.AddProduct(ctx, manufacturer, "Sprocket", "A sprocket")
	require.NoError(t, err)

	_, err = l.TransferProduct(ctx, manufacturer, 1, distributor)
	require.NoError(t, err)
	_, err = l.TransferProduct(ctx, manufacturer, 2, distributor)
	require.NoError(t, err)
	_, err = l.AcceptProduct(ctx, distributor, 2)
	require.NoError(t, err)

	return NewService(l), l
}

func TestGetProduct(t *testing.T) {
	svc, _ := seededService(t)
	ctx := context.Background()

	t.Run("returns the projection", func(t *testing.T) {
		view, err := svc.GetProduct(ctx, 0)
		require.NoError(t, err)
		assert.Equal(t, id.ProductID(0), view.ID)
		assert.Equal(t, "Widget", view.Name)
		assert.Equal(t, "A widget", view.Description)
		assert.Equal(t, manufacturer, view.Owner)
		assert.Equal(t, id.StatusCreated, view.Status)
		assert.Equal(t, uint8(0), view.StatusCode)
		assert.Equal(t, "created", view.StatusLabel)
		assert.False(t, view.IsCounterfeit)
	})

	t.Run("id past the counter fails not_found", func(t *testing.T) {
		_, err := svc.GetProduct(ctx, 3)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestListProducts(t *testing.T) {
	svc, _ := seededService(t)
	ctx := context.Background()

	t.Run("unfiltered enumeration covers every id ever created", func(t *testing.T) {
		views, err := svc.ListProducts(ctx, Filter{})
		require.NoError(t, err)
		require.Len(t, views, 3)
		for i, view := range views {
			assert.Equal(t, id.ProductID(i), view.ID)
		}
	})

	t.Run("owner filter", func(t *testing.T) {
		views, err := svc.ListProducts(ctx, Filter{Owner: distributor})
		require.NoError(t, err)
		assert.Len(t, views, 2)
	})

	t.Run("owner and status filter match the dashboard views", func(t *testing.T) {
		pending, err := svc.PendingFor(ctx, distributor)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, id.ProductID(1), pending[0].ID)

		confirmed, err := svc.ConfirmedFor(ctx, distributor)
		require.NoError(t, err)
		require.Len(t, confirmed, 1)
		assert.Equal(t, id.ProductID(2), confirmed[0].ID)

		// Retailer owns nothing yet.
		none, err := svc.PendingFor(ctx, retailer)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

// unreachableLedger fails every call the way a dead transport would.
type unreachableLedger struct {
	ledger.Ledger
}

func (unreachableLedger) NextProductID(context.Context) (id.ProductID, error) {
	return 0, errors.New("dial: connection refused")
}

func (unreachableLedger) GetProduct(context.Context, id.ProductID) (ledger.ProductRecord, error) {
	return ledger.ProductRecord{}, sentinel.ErrUnavailable
}

func TestReadFailureTranslation(t *testing.T) {
	svc := NewService(unreachableLedger{})

	_, err := svc.GetProduct(context.Background(), 0)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeLedgerUnavailable))

	// Errors without a sentinel stay internal rather than guessing.
	_, err = svc.ListProducts(context.Background(), Filter{})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}
