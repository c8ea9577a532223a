package checkout_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/velocityretail/checkout-engine/internal/checkout"
	"github.com/velocityretail/checkout-engine/internal/memstore"
)

const (
	userID    = "3f1c2d44-9a6e-4a2e-8a8e-111111111111"
	laptopID  = "3f1c2d44-9a6e-4a2e-8a8e-222222222222"
	mouseID   = "3f1c2d44-9a6e-4a2e-8a8e-333333333333"
	monitorID = "3f1c2d44-9a6e-4a2e-8a8e-444444444444"
)

func newFixture(t *testing.T) (*memstore.Store, *checkout.Service) {
	t.Helper()
	store := memstore.New()
	store.AddUser(checkout.User{ID: userID, Email: "jo@example.com", Name: "Jo"})
	store.AddProduct(checkout.Product{ID: laptopID, Name: "Laptop", PriceCents: 129999, StockQty: 5})
	store.AddProduct(checkout.Product{ID: mouseID, Name: "Mouse", PriceCents: 2499, StockQty: 10})
	store.AddProduct(checkout.Product{ID: monitorID, Name: "Monitor", PriceCents: 34999, StockQty: 2})
	return store, checkout.NewService(store, checkout.TokenVerifier{})
}

func stockOf(t *testing.T, store *memstore.Store, productID string) int {
	t.Helper()
	p, err := store.GetProduct(context.Background(), productID)
	require.NoError(t, err)
	return p.StockQty
}

func TestCreateOrder_EmptyItems(t *testing.T) {
	_, svc := newFixture(t)

	_, err := svc.CreateOrder(context.Background(), userID, nil)
	assert.ErrorIs(t, err, checkout.ErrValidation)
}

func TestCreateOrder_ZeroQuantity(t *testing.T) {
	_, svc := newFixture(t)

	_, err := svc.CreateOrder(context.Background(), userID, []checkout.ItemInput{
		{ProductID: laptopID, Quantity: 0},
	})
	assert.ErrorIs(t, err, checkout.ErrValidation)
}

func TestCreateOrder_UnknownUser(t *testing.T) {
	_, svc := newFixture(t)

	_, err := svc.CreateOrder(context.Background(), "no-such-user", []checkout.ItemInput{
		{ProductID: laptopID, Quantity: 1},
	})
	assert.ErrorIs(t, err, checkout.ErrNotFound)
}

func TestCreateOrder_UnknownProduct(t *testing.T) {
	_, svc := newFixture(t)

	_, err := svc.CreateOrder(context.Background(), userID, []checkout.ItemInput{
		{ProductID: "no-such-product", Quantity: 1},
	})
	assert.ErrorIs(t, err, checkout.ErrNotFound)
}

func TestCreateOrder_AdvisoryStockCheck(t *testing.T) {
	_, svc := newFixture(t)

	_, err := svc.CreateOrder(context.Background(), userID, []checkout.ItemInput{
		{ProductID: monitorID, Quantity: 3},
	})
	require.ErrorIs(t, err, checkout.ErrConflict)

	var sc *checkout.StockConflictError
	require.ErrorAs(t, err, &sc)
	assert.Equal(t, "Monitor", sc.ProductName)
	assert.Equal(t, 2, sc.Available)
	assert.Equal(t, 3, sc.Requested)
}

func TestCreateOrder_BuildsPendingAggregate(t *testing.T) {
	store, svc := newFixture(t)

	order, err := svc.CreateOrder(context.Background(), userID, []checkout.ItemInput{
		{ProductID: laptopID, Quantity: 2},
		{ProductID: mouseID, Quantity: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, checkout.OrderPending, order.Status)
	require.Len(t, order.Items, 2)
	for _, it := range order.Items {
		assert.Equal(t, checkout.ItemDraft, it.Status)
		assert.Equal(t, order.ID, it.OrderID)
	}
	assert.Equal(t, 129999, order.Items[0].UnitPriceCents)
	require.NotNil(t, order.Payment)
	assert.Equal(t, checkout.PaymentPending, order.Payment.Status)
	assert.Nil(t, order.Payment.PaidAt)
	assert.Equal(t, 2*129999+2499, order.TotalCents())

	// Creation reserves nothing.
	assert.Equal(t, 5, stockOf(t, store, laptopID))
	assert.Equal(t, 10, stockOf(t, store, mouseID))
}

func TestCreateOrder_SnapshotsUnitPrice(t *testing.T) {
	store, svc := newFixture(t)

	order, err := svc.CreateOrder(context.Background(), userID, []checkout.ItemInput{
		{ProductID: mouseID, Quantity: 1},
	})
	require.NoError(t, err)

	// A later catalog price change must not touch the existing order.
	store.AddProduct(checkout.Product{ID: mouseID, Name: "Mouse", PriceCents: 9999, StockQty: 10})

	confirmed, err := svc.ConfirmPayment(context.Background(), order.ID, "tok-1")
	require.NoError(t, err)
	assert.Equal(t, 2499, confirmed.Items[0].UnitPriceCents)
}

func TestConfirmPayment_Succeeds(t *testing.T) {
	store, svc := newFixture(t)

	order, err := svc.CreateOrder(context.Background(), userID, []checkout.ItemInput{
		{ProductID: laptopID, Quantity: 2},
		{ProductID: mouseID, Quantity: 3},
	})
	require.NoError(t, err)

	confirmed, err := svc.ConfirmPayment(context.Background(), order.ID, "tok-abc")
	require.NoError(t, err)

	assert.Equal(t, checkout.OrderPaid, confirmed.Status)
	require.NotNil(t, confirmed.Payment)
	assert.Equal(t, checkout.PaymentAccepted, confirmed.Payment.Status)
	require.NotNil(t, confirmed.Payment.PaidAt)
	assert.WithinDuration(t, time.Now(), *confirmed.Payment.PaidAt, time.Minute)
	for _, it := range confirmed.Items {
		assert.Equal(t, checkout.ItemConfirmed, it.Status)
	}

	assert.Equal(t, 3, stockOf(t, store, laptopID))
	assert.Equal(t, 7, stockOf(t, store, mouseID))

	// The committed state matches what was returned.
	got, err := store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, checkout.OrderPaid, got.Status)
	assert.Equal(t, checkout.PaymentAccepted, got.Payment.Status)
}

func TestConfirmPayment_BlankTokenVoidsOrder(t *testing.T) {
	store, svc := newFixture(t)

	order, err := svc.CreateOrder(context.Background(), userID, []checkout.ItemInput{
		{ProductID: laptopID, Quantity: 1},
	})
	require.NoError(t, err)

	voided, err := svc.ConfirmPayment(context.Background(), order.ID, "   ")
	require.ErrorIs(t, err, checkout.ErrPaymentRequired)
	require.NotNil(t, voided)
	assert.Equal(t, checkout.OrderVoid, voided.Status)
	assert.Equal(t, checkout.PaymentDeclined, voided.Payment.Status)
	assert.Nil(t, voided.Payment.PaidAt)

	// No stock touched, items stay DRAFT, and the VOID state committed.
	assert.Equal(t, 5, stockOf(t, store, laptopID))
	got, err := store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, checkout.OrderVoid, got.Status)
	for _, it := range got.Items {
		assert.Equal(t, checkout.ItemDraft, it.Status)
	}
}

func TestConfirmPayment_OrderNotFound(t *testing.T) {
	_, svc := newFixture(t)

	_, err := svc.ConfirmPayment(context.Background(), "missing-order", "tok")
	assert.ErrorIs(t, err, checkout.ErrNotFound)
}

func TestConfirmPayment_TerminalOrderConflicts(t *testing.T) {
	store, svc := newFixture(t)

	order, err := svc.CreateOrder(context.Background(), userID, []checkout.ItemInput{
		{ProductID: mouseID, Quantity: 1},
	})
	require.NoError(t, err)

	_, err = svc.ConfirmPayment(context.Background(), order.ID, "tok")
	require.NoError(t, err)

	// Second confirmation must not re-reserve anything.
	_, err = svc.ConfirmPayment(context.Background(), order.ID, "tok")
	require.ErrorIs(t, err, checkout.ErrConflict)

	var sc *checkout.StateConflictError
	require.ErrorAs(t, err, &sc)
	assert.Equal(t, checkout.OrderPaid, sc.Status)
	assert.Equal(t, 9, stockOf(t, store, mouseID))
}

func TestConfirmPayment_VoidOrderConflicts(t *testing.T) {
	_, svc := newFixture(t)

	order, err := svc.CreateOrder(context.Background(), userID, []checkout.ItemInput{
		{ProductID: mouseID, Quantity: 1},
	})
	require.NoError(t, err)

	_, err = svc.ConfirmPayment(context.Background(), order.ID, "")
	require.ErrorIs(t, err, checkout.ErrPaymentRequired)

	// A voided order cannot be revived with a good token.
	_, err = svc.ConfirmPayment(context.Background(), order.ID, "tok")
	assert.ErrorIs(t, err, checkout.ErrConflict)
}

func TestConfirmPayment_PartialReservationRollsBack(t *testing.T) {
	store, svc := newFixture(t)

	// Five lines; the monitor line (stock 2) cannot be satisfied.
	order, err := svc.CreateOrder(context.Background(), userID, []checkout.ItemInput{
		{ProductID: laptopID, Quantity: 1},
		{ProductID: mouseID, Quantity: 2},
		{ProductID: monitorID, Quantity: 2},
		{ProductID: laptopID, Quantity: 1},
		{ProductID: mouseID, Quantity: 1},
	})
	require.NoError(t, err)

	// Another order consumes the monitors between creation and confirmation.
	rival, err := svc.CreateOrder(context.Background(), userID, []checkout.ItemInput{
		{ProductID: monitorID, Quantity: 2},
	})
	require.NoError(t, err)
	_, err = svc.ConfirmPayment(context.Background(), rival.ID, "tok")
	require.NoError(t, err)

	_, err = svc.ConfirmPayment(context.Background(), order.ID, "tok")
	require.ErrorIs(t, err, checkout.ErrConflict)

	var sc *checkout.StockConflictError
	require.ErrorAs(t, err, &sc)
	assert.Equal(t, monitorID, sc.ProductID)

	// Nothing from the failed attempt persists: earlier lines are undone,
	// no item is CONFIRMED, the order stays PENDING.
	assert.Equal(t, 5, stockOf(t, store, laptopID))
	assert.Equal(t, 10, stockOf(t, store, mouseID))
	assert.Equal(t, 0, stockOf(t, store, monitorID))

	got, err := store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, checkout.OrderPending, got.Status)
	for _, it := range got.Items {
		assert.Equal(t, checkout.ItemDraft, it.Status)
	}
	assert.Equal(t, checkout.PaymentPending, got.Payment.Status)
}

func TestConfirmPayment_SequentialContention(t *testing.T) {
	store, svc := newFixture(t)

	// Product with stock 5: order X wants all of it, order Y wants one.
	orderX, err := svc.CreateOrder(context.Background(), userID, []checkout.ItemInput{
		{ProductID: laptopID, Quantity: 5},
	})
	require.NoError(t, err)
	orderY, err := svc.CreateOrder(context.Background(), userID, []checkout.ItemInput{
		{ProductID: laptopID, Quantity: 1},
	})
	require.NoError(t, err)

	_, err = svc.ConfirmPayment(context.Background(), orderX.ID, "tok")
	require.NoError(t, err)
	assert.Equal(t, 0, stockOf(t, store, laptopID))

	_, err = svc.ConfirmPayment(context.Background(), orderY.ID, "tok")
	require.ErrorIs(t, err, checkout.ErrConflict)

	got, err := store.GetOrder(context.Background(), orderY.ID)
	require.NoError(t, err)
	assert.Equal(t, checkout.OrderPending, got.Status)
	assert.Equal(t, 0, stockOf(t, store, laptopID))
}

func TestConfirmPayment_ConcurrentOversell(t *testing.T) {
	store, svc := newFixture(t)

	// Six one-monitor orders against a stock of 2: exactly two may win.
	orderIDs := make([]string, 6)
	for i := range orderIDs {
		order, err := svc.CreateOrder(context.Background(), userID, []checkout.ItemInput{
			{ProductID: monitorID, Quantity: 1},
		})
		require.NoError(t, err)
		orderIDs[i] = order.ID
	}

	var paid, conflicted atomic.Int32
	g, ctx := errgroup.WithContext(context.Background())
	for _, id := range orderIDs {
		id := id
		g.Go(func() error {
			_, err := svc.ConfirmPayment(ctx, id, "tok")
			switch {
			case err == nil:
				paid.Add(1)
			case errors.Is(err, checkout.ErrConflict):
				conflicted.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(2), paid.Load())
	assert.Equal(t, int32(4), conflicted.Load())
	assert.Equal(t, 0, stockOf(t, store, monitorID))

	// Losers stay PENDING; winners satisfy the lockstep invariant.
	var paidSeen int
	for _, id := range orderIDs {
		got, err := store.GetOrder(context.Background(), id)
		require.NoError(t, err)
		switch got.Status {
		case checkout.OrderPaid:
			paidSeen++
			assert.Equal(t, checkout.PaymentAccepted, got.Payment.Status)
			assert.Equal(t, checkout.ItemConfirmed, got.Items[0].Status)
		case checkout.OrderPending:
			assert.Equal(t, checkout.PaymentPending, got.Payment.Status)
			assert.Equal(t, checkout.ItemDraft, got.Items[0].Status)
		default:
			t.Fatalf("unexpected status %s for order %s", got.Status, id)
		}
	}
	assert.Equal(t, 2, paidSeen)
}

type failingVerifier struct{ err error }

func (f failingVerifier) Verify(context.Context, string) (bool, error) { return false, f.err }

func TestConfirmPayment_VerifierErrorLeavesOrderPending(t *testing.T) {
	store, _ := newFixture(t)
	svc := checkout.NewService(store, failingVerifier{err: errors.New("gateway down")})

	// Creation does not consult the verifier.
	createSvc := checkout.NewService(store, checkout.TokenVerifier{})
	order, err := createSvc.CreateOrder(context.Background(), userID, []checkout.ItemInput{
		{ProductID: laptopID, Quantity: 1},
	})
	require.NoError(t, err)

	_, err = svc.ConfirmPayment(context.Background(), order.ID, "tok")
	require.Error(t, err)
	assert.NotErrorIs(t, err, checkout.ErrPaymentRequired)

	got, err := store.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, checkout.OrderPending, got.Status)
	assert.Equal(t, 5, stockOf(t, store, laptopID))
}
