package checkout

import "context"

// Store is the durable persistence contract the orchestrator runs on.
// pgstore backs it with postgres; memstore backs it with maps for local
// runs and tests.
type Store interface {
	// GetProduct returns the catalog row or a NotFoundError.
	GetProduct(ctx context.Context, id string) (*Product, error)
	ListProducts(ctx context.Context) ([]Product, error)

	UserExists(ctx context.Context, id string) (bool, error)

	// GetOrder returns the full aggregate (order + items + payment).
	GetOrder(ctx context.Context, id string) (*Order, error)
	ListOrders(ctx context.Context) ([]Order, error)

	// CreateOrder persists a new aggregate as one durable write.
	CreateOrder(ctx context.Context, o *Order) error

	// ConfirmOrder loads the aggregate with the order row locked and runs fn
	// inside one transaction. A nil return from fn commits; any error rolls
	// the whole transaction back, reservations included. The aggregate
	// handed to fn is only valid inside fn.
	ConfirmOrder(ctx context.Context, orderID string, fn func(ctx context.Context, tx ConfirmTx) error) error
}

// ConfirmTx is the slice of a confirmation transaction the state machine
// needs: the locked aggregate, the ledger primitive, and a way to persist
// the status flips.
type ConfirmTx interface {
	Order() *Order

	// TryReserve decrements the product's stock by qty only if at least qty
	// is available, as one atomic conditional update, and bumps the
	// product's updated_at on success. Returns false when the stock was not
	// there. Never issued as a read followed by a write.
	TryReserve(ctx context.Context, productID string, qty int) (bool, error)

	// Save stages the order's current item/payment/order statuses for
	// commit.
	Save(ctx context.Context, o *Order) error
}
