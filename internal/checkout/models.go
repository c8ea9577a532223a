package checkout

import "time"

type Product struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	PriceCents int       `json:"price_cents"`
	StockQty   int       `json:"stock_qty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Order is the aggregate root: it owns its items and its payment.
// Deleting an order cascades to both (enforced in the schema).
type Order struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	Items     []OrderItem `json:"items"`
	Payment   *Payment    `json:"payment,omitempty"`
}

// TotalCents sums the snapshotted item prices.
func (o *Order) TotalCents() int {
	total := 0
	for _, it := range o.Items {
		total += it.UnitPriceCents * it.Quantity
	}
	return total
}

// OrderItem carries the unit price captured at order-creation time.
// Later catalog price changes never affect an existing order.
type OrderItem struct {
	ID             string     `json:"id"`
	OrderID        string     `json:"order_id"`
	ProductID      string     `json:"product_id"`
	Quantity       int        `json:"quantity"`
	UnitPriceCents int        `json:"unit_price_cents"`
	Status         ItemStatus `json:"status"`
}

// Payment is one-to-one with its order. PaidAt is set exactly once,
// when the status becomes ACCEPTED.
type Payment struct {
	ID      string        `json:"id"`
	OrderID string        `json:"order_id"`
	Status  PaymentStatus `json:"status"`
	PaidAt  *time.Time    `json:"paid_at,omitempty"`
}

// ItemInput is one requested line of a checkout.
type ItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}
