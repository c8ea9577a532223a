package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/velocityretail/checkout-engine/internal/checkout"
)

// Store implements checkout.Store on a pgx pool.
type Store struct{ DB *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *Store) GetProduct(ctx context.Context, id string) (*checkout.Product, error) {
	var p checkout.Product
	err := s.DB.QueryRow(ctx, `
		SELECT id, name, price_cents, stock_qty, created_at, updated_at
		FROM products WHERE id=$1`, id).
		Scan(&p.ID, &p.Name, &p.PriceCents, &p.StockQty, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &checkout.NotFoundError{Kind: "product", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]checkout.Product, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, name, price_cents, stock_qty, created_at, updated_at
		FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []checkout.Product
	for rows.Next() {
		var p checkout.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.PriceCents, &p.StockQty, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) UserExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id=$1)`, id).Scan(&exists)
	return exists, err
}

func (s *Store) GetOrder(ctx context.Context, id string) (*checkout.Order, error) {
	return loadOrder(ctx, s.DB, id, false)
}

func (s *Store) ListOrders(ctx context.Context) ([]checkout.Order, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, user_id, status, created_at
		FROM orders ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []checkout.Order
	for rows.Next() {
		var o checkout.Order
		var status string
		if err := rows.Scan(&o.ID, &o.UserID, &status, &o.CreatedAt); err != nil {
			return nil, err
		}
		o.Status = checkout.OrderStatus(status)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if out[i].Items, err = loadItems(ctx, s.DB, out[i].ID); err != nil {
			return nil, err
		}
		if out[i].Payment, err = loadPayment(ctx, s.DB, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CreateOrder persists the whole aggregate in one transaction.
func (s *Store) CreateOrder(ctx context.Context, o *checkout.Order) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, user_id, status, created_at)
		VALUES ($1, $2, $3, $4)`,
		o.ID, o.UserID, string(o.Status), o.CreatedAt)
	if err != nil {
		return err
	}

	for _, it := range o.Items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, product_id, quantity, unit_price_cents, status)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			it.ID, it.OrderID, it.ProductID, it.Quantity, it.UnitPriceCents, string(it.Status))
		if err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO payments(id, order_id, status)
		VALUES ($1, $2, $3)`,
		o.Payment.ID, o.Payment.OrderID, string(o.Payment.Status))
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// ConfirmOrder opens the confirmation transaction. The order row is locked
// FOR UPDATE, which serializes duplicate confirmations of the same order:
// the loser blocks until the winner commits and then sees the terminal
// status. Per-product contention is not handled here at all; that is the
// conditional update in TryReserve.
func (s *Store) ConfirmOrder(ctx context.Context, orderID string, fn func(ctx context.Context, tx checkout.ConfirmTx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	order, err := loadOrder(ctx, tx, orderID, true)
	if err != nil {
		return err
	}

	if err := fn(ctx, &confirmTx{tx: tx, order: order}); err != nil {
		return err // rollback via defer
	}
	return tx.Commit(ctx)
}

type confirmTx struct {
	tx    pgx.Tx
	order *checkout.Order
}

func (t *confirmTx) Order() *checkout.Order { return t.order }

// TryReserve is the ledger primitive: decrement only when enough stock is
// there, as one atomic statement, and read the affected-row count. No prior
// SELECT of the stock value is ever made.
func (t *confirmTx) TryReserve(ctx context.Context, productID string, qty int) (bool, error) {
	ct, err := t.tx.Exec(ctx, `
		UPDATE products
		SET stock_qty = stock_qty - $2, updated_at = now()
		WHERE id = $1 AND stock_qty >= $2`,
		productID, qty)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (t *confirmTx) Save(ctx context.Context, o *checkout.Order) error {
	if _, err := t.tx.Exec(ctx, `UPDATE orders SET status=$2 WHERE id=$1`, o.ID, string(o.Status)); err != nil {
		return err
	}
	for _, it := range o.Items {
		if _, err := t.tx.Exec(ctx, `UPDATE order_items SET status=$2 WHERE id=$1`, it.ID, string(it.Status)); err != nil {
			return err
		}
	}
	if o.Payment != nil {
		if _, err := t.tx.Exec(ctx, `UPDATE payments SET status=$2, paid_at=$3 WHERE order_id=$1`,
			o.ID, string(o.Payment.Status), o.Payment.PaidAt); err != nil {
			return err
		}
	}
	return nil
}

func loadOrder(ctx context.Context, q querier, id string, forUpdate bool) (*checkout.Order, error) {
	query := `SELECT id, user_id, status, created_at FROM orders WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var o checkout.Order
	var status string
	err := q.QueryRow(ctx, query, id).Scan(&o.ID, &o.UserID, &status, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &checkout.NotFoundError{Kind: "order", ID: id}
	}
	if err != nil {
		return nil, err
	}
	o.Status = checkout.OrderStatus(status)

	if o.Items, err = loadItems(ctx, q, o.ID); err != nil {
		return nil, fmt.Errorf("load items for order %s: %w", o.ID, err)
	}
	if o.Payment, err = loadPayment(ctx, q, o.ID); err != nil {
		return nil, fmt.Errorf("load payment for order %s: %w", o.ID, err)
	}
	return &o, nil
}

func loadItems(ctx context.Context, q querier, orderID string) ([]checkout.OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price_cents, status
		FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []checkout.OrderItem
	for rows.Next() {
		var it checkout.OrderItem
		var status string
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPriceCents, &status); err != nil {
			return nil, err
		}
		it.Status = checkout.ItemStatus(status)
		out = append(out, it)
	}
	return out, rows.Err()
}

func loadPayment(ctx context.Context, q querier, orderID string) (*checkout.Payment, error) {
	var p checkout.Payment
	var status string
	err := q.QueryRow(ctx, `
		SELECT id, order_id, status, paid_at
		FROM payments WHERE order_id=$1`, orderID).
		Scan(&p.ID, &p.OrderID, &status, &p.PaidAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Status = checkout.PaymentStatus(status)
	return &p, nil
}
