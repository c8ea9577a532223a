package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/velocityretail/checkout-engine/internal/checkout"
)

// Store implements checkout.Store with in-memory maps. It backs the
// STORE_DRIVER=memory mode and the orchestrator tests. Everything is lost
// on restart.
type Store struct {
	mu       sync.Mutex
	products map[string]*checkout.Product
	users    map[string]checkout.User
	orders   map[string]*checkout.Order
}

func New() *Store {
	return &Store{
		products: make(map[string]*checkout.Product),
		users:    make(map[string]checkout.User),
		orders:   make(map[string]*checkout.Order),
	}
}

// AddProduct and AddUser seed the store. Not part of checkout.Store.
func (s *Store) AddProduct(p checkout.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := p
	s.products[p.ID] = &cp
}

func (s *Store) AddUser(u checkout.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *Store) GetProduct(_ context.Context, id string) (*checkout.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, &checkout.NotFoundError{Kind: "product", ID: id}
	}
	cp := *p
	return &cp, nil
}

func (s *Store) ListProducts(_ context.Context) ([]checkout.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]checkout.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) UserExists(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[id]
	return ok, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*checkout.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, &checkout.NotFoundError{Kind: "order", ID: id}
	}
	return cloneOrder(o), nil
}

func (s *Store) ListOrders(_ context.Context) ([]checkout.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]checkout.Order, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, *cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateOrder(_ context.Context, o *checkout.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = cloneOrder(o)
	return nil
}

// ConfirmOrder holds the store mutex for the whole call, which serializes
// confirmations the way the postgres driver's row lock does (coarser, but
// with the same observable outcomes). fn works on a clone; on success the
// clone replaces the stored aggregate, on error every reservation taken
// inside the call is returned, so nothing partial is ever visible.
func (s *Store) ConfirmOrder(ctx context.Context, orderID string, fn func(ctx context.Context, tx checkout.ConfirmTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.orders[orderID]
	if !ok {
		return &checkout.NotFoundError{Kind: "order", ID: orderID}
	}

	work := cloneOrder(stored)
	tx := &confirmTx{store: s, order: work, reserved: make(map[string]int)}

	if err := fn(ctx, tx); err != nil {
		for pid, qty := range tx.reserved {
			s.products[pid].StockQty += qty
		}
		return err
	}

	s.orders[orderID] = work
	return nil
}

type confirmTx struct {
	store    *Store
	order    *checkout.Order
	reserved map[string]int // undo log, product id -> qty taken
}

func (t *confirmTx) Order() *checkout.Order { return t.order }

// TryReserve mirrors the conditional UPDATE: a missing product behaves like
// an update that matched zero rows.
func (t *confirmTx) TryReserve(_ context.Context, productID string, qty int) (bool, error) {
	p, ok := t.store.products[productID]
	if !ok || p.StockQty < qty {
		return false, nil
	}
	p.StockQty -= qty
	p.UpdatedAt = time.Now().UTC()
	t.reserved[productID] += qty
	return true, nil
}

// Save is a no-op: fn mutates the cloned aggregate in place and the clone
// lands in the map when ConfirmOrder commits.
func (t *confirmTx) Save(_ context.Context, _ *checkout.Order) error { return nil }

func cloneOrder(o *checkout.Order) *checkout.Order {
	cp := *o
	cp.Items = make([]checkout.OrderItem, len(o.Items))
	copy(cp.Items, o.Items)
	if o.Payment != nil {
		p := *o.Payment
		if o.Payment.PaidAt != nil {
			at := *o.Payment.PaidAt
			p.PaidAt = &at
		}
		cp.Payment = &p
	}
	return &cp
}
