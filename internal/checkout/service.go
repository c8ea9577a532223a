package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service is the checkout orchestrator. It owns the order state machine;
// durability and the reservation primitive live behind Store.
type Service struct {
	store    Store
	verifier PaymentVerifier
	now      func() time.Time
}

func NewService(store Store, verifier PaymentVerifier) *Service {
	return &Service{store: store, verifier: verifier, now: time.Now}
}

// CreateOrder validates the request and persists a PENDING aggregate:
// Order(PENDING), one DRAFT item per input line with the product's current
// price snapshotted, and a PENDING payment.
//
// The stock check here is advisory only. It does not reserve anything, so a
// concurrent checkout can still win the same stock; real exclusivity is
// deferred to ConfirmPayment.
func (s *Service) CreateOrder(ctx context.Context, userID string, items []ItemInput) (*Order, error) {
	if len(items) == 0 {
		return nil, &ValidationError{Reason: "order must contain at least one item"}
	}
	for _, it := range items {
		if it.Quantity < 1 {
			return nil, &ValidationError{Reason: fmt.Sprintf("invalid quantity %d for product %s", it.Quantity, it.ProductID)}
		}
	}

	ok, err := s.store.UserExists(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check user: %w", err)
	}
	if !ok {
		return nil, &NotFoundError{Kind: "user", ID: userID}
	}

	order := &Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    OrderPending,
		CreatedAt: s.now().UTC(),
	}
	for _, it := range items {
		p, err := s.store.GetProduct(ctx, it.ProductID)
		if err != nil {
			return nil, err
		}
		if p.StockQty < it.Quantity {
			return nil, &StockConflictError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Available:   p.StockQty,
				Requested:   it.Quantity,
			}
		}
		order.Items = append(order.Items, OrderItem{
			ID:             uuid.NewString(),
			OrderID:        order.ID,
			ProductID:      p.ID,
			Quantity:       it.Quantity,
			UnitPriceCents: p.PriceCents,
			Status:         ItemDraft,
		})
	}
	order.Payment = &Payment{ID: uuid.NewString(), OrderID: order.ID, Status: PaymentPending}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}
	return order, nil
}

// ConfirmPayment finalizes a PENDING order inside one transaction:
//
//	terminal status          -> Conflict, nothing touched
//	verification declined    -> payment DECLINED, order VOID, commit;
//	                            returns the voided aggregate with
//	                            ErrPaymentRequired
//	any reservation fails    -> whole transaction rolls back, order stays
//	                            PENDING, Conflict naming the product
//	all reservations succeed -> items CONFIRMED, payment ACCEPTED with
//	                            paid_at, order PAID, commit
//
// Items are reserved sequentially: one short line aborts the whole order,
// partial shipment is not a supported state. Any other failure rolls back
// with zero observable side effects.
func (s *Service) ConfirmPayment(ctx context.Context, orderID, token string) (*Order, error) {
	var out *Order
	var declined bool

	err := s.store.ConfirmOrder(ctx, orderID, func(ctx context.Context, tx ConfirmTx) error {
		order := tx.Order()
		if order.Status.Terminal() {
			return &StateConflictError{OrderID: order.ID, Status: order.Status}
		}

		ok, err := s.verifier.Verify(ctx, token)
		if err != nil {
			return fmt.Errorf("verify payment: %w", err)
		}
		if !ok {
			order.Payment.Status = PaymentDeclined
			order.Status = OrderVoid
			declined = true
			out = order
			return tx.Save(ctx, order)
		}

		for i := range order.Items {
			it := &order.Items[i]
			reserved, err := tx.TryReserve(ctx, it.ProductID, it.Quantity)
			if err != nil {
				return fmt.Errorf("reserve product %s: %w", it.ProductID, err)
			}
			if !reserved {
				return &StockConflictError{ProductID: it.ProductID, Requested: it.Quantity}
			}
			it.Status = ItemConfirmed
		}

		paidAt := s.now().UTC()
		order.Payment.Status = PaymentAccepted
		order.Payment.PaidAt = &paidAt
		order.Status = OrderPaid
		out = order
		return tx.Save(ctx, order)
	})
	if err != nil {
		return nil, err
	}
	if declined {
		// The VOID transition committed; the error tells the caller a new
		// order is needed.
		return out, ErrPaymentRequired
	}
	return out, nil
}

func (s *Service) GetOrder(ctx context.Context, id string) (*Order, error) {
	return s.store.GetOrder(ctx, id)
}

func (s *Service) ListOrders(ctx context.Context) ([]Order, error) {
	return s.store.ListOrders(ctx)
}

func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	return s.store.ListProducts(ctx)
}
