package checkout

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks. The typed errors below match them via Is,
// so callers can branch on the class and still read the details with As.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("invalid request")

	// ErrPaymentRequired reports a declined verification. Terminal for the
	// order: the DECLINED/VOID transition has committed and a new order is
	// needed to retry.
	ErrPaymentRequired = errors.New("payment verification failed")
)

type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type NotFoundError struct {
	Kind string // "user", "product", "order"
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Kind, e.ID) }
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// StockConflictError reports an unsatisfiable quantity, either from the
// advisory check at creation or from a failed reservation at confirmation.
// Name and Available are only known on the advisory path; the reservation
// is a blind conditional update and learns neither.
type StockConflictError struct {
	ProductID   string
	ProductName string
	Available   int
	Requested   int
}

func (e *StockConflictError) Error() string {
	if e.ProductName != "" {
		return fmt.Sprintf("insufficient stock for product %q: available %d, requested %d",
			e.ProductName, e.Available, e.Requested)
	}
	return fmt.Sprintf("insufficient stock for product %s (requested %d)", e.ProductID, e.Requested)
}

func (e *StockConflictError) Is(target error) bool { return target == ErrConflict }

// StateConflictError guards re-entrancy: the order already reached a
// terminal status and cannot be confirmed again.
type StateConflictError struct {
	OrderID string
	Status  OrderStatus
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("order %s is in %q state and cannot be confirmed", e.OrderID, e.Status)
}

func (e *StateConflictError) Is(target error) bool { return target == ErrConflict }
