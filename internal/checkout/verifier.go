package checkout

import (
	"context"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

// PaymentVerifier decides accept/decline for an opaque credential. A real
// gateway implementation may take arbitrarily long or fail; it is always
// called before any stock mutation and its answer is final for the attempt.
type PaymentVerifier interface {
	// Verify returns (true, nil) on accept, (false, nil) on decline, and a
	// non-nil error only when no decision could be made.
	Verify(ctx context.Context, token string) (bool, error)
}

// TokenVerifier accepts any non-blank token. Stand-in for a gateway call.
type TokenVerifier struct{}

func (TokenVerifier) Verify(_ context.Context, token string) (bool, error) {
	return strings.TrimSpace(token) != "", nil
}

// BreakerVerifier wraps a gateway-backed verifier with a circuit breaker so
// a flapping gateway fails fast instead of holding the confirmation
// transaction open. A breaker error leaves the order PENDING.
type BreakerVerifier struct {
	next PaymentVerifier
	cb   *gobreaker.CircuitBreaker[bool]
}

func NewBreakerVerifier(name string, next PaymentVerifier) *BreakerVerifier {
	cb := gobreaker.NewCircuitBreaker[bool](gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &BreakerVerifier{next: next, cb: cb}
}

func (v *BreakerVerifier) Verify(ctx context.Context, token string) (bool, error) {
	return v.cb.Execute(func() (bool, error) {
		return v.next.Verify(ctx, token)
	})
}
