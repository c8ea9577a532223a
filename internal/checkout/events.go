package checkout

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderFinalized = "OrderFinalized"
)

// Envelope wraps every published event. Only committed state changes are
// published; a rolled-back confirmation emits nothing.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type ItemLine struct {
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int    `json:"unit_price_cents"`
}

type OrderCreatedPayload struct {
	OrderID    string     `json:"order_id"`
	UserID     string     `json:"user_id"`
	Items      []ItemLine `json:"items"`
	TotalCents int        `json:"total_cents"`
}

type OrderFinalizedPayload struct {
	OrderID     string      `json:"order_id"`
	FinalStatus OrderStatus `json:"final_status"` // PAID | VOID
	TotalCents  int         `json:"total_cents"`
	PaidAt      *time.Time  `json:"paid_at,omitempty"`
	Reason      string      `json:"reason,omitempty"` // set when VOID
}

func Lines(items []OrderItem) []ItemLine {
	out := make([]ItemLine, 0, len(items))
	for _, it := range items {
		out = append(out, ItemLine{
			ProductID:      it.ProductID,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
		})
	}
	return out
}
