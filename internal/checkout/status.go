package checkout

type OrderStatus string

const (
	OrderPending OrderStatus = "PENDING"
	OrderPaid    OrderStatus = "PAID"
	OrderVoid    OrderStatus = "VOID"
)

// Terminal reports whether no further stock-affecting transition may be
// applied to an order in this status.
func (s OrderStatus) Terminal() bool {
	return s == OrderPaid || s == OrderVoid
}

type ItemStatus string

const (
	ItemDraft     ItemStatus = "DRAFT"
	ItemConfirmed ItemStatus = "CONFIRMED"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "PENDING"
	PaymentAccepted PaymentStatus = "ACCEPTED"
	PaymentDeclined PaymentStatus = "DECLINED"
)

var validNext = map[OrderStatus]map[OrderStatus]bool{
	OrderPending: {OrderPaid: true, OrderVoid: true},
	OrderPaid:    {},
	OrderVoid:    {},
}

func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}
