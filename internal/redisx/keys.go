package redisx

import "time"

const (
	// Idempotent checkout creation: idem:checkout:create:{key} -> order_id.
	// {key} is the caller's X-Idempotency-Key header.
	KeyIdemCheckout = "idem:checkout:create:%s"

	// Order status cache: order_status:{order_id} -> {"id":..., "status":...}
	KeyOrderStatus = "order_status:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLStatusCache = 5 * time.Minute
)
