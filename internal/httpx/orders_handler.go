package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/velocityretail/checkout-engine/internal/checkout"
	kafkax "github.com/velocityretail/checkout-engine/internal/kafka"
	"github.com/velocityretail/checkout-engine/internal/redisx"
)

// OrdersHandler exposes the checkout core over HTTP. Redis and the
// producers are optional; without them the handler just skips caching and
// event publishing.
type OrdersHandler struct {
	Service   *checkout.Service
	Redis     *redis.Client
	Created   *kafkax.Producer // checkout.order.created
	Finalized *kafkax.Producer // checkout.order.finalized

	ServiceName string
}

type CreateOrderReq struct {
	UserID string               `json:"user_id"`
	Items  []checkout.ItemInput `json:"items"`
}

type ConfirmPaymentReq struct {
	PaymentToken string `json:"payment_token"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/orders/{id}/status", h.getOrderStatus)
	r.Post("/orders/{id}/confirm-payment", h.confirmPayment)
	r.Get("/products", h.listProducts)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the checkout error taxonomy onto status codes:
// validation 400, payment required 402, not found 404, conflict 409,
// anything else (storage failures included) 500.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, checkout.ErrValidation):
		code = http.StatusBadRequest
	case errors.Is(err, checkout.ErrPaymentRequired):
		code = http.StatusPaymentRequired
	case errors.Is(err, checkout.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, checkout.ErrConflict):
		code = http.StatusConflict
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.UserID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing user_id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// Fast-path idempotency via Redis; the database stays the truth.
	idemKey := r.Header.Get("X-Idempotency-Key")
	if idemKey != "" && h.Redis != nil {
		key := fmt.Sprintf(redisx.KeyIdemCheckout, idemKey)
		if id, err := h.Redis.Get(ctx, key).Result(); err == nil && id != "" {
			if order, err := h.Service.GetOrder(ctx, id); err == nil {
				writeJSON(w, http.StatusOK, order)
				return
			}
		}
	}

	order, err := h.Service.CreateOrder(ctx, req.UserID, req.Items)
	if err != nil {
		writeError(w, err)
		return
	}

	if h.Redis != nil {
		if idemKey != "" {
			key := fmt.Sprintf(redisx.KeyIdemCheckout, idemKey)
			_ = h.Redis.Set(ctx, key, order.ID, redisx.TTLIdempotency).Err()
		}
		h.cacheStatus(ctx, order)
	}

	h.publishCreated(r, order)
	writeJSON(w, http.StatusCreated, order)
}

func (h *OrdersHandler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req ConfirmPaymentReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	order, err := h.Service.ConfirmPayment(ctx, orderID, req.PaymentToken)
	if errors.Is(err, checkout.ErrPaymentRequired) {
		// The DECLINED/VOID transition has committed.
		if h.Redis != nil {
			h.cacheStatus(ctx, order)
		}
		h.publishFinalized(r, order, err.Error())
		writeError(w, err)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	if h.Redis != nil {
		h.cacheStatus(ctx, order)
	}
	h.publishFinalized(r, order, "")
	writeJSON(w, http.StatusOK, order)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	order, err := h.Service.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// getOrderStatus serves the lightweight status projection, cache first.
func (h *OrdersHandler) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(s))
			return
		}
	}

	order, err := h.Service.GetOrder(ctx, orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	if h.Redis != nil {
		h.cacheStatus(ctx, order)
	}
	writeJSON(w, http.StatusOK, statusBody(order))
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	orders, err := h.Service.ListOrders(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *OrdersHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	products, err := h.Service.ListProducts(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func statusBody(o *checkout.Order) map[string]any {
	return map[string]any{"id": o.ID, "status": o.Status}
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, o *checkout.Order) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	b, _ := json.Marshal(statusBody(o))
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}

func (h *OrdersHandler) publishCreated(r *http.Request, o *checkout.Order) {
	if h.Created == nil {
		return
	}
	ev := checkout.Envelope{
		EventID:       uuid.NewString(),
		EventType:     checkout.EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.ServiceName,
		TraceID:       r.Header.Get("X-Request-Id"),
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(checkout.OrderCreatedPayload{
			OrderID:    o.ID,
			UserID:     o.UserID,
			Items:      checkout.Lines(o.Items),
			TotalCents: o.TotalCents(),
		}),
	}
	h.Created.Publish(checkout.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(checkout.EventOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (h *OrdersHandler) publishFinalized(r *http.Request, o *checkout.Order, reason string) {
	if h.Finalized == nil {
		return
	}
	payload := checkout.OrderFinalizedPayload{
		OrderID:     o.ID,
		FinalStatus: o.Status,
		TotalCents:  o.TotalCents(),
		Reason:      reason,
	}
	if o.Payment != nil {
		payload.PaidAt = o.Payment.PaidAt
	}
	ev := checkout.Envelope{
		EventID:       uuid.NewString(),
		EventType:     checkout.EventOrderFinalized,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.ServiceName,
		TraceID:       r.Header.Get("X-Request-Id"),
		CorrelationID: o.ID,
		Payload:       kafkax.MustMarshal(payload),
	}
	h.Finalized.Publish(checkout.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(checkout.EventOrderFinalized)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
