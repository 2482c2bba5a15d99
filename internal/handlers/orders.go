package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shopmesh/api/internal/domain"
	"github.com/shopmesh/api/internal/platform/auth"
	"github.com/shopmesh/api/internal/platform/httpx"
	"github.com/shopmesh/api/internal/services"
)

const defaultIdempotencyHeader = "Idempotency-Key"

// OrderHandlers exposes order placement and the user's order history.
type OrderHandlers struct {
	authn             *auth.Authenticator
	orders            services.OrderService
	placeMiddlewares  []func(http.Handler) http.Handler
	idempotencyHeader string
}

// OrderHandlersOption customises OrderHandlers.
type OrderHandlersOption func(*OrderHandlers)

// WithPlaceOrderMiddlewares wraps only POST /orders, e.g. with the idempotency middleware.
func WithPlaceOrderMiddlewares(mw ...func(http.Handler) http.Handler) OrderHandlersOption {
	return func(h *OrderHandlers) {
		h.placeMiddlewares = append(h.placeMiddlewares, mw...)
	}
}

// WithIdempotencyHeader sets the header whose value is forwarded to the order service.
func WithIdempotencyHeader(name string) OrderHandlersOption {
	return func(h *OrderHandlers) {
		if name = strings.TrimSpace(name); name != "" {
			h.idempotencyHeader = name
		}
	}
}

// NewOrderHandlers constructs order handlers. Placement reads the idempotency key from
// the configured header.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService, opts ...OrderHandlersOption) *OrderHandlers {
	h := &OrderHandlers{
		authn:             authn,
		orders:            orders,
		idempotencyHeader: defaultIdempotencyHeader,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if h.authn != nil {
		r.Use(h.authn.RequireUser)
	}
	r.Get("/", h.history)
	r.Get("/{orderID}", h.get)
	r.With(h.placeMiddlewares...).Post("/", h.place)
}

type placeOrderRequest struct {
	AddressID     string `json:"addressId"`
	PaymentMethod string `json:"paymentMethod"`
	ClientTotal   *int64 `json:"clientTotal,omitempty"`
}

type placeOrderResponse struct {
	Order         orderPayload `json:"order"`
	BasketCleared bool         `json:"basketCleared"`
	Replayed      bool         `json:"replayed"`
}

func (h *OrderHandlers) place(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req placeOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeServiceError(ctx, w, err, "order")
		return
	}

	result, err := h.orders.PlaceOrder(ctx, services.PlaceOrderCommand{
		UserID:         userID,
		AddressID:      domain.AddressID(strings.TrimSpace(req.AddressID)),
		PaymentMethod:  req.PaymentMethod,
		ClientTotal:    req.ClientTotal,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(h.idempotencyHeader)),
	})
	if err != nil {
		writeServiceError(ctx, w, err, "order")
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+result.Order.ID)
	httpx.WriteJSON(w, status, placeOrderResponse{
		Order:         newOrderPayload(result.Order),
		BasketCleared: result.BasketCleared,
		Replayed:      result.Replayed,
	})
}

func (h *OrderHandlers) history(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeServiceError(ctx, w, fmt.Errorf("%w: limit must be a positive integer", services.ErrValidation), "order")
			return
		}
		limit = parsed
	}

	history, err := h.orders.History(ctx, userID, limit)
	if err != nil {
		writeServiceError(ctx, w, err, "order")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderHistoryPayload(history))
}

func (h *OrderHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	view, err := h.orders.Get(ctx, userID, strings.TrimSpace(chi.URLParam(r, "orderID")))
	if err != nil {
		writeServiceError(ctx, w, err, "order")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newOrderViewPayload(view))
}
