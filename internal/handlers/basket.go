package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shopmesh/api/internal/domain"
	"github.com/shopmesh/api/internal/platform/auth"
	"github.com/shopmesh/api/internal/platform/httpx"
	"github.com/shopmesh/api/internal/services"
)

// BasketHandlers exposes the authenticated user's basket.
type BasketHandlers struct {
	authn            *auth.Authenticator
	baskets          services.BasketService
	writeMiddlewares []func(http.Handler) http.Handler
}

// BasketHandlersOption customises BasketHandlers.
type BasketHandlersOption func(*BasketHandlers)

// WithBasketWriteMiddlewares wraps the mutating basket routes only.
func WithBasketWriteMiddlewares(mw ...func(http.Handler) http.Handler) BasketHandlersOption {
	return func(h *BasketHandlers) {
		h.writeMiddlewares = append(h.writeMiddlewares, mw...)
	}
}

// NewBasketHandlers constructs basket handlers. A nil authenticator leaves identity
// resolution to an outer middleware.
func NewBasketHandlers(authn *auth.Authenticator, baskets services.BasketService, opts ...BasketHandlersOption) *BasketHandlers {
	h := &BasketHandlers{authn: authn, baskets: baskets}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /basket endpoints onto the provided router.
func (h *BasketHandlers) Routes(r chi.Router) {
	if h.authn != nil {
		r.Use(h.authn.RequireUser)
	}
	r.Get("/", h.view)
	r.Group(func(w chi.Router) {
		w.Use(h.writeMiddlewares...)
		w.Delete("/", h.clear)
		w.Post("/items", h.addItems)
		w.Put("/items/{productID}", h.setQuantity)
		w.Delete("/items/{productID}", h.removeItem)
	})
}

type addItemsRequest struct {
	ProductID string `json:"productId"`
	Items     []struct {
		ProductID string `json:"productId"`
	} `json:"items"`
}

func (req addItemsRequest) productIDs() ([]domain.ProductID, error) {
	if req.ProductID != "" && len(req.Items) > 0 {
		return nil, fmt.Errorf("%w: send either productId or items", services.ErrValidation)
	}
	if req.ProductID != "" {
		return []domain.ProductID{domain.ProductID(req.ProductID)}, nil
	}
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: productId or items is required", services.ErrValidation)
	}
	ids := make([]domain.ProductID, 0, len(req.Items))
	for _, item := range req.Items {
		ids = append(ids, domain.ProductID(item.ProductID))
	}
	return ids, nil
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *BasketHandlers) view(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.baskets == nil {
		serviceUnavailable(ctx, w, "basket")
		return
	}
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	view, err := h.baskets.View(ctx, userID)
	if err != nil {
		writeServiceError(ctx, w, err, "basket")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.WriteJSON(w, http.StatusOK, newBasketViewPayload(view))
}

func (h *BasketHandlers) addItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.baskets == nil {
		serviceUnavailable(ctx, w, "basket")
		return
	}
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req addItemsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeServiceError(ctx, w, err, "basket")
		return
	}
	ids, err := req.productIDs()
	if err != nil {
		writeServiceError(ctx, w, err, "basket")
		return
	}

	basket, err := h.baskets.AddItems(ctx, userID, ids)
	if err != nil {
		writeServiceError(ctx, w, err, "basket")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newBasketPayload(basket))
}

func (h *BasketHandlers) setQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.baskets == nil {
		serviceUnavailable(ctx, w, "basket")
		return
	}
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req setQuantityRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeServiceError(ctx, w, err, "basket")
		return
	}
	if req.Quantity == nil {
		writeServiceError(ctx, w, fmt.Errorf("%w: quantity is required", services.ErrValidation), "basket")
		return
	}

	basket, err := h.baskets.SetQuantity(ctx, userID, productIDParam(r), *req.Quantity)
	if err != nil {
		writeServiceError(ctx, w, err, "basket")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newBasketPayload(basket))
}

func (h *BasketHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.baskets == nil {
		serviceUnavailable(ctx, w, "basket")
		return
	}
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	basket, err := h.baskets.RemoveItem(ctx, userID, productIDParam(r))
	if err != nil {
		writeServiceError(ctx, w, err, "basket")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newBasketPayload(basket))
}

func (h *BasketHandlers) clear(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.baskets == nil {
		serviceUnavailable(ctx, w, "basket")
		return
	}
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.baskets.Clear(ctx, userID); err != nil {
		writeServiceError(ctx, w, err, "basket")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func productIDParam(r *http.Request) domain.ProductID {
	return domain.ProductID(strings.TrimSpace(chi.URLParam(r, "productID")))
}
