package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/shopmesh/api/internal/domain"
	"github.com/shopmesh/api/internal/platform/auth"
	"github.com/shopmesh/api/internal/services"
)

type stubBasketService struct {
	viewFn        func(ctx context.Context, userID string) (services.BasketView, error)
	addItemsFn    func(ctx context.Context, userID string, ids []domain.ProductID) (services.Basket, error)
	setQuantityFn func(ctx context.Context, userID string, id domain.ProductID, qty int) (services.Basket, error)
	removeItemFn  func(ctx context.Context, userID string, id domain.ProductID) (services.Basket, error)
	clearFn       func(ctx context.Context, userID string) error
}

func (s *stubBasketService) View(ctx context.Context, userID string) (services.BasketView, error) {
	if s.viewFn != nil {
		return s.viewFn(ctx, userID)
	}
	return services.BasketView{UserID: userID, Complete: true}, nil
}

func (s *stubBasketService) AddItem(ctx context.Context, userID string, productID domain.ProductID) (services.Basket, error) {
	return s.AddItems(ctx, userID, []domain.ProductID{productID})
}

func (s *stubBasketService) AddItems(ctx context.Context, userID string, ids []domain.ProductID) (services.Basket, error) {
	if s.addItemsFn != nil {
		return s.addItemsFn(ctx, userID, ids)
	}
	return services.Basket{UserID: userID}, nil
}

func (s *stubBasketService) SetQuantity(ctx context.Context, userID string, id domain.ProductID, qty int) (services.Basket, error) {
	if s.setQuantityFn != nil {
		return s.setQuantityFn(ctx, userID, id, qty)
	}
	return services.Basket{UserID: userID}, nil
}

func (s *stubBasketService) RemoveItem(ctx context.Context, userID string, id domain.ProductID) (services.Basket, error) {
	if s.removeItemFn != nil {
		return s.removeItemFn(ctx, userID, id)
	}
	return services.Basket{UserID: userID}, nil
}

func (s *stubBasketService) Clear(ctx context.Context, userID string) error {
	if s.clearFn != nil {
		return s.clearFn(ctx, userID)
	}
	return nil
}

type stubAddressService struct {
	saveFn   func(ctx context.Context, userID string, input services.AddressInput) (services.Address, error)
	updateFn func(ctx context.Context, userID string, id domain.AddressID, input services.AddressInput) (services.Address, error)
	listFn   func(ctx context.Context, userID string) ([]services.Address, error)
	bulkFn   func(ctx context.Context, ids []domain.AddressID) ([]services.Address, error)
}

func (s *stubAddressService) Save(ctx context.Context, userID string, input services.AddressInput) (services.Address, error) {
	return s.saveFn(ctx, userID, input)
}

func (s *stubAddressService) Update(ctx context.Context, userID string, id domain.AddressID, input services.AddressInput) (services.Address, error) {
	return s.updateFn(ctx, userID, id, input)
}

func (s *stubAddressService) List(ctx context.Context, userID string) ([]services.Address, error) {
	return s.listFn(ctx, userID)
}

func (s *stubAddressService) BulkLookup(ctx context.Context, ids []domain.AddressID) ([]services.Address, error) {
	return s.bulkFn(ctx, ids)
}

type stubCatalogService struct {
	listFn func(ctx context.Context, category string) ([]services.CatalogEntry, error)
	getFn  func(ctx context.Context, id domain.ProductID) (services.CatalogEntry, error)
	bulkFn func(ctx context.Context, ids []domain.ProductID) ([]services.CatalogEntry, error)
}

func (s *stubCatalogService) ListProducts(ctx context.Context, category string) ([]services.CatalogEntry, error) {
	return s.listFn(ctx, category)
}

func (s *stubCatalogService) GetProduct(ctx context.Context, id domain.ProductID) (services.CatalogEntry, error) {
	return s.getFn(ctx, id)
}

func (s *stubCatalogService) BulkLookup(ctx context.Context, ids []domain.ProductID) ([]services.CatalogEntry, error) {
	return s.bulkFn(ctx, ids)
}

type stubOrderService struct {
	placeFn   func(ctx context.Context, cmd services.PlaceOrderCommand) (services.PlaceOrderResult, error)
	historyFn func(ctx context.Context, userID string, limit int) (services.OrderHistory, error)
	getFn     func(ctx context.Context, userID, orderID string) (services.OrderView, error)
}

func (s *stubOrderService) PlaceOrder(ctx context.Context, cmd services.PlaceOrderCommand) (services.PlaceOrderResult, error) {
	return s.placeFn(ctx, cmd)
}

func (s *stubOrderService) History(ctx context.Context, userID string, limit int) (services.OrderHistory, error) {
	return s.historyFn(ctx, userID, limit)
}

func (s *stubOrderService) Get(ctx context.Context, userID, orderID string) (services.OrderView, error) {
	return s.getFn(ctx, userID, orderID)
}

// asUser stands in for the Firebase authenticator in router-level tests.
func asUser(uid string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.WithIdentity(r.Context(), &auth.Identity{UID: uid})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// mountAs serves routes under prefix with an optional user identity.
func mountAs(uid, prefix string, routes RouteRegistrar) http.Handler {
	r := chi.NewRouter()
	if uid != "" {
		r.Use(asUser(uid))
	}
	r.Route(prefix, func(sub chi.Router) {
		routes(sub)
	})
	return r
}

func serve(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]any
	decodeBody(t, rr, &body)
	code, _ := body["error"].(string)
	return code
}
