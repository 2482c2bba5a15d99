package services

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/shopmesh/api/internal/domain"
)

type orderFixture struct {
	baskets   *memoryBasketRepository
	orders    *memoryOrderRepository
	products  *countingFetcher[domain.ProductID, domain.CatalogEntry]
	addresses *countingFetcher[domain.AddressID, domain.Address]
	events    *recordingPublisher
	logger    *recordingLogger
	service   OrderService
}

func newOrderFixture(t *testing.T, basket domain.Basket) *orderFixture {
	t.Helper()
	f := &orderFixture{
		baskets: newMemoryBasketRepository(basket),
		orders:  newMemoryOrderRepository(),
		products: productFetcher(
			domain.CatalogEntry{ID: "p1", Name: "Kettle", Price: 100},
			domain.CatalogEntry{ID: "p2", Name: "Mug", Price: 200},
			domain.CatalogEntry{ID: "p3", Name: "Lamp", Price: 50000},
		),
		addresses: addressFetcher(
			domain.Address{ID: "a1", UserID: "user-1", Name: "Asha", Phone: "9876543210", Pincode: "560001", Line: "12 Park Street"},
			domain.Address{ID: "a2", UserID: "user-2", Name: "Ravi", Phone: "9876500000", Pincode: "110001", Line: "4 Ring Road"},
		),
		events: &recordingPublisher{},
		logger: &recordingLogger{},
	}
	f.service = f.build(t)
	return f
}

func (f *orderFixture) build(t *testing.T) OrderService {
	t.Helper()
	service, err := NewOrderService(OrderServiceDeps{
		Orders:           f.orders,
		Baskets:          f.baskets,
		Products:         f.products,
		Addresses:        f.addresses,
		Events:           f.events,
		PlacementTimeout: time.Second,
		Clock:            fixedClock(),
		Logger:           f.logger.log,
		IDGenerator:      func() string { return "ord_TEST" },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing order service: %v", err)
	}
	return service
}

func basketOf(userID string, items ...domain.BasketItem) domain.Basket {
	return domain.Basket{UserID: userID, Items: items}
}

func TestOrderServicePlaceOrderSnapshotsBasket(t *testing.T) {
	f := newOrderFixture(t, basketOf("user-1",
		domain.BasketItem{ProductID: "p1", Quantity: 2},
		domain.BasketItem{ProductID: "p2", Quantity: 1},
	))

	result, err := f.service.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:        "user-1",
		AddressID:     "a1",
		PaymentMethod: "COD",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order := result.Order
	if order.ID != "ord_TEST" || order.UserID != "user-1" {
		t.Fatalf("unexpected order identity %#v", order)
	}
	if order.TotalPrice != 400 {
		t.Fatalf("expected total 400, got %d", order.TotalPrice)
	}
	if order.PaymentMethod != "cod" {
		t.Fatalf("expected normalised payment method, got %q", order.PaymentMethod)
	}
	if len(order.Lines) != 2 || order.Lines[0].UnitPrice != 100 || order.Lines[0].LineTotal != 200 {
		t.Fatalf("unexpected lines %#v", order.Lines)
	}
	if order.ShippingAddress.Line != "12 Park Street" || order.AddressID != "a1" {
		t.Fatalf("expected address snapshot, got %#v", order.ShippingAddress)
	}
	if !result.BasketCleared || result.Replayed {
		t.Fatalf("unexpected result flags %#v", result)
	}
	if got := f.baskets.snapshot("user-1"); !got.IsEmpty() {
		t.Fatalf("expected basket cleared, got %#v", got.Items)
	}
	if len(f.events.events) != 1 || f.events.events[0].OrderID != "ord_TEST" || f.events.events[0].TotalPrice != 400 {
		t.Fatalf("expected one order.placed event, got %#v", f.events.events)
	}
}

func TestOrderServicePlaceOrderIgnoresClientTotal(t *testing.T) {
	f := newOrderFixture(t, basketOf("user-1", domain.BasketItem{ProductID: "p3", Quantity: 1}))
	clientTotal := int64(1)

	result, err := f.service.PlaceOrder(context.Background(), PlaceOrderCommand{
		UserID:        "user-1",
		AddressID:     "a1",
		PaymentMethod: "card",
		ClientTotal:   &clientTotal,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Order.TotalPrice != 50000 {
		t.Fatalf("expected catalog total 50000, got %d", result.Order.TotalPrice)
	}
	if !f.logger.has("order.client_total.mismatch") {
		t.Fatalf("expected mismatch to be logged")
	}
}

func TestOrderServicePlaceOrderFetchesEachProductOnce(t *testing.T) {
	f := newOrderFixture(t, basketOf("user-1",
		domain.BasketItem{ProductID: "p3", Quantity: 1},
		domain.BasketItem{ProductID: "p1", Quantity: 1},
		domain.BasketItem{ProductID: "p2", Quantity: 1},
	))

	if _, err := f.service.PlaceOrder(context.Background(), PlaceOrderCommand{UserID: "user-1", AddressID: "a1", PaymentMethod: "cod"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.products.callCount() != 1 {
		t.Fatalf("expected one catalog call, got %d", f.products.callCount())
	}
	if got := f.products.calls[0]; len(got) != 3 || got[0] != "p1" || got[1] != "p2" || got[2] != "p3" {
		t.Fatalf("expected sorted distinct ids, got %#v", got)
	}
	if f.addresses.callCount() != 1 {
		t.Fatalf("expected one address call, got %d", f.addresses.callCount())
	}
}

func TestOrderServicePlaceOrderRejections(t *testing.T) {
	tests := []struct {
		name    string
		basket  domain.Basket
		cmd     PlaceOrderCommand
		setup   func(f *orderFixture)
		wantErr error
	}{
		{
			name:    "missing address id",
			basket:  basketOf("user-1", domain.BasketItem{ProductID: "p1", Quantity: 1}),
			cmd:     PlaceOrderCommand{UserID: "user-1", PaymentMethod: "cod"},
			wantErr: ErrValidation,
		},
		{
			name:    "missing payment method",
			basket:  basketOf("user-1", domain.BasketItem{ProductID: "p1", Quantity: 1}),
			cmd:     PlaceOrderCommand{UserID: "user-1", AddressID: "a1"},
			wantErr: ErrValidation,
		},
		{
			name:    "empty basket",
			basket:  basketOf("user-1"),
			cmd:     PlaceOrderCommand{UserID: "user-1", AddressID: "a1", PaymentMethod: "cod"},
			wantErr: ErrEmptyBasket,
		},
		{
			name:    "unknown address",
			basket:  basketOf("user-1", domain.BasketItem{ProductID: "p1", Quantity: 1}),
			cmd:     PlaceOrderCommand{UserID: "user-1", AddressID: "missing", PaymentMethod: "cod"},
			wantErr: ErrInvalidAddress,
		},
		{
			name:    "address owned by another user",
			basket:  basketOf("user-1", domain.BasketItem{ProductID: "p1", Quantity: 1}),
			cmd:     PlaceOrderCommand{UserID: "user-1", AddressID: "a2", PaymentMethod: "cod"},
			wantErr: ErrInvalidAddress,
		},
		{
			name:    "product withdrawn from catalog",
			basket:  basketOf("user-1", domain.BasketItem{ProductID: "retired", Quantity: 1}),
			cmd:     PlaceOrderCommand{UserID: "user-1", AddressID: "a1", PaymentMethod: "cod"},
			wantErr: ErrConflict,
		},
		{
			name:   "catalog unavailable",
			basket: basketOf("user-1", domain.BasketItem{ProductID: "p1", Quantity: 1}),
			cmd:    PlaceOrderCommand{UserID: "user-1", AddressID: "a1", PaymentMethod: "cod"},
			setup: func(f *orderFixture) {
				f.products.err = errBackend
			},
			wantErr: ErrCatalogUnavailable,
		},
		{
			name:   "address service unavailable",
			basket: basketOf("user-1", domain.BasketItem{ProductID: "p1", Quantity: 1}),
			cmd:    PlaceOrderCommand{UserID: "user-1", AddressID: "a1", PaymentMethod: "cod"},
			setup: func(f *orderFixture) {
				f.addresses.err = errBackend
			},
			wantErr: ErrDependency,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newOrderFixture(t, tc.basket)
			if tc.setup != nil {
				tc.setup(f)
			}

			_, err := f.service.PlaceOrder(context.Background(), tc.cmd)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if f.orders.inserts != 0 {
				t.Fatalf("expected no order to be persisted")
			}
			if len(f.events.events) != 0 {
				t.Fatalf("expected no events, got %#v", f.events.events)
			}
		})
	}
}

func TestOrderServicePlaceOrderCatalogFailureWrapsFetchFailed(t *testing.T) {
	f := newOrderFixture(t, basketOf("user-1", domain.BasketItem{ProductID: "p1", Quantity: 1}))
	f.products.err = errBackend

	_, err := f.service.PlaceOrder(context.Background(), PlaceOrderCommand{UserID: "user-1", AddressID: "a1", PaymentMethod: "cod"})
	if !errors.Is(err, ErrFetchFailed) || !errors.Is(err, ErrDependency) {
		t.Fatalf("expected fetch failure wrapped as dependency error, got %v", err)
	}
	if got := f.baskets.snapshot("user-1"); got.IsEmpty() {
		t.Fatalf("expected basket to survive a failed placement")
	}
}

func TestOrderServicePlaceOrderConflictListsProducts(t *testing.T) {
	f := newOrderFixture(t, basketOf("user-1",
		domain.BasketItem{ProductID: "p1", Quantity: 1},
		domain.BasketItem{ProductID: "retired", Quantity: 1},
	))

	_, err := f.service.PlaceOrder(context.Background(), PlaceOrderCommand{UserID: "user-1", AddressID: "a1", PaymentMethod: "cod"})
	if !errors.Is(err, ErrConflict) || !strings.Contains(err.Error(), "retired") {
		t.Fatalf("expected conflict naming the product, got %v", err)
	}
}

func TestOrderServicePlaceOrderToleratesClearFailure(t *testing.T) {
	f := newOrderFixture(t, basketOf("user-1", domain.BasketItem{ProductID: "p1", Quantity: 1}))
	f.baskets.deleteErr = errBackend

	result, err := f.service.PlaceOrder(context.Background(), PlaceOrderCommand{UserID: "user-1", AddressID: "a1", PaymentMethod: "cod"})
	if err != nil {
		t.Fatalf("expected order to stand despite clear failure, got %v", err)
	}
	if result.BasketCleared {
		t.Fatalf("expected BasketCleared=false")
	}
	if f.orders.inserts != 1 {
		t.Fatalf("expected order persisted once, got %d", f.orders.inserts)
	}
	if !f.logger.has("order.basket.clear.failed") {
		t.Fatalf("expected clear failure to be logged")
	}

	f.baskets.deleteErr = nil
	baskets, err := NewBasketService(BasketServiceDeps{Repository: f.baskets, Products: f.products, Clock: fixedClock()})
	if err != nil {
		t.Fatalf("unexpected error constructing basket service: %v", err)
	}
	if err := baskets.Clear(context.Background(), "user-1"); err != nil {
		t.Fatalf("retrying clear failed: %v", err)
	}
	if f.orders.inserts != 1 {
		t.Fatalf("retrying clear must not create an order")
	}
}

func TestOrderServicePlaceOrderIdempotencyKeyReplays(t *testing.T) {
	f := newOrderFixture(t, basketOf("user-1", domain.BasketItem{ProductID: "p1", Quantity: 3}))
	cmd := PlaceOrderCommand{UserID: "user-1", AddressID: "a1", PaymentMethod: "cod", IdempotencyKey: "key-1"}

	first, err := f.service.PlaceOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(first.Order.ID, orderIDPrefix) || first.Order.ID == "ord_TEST" {
		t.Fatalf("expected key-derived order id, got %q", first.Order.ID)
	}

	second, err := f.service.PlaceOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("expected replay, got %v", err)
	}
	if !second.Replayed || second.Order.ID != first.Order.ID {
		t.Fatalf("expected replay of %q, got %#v", first.Order.ID, second)
	}
	if f.orders.inserts != 1 {
		t.Fatalf("expected a single order, got %d", f.orders.inserts)
	}
	if len(f.events.events) != 1 {
		t.Fatalf("expected a single event, got %d", len(f.events.events))
	}
}

func TestOrderServicePlaceOrderPublishFailureIsLogged(t *testing.T) {
	f := newOrderFixture(t, basketOf("user-1", domain.BasketItem{ProductID: "p1", Quantity: 1}))
	f.events.err = errBackend

	if _, err := f.service.PlaceOrder(context.Background(), PlaceOrderCommand{UserID: "user-1", AddressID: "a1", PaymentMethod: "cod"}); err != nil {
		t.Fatalf("publish failures must not fail placement: %v", err)
	}
	if !f.logger.has("order.event.publish.failed") {
		t.Fatalf("expected publish failure to be logged")
	}
}

func TestDeriveOrderIDIsStablePerUser(t *testing.T) {
	a := deriveOrderID("user-1", "key")
	if a != deriveOrderID("user-1", "key") {
		t.Fatalf("expected stable id")
	}
	if a == deriveOrderID("user-2", "key") {
		t.Fatalf("expected ids to differ across users")
	}
}

func TestOrderServiceHistoryEnrichesAndDegrades(t *testing.T) {
	placed := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f := newOrderFixture(t, basketOf("user-1"))
	f.orders = newMemoryOrderRepository(
		domain.Order{ID: "o1", UserID: "user-1", AddressID: "a1", PlacedAt: placed, TotalPrice: 90,
			Lines: []domain.OrderLine{{ProductID: "p1", Quantity: 1, UnitPrice: 90, LineTotal: 90}}},
		domain.Order{ID: "o2", UserID: "user-1", AddressID: "a1", PlacedAt: placed.Add(time.Hour), TotalPrice: 400,
			Lines: []domain.OrderLine{
				{ProductID: "p1", Quantity: 2, UnitPrice: 100, LineTotal: 200},
				{ProductID: "gone", Quantity: 1, UnitPrice: 200, LineTotal: 200},
			}},
	)
	f.addresses.err = errBackend
	f.service = f.build(t)

	history, err := f.service.History(context.Background(), "user-1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history.Orders) != 2 || history.Orders[0].Order.ID != "o2" {
		t.Fatalf("expected newest first, got %#v", history.Orders)
	}
	if f.products.callCount() != 1 || len(f.products.calls[0]) != 2 {
		t.Fatalf("expected one deduplicated product fetch, got %#v", f.products.calls)
	}
	if f.addresses.callCount() != 1 || len(f.addresses.calls[0]) != 1 {
		t.Fatalf("expected one deduplicated address fetch, got %#v", f.addresses.calls)
	}
	if len(history.Degraded) != 1 || history.Degraded[0] != domain.EntityAddress {
		t.Fatalf("expected address degraded, got %#v", history.Degraded)
	}
	if history.Orders[1].Lines[0].Line.UnitPrice != 90 {
		t.Fatalf("expected frozen unit price to be kept")
	}
	if history.Orders[0].Lines[1].Unresolved == nil {
		t.Fatalf("expected missing product to be marked unresolved")
	}
	if history.Orders[0].AddressUnresolved == nil || history.Orders[0].AddressUnresolved.Reason != domain.UnresolvedFetchFailed {
		t.Fatalf("expected fetch_failed address marker")
	}
}

func TestOrderServiceHistoryFetchesUnionOfProductsOnce(t *testing.T) {
	placed := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f := newOrderFixture(t, basketOf("user-1"))
	f.orders = newMemoryOrderRepository(
		domain.Order{ID: "o1", UserID: "user-1", AddressID: "a1", PlacedAt: placed, TotalPrice: 300,
			Lines: []domain.OrderLine{
				{ProductID: "p1", Quantity: 1, UnitPrice: 100, LineTotal: 100},
				{ProductID: "p2", Quantity: 1, UnitPrice: 200, LineTotal: 200},
			}},
		domain.Order{ID: "o2", UserID: "user-1", AddressID: "a1", PlacedAt: placed.Add(time.Hour), TotalPrice: 50200,
			Lines: []domain.OrderLine{
				{ProductID: "p2", Quantity: 1, UnitPrice: 200, LineTotal: 200},
				{ProductID: "p3", Quantity: 1, UnitPrice: 50000, LineTotal: 50000},
			}},
	)
	f.service = f.build(t)

	if _, err := f.service.History(context.Background(), "user-1", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.products.callCount() != 1 {
		t.Fatalf("expected a single product fetch, got %#v", f.products.calls)
	}
	got := slices.Clone(f.products.calls[0])
	slices.Sort(got)
	if want := []domain.ProductID{"p1", "p2", "p3"}; !slices.Equal(got, want) {
		t.Fatalf("expected fetch of %v, got %v", want, got)
	}
	if f.addresses.callCount() != 1 || !slices.Equal(f.addresses.calls[0], []domain.AddressID{"a1"}) {
		t.Fatalf("expected one fetch of [a1], got %#v", f.addresses.calls)
	}
}

func TestOrderServiceHistoryAppliesLimits(t *testing.T) {
	f := newOrderFixture(t, basketOf("user-1"))
	var gotLimit int
	f.orders.listFunc = func(userID string, limit int) ([]domain.Order, error) {
		gotLimit = limit
		return nil, nil
	}

	if _, err := f.service.History(context.Background(), "user-1", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotLimit != defaultHistoryLimit {
		t.Fatalf("expected default limit %d, got %d", defaultHistoryLimit, gotLimit)
	}
	if _, err := f.service.History(context.Background(), "user-1", 10_000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotLimit != maxHistoryLimit {
		t.Fatalf("expected limit capped at %d, got %d", maxHistoryLimit, gotLimit)
	}
	if f.products.callCount() != 0 {
		t.Fatalf("expected no fetch for an empty history")
	}
}

func TestOrderServiceGetHidesForeignOrders(t *testing.T) {
	f := newOrderFixture(t, basketOf("user-1"))
	f.orders = newMemoryOrderRepository(domain.Order{ID: "o1", UserID: "user-2", AddressID: "a2"})
	f.service = f.build(t)

	if _, err := f.service.Get(context.Background(), "user-1", "o1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for foreign order, got %v", err)
	}
	if _, err := f.service.Get(context.Background(), "user-1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for missing order, got %v", err)
	}

	view, err := f.service.Get(context.Background(), "user-2", "o1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.CurrentAddress == nil || view.CurrentAddress.ID != "a2" {
		t.Fatalf("expected current address, got %#v", view)
	}
}
