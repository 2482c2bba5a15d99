package enrichment

import (
	"errors"
	"reflect"
	"testing"

	"github.com/shopmesh/api/internal/domain"
)

func catalog(entries ...domain.CatalogEntry) ProductLookup {
	m := make(map[domain.ProductID]domain.CatalogEntry, len(entries))
	for _, e := range entries {
		m[e.ID] = e
	}
	return NewLookup(domain.EntityCatalogEntry, m, nil)
}

func TestEnrichBasketTotals(t *testing.T) {
	basket := domain.Basket{UserID: "u1", Items: []domain.BasketItem{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 1},
	}}

	view := EnrichBasket(basket, catalog(
		domain.CatalogEntry{ID: "p1", Name: "Phone", Price: 100},
		domain.CatalogEntry{ID: "p2", Name: "Case", Price: 200},
	))

	if view.Subtotal != 400 {
		t.Fatalf("expected subtotal 400, got %d", view.Subtotal)
	}
	if !view.Complete || len(view.Degraded) != 0 {
		t.Fatalf("expected complete view, got %+v", view)
	}
	if len(view.Items) != 2 || view.Items[0].ProductID != "p1" || *view.Items[0].LineTotal != 200 {
		t.Fatalf("unexpected lines %+v", view.Items)
	}
}

func TestEnrichBasketKeepsUnresolvedItems(t *testing.T) {
	basket := domain.Basket{UserID: "u1", Items: []domain.BasketItem{
		{ProductID: "gone", Quantity: 3},
		{ProductID: "p1", Quantity: 1},
	}}

	view := EnrichBasket(basket, catalog(domain.CatalogEntry{ID: "p1", Price: 50}))

	if len(view.Items) != 2 {
		t.Fatalf("expected both items retained, got %d", len(view.Items))
	}
	missing := view.Items[0]
	if missing.Unresolved == nil || missing.Unresolved.Reason != domain.UnresolvedNotFound || missing.Unresolved.ID != "gone" {
		t.Fatalf("expected not_found marker, got %+v", missing.Unresolved)
	}
	if missing.LineTotal != nil || missing.Product != nil {
		t.Fatalf("unresolved line must not carry product or total: %+v", missing)
	}
	if missing.Quantity != 3 {
		t.Fatalf("expected quantity preserved, got %d", missing.Quantity)
	}
	if view.Complete {
		t.Fatalf("expected incomplete view")
	}
	if view.Subtotal != 50 {
		t.Fatalf("expected subtotal of resolved lines only, got %d", view.Subtotal)
	}
}

func TestEnrichBasketDegradesOnFetchFailure(t *testing.T) {
	basket := domain.Basket{Items: []domain.BasketItem{{ProductID: "p1", Quantity: 1}}}
	failed := NewLookup[domain.ProductID, domain.CatalogEntry](domain.EntityCatalogEntry, nil, errors.New("timeout"))

	view := EnrichBasket(basket, failed)

	if len(view.Items) != 1 || view.Items[0].Unresolved == nil || view.Items[0].Unresolved.Reason != domain.UnresolvedFetchFailed {
		t.Fatalf("expected fetch_failed marker, got %+v", view.Items)
	}
	if !reflect.DeepEqual(view.Degraded, []domain.EntityType{domain.EntityCatalogEntry}) {
		t.Fatalf("expected catalog degraded, got %v", view.Degraded)
	}
}

func TestEnrichIsDeterministic(t *testing.T) {
	basket := domain.Basket{UserID: "u1", Items: []domain.BasketItem{
		{ProductID: "p2", Quantity: 1},
		{ProductID: "p1", Quantity: 4},
		{ProductID: "p9", Quantity: 1},
	}}
	products := catalog(
		domain.CatalogEntry{ID: "p1", Price: 10, Specifications: map[string]string{"colour": "red"}},
		domain.CatalogEntry{ID: "p2", Price: 20},
	)
	if first, second := EnrichBasket(basket, products), EnrichBasket(basket, products); !reflect.DeepEqual(first, second) {
		t.Fatalf("basket enrichment not deterministic:\n%+v\n%+v", first, second)
	}

	orders := []domain.Order{
		{ID: "o1", AddressID: "a1", Lines: []domain.OrderLine{{ProductID: "p1", Quantity: 1}}},
		{ID: "o2", AddressID: "a2", Lines: []domain.OrderLine{{ProductID: "p9", Quantity: 2}}},
	}
	addresses := NewLookup(domain.EntityAddress, map[domain.AddressID]domain.Address{"a1": {ID: "a1"}}, nil)
	if first, second := EnrichOrders(orders, products, addresses), EnrichOrders(orders, products, addresses); !reflect.DeepEqual(first, second) {
		t.Fatalf("order enrichment not deterministic")
	}
}

func TestEnrichOrdersNeverDropsOrders(t *testing.T) {
	orders := []domain.Order{
		{ID: "o1", AddressID: "a1", TotalPrice: 300, Lines: []domain.OrderLine{
			{ProductID: "p1", Quantity: 1, UnitPrice: 100, LineTotal: 100},
			{ProductID: "p2", Quantity: 1, UnitPrice: 200, LineTotal: 200},
		}},
		{ID: "o2", AddressID: "missing", Lines: []domain.OrderLine{{ProductID: "p3", Quantity: 1, UnitPrice: 5, LineTotal: 5}}},
	}
	products := catalog(
		domain.CatalogEntry{ID: "p1", Price: 999},
		domain.CatalogEntry{ID: "p2", Price: 999},
	)
	addresses := NewLookup(domain.EntityAddress, map[domain.AddressID]domain.Address{"a1": {ID: "a1", Name: "Home"}}, nil)

	history := EnrichOrders(orders, products, addresses)

	if len(history.Orders) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(history.Orders))
	}
	first := history.Orders[0]
	if first.CurrentAddress == nil || first.CurrentAddress.Name != "Home" {
		t.Fatalf("expected address resolved, got %+v", first)
	}
	if first.Lines[0].Line.UnitPrice != 100 || first.Order.TotalPrice != 300 {
		t.Fatalf("frozen prices must not change, got %+v", first.Lines[0])
	}
	second := history.Orders[1]
	if second.AddressUnresolved == nil || second.AddressUnresolved.Reason != domain.UnresolvedNotFound {
		t.Fatalf("expected unresolved address, got %+v", second.AddressUnresolved)
	}
	if second.Lines[0].Unresolved == nil || second.Lines[0].Unresolved.Type != domain.EntityCatalogEntry {
		t.Fatalf("expected unresolved product, got %+v", second.Lines[0])
	}
}

func TestEnrichOrdersReportsDegradedTypes(t *testing.T) {
	orders := []domain.Order{{ID: "o1", AddressID: "a1", Lines: []domain.OrderLine{{ProductID: "p1", Quantity: 1}}}}
	products := NewLookup[domain.ProductID, domain.CatalogEntry](domain.EntityCatalogEntry, nil, errors.New("down"))
	addresses := NewLookup[domain.AddressID, domain.Address](domain.EntityAddress, nil, errors.New("down"))

	history := EnrichOrders(orders, products, addresses)

	if !reflect.DeepEqual(history.Degraded, []domain.EntityType{domain.EntityCatalogEntry, domain.EntityAddress}) {
		t.Fatalf("unexpected degraded list %v", history.Degraded)
	}
	if len(history.Orders) != 1 || history.Orders[0].AddressUnresolved.Reason != domain.UnresolvedFetchFailed {
		t.Fatalf("expected order retained with fetch_failed address, got %+v", history.Orders)
	}
}
