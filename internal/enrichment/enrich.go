package enrichment

import (
	"github.com/shopmesh/api/internal/domain"
)

// ProductLookup resolves catalog entries by product id.
type ProductLookup = Lookup[domain.ProductID, domain.CatalogEntry]

// AddressLookup resolves addresses by address id.
type AddressLookup = Lookup[domain.AddressID, domain.Address]

// BasketProductIDs extracts the product references of a basket.
func BasketProductIDs(b domain.Basket) []domain.ProductID {
	return b.ProductIDs()
}

// OrderProductIDs extracts the product references across an order's lines.
func OrderProductIDs(o domain.Order) []domain.ProductID {
	return o.ProductIDs()
}

// OrderAddressIDs extracts the delivery address reference of an order.
func OrderAddressIDs(o domain.Order) []domain.AddressID {
	return []domain.AddressID{o.AddressID}
}

// EnrichBasket joins basket items with catalog entries. Every item is kept in basket order;
// items without a catalog entry carry an Unresolved marker and no line total.
func EnrichBasket(basket domain.Basket, products ProductLookup) domain.BasketView {
	view := domain.BasketView{
		UserID:   basket.UserID,
		Items:    make([]domain.BasketLineView, 0, len(basket.Items)),
		Complete: true,
	}
	if products.Err() != nil {
		view.Degraded = []domain.EntityType{products.Entity()}
	}

	for _, item := range basket.Items {
		line := domain.BasketLineView{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		}
		entry, missing := products.Get(item.ProductID)
		if missing != nil {
			line.Unresolved = missing
			view.Complete = false
		} else {
			product := entry
			total := product.Price * int64(item.Quantity)
			line.Product = &product
			line.LineTotal = &total
			view.Subtotal += total
		}
		view.Items = append(view.Items, line)
	}

	return view
}

// EnrichOrders decorates each order with current catalog entries and its current address.
// Orders are returned in input order and are never dropped; frozen prices are left untouched.
func EnrichOrders(orders []domain.Order, products ProductLookup, addresses AddressLookup) domain.OrderHistory {
	history := domain.OrderHistory{
		Orders: make([]domain.OrderView, 0, len(orders)),
	}
	if products.Err() != nil {
		history.Degraded = append(history.Degraded, products.Entity())
	}
	if addresses.Err() != nil {
		history.Degraded = append(history.Degraded, addresses.Entity())
	}

	for _, order := range orders {
		view := domain.OrderView{
			Order: order,
			Lines: make([]domain.OrderLineView, 0, len(order.Lines)),
		}
		for _, line := range order.Lines {
			lineView := domain.OrderLineView{Line: line}
			entry, missing := products.Get(line.ProductID)
			if missing != nil {
				lineView.Unresolved = missing
			} else {
				product := entry
				lineView.Product = &product
			}
			view.Lines = append(view.Lines, lineView)
		}

		address, missing := addresses.Get(order.AddressID)
		if missing != nil {
			view.AddressUnresolved = missing
		} else {
			view.CurrentAddress = &address
		}

		history.Orders = append(history.Orders, view)
	}

	return history
}
