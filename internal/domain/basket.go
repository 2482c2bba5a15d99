package domain

import "time"

// MinBasketQuantity is the smallest quantity a basket line may hold.
const MinBasketQuantity = 1

// Basket is the per-user set of pending purchases. Items hold at most one entry per product.
type Basket struct {
	UserID    string
	Items     []BasketItem
	UpdatedAt time.Time
}

// BasketItem stores a product reference and quantity. Prices are never stored on the basket.
type BasketItem struct {
	ProductID ProductID
	Quantity  int
	AddedAt   time.Time
}

// IsEmpty reports whether the basket has no items.
func (b Basket) IsEmpty() bool {
	return len(b.Items) == 0
}

// ProductIDs returns the product references held by the basket in item order.
func (b Basket) ProductIDs() []ProductID {
	ids := make([]ProductID, 0, len(b.Items))
	for _, item := range b.Items {
		ids = append(ids, item.ProductID)
	}
	return ids
}

// IndexOf returns the position of the item for productID, or -1.
func (b Basket) IndexOf(productID ProductID) int {
	for i, item := range b.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// ClampQuantity raises quantities below the basket minimum to the minimum.
func ClampQuantity(qty int) int {
	if qty < MinBasketQuantity {
		return MinBasketQuantity
	}
	return qty
}
