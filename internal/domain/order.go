package domain

import "time"

// Order is the immutable record created when a basket is checked out.
type Order struct {
	ID              string
	UserID          string
	Lines           []OrderLine
	TotalPrice      int64
	PaymentMethod   string
	AddressID       AddressID
	ShippingAddress AddressSnapshot
	PlacedAt        time.Time
}

// OrderLine freezes the quantity and catalog price of one product at placement.
type OrderLine struct {
	ProductID ProductID
	Quantity  int
	UnitPrice int64
	LineTotal int64
}

// ProductIDs returns the products referenced by the order's lines.
func (o Order) ProductIDs() []ProductID {
	ids := make([]ProductID, 0, len(o.Lines))
	for _, line := range o.Lines {
		ids = append(ids, line.ProductID)
	}
	return ids
}
