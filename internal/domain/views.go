package domain

// UnresolvedReason explains why a foreign reference has no entity attached.
type UnresolvedReason string

const (
	// UnresolvedNotFound means the owning service answered without the identifier.
	UnresolvedNotFound UnresolvedReason = "not_found"
	// UnresolvedFetchFailed means the bulk lookup for the entity type failed as a whole.
	UnresolvedFetchFailed UnresolvedReason = "fetch_failed"
)

// Unresolved marks a foreign reference that could not be joined.
type Unresolved struct {
	Type   EntityType
	ID     string
	Reason UnresolvedReason
}

// BasketView is the enriched, request-scoped projection of a basket.
//
// Subtotal covers resolved lines only; Complete is false whenever at least one line is
// unresolved, so callers can tell a partial total from a full one.
type BasketView struct {
	UserID   string
	Items    []BasketLineView
	Subtotal int64
	Complete bool
	Degraded []EntityType
}

// BasketLineView pairs a basket item with its catalog entry or an unresolved marker.
type BasketLineView struct {
	ProductID  ProductID
	Quantity   int
	Product    *CatalogEntry
	Unresolved *Unresolved
	LineTotal  *int64
}

// OrderView decorates a placed order with current catalog and address data.
type OrderView struct {
	Order             Order
	Lines             []OrderLineView
	CurrentAddress    *Address
	AddressUnresolved *Unresolved
}

// OrderLineView pairs a frozen order line with the current catalog entry, if any.
type OrderLineView struct {
	Line       OrderLine
	Product    *CatalogEntry
	Unresolved *Unresolved
}

// OrderHistory is the enriched order list returned to a user.
type OrderHistory struct {
	Orders   []OrderView
	Degraded []EntityType
}
