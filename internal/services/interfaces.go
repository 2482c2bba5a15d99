package services

import (
	"context"
	"time"

	"github.com/shopmesh/api/internal/domain"
	"github.com/shopmesh/api/internal/enrichment"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	ProductID    = domain.ProductID
	AddressID    = domain.AddressID
	Basket       = domain.Basket
	BasketItem   = domain.BasketItem
	BasketView   = domain.BasketView
	Address      = domain.Address
	CatalogEntry = domain.CatalogEntry
	Order        = domain.Order
	OrderLine    = domain.OrderLine
	OrderView    = domain.OrderView
	OrderHistory = domain.OrderHistory
)

// ProductFetcher resolves catalog entries in bulk.
type ProductFetcher = enrichment.Fetcher[domain.ProductID, domain.CatalogEntry]

// AddressFetcher resolves addresses in bulk.
type AddressFetcher = enrichment.Fetcher[domain.AddressID, domain.Address]

// BasketService owns basket mutations and the enriched basket view.
type BasketService interface {
	View(ctx context.Context, userID string) (BasketView, error)
	AddItem(ctx context.Context, userID string, productID ProductID) (Basket, error)
	AddItems(ctx context.Context, userID string, productIDs []ProductID) (Basket, error)
	SetQuantity(ctx context.Context, userID string, productID ProductID, quantity int) (Basket, error)
	RemoveItem(ctx context.Context, userID string, productID ProductID) (Basket, error)
	Clear(ctx context.Context, userID string) error
}

// AddressInput carries the editable fields of a delivery address.
type AddressInput struct {
	Name     string
	Phone    string
	AltPhone string
	Pincode  string
	Locality string
	Line     string
	State    string
	Landmark string
	Kind     string
}

// AddressService manages a user's address book and serves bulk lookups to other services.
type AddressService interface {
	Save(ctx context.Context, userID string, input AddressInput) (Address, error)
	Update(ctx context.Context, userID string, addressID AddressID, input AddressInput) (Address, error)
	List(ctx context.Context, userID string) ([]Address, error)
	BulkLookup(ctx context.Context, ids []AddressID) ([]Address, error)
}

// CatalogService exposes read access to catalog entries.
type CatalogService interface {
	ListProducts(ctx context.Context, category string) ([]CatalogEntry, error)
	GetProduct(ctx context.Context, productID ProductID) (CatalogEntry, error)
	BulkLookup(ctx context.Context, ids []ProductID) ([]CatalogEntry, error)
}

// PlaceOrderCommand requests checkout of the user's current basket.
type PlaceOrderCommand struct {
	UserID        string
	AddressID     AddressID
	PaymentMethod string
	// ClientTotal is what the caller believes the total is. It is never used for pricing.
	ClientTotal *int64
	// IdempotencyKey makes retried placements return the original order.
	IdempotencyKey string
}

// PlaceOrderResult reports the placed order and whether the basket was cleared afterwards.
type PlaceOrderResult struct {
	Order         Order
	BasketCleared bool
	Replayed      bool
}

// OrderService places orders and serves enriched order reads.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlaceOrderResult, error)
	History(ctx context.Context, userID string, limit int) (OrderHistory, error)
	Get(ctx context.Context, userID string, orderID string) (OrderView, error)
}

// OrderPlacedEvent is emitted after an order has been persisted.
type OrderPlacedEvent struct {
	OrderID       string    `json:"orderId"`
	UserID        string    `json:"userId"`
	TotalPrice    int64     `json:"totalPrice"`
	PaymentMethod string    `json:"paymentMethod"`
	LineCount     int       `json:"lineCount"`
	PlacedAt      time.Time `json:"placedAt"`
}

// OrderEventPublisher delivers order events to downstream consumers.
type OrderEventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event OrderPlacedEvent) error
}

// PlacementRecorder observes placement outcomes for metrics.
type PlacementRecorder interface {
	RecordPlacement(outcome string)
}
