package repositories

import (
	"context"

	"github.com/shopmesh/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Baskets() BasketRepository
	Addresses() AddressRepository
	Catalog() CatalogRepository
	Orders() OrderRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// BasketMutation edits a basket in place. Returning an error aborts the write.
type BasketMutation func(basket *domain.Basket) error

// BasketRepository persists one basket document per user.
type BasketRepository interface {
	// Get returns the user's basket. A user without a stored basket gets an empty basket, not an error.
	Get(ctx context.Context, userID string) (domain.Basket, error)
	// Mutate applies fn to the current basket and stores the result atomically with respect to
	// other writers of the same user's basket.
	Mutate(ctx context.Context, userID string, fn BasketMutation) (domain.Basket, error)
	// Delete removes the basket. Deleting a missing basket succeeds.
	Delete(ctx context.Context, userID string) error
}

// AddressRepository persists delivery addresses.
type AddressRepository interface {
	Insert(ctx context.Context, address domain.Address) error
	Update(ctx context.Context, address domain.Address) error
	FindByID(ctx context.Context, addressID domain.AddressID) (domain.Address, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Address, error)
	// BulkGet resolves many ids in one round trip, omitting ids that do not exist.
	BulkGet(ctx context.Context, ids []domain.AddressID) (map[domain.AddressID]domain.Address, error)
}

// CatalogFilter narrows catalog listings.
type CatalogFilter struct {
	Category string
	Limit    int
}

// CatalogRepository exposes read access to catalog entries.
type CatalogRepository interface {
	List(ctx context.Context, filter CatalogFilter) ([]domain.CatalogEntry, error)
	FindByID(ctx context.Context, productID domain.ProductID) (domain.CatalogEntry, error)
	// BulkGet resolves many ids in one round trip, omitting ids that do not exist.
	BulkGet(ctx context.Context, ids []domain.ProductID) (map[domain.ProductID]domain.CatalogEntry, error)
}

// OrderRepository persists placed orders. Orders are never updated after Insert.
type OrderRepository interface {
	// Insert creates the order and returns a conflict RepositoryError if the ID already exists.
	Insert(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// ListByUser returns the user's orders, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error)
}
