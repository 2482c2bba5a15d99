package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/shopmesh/api/internal/platform/firestore"
	"github.com/shopmesh/api/internal/repositories"
)

// Registry bundles the Firestore repositories behind a shared provider.
type Registry struct {
	provider  *pfirestore.Provider
	baskets   *BasketRepository
	addresses *AddressRepository
	catalog   *CatalogRepository
	orders    *OrderRepository
}

// NewRegistry builds every repository against provider. Closing the registry closes the provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	baskets, err := NewBasketRepository(provider)
	if err != nil {
		return nil, err
	}
	addresses, err := NewAddressRepository(provider)
	if err != nil {
		return nil, err
	}
	catalog, err := NewCatalogRepository(provider)
	if err != nil {
		return nil, err
	}
	orders, err := NewOrderRepository(provider)
	if err != nil {
		return nil, err
	}
	return &Registry{
		provider:  provider,
		baskets:   baskets,
		addresses: addresses,
		catalog:   catalog,
		orders:    orders,
	}, nil
}

func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}

func (r *Registry) Baskets() repositories.BasketRepository    { return r.baskets }
func (r *Registry) Addresses() repositories.AddressRepository { return r.addresses }
func (r *Registry) Catalog() repositories.CatalogRepository   { return r.catalog }
func (r *Registry) Orders() repositories.OrderRepository      { return r.orders }

var _ repositories.Registry = (*Registry)(nil)
