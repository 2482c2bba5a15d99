package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopmesh/api/internal/domain"
	"github.com/shopmesh/api/internal/enrichment"
	"github.com/shopmesh/api/internal/repositories"
)

// ErrCatalogRepositoryMissing indicates the repository dependency is absent.
var ErrCatalogRepositoryMissing = errors.New("catalog service: repository is not configured")

const maxCatalogListSize = 200

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Catalog repositories.CatalogRepository
}

type catalogService struct {
	repo repositories.CatalogRepository
}

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Catalog == nil {
		return nil, fmt.Errorf("catalog service: catalog repository is required")
	}
	return &catalogService{repo: deps.Catalog}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, category string) ([]CatalogEntry, error) {
	if s.repo == nil {
		return nil, ErrCatalogRepositoryMissing
	}
	entries, err := s.repo.List(ctx, repositories.CatalogFilter{
		Category: strings.TrimSpace(category),
		Limit:    maxCatalogListSize,
	})
	if err != nil {
		return nil, translateRepoError(err)
	}
	return entries, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID ProductID) (CatalogEntry, error) {
	if s.repo == nil {
		return CatalogEntry{}, ErrCatalogRepositoryMissing
	}
	id := ProductID(strings.TrimSpace(string(productID)))
	if id == "" {
		return CatalogEntry{}, fmt.Errorf("%w: product id is required", ErrValidation)
	}
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return CatalogEntry{}, translateRepoError(err)
	}
	return entry, nil
}

// BulkLookup returns the entries that exist, in request order. Unknown ids are omitted.
func (s *catalogService) BulkLookup(ctx context.Context, ids []ProductID) ([]CatalogEntry, error) {
	if s.repo == nil {
		return nil, ErrCatalogRepositoryMissing
	}
	requested := uniqueIDs(ids)
	if len(requested) == 0 {
		return []CatalogEntry{}, nil
	}
	found, err := s.repo.BulkGet(ctx, requested)
	if err != nil {
		return nil, translateRepoError(err)
	}
	result := make([]CatalogEntry, 0, len(found))
	for _, id := range requested {
		if entry, ok := found[id]; ok {
			result = append(result, entry)
		}
	}
	return result, nil
}

func uniqueIDs[K ~string](ids []K) []K {
	seen := make(map[K]struct{}, len(ids))
	out := make([]K, 0, len(ids))
	for _, id := range ids {
		trimmed := K(strings.TrimSpace(string(id)))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

// NewCatalogFetcher adapts a catalog repository to the bulk fetcher contract used for
// in-process enrichment.
func NewCatalogFetcher(repo repositories.CatalogRepository) ProductFetcher {
	return enrichment.FetcherFunc[domain.ProductID, domain.CatalogEntry](repo.BulkGet)
}

// NewAddressFetcher adapts an address repository to the bulk fetcher contract.
func NewAddressFetcher(repo repositories.AddressRepository) AddressFetcher {
	return enrichment.FetcherFunc[domain.AddressID, domain.Address](repo.BulkGet)
}
