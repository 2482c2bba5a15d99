package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	"github.com/shopmesh/api/internal/domain"
	pfirestore "github.com/shopmesh/api/internal/platform/firestore"
	"github.com/shopmesh/api/internal/platform/textutil"
	"github.com/shopmesh/api/internal/repositories"
)

const productCollection = "products"

// CatalogRepository reads catalog entries from the products collection.
type CatalogRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

// NewCatalogRepository constructs a Firestore-backed catalog repository.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{base: pfirestore.NewBaseRepository[productDocument](provider, productCollection)}, nil
}

func (r *CatalogRepository) List(ctx context.Context, filter repositories.CatalogFilter) ([]domain.CatalogEntry, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if category := strings.TrimSpace(filter.Category); category != "" {
			q = q.Where("category", "==", category)
		}
		q = q.OrderBy("name", firestore.Asc)
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	entries := make([]domain.CatalogEntry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, doc.Data.toDomain(doc.ID))
	}
	return entries, nil
}

func (r *CatalogRepository) FindByID(ctx context.Context, productID domain.ProductID) (domain.CatalogEntry, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(string(productID)))
	if err != nil {
		return domain.CatalogEntry{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *CatalogRepository) BulkGet(ctx context.Context, ids []domain.ProductID) (map[domain.ProductID]domain.CatalogEntry, error) {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, string(id))
	}
	docs, err := r.base.GetAll(ctx, keys)
	if err != nil {
		return nil, err
	}
	result := make(map[domain.ProductID]domain.CatalogEntry, len(docs))
	for _, doc := range docs {
		result[domain.ProductID(doc.ID)] = doc.Data.toDomain(doc.ID)
	}
	return result, nil
}

type productDocument struct {
	Name           string            `firestore:"name"`
	Category       string            `firestore:"category"`
	Specifications map[string]string `firestore:"specifications,omitempty"`
	Price          int64             `firestore:"price"`
	OriginalPrice  int64             `firestore:"originalPrice"`
	Image          string            `firestore:"image,omitempty"`
}

func (d productDocument) toDomain(id string) domain.CatalogEntry {
	return domain.CatalogEntry{
		ID:             domain.ProductID(id),
		Name:           d.Name,
		Category:       d.Category,
		Specifications: textutil.NormalizeSpecifications(d.Specifications),
		Price:          d.Price,
		OriginalPrice:  d.OriginalPrice,
		ImageURL:       d.Image,
	}
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)
