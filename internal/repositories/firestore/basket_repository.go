package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/shopmesh/api/internal/domain"
	pfirestore "github.com/shopmesh/api/internal/platform/firestore"
	"github.com/shopmesh/api/internal/repositories"
)

const (
	basketCollection = "baskets"

	// Mutations on one user's basket are serialised in-process; retries only cover
	// writers on other instances.
	basketTxAttempts = 8
	basketTxTimeout  = 5 * time.Second
)

// BasketRepository stores one basket document per user, keyed by user ID.
type BasketRepository struct {
	base     *pfirestore.BaseRepository[basketDocument]
	provider *pfirestore.Provider
}

// NewBasketRepository constructs a Firestore-backed basket repository.
func NewBasketRepository(provider *pfirestore.Provider) (*BasketRepository, error) {
	if provider == nil {
		return nil, errors.New("basket repository requires firestore provider")
	}
	return &BasketRepository{
		base:     pfirestore.NewBaseRepository[basketDocument](provider, basketCollection),
		provider: provider,
	}, nil
}

func (r *BasketRepository) Get(ctx context.Context, userID string) (domain.Basket, error) {
	uid := strings.TrimSpace(userID)
	doc, err := r.base.Get(ctx, uid)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return domain.Basket{UserID: uid}, nil
		}
		return domain.Basket{}, err
	}
	return doc.Data.toDomain(uid), nil
}

// Mutate reads, edits and writes the basket inside a transaction so concurrent writers from
// other instances retry instead of overwriting each other.
func (r *BasketRepository) Mutate(ctx context.Context, userID string, fn repositories.BasketMutation) (domain.Basket, error) {
	uid := strings.TrimSpace(userID)
	ref, err := r.base.DocumentRef(ctx, uid)
	if err != nil {
		return domain.Basket{}, err
	}

	var result domain.Basket
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		basket := domain.Basket{UserID: uid}
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			doc, decodeErr := pfirestore.DecodeSnapshot[basketDocument](snap)
			if decodeErr != nil {
				return decodeErr
			}
			basket = doc.toDomain(uid)
		case status.Code(err) == codes.NotFound:
		default:
			return err
		}

		if err := fn(&basket); err != nil {
			return err
		}
		if err := tx.Set(ref, newBasketDocument(basket)); err != nil {
			return err
		}
		result = basket
		return nil
	}, pfirestore.WithTxAttempts(basketTxAttempts), pfirestore.WithTxTimeout(basketTxTimeout))
	if err != nil {
		return domain.Basket{}, err
	}
	return result, nil
}

func (r *BasketRepository) Delete(ctx context.Context, userID string) error {
	return r.base.Delete(ctx, strings.TrimSpace(userID))
}

type basketDocument struct {
	Items     []basketItemDocument `firestore:"items"`
	UpdatedAt time.Time            `firestore:"updatedAt"`
}

type basketItemDocument struct {
	ProductID string    `firestore:"productId"`
	Quantity  int       `firestore:"quantity"`
	AddedAt   time.Time `firestore:"addedAt"`
}

func newBasketDocument(basket domain.Basket) basketDocument {
	doc := basketDocument{
		Items:     make([]basketItemDocument, 0, len(basket.Items)),
		UpdatedAt: basket.UpdatedAt.UTC(),
	}
	for _, item := range basket.Items {
		doc.Items = append(doc.Items, basketItemDocument{
			ProductID: string(item.ProductID),
			Quantity:  domain.ClampQuantity(item.Quantity),
			AddedAt:   item.AddedAt.UTC(),
		})
	}
	return doc
}

func (d basketDocument) toDomain(userID string) domain.Basket {
	basket := domain.Basket{
		UserID:    userID,
		Items:     make([]domain.BasketItem, 0, len(d.Items)),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	for _, item := range d.Items {
		basket.Items = append(basket.Items, domain.BasketItem{
			ProductID: domain.ProductID(item.ProductID),
			Quantity:  domain.ClampQuantity(item.Quantity),
			AddedAt:   item.AddedAt.UTC(),
		})
	}
	return basket
}

var _ repositories.BasketRepository = (*BasketRepository)(nil)
