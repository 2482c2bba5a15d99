package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopmesh/api/internal/domain"
	"github.com/shopmesh/api/internal/enrichment"
	"github.com/shopmesh/api/internal/repositories"
)

var (
	errBasketRepositoryRequired = errors.New("basket service: repository is required")
	errBasketProductsRequired   = errors.New("basket service: product fetcher is required")
	errBasketClockRequired      = errors.New("basket service: clock is required")
)

const defaultFetchTimeout = 3 * time.Second

// BasketServiceDeps wires the basket repository and the catalog fetcher used by View.
type BasketServiceDeps struct {
	Repository   repositories.BasketRepository
	Products     ProductFetcher
	Locks        UserLocker
	FetchTimeout time.Duration
	Observer     enrichment.Observer
	Clock        func() time.Time
	Logger       func(context.Context, string, map[string]any)
}

type basketService struct {
	repo         repositories.BasketRepository
	products     ProductFetcher
	locks        UserLocker
	fetchTimeout time.Duration
	observer     enrichment.Observer
	now          func() time.Time
	logger       func(context.Context, string, map[string]any)
}

// NewBasketService constructs a BasketService enforcing dependency validation.
func NewBasketService(deps BasketServiceDeps) (BasketService, error) {
	if deps.Repository == nil {
		return nil, errBasketRepositoryRequired
	}
	if deps.Products == nil {
		return nil, errBasketProductsRequired
	}
	if deps.Clock == nil {
		return nil, errBasketClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	locks := deps.Locks
	if locks == nil {
		locks = newKeyedMutex()
	}
	timeout := deps.FetchTimeout
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}

	return &basketService{
		repo:         deps.Repository,
		products:     deps.Products,
		locks:        locks,
		fetchTimeout: timeout,
		observer:     deps.Observer,
		now:          func() time.Time { return deps.Clock().UTC() },
		logger:       logger,
	}, nil
}

// View returns the basket joined with current catalog entries. A failed catalog fetch
// degrades the view instead of failing it.
func (s *basketService) View(ctx context.Context, userID string) (BasketView, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return BasketView{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}

	basket, err := s.repo.Get(ctx, uid)
	if err != nil {
		return BasketView{}, translateRepoError(err)
	}
	basket.UserID = uid

	ids := enrichment.Collect([]domain.Basket{basket}, enrichment.BasketProductIDs)
	products := enrichment.Fetch(ctx, domain.EntityCatalogEntry, s.products, ids, enrichment.Options{
		Timeout:  s.fetchTimeout,
		Observer: s.observer,
	})
	if err := products.Err(); err != nil {
		s.logger(ctx, "basket.view.degraded", map[string]any{
			"userId": uid,
			"entity": string(products.Entity()),
			"error":  err.Error(),
		})
	}

	return enrichment.EnrichBasket(basket, products), nil
}

// AddItem inserts the product with quantity one or increments the existing line.
func (s *basketService) AddItem(ctx context.Context, userID string, productID ProductID) (Basket, error) {
	return s.AddItems(ctx, userID, []ProductID{productID})
}

// AddItems applies AddItem for each id in order within a single write. Any blank id rejects the whole batch.
func (s *basketService) AddItems(ctx context.Context, userID string, productIDs []ProductID) (Basket, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Basket{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if len(productIDs) == 0 {
		return Basket{}, fmt.Errorf("%w: at least one product id is required", ErrValidation)
	}
	ids := make([]ProductID, 0, len(productIDs))
	for _, id := range productIDs {
		trimmed := ProductID(strings.TrimSpace(string(id)))
		if trimmed == "" {
			return Basket{}, fmt.Errorf("%w: product id is required", ErrValidation)
		}
		ids = append(ids, trimmed)
	}

	return s.mutate(ctx, uid, func(basket *domain.Basket) error {
		now := s.now()
		for _, id := range ids {
			if idx := basket.IndexOf(id); idx >= 0 {
				basket.Items[idx].Quantity++
				continue
			}
			basket.Items = append(basket.Items, domain.BasketItem{
				ProductID: id,
				Quantity:  domain.MinBasketQuantity,
				AddedAt:   now,
			})
		}
		basket.UpdatedAt = now
		return nil
	})
}

// SetQuantity overwrites the quantity of an existing line, clamping it to at least one.
func (s *basketService) SetQuantity(ctx context.Context, userID string, productID ProductID, quantity int) (Basket, error) {
	uid, pid, err := basketKeys(userID, productID)
	if err != nil {
		return Basket{}, err
	}
	qty := domain.ClampQuantity(quantity)

	return s.mutate(ctx, uid, func(basket *domain.Basket) error {
		idx := basket.IndexOf(pid)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrItemNotFound, pid)
		}
		basket.Items[idx].Quantity = qty
		basket.UpdatedAt = s.now()
		return nil
	})
}

// RemoveItem deletes the line for the product.
func (s *basketService) RemoveItem(ctx context.Context, userID string, productID ProductID) (Basket, error) {
	uid, pid, err := basketKeys(userID, productID)
	if err != nil {
		return Basket{}, err
	}

	return s.mutate(ctx, uid, func(basket *domain.Basket) error {
		idx := basket.IndexOf(pid)
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrItemNotFound, pid)
		}
		basket.Items = slices.Delete(basket.Items, idx, idx+1)
		basket.UpdatedAt = s.now()
		return nil
	})
}

// Clear empties the basket. Clearing a missing basket succeeds.
func (s *basketService) Clear(ctx context.Context, userID string) error {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}

	unlock := s.locks.Lock(uid)
	defer unlock()

	if err := s.repo.Delete(ctx, uid); err != nil {
		return translateRepoError(err)
	}
	s.logger(ctx, "basket.cleared", map[string]any{"userId": uid})
	return nil
}

func (s *basketService) mutate(ctx context.Context, userID string, fn repositories.BasketMutation) (Basket, error) {
	unlock := s.locks.Lock(userID)
	defer unlock()

	basket, err := s.repo.Mutate(ctx, userID, fn)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return Basket{}, err
		}
		return Basket{}, translateRepoError(err)
	}
	basket.UserID = userID
	return basket, nil
}

func basketKeys(userID string, productID ProductID) (string, ProductID, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return "", "", fmt.Errorf("%w: user id is required", ErrValidation)
	}
	pid := ProductID(strings.TrimSpace(string(productID)))
	if pid == "" {
		return "", "", fmt.Errorf("%w: product id is required", ErrValidation)
	}
	return uid, pid, nil
}
