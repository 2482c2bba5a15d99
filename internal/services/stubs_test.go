package services

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/shopmesh/api/internal/domain"
	"github.com/shopmesh/api/internal/enrichment"
	"github.com/shopmesh/api/internal/repositories"
)

type repoErrorStub struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e repoErrorStub) Error() string       { return "repository error" }
func (e repoErrorStub) IsNotFound() bool    { return e.notFound }
func (e repoErrorStub) IsConflict() bool    { return e.conflict }
func (e repoErrorStub) IsUnavailable() bool { return e.unavailable }

type memoryBasketRepository struct {
	mu        sync.Mutex
	baskets   map[string]domain.Basket
	getErr    error
	deleteErr error
	deletes   int
	mutations int
}

func newMemoryBasketRepository(baskets ...domain.Basket) *memoryBasketRepository {
	repo := &memoryBasketRepository{baskets: make(map[string]domain.Basket)}
	for _, basket := range baskets {
		repo.baskets[basket.UserID] = basket
	}
	return repo
}

func (r *memoryBasketRepository) Get(_ context.Context, userID string) (domain.Basket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return domain.Basket{}, r.getErr
	}
	return cloneBasket(r.baskets[userID], userID), nil
}

func (r *memoryBasketRepository) Mutate(_ context.Context, userID string, fn repositories.BasketMutation) (domain.Basket, error) {
	r.mu.Lock()
	current := cloneBasket(r.baskets[userID], userID)
	r.mu.Unlock()

	// yield so unsynchronised callers would interleave and lose updates
	time.Sleep(time.Millisecond)

	if err := fn(&current); err != nil {
		return domain.Basket{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.mutations++
	r.baskets[userID] = current
	return cloneBasket(current, userID), nil
}

func (r *memoryBasketRepository) Delete(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes++
	if r.deleteErr != nil {
		return r.deleteErr
	}
	delete(r.baskets, userID)
	return nil
}

func (r *memoryBasketRepository) snapshot(userID string) domain.Basket {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneBasket(r.baskets[userID], userID)
}

func cloneBasket(b domain.Basket, userID string) domain.Basket {
	b.UserID = userID
	b.Items = slices.Clone(b.Items)
	return b
}

type memoryOrderRepository struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	inserts   int
	insertErr error
	listFunc  func(userID string, limit int) ([]domain.Order, error)
}

func newMemoryOrderRepository(orders ...domain.Order) *memoryOrderRepository {
	repo := &memoryOrderRepository{orders: make(map[string]domain.Order)}
	for _, order := range orders {
		repo.orders[order.ID] = order
	}
	return repo
}

func (r *memoryOrderRepository) Insert(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.insertErr != nil {
		return r.insertErr
	}
	if _, exists := r.orders[order.ID]; exists {
		return repoErrorStub{conflict: true}
	}
	r.inserts++
	r.orders[order.ID] = order
	return nil
}

func (r *memoryOrderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, repoErrorStub{notFound: true}
	}
	return order, nil
}

func (r *memoryOrderRepository) ListByUser(_ context.Context, userID string, limit int) ([]domain.Order, error) {
	if r.listFunc != nil {
		return r.listFunc(userID, limit)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []domain.Order
	for _, order := range r.orders {
		if order.UserID == userID {
			result = append(result, order)
		}
	}
	slices.SortFunc(result, func(a, b domain.Order) int { return b.PlacedAt.Compare(a.PlacedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// countingFetcher serves a fixed entity map and records each bulk call.
type countingFetcher[K ~string, E any] struct {
	mu      sync.Mutex
	entries map[K]E
	err     error
	delay   time.Duration
	calls   [][]K
}

func (f *countingFetcher[K, E]) FetchMany(ctx context.Context, ids []K) (map[K]E, error) {
	f.mu.Lock()
	f.calls = append(f.calls, slices.Clone(ids))
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[K]E, len(ids))
	for _, id := range ids {
		if entry, ok := f.entries[id]; ok {
			out[id] = entry
		}
	}
	return out, nil
}

func (f *countingFetcher[K, E]) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

var (
	_ enrichment.Fetcher[domain.ProductID, domain.CatalogEntry] = (*countingFetcher[domain.ProductID, domain.CatalogEntry])(nil)
	_ repositories.BasketRepository                             = (*memoryBasketRepository)(nil)
	_ repositories.OrderRepository                              = (*memoryOrderRepository)(nil)
)

func productFetcher(entries ...domain.CatalogEntry) *countingFetcher[domain.ProductID, domain.CatalogEntry] {
	m := make(map[domain.ProductID]domain.CatalogEntry, len(entries))
	for _, entry := range entries {
		m[entry.ID] = entry
	}
	return &countingFetcher[domain.ProductID, domain.CatalogEntry]{entries: m}
}

func addressFetcher(addresses ...domain.Address) *countingFetcher[domain.AddressID, domain.Address] {
	m := make(map[domain.AddressID]domain.Address, len(addresses))
	for _, address := range addresses {
		m[address.ID] = address
	}
	return &countingFetcher[domain.AddressID, domain.Address]{entries: m}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []OrderPlacedEvent
	err    error
}

func (p *recordingPublisher) PublishOrderPlaced(_ context.Context, event OrderPlacedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

type recordingLogger struct {
	mu     sync.Mutex
	events []string
}

func (l *recordingLogger) log(_ context.Context, event string, _ map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, event)
}

func (l *recordingLogger) has(event string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Contains(l.events, event)
}

var errBackend = errors.New("backend down")

func fixedClock() func() time.Time {
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return now }
}
