package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/shopmesh/api/internal/domain"
	"github.com/shopmesh/api/internal/enrichment"
	"github.com/shopmesh/api/internal/repositories"
)

const (
	orderIDPrefix = "ord_"

	defaultPlacementTimeout = 5 * time.Second
	defaultHistoryLimit     = 50
	maxHistoryLimit         = 200

	placementOutcomePlaced   = "placed"
	placementOutcomeReplayed = "replayed"
	placementOutcomeRejected = "rejected"
	placementOutcomeFailed   = "failed"
)

var (
	errOrderRepositoryRequired = errors.New("order service: order repository is required")
	errOrderBasketsRequired    = errors.New("order service: basket repository is required")
	errOrderProductsRequired   = errors.New("order service: product fetcher is required")
	errOrderAddressesRequired  = errors.New("order service: address fetcher is required")
	errOrderClockRequired      = errors.New("order service: clock is required")
)

// OrderServiceDeps wires repositories, fetchers and event delivery for order operations.
type OrderServiceDeps struct {
	Orders           repositories.OrderRepository
	Baskets          repositories.BasketRepository
	Products         ProductFetcher
	Addresses        AddressFetcher
	Locks            UserLocker
	Events           OrderEventPublisher
	Placements       PlacementRecorder
	Observer         enrichment.Observer
	FetchTimeout     time.Duration
	PlacementTimeout time.Duration
	HistoryLimit     int
	Clock            func() time.Time
	Logger           func(context.Context, string, map[string]any)
	IDGenerator      func() string
}

type orderService struct {
	orders           repositories.OrderRepository
	baskets          repositories.BasketRepository
	products         ProductFetcher
	addresses        AddressFetcher
	locks            UserLocker
	events           OrderEventPublisher
	placements       PlacementRecorder
	observer         enrichment.Observer
	fetchTimeout     time.Duration
	placementTimeout time.Duration
	historyLimit     int
	now              func() time.Time
	logger           func(context.Context, string, map[string]any)
	newID            func() string
}

// NewOrderService constructs an OrderService enforcing dependency validation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	switch {
	case deps.Orders == nil:
		return nil, errOrderRepositoryRequired
	case deps.Baskets == nil:
		return nil, errOrderBasketsRequired
	case deps.Products == nil:
		return nil, errOrderProductsRequired
	case deps.Addresses == nil:
		return nil, errOrderAddressesRequired
	case deps.Clock == nil:
		return nil, errOrderClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return orderIDPrefix + ulid.Make().String() }
	}
	locks := deps.Locks
	if locks == nil {
		locks = newKeyedMutex()
	}
	fetchTimeout := deps.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = defaultFetchTimeout
	}
	placementTimeout := deps.PlacementTimeout
	if placementTimeout <= 0 {
		placementTimeout = defaultPlacementTimeout
	}
	historyLimit := deps.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}

	return &orderService{
		orders:           deps.Orders,
		baskets:          deps.Baskets,
		products:         deps.Products,
		addresses:        deps.Addresses,
		locks:            locks,
		events:           deps.Events,
		placements:       deps.Placements,
		observer:         deps.Observer,
		fetchTimeout:     fetchTimeout,
		placementTimeout: placementTimeout,
		historyLimit:     historyLimit,
		now:              func() time.Time { return deps.Clock().UTC() },
		logger:           logger,
		newID:            idGen,
	}, nil
}

// PlaceOrder converts the user's basket into an order priced from fresh catalog data.
//
// The order is persisted before the basket is cleared. A failed clear leaves the order in
// place and is reported through BasketCleared; retrying the clear never creates an order.
// With an idempotency key, a repeated placement returns the order created by the first call.
func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlaceOrderResult, error) {
	result, err := s.placeOrder(ctx, cmd)
	s.recordPlacement(result, err)
	return result, err
}

func (s *orderService) placeOrder(ctx context.Context, cmd PlaceOrderCommand) (PlaceOrderResult, error) {
	uid := strings.TrimSpace(cmd.UserID)
	addressID := AddressID(strings.TrimSpace(string(cmd.AddressID)))
	paymentMethod := strings.ToLower(strings.TrimSpace(cmd.PaymentMethod))
	key := strings.TrimSpace(cmd.IdempotencyKey)
	switch {
	case uid == "":
		return PlaceOrderResult{}, fmt.Errorf("%w: user id is required", ErrValidation)
	case addressID == "":
		return PlaceOrderResult{}, fmt.Errorf("%w: address id is required", ErrValidation)
	case paymentMethod == "":
		return PlaceOrderResult{}, fmt.Errorf("%w: payment method is required", ErrValidation)
	}

	unlock := s.locks.Lock(uid)
	defer unlock()

	orderID := s.newID()
	if key != "" {
		orderID = deriveOrderID(uid, key)
		if existing, ok, err := s.findOwnOrder(ctx, uid, orderID); err != nil {
			return PlaceOrderResult{}, err
		} else if ok {
			return s.replay(ctx, existing)
		}
	}

	basket, err := s.baskets.Get(ctx, uid)
	if err != nil {
		return PlaceOrderResult{}, translateRepoError(err)
	}
	if basket.IsEmpty() {
		return PlaceOrderResult{}, ErrEmptyBasket
	}

	products, addresses := s.fetchForPlacement(ctx, basket, addressID)
	if err := products.Err(); err != nil {
		return PlaceOrderResult{}, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}

	address, missing := addresses.Get(addressID)
	if missing != nil {
		if missing.Reason == domain.UnresolvedFetchFailed {
			return PlaceOrderResult{}, fmt.Errorf("%w: %w", ErrDependency, addresses.Err())
		}
		return PlaceOrderResult{}, fmt.Errorf("%w: address %s not found", ErrInvalidAddress, addressID)
	}
	if address.UserID != uid {
		return PlaceOrderResult{}, fmt.Errorf("%w: address %s does not belong to user", ErrInvalidAddress, addressID)
	}

	lines, total, unavailable := priceLines(basket, products)
	if len(unavailable) > 0 {
		return PlaceOrderResult{}, fmt.Errorf("%w: products no longer available: %s", ErrConflict, strings.Join(unavailable, ", "))
	}
	if cmd.ClientTotal != nil && *cmd.ClientTotal != total {
		s.logger(ctx, "order.client_total.mismatch", map[string]any{
			"userId":      uid,
			"clientTotal": *cmd.ClientTotal,
			"total":       total,
		})
	}

	order := domain.Order{
		ID:              orderID,
		UserID:          uid,
		Lines:           lines,
		TotalPrice:      total,
		PaymentMethod:   paymentMethod,
		AddressID:       addressID,
		ShippingAddress: address.Snapshot(),
		PlacedAt:        s.now(),
	}

	if err := s.orders.Insert(ctx, order); err != nil {
		if key != "" && isRepoConflict(err) {
			if existing, ok, findErr := s.findOwnOrder(ctx, uid, orderID); findErr == nil && ok {
				return s.replay(ctx, existing)
			}
		}
		return PlaceOrderResult{}, translateRepoError(err)
	}

	result := PlaceOrderResult{Order: order, BasketCleared: true}
	if err := s.baskets.Delete(ctx, uid); err != nil {
		result.BasketCleared = false
		s.logger(ctx, "order.basket.clear.failed", map[string]any{
			"userId": uid,
			"order":  order.ID,
			"error":  err.Error(),
		})
	}

	s.publishEvent(ctx, order)
	return result, nil
}

func (s *orderService) fetchForPlacement(ctx context.Context, basket domain.Basket, addressID AddressID) (enrichment.ProductLookup, enrichment.AddressLookup) {
	ctx, cancel := context.WithTimeout(ctx, s.placementTimeout)
	defer cancel()

	var (
		products  enrichment.ProductLookup
		addresses enrichment.AddressLookup
	)
	// A catalog failure aborts placement, so it cancels the address fetch.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ids := enrichment.Collect([]domain.Basket{basket}, enrichment.BasketProductIDs)
		products = enrichment.Fetch(gctx, domain.EntityCatalogEntry, s.products, ids, enrichment.Options{
			Observer: s.observer,
		})
		return products.Err()
	})
	g.Go(func() error {
		addresses = enrichment.Fetch(gctx, domain.EntityAddress, s.addresses, enrichment.NewSet(addressID), enrichment.Options{
			Observer: s.observer,
		})
		return nil
	})
	_ = g.Wait()
	return products, addresses
}

func priceLines(basket domain.Basket, products enrichment.ProductLookup) ([]domain.OrderLine, int64, []string) {
	lines := make([]domain.OrderLine, 0, len(basket.Items))
	var (
		total       int64
		unavailable []string
	)
	for _, item := range basket.Items {
		entry, missing := products.Get(item.ProductID)
		if missing != nil {
			unavailable = append(unavailable, string(item.ProductID))
			continue
		}
		qty := domain.ClampQuantity(item.Quantity)
		lineTotal := entry.Price * int64(qty)
		lines = append(lines, domain.OrderLine{
			ProductID: item.ProductID,
			Quantity:  qty,
			UnitPrice: entry.Price,
			LineTotal: lineTotal,
		})
		total += lineTotal
	}
	return lines, total, unavailable
}

func (s *orderService) findOwnOrder(ctx context.Context, userID, orderID string) (Order, bool, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if isRepoNotFound(err) {
			return Order{}, false, nil
		}
		return Order{}, false, translateRepoError(err)
	}
	if order.UserID != userID {
		return Order{}, false, fmt.Errorf("%w: idempotency key already used", ErrConflict)
	}
	return order, true, nil
}

func (s *orderService) replay(ctx context.Context, order Order) (PlaceOrderResult, error) {
	result := PlaceOrderResult{Order: order, Replayed: true}
	basket, err := s.baskets.Get(ctx, order.UserID)
	if err == nil {
		result.BasketCleared = basket.IsEmpty()
	}
	s.logger(ctx, "order.place.replayed", map[string]any{"userId": order.UserID, "order": order.ID})
	return result, nil
}

// History returns the user's orders, newest first, joined with current catalog entries and
// addresses. Failed lookups degrade the affected fields instead of failing the call.
func (s *orderService) History(ctx context.Context, userID string, limit int) (OrderHistory, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return OrderHistory{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if limit <= 0 {
		limit = s.historyLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	orders, err := s.orders.ListByUser(ctx, uid, limit)
	if err != nil {
		return OrderHistory{}, translateRepoError(err)
	}
	return s.enrich(ctx, uid, orders), nil
}

// Get returns one of the user's orders. Orders owned by someone else are reported as missing.
func (s *orderService) Get(ctx context.Context, userID string, orderID string) (OrderView, error) {
	uid := strings.TrimSpace(userID)
	oid := strings.TrimSpace(orderID)
	if uid == "" || oid == "" {
		return OrderView{}, fmt.Errorf("%w: user id and order id are required", ErrValidation)
	}

	order, err := s.orders.FindByID(ctx, oid)
	if err != nil {
		return OrderView{}, translateRepoError(err)
	}
	if order.UserID != uid {
		return OrderView{}, fmt.Errorf("%w: order %s", ErrNotFound, oid)
	}

	history := s.enrich(ctx, uid, []Order{order})
	return history.Orders[0], nil
}

func (s *orderService) enrich(ctx context.Context, userID string, orders []Order) OrderHistory {
	productIDs := enrichment.Collect(orders, enrichment.OrderProductIDs)
	addressIDs := enrichment.Collect(orders, enrichment.OrderAddressIDs)
	opts := enrichment.Options{Timeout: s.fetchTimeout, Observer: s.observer}

	products, addresses := enrichment.FetchPair(ctx,
		func(ctx context.Context) enrichment.ProductLookup {
			return enrichment.Fetch(ctx, domain.EntityCatalogEntry, s.products, productIDs, opts)
		},
		func(ctx context.Context) enrichment.AddressLookup {
			return enrichment.Fetch(ctx, domain.EntityAddress, s.addresses, addressIDs, opts)
		},
	)

	history := enrichment.EnrichOrders(orders, products, addresses)
	if len(history.Degraded) > 0 {
		degraded := make([]string, 0, len(history.Degraded))
		for _, entity := range history.Degraded {
			degraded = append(degraded, string(entity))
		}
		s.logger(ctx, "order.history.degraded", map[string]any{
			"userId":   userID,
			"degraded": degraded,
		})
	}
	return history
}

func (s *orderService) publishEvent(ctx context.Context, order Order) {
	if s.events == nil {
		return
	}
	event := OrderPlacedEvent{
		OrderID:       order.ID,
		UserID:        order.UserID,
		TotalPrice:    order.TotalPrice,
		PaymentMethod: order.PaymentMethod,
		LineCount:     len(order.Lines),
		PlacedAt:      order.PlacedAt,
	}
	if err := s.events.PublishOrderPlaced(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":  "order.placed",
			"order": order.ID,
			"error": err.Error(),
		})
	}
}

func (s *orderService) recordPlacement(result PlaceOrderResult, err error) {
	if s.placements == nil {
		return
	}
	switch {
	case err == nil && result.Replayed:
		s.placements.RecordPlacement(placementOutcomeReplayed)
	case err == nil:
		s.placements.RecordPlacement(placementOutcomePlaced)
	case errors.Is(err, ErrDependency):
		s.placements.RecordPlacement(placementOutcomeFailed)
	default:
		s.placements.RecordPlacement(placementOutcomeRejected)
	}
}

// orderKeyNamespace scopes name-based order ids so they never collide with other UUIDv5 users.
var orderKeyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:shopmesh:order-idempotency"))

// deriveOrderID maps a (user, idempotency key) pair onto a stable order id.
func deriveOrderID(userID, key string) string {
	id := uuid.NewSHA1(orderKeyNamespace, []byte(userID+"\x00"+key))
	return orderIDPrefix + strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))
}
