package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/shopmesh/api/internal/domain"
	pfirestore "github.com/shopmesh/api/internal/platform/firestore"
	"github.com/shopmesh/api/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository stores placed orders. Documents are written once with Create and never updated.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{base: pfirestore.NewBaseRepository[orderDocument](provider, orderCollection)}, nil
}

func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) error {
	return r.base.Create(ctx, order.ID, newOrderDocument(order))
}

func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.base.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string, limit int) ([]domain.Order, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("userId", "==", strings.TrimSpace(userID)).OrderBy("placedAt", firestore.Desc)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}
	return orders, nil
}

type orderDocument struct {
	UserID          string              `firestore:"userId"`
	Lines           []orderLineDocument `firestore:"items"`
	TotalPrice      int64               `firestore:"totalPrice"`
	PaymentMethod   string              `firestore:"paymentMethod"`
	AddressID       string              `firestore:"addressId"`
	ShippingAddress shippingDocument    `firestore:"shippingAddress"`
	PlacedAt        time.Time           `firestore:"placedAt"`
}

type orderLineDocument struct {
	ProductID string `firestore:"productId"`
	Quantity  int    `firestore:"quantity"`
	UnitPrice int64  `firestore:"unitPrice"`
	LineTotal int64  `firestore:"lineTotal"`
}

type shippingDocument struct {
	Name     string `firestore:"name"`
	Phone    string `firestore:"phone"`
	AltPhone string `firestore:"altPhone,omitempty"`
	Pincode  string `firestore:"pincode"`
	Locality string `firestore:"locality"`
	Line     string `firestore:"address"`
	State    string `firestore:"state"`
	Landmark string `firestore:"landmark,omitempty"`
	Kind     string `firestore:"addressType"`
}

func newOrderDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		UserID:        order.UserID,
		Lines:         make([]orderLineDocument, 0, len(order.Lines)),
		TotalPrice:    order.TotalPrice,
		PaymentMethod: order.PaymentMethod,
		AddressID:     string(order.AddressID),
		ShippingAddress: shippingDocument{
			Name:     order.ShippingAddress.Name,
			Phone:    order.ShippingAddress.Phone,
			AltPhone: order.ShippingAddress.AltPhone,
			Pincode:  order.ShippingAddress.Pincode,
			Locality: order.ShippingAddress.Locality,
			Line:     order.ShippingAddress.Line,
			State:    order.ShippingAddress.State,
			Landmark: order.ShippingAddress.Landmark,
			Kind:     order.ShippingAddress.Kind,
		},
		PlacedAt: order.PlacedAt.UTC(),
	}
	for _, line := range order.Lines {
		doc.Lines = append(doc.Lines, orderLineDocument{
			ProductID: string(line.ProductID),
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: line.LineTotal,
		})
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:            id,
		UserID:        d.UserID,
		Lines:         make([]domain.OrderLine, 0, len(d.Lines)),
		TotalPrice:    d.TotalPrice,
		PaymentMethod: d.PaymentMethod,
		AddressID:     domain.AddressID(d.AddressID),
		ShippingAddress: domain.AddressSnapshot{
			Name:     d.ShippingAddress.Name,
			Phone:    d.ShippingAddress.Phone,
			AltPhone: d.ShippingAddress.AltPhone,
			Pincode:  d.ShippingAddress.Pincode,
			Locality: d.ShippingAddress.Locality,
			Line:     d.ShippingAddress.Line,
			State:    d.ShippingAddress.State,
			Landmark: d.ShippingAddress.Landmark,
			Kind:     d.ShippingAddress.Kind,
		},
		PlacedAt: d.PlacedAt.UTC(),
	}
	for _, line := range d.Lines {
		order.Lines = append(order.Lines, domain.OrderLine{
			ProductID: domain.ProductID(line.ProductID),
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: line.LineTotal,
		})
	}
	return order
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
