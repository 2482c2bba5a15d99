package handlers

import (
	"time"

	"github.com/shopmesh/api/internal/domain"
	"github.com/shopmesh/api/internal/platform/remote"
)

type unresolvedPayload struct {
	Type   string `json:"type"`
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

func newUnresolvedPayload(u *domain.Unresolved) *unresolvedPayload {
	if u == nil {
		return nil
	}
	return &unresolvedPayload{Type: string(u.Type), ID: u.ID, Reason: string(u.Reason)}
}

func newProductPayload(entry *domain.CatalogEntry) *remote.CatalogEntryPayload {
	if entry == nil {
		return nil
	}
	payload := remote.NewCatalogEntryPayload(*entry)
	return &payload
}

func degradedNames(types []domain.EntityType) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		out = append(out, string(t))
	}
	return out
}

type basketItemPayload struct {
	ProductID string    `json:"productId"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"addedAt"`
}

type basketPayload struct {
	UserID    string              `json:"userId"`
	Items     []basketItemPayload `json:"items"`
	UpdatedAt *time.Time          `json:"updatedAt,omitempty"`
}

func newBasketPayload(b domain.Basket) basketPayload {
	payload := basketPayload{UserID: b.UserID, Items: make([]basketItemPayload, 0, len(b.Items))}
	for _, item := range b.Items {
		payload.Items = append(payload.Items, basketItemPayload{
			ProductID: string(item.ProductID),
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt,
		})
	}
	if !b.UpdatedAt.IsZero() {
		updated := b.UpdatedAt
		payload.UpdatedAt = &updated
	}
	return payload
}

type basketLinePayload struct {
	ProductID  string                      `json:"productId"`
	Quantity   int                         `json:"quantity"`
	Product    *remote.CatalogEntryPayload `json:"product,omitempty"`
	Unresolved *unresolvedPayload          `json:"unresolved,omitempty"`
	LineTotal  *int64                      `json:"lineTotal"`
}

type basketViewPayload struct {
	UserID   string              `json:"userId"`
	Items    []basketLinePayload `json:"items"`
	Subtotal int64               `json:"subtotal"`
	Complete bool                `json:"complete"`
	Degraded []string            `json:"degraded"`
}

func newBasketViewPayload(v domain.BasketView) basketViewPayload {
	payload := basketViewPayload{
		UserID:   v.UserID,
		Items:    make([]basketLinePayload, 0, len(v.Items)),
		Subtotal: v.Subtotal,
		Complete: v.Complete,
		Degraded: degradedNames(v.Degraded),
	}
	for _, line := range v.Items {
		payload.Items = append(payload.Items, basketLinePayload{
			ProductID:  string(line.ProductID),
			Quantity:   line.Quantity,
			Product:    newProductPayload(line.Product),
			Unresolved: newUnresolvedPayload(line.Unresolved),
			LineTotal:  line.LineTotal,
		})
	}
	return payload
}

type addressSnapshotPayload struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	AltPhone    string `json:"altPhone,omitempty"`
	Pincode     string `json:"pincode"`
	Locality    string `json:"locality,omitempty"`
	Address     string `json:"address"`
	State       string `json:"state,omitempty"`
	Landmark    string `json:"landmark,omitempty"`
	AddressType string `json:"addressType,omitempty"`
}

type orderLinePayload struct {
	ProductID  string                      `json:"productId"`
	Quantity   int                         `json:"quantity"`
	UnitPrice  int64                       `json:"unitPrice"`
	LineTotal  int64                       `json:"lineTotal"`
	Product    *remote.CatalogEntryPayload `json:"product,omitempty"`
	Unresolved *unresolvedPayload          `json:"unresolved,omitempty"`
}

type orderPayload struct {
	ID                string                 `json:"id"`
	UserID            string                 `json:"userId"`
	Items             []orderLinePayload     `json:"items"`
	TotalPrice        int64                  `json:"totalPrice"`
	PaymentMethod     string                 `json:"paymentMethod"`
	AddressID         string                 `json:"addressId"`
	ShippingAddress   addressSnapshotPayload `json:"shippingAddress"`
	CurrentAddress    *remote.AddressPayload `json:"currentAddress,omitempty"`
	AddressUnresolved *unresolvedPayload     `json:"addressUnresolved,omitempty"`
	PlacedAt          time.Time              `json:"placedAt"`
}

func newOrderPayload(o domain.Order) orderPayload {
	s := o.ShippingAddress
	payload := orderPayload{
		ID:            o.ID,
		UserID:        o.UserID,
		Items:         make([]orderLinePayload, 0, len(o.Lines)),
		TotalPrice:    o.TotalPrice,
		PaymentMethod: o.PaymentMethod,
		AddressID:     string(o.AddressID),
		ShippingAddress: addressSnapshotPayload{
			Name:        s.Name,
			Phone:       s.Phone,
			AltPhone:    s.AltPhone,
			Pincode:     s.Pincode,
			Locality:    s.Locality,
			Address:     s.Line,
			State:       s.State,
			Landmark:    s.Landmark,
			AddressType: s.Kind,
		},
		PlacedAt: o.PlacedAt,
	}
	for _, line := range o.Lines {
		payload.Items = append(payload.Items, orderLinePayload{
			ProductID: string(line.ProductID),
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: line.LineTotal,
		})
	}
	return payload
}

func newOrderViewPayload(v domain.OrderView) orderPayload {
	payload := newOrderPayload(v.Order)
	for i, line := range v.Lines {
		if i >= len(payload.Items) {
			break
		}
		payload.Items[i].Product = newProductPayload(line.Product)
		payload.Items[i].Unresolved = newUnresolvedPayload(line.Unresolved)
	}
	if v.CurrentAddress != nil {
		current := remote.NewAddressPayload(*v.CurrentAddress)
		payload.CurrentAddress = &current
	}
	payload.AddressUnresolved = newUnresolvedPayload(v.AddressUnresolved)
	return payload
}

type orderHistoryPayload struct {
	Orders   []orderPayload `json:"orders"`
	Degraded []string       `json:"degraded"`
}

func newOrderHistoryPayload(h domain.OrderHistory) orderHistoryPayload {
	payload := orderHistoryPayload{
		Orders:   make([]orderPayload, 0, len(h.Orders)),
		Degraded: degradedNames(h.Degraded),
	}
	for _, view := range h.Orders {
		payload.Orders = append(payload.Orders, newOrderViewPayload(view))
	}
	return payload
}

type addressPayload struct {
	remote.AddressPayload
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newAddressPayload(a domain.Address) addressPayload {
	return addressPayload{
		AddressPayload: remote.NewAddressPayload(a),
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}
