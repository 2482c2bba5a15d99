package remote

import (
	"strings"

	"github.com/shopmesh/api/internal/domain"
)

// BulkRequest is the body of every internal bulk lookup.
type BulkRequest struct {
	IDs []string `json:"ids"`
}

// CatalogEntryPayload is the wire form of a catalog entry on internal bulk endpoints.
type CatalogEntryPayload struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Category       string            `json:"category,omitempty"`
	Specifications map[string]string `json:"specifications,omitempty"`
	Price          int64             `json:"price"`
	OriginalPrice  int64             `json:"originalPrice,omitempty"`
	Image          string            `json:"image,omitempty"`
}

// NewCatalogEntryPayload converts a catalog entry for transmission.
func NewCatalogEntryPayload(entry domain.CatalogEntry) CatalogEntryPayload {
	return CatalogEntryPayload{
		ID:             string(entry.ID),
		Name:           entry.Name,
		Category:       entry.Category,
		Specifications: entry.Specifications,
		Price:          entry.Price,
		OriginalPrice:  entry.OriginalPrice,
		Image:          entry.ImageURL,
	}
}

// Domain converts the payload back into a catalog entry.
func (p CatalogEntryPayload) Domain() domain.CatalogEntry {
	return domain.CatalogEntry{
		ID:             domain.ProductID(strings.TrimSpace(p.ID)),
		Name:           p.Name,
		Category:       p.Category,
		Specifications: p.Specifications,
		Price:          p.Price,
		OriginalPrice:  p.OriginalPrice,
		ImageURL:       p.Image,
	}
}

// AddressPayload is the wire form of an address on internal bulk endpoints.
type AddressPayload struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
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

// NewAddressPayload converts an address for transmission.
func NewAddressPayload(a domain.Address) AddressPayload {
	return AddressPayload{
		ID:          string(a.ID),
		UserID:      a.UserID,
		Name:        a.Name,
		Phone:       a.Phone,
		AltPhone:    a.AltPhone,
		Pincode:     a.Pincode,
		Locality:    a.Locality,
		Address:     a.Line,
		State:       a.State,
		Landmark:    a.Landmark,
		AddressType: a.Kind,
	}
}

// Domain converts the payload back into an address.
func (p AddressPayload) Domain() domain.Address {
	return domain.Address{
		ID:       domain.AddressID(strings.TrimSpace(p.ID)),
		UserID:   p.UserID,
		Name:     p.Name,
		Phone:    p.Phone,
		AltPhone: p.AltPhone,
		Pincode:  p.Pincode,
		Locality: p.Locality,
		Line:     p.Address,
		State:    p.State,
		Landmark: p.Landmark,
		Kind:     p.AddressType,
	}
}
