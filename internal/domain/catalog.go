package domain

// CatalogEntry is a product as published by the catalog service. Prices are in minor units.
type CatalogEntry struct {
	ID             ProductID
	Name           string
	Category       string
	Specifications map[string]string
	Price          int64
	OriginalPrice  int64
	ImageURL       string
}
