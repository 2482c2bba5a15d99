package domain

// ProductID identifies a CatalogEntry owned by the catalog service.
type ProductID string

// AddressID identifies an Address owned by the address book.
type AddressID string

// EntityType names a foreign entity kind resolved through a bulk lookup.
type EntityType string

const (
	// EntityCatalogEntry identifies catalog entries keyed by ProductID.
	EntityCatalogEntry EntityType = "catalog_entry"
	// EntityAddress identifies delivery addresses keyed by AddressID.
	EntityAddress EntityType = "address"
)
