package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shopmesh/api/internal/domain"
	"github.com/shopmesh/api/internal/platform/httpx"
	"github.com/shopmesh/api/internal/platform/remote"
	"github.com/shopmesh/api/internal/services"
)

const maxBulkIDs = 500

// InternalHandlers serves the bulk lookup endpoints other services call to resolve
// many ids in one request. Unknown ids are omitted from the response.
type InternalHandlers struct {
	catalog   services.CatalogService
	addresses services.AddressService
}

func NewInternalHandlers(catalog services.CatalogService, addresses services.AddressService) *InternalHandlers {
	return &InternalHandlers{catalog: catalog, addresses: addresses}
}

// Routes wires the /internal endpoints. Service authentication is applied by the router group.
func (h *InternalHandlers) Routes(r chi.Router) {
	r.Post("/catalog/bulk", h.catalogBulk)
	r.Post("/addresses/bulk", h.addressBulk)
}

func decodeBulkRequest(r *http.Request) ([]string, error) {
	var req remote.BulkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	if len(req.IDs) > maxBulkIDs {
		return nil, fmt.Errorf("%w: at most %d ids per request", services.ErrValidation, maxBulkIDs)
	}
	return req.IDs, nil
}

func (h *InternalHandlers) catalogBulk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	raw, err := decodeBulkRequest(r)
	if err != nil {
		writeServiceError(ctx, w, err, "product")
		return
	}

	ids := make([]domain.ProductID, len(raw))
	for i, id := range raw {
		ids[i] = domain.ProductID(id)
	}
	entries, err := h.catalog.BulkLookup(ctx, ids)
	if err != nil {
		writeServiceError(ctx, w, err, "product")
		return
	}
	payload := make([]remote.CatalogEntryPayload, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, remote.NewCatalogEntryPayload(entry))
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}

func (h *InternalHandlers) addressBulk(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.addresses == nil {
		serviceUnavailable(ctx, w, "address")
		return
	}
	raw, err := decodeBulkRequest(r)
	if err != nil {
		writeServiceError(ctx, w, err, "address")
		return
	}

	ids := make([]domain.AddressID, len(raw))
	for i, id := range raw {
		ids[i] = domain.AddressID(id)
	}
	addresses, err := h.addresses.BulkLookup(ctx, ids)
	if err != nil {
		writeServiceError(ctx, w, err, "address")
		return
	}
	payload := make([]remote.AddressPayload, 0, len(addresses))
	for _, a := range addresses {
		payload = append(payload, remote.NewAddressPayload(a))
	}
	httpx.WriteJSON(w, http.StatusOK, payload)
}
