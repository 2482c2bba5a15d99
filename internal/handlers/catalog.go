package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shopmesh/api/internal/domain"
	"github.com/shopmesh/api/internal/platform/httpx"
	"github.com/shopmesh/api/internal/platform/remote"
	"github.com/shopmesh/api/internal/services"
)

// CatalogHandlers exposes anonymous catalog browsing.
type CatalogHandlers struct {
	catalog services.CatalogService
}

func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes wires the /catalog endpoints onto the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	r.Get("/products", h.list)
	r.Get("/products/{productID}", h.get)
}

func (h *CatalogHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}

	entries, err := h.catalog.ListProducts(ctx, strings.TrimSpace(r.URL.Query().Get("category")))
	if err != nil {
		writeServiceError(ctx, w, err, "product")
		return
	}
	payload := make([]remote.CatalogEntryPayload, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, remote.NewCatalogEntryPayload(entry))
	}
	w.Header().Set("Cache-Control", "public, max-age=60")
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"products": payload})
}

func (h *CatalogHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}

	entry, err := h.catalog.GetProduct(ctx, domain.ProductID(strings.TrimSpace(chi.URLParam(r, "productID"))))
	if err != nil {
		writeServiceError(ctx, w, err, "product")
		return
	}
	w.Header().Set("Cache-Control", "public, max-age=60")
	httpx.WriteJSON(w, http.StatusOK, remote.NewCatalogEntryPayload(entry))
}
