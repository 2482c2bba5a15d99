package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shopmesh/api/internal/domain"
	"github.com/shopmesh/api/internal/platform/auth"
	"github.com/shopmesh/api/internal/platform/httpx"
	"github.com/shopmesh/api/internal/services"
)

// AddressHandlers exposes the authenticated user's address book.
type AddressHandlers struct {
	authn     *auth.Authenticator
	addresses services.AddressService
}

func NewAddressHandlers(authn *auth.Authenticator, addresses services.AddressService) *AddressHandlers {
	return &AddressHandlers{authn: authn, addresses: addresses}
}

// Routes wires the /addresses endpoints onto the provided router.
func (h *AddressHandlers) Routes(r chi.Router) {
	if h.authn != nil {
		r.Use(h.authn.RequireUser)
	}
	r.Get("/", h.list)
	r.Post("/", h.save)
	r.Put("/{addressID}", h.update)
}

type addressRequest struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	AltPhone    string `json:"altPhone"`
	Pincode     string `json:"pincode"`
	Locality    string `json:"locality"`
	Address     string `json:"address"`
	State       string `json:"state"`
	Landmark    string `json:"landmark"`
	AddressType string `json:"addressType"`
}

func (req addressRequest) input() services.AddressInput {
	return services.AddressInput{
		Name:     req.Name,
		Phone:    req.Phone,
		AltPhone: req.AltPhone,
		Pincode:  req.Pincode,
		Locality: req.Locality,
		Line:     req.Address,
		State:    req.State,
		Landmark: req.Landmark,
		Kind:     req.AddressType,
	}
}

func (h *AddressHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.addresses == nil {
		serviceUnavailable(ctx, w, "address")
		return
	}
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	addresses, err := h.addresses.List(ctx, userID)
	if err != nil {
		writeServiceError(ctx, w, err, "address")
		return
	}
	payload := make([]addressPayload, 0, len(addresses))
	for _, a := range addresses {
		payload = append(payload, newAddressPayload(a))
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"addresses": payload})
}

func (h *AddressHandlers) save(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.addresses == nil {
		serviceUnavailable(ctx, w, "address")
		return
	}
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req addressRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeServiceError(ctx, w, err, "address")
		return
	}
	saved, err := h.addresses.Save(ctx, userID, req.input())
	if err != nil {
		writeServiceError(ctx, w, err, "address")
		return
	}
	w.Header().Set("Location", strings.TrimSuffix(r.URL.Path, "/")+"/"+string(saved.ID))
	httpx.WriteJSON(w, http.StatusCreated, newAddressPayload(saved))
}

func (h *AddressHandlers) update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.addresses == nil {
		serviceUnavailable(ctx, w, "address")
		return
	}
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req addressRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		writeServiceError(ctx, w, err, "address")
		return
	}
	addressID := domain.AddressID(strings.TrimSpace(chi.URLParam(r, "addressID")))
	updated, err := h.addresses.Update(ctx, userID, addressID, req.input())
	if err != nil {
		writeServiceError(ctx, w, err, "address")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, newAddressPayload(updated))
}
