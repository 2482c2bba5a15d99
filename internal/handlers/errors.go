package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/shopmesh/api/internal/platform/auth"
	"github.com/shopmesh/api/internal/platform/httpx"
	"github.com/shopmesh/api/internal/platform/requestctx"
	"github.com/shopmesh/api/internal/services"
)

// writeServiceError maps service error kinds onto HTTP statuses. resource names the
// thing a NotFound refers to, e.g. "order".
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error, resource string) {
	var apiErr httpx.Error
	switch {
	case errors.Is(err, httpx.ErrInvalidBody):
		apiErr = httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrValidation):
		apiErr = httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrItemNotFound):
		apiErr = httpx.NewError("basket_item_not_found", err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrNotFound):
		apiErr = httpx.NewError(resource+"_not_found", resource+" not found", http.StatusNotFound)
	case errors.Is(err, services.ErrEmptyBasket):
		apiErr = httpx.NewError("basket_empty", "basket is empty", http.StatusConflict)
	case errors.Is(err, services.ErrConflict):
		apiErr = httpx.NewError("conflict", err.Error(), http.StatusConflict)
	case errors.Is(err, services.ErrInvalidAddress):
		apiErr = httpx.NewError("invalid_address", err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, services.ErrCatalogUnavailable):
		apiErr = httpx.NewError("catalog_unavailable", "catalog is unavailable; retry later", http.StatusServiceUnavailable)
	case errors.Is(err, services.ErrDependency):
		apiErr = httpx.NewError("dependency_unavailable", "a dependency is unavailable; retry later", http.StatusServiceUnavailable)
	case errors.Is(err, services.ErrFetchFailed):
		apiErr = httpx.NewError("upstream_failed", "an upstream lookup failed", http.StatusBadGateway)
	case errors.Is(err, context.DeadlineExceeded):
		apiErr = httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout)
	default:
		apiErr = httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError)
	}

	switch apiErr.Status {
	case http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		apiErr = apiErr.AsRetryable()
	}
	if apiErr.Status >= http.StatusInternalServerError {
		requestctx.Logger(ctx).Error("request failed", zap.String("code", apiErr.Code), zap.Error(err))
	}
	httpx.WriteError(ctx, w, apiErr)
}

// requireUserID returns the authenticated user's id or writes 401.
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || identity == nil || identity.IsService() || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return identity.UID, true
}

func serviceUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(name+"_service_unavailable", name+" service is unavailable", http.StatusServiceUnavailable).AsRetryable())
}
