package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	"go.uber.org/zap"

	"github.com/shopmesh/api/internal/platform/httpx"
	"github.com/shopmesh/api/internal/platform/observability"
	"github.com/shopmesh/api/internal/platform/requestctx"
)

const (
	emailClaim           = "email"
	defaultVerifyTimeout = 5 * time.Second
	bearerChallenge      = `Bearer realm="shopmesh"`
)

var (
	// ErrTokenExpired signals that the presented ID token has expired.
	ErrTokenExpired = errors.New("auth: firebase id token expired")
	// ErrTokenInvalid covers every other rejection of an ID token.
	ErrTokenInvalid = errors.New("auth: firebase id token invalid")
)

// TokenVerifier verifies shopper ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator resolves the shopper behind a request. Every basket, address and order
// route is scoped to the uid it places on the context.
type Authenticator struct {
	verifier TokenVerifier
}

// NewAuthenticator returns an Authenticator backed by verifier.
func NewAuthenticator(verifier TokenVerifier) *Authenticator {
	return &Authenticator{verifier: verifier}
}

// RequireUser rejects requests without a valid bearer ID token and stores the shopper
// Identity on the request context.
func (a *Authenticator) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			unauthorized(w, r, "unauthenticated", "authorization header missing or invalid")
			return
		}
		if a == nil || a.verifier == nil {
			httpx.WriteError(r.Context(), w, httpx.NewError("authentication_unavailable", "authentication is not configured", http.StatusServiceUnavailable))
			return
		}

		token, err := a.verifier.VerifyIDToken(r.Context(), raw)
		if err != nil {
			rejectToken(w, r, err)
			return
		}
		uid := strings.TrimSpace(token.UID)
		if uid == "" {
			unauthorized(w, r, "invalid_token", "token has no subject")
			return
		}

		identity := &Identity{UID: uid, token: token}
		if email, ok := token.Claims[emailClaim].(string); ok {
			identity.Email = strings.TrimSpace(email)
		}

		ctx := WithIdentity(r.Context(), identity)
		ctx = requestctx.AddFields(ctx, zap.String("userId", observability.SanitizeUserID(uid)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, r *http.Request, code, message string) {
	w.Header().Set("WWW-Authenticate", bearerChallenge)
	httpx.WriteError(r.Context(), w, httpx.NewError(code, message, http.StatusUnauthorized))
}

func rejectToken(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		requestctx.Logger(r.Context()).Warn("id token verification interrupted", zap.Error(err))
		httpx.WriteError(r.Context(), w, httpx.NewError("authentication_unavailable", "token verification timed out", http.StatusServiceUnavailable))
	case errors.Is(err, ErrTokenExpired):
		unauthorized(w, r, "token_expired", "id token expired")
	default:
		unauthorized(w, r, "invalid_token", "id token invalid")
	}
}
