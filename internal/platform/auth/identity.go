package auth

import (
	"context"

	firebaseauth "firebase.google.com/go/v4/auth"
)

// Identity captures the authenticated principal of a request. End users are authenticated
// with Firebase ID tokens; peer services with signed service tokens.
type Identity struct {
	UID     string
	Email   string
	Service bool

	token *firebaseauth.Token
}

// Token exposes the decoded Firebase ID token, or nil for service identities.
func (i *Identity) Token() *firebaseauth.Token {
	if i == nil {
		return nil
	}
	return i.token
}

// IsService reports whether the identity belongs to a peer service rather than a user.
func (i *Identity) IsService() bool {
	return i != nil && i.Service
}

type contextKey string

const identityContextKey contextKey = "github.com/shopmesh/api/internal/platform/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}
