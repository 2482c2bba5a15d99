package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/shopmesh/api/internal/platform/config"
)

const (
	// ServiceAudience is the audience every service token is minted for.
	ServiceAudience = "shopmesh-internal"

	defaultServiceTokenTTL = 5 * time.Minute
	minServiceSecretLength = 32
)

var (
	// ErrServiceSecretMissing indicates service tokens were requested without a signing secret.
	ErrServiceSecretMissing = errors.New("auth: service token signing secret is not configured")
	// ErrServiceTokenInvalid indicates a service token failed verification.
	ErrServiceTokenInvalid = errors.New("auth: service token invalid")
)

// ServiceTokenIssuer mints short-lived HS256 tokens that authenticate this process to peer
// services. Tokens are cached and re-minted once a fifth of their lifetime remains.
type ServiceTokenIssuer struct {
	secret  []byte
	issuer  string
	subject string
	ttl     time.Duration
	now     func() time.Time

	mu      sync.Mutex
	cached  string
	expires time.Time
}

// NewServiceTokenIssuer constructs an issuer signing as subject.
func NewServiceTokenIssuer(cfg config.ServiceAuthConfig, subject string) (*ServiceTokenIssuer, error) {
	secret := strings.TrimSpace(cfg.SigningSecret)
	if secret == "" {
		return nil, ErrServiceSecretMissing
	}
	if len(secret) < minServiceSecretLength {
		return nil, fmt.Errorf("auth: service token secret must be at least %d bytes", minServiceSecretLength)
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultServiceTokenTTL
	}
	return &ServiceTokenIssuer{
		secret:  []byte(secret),
		issuer:  strings.TrimSpace(cfg.Issuer),
		subject: strings.TrimSpace(subject),
		ttl:     ttl,
		now:     time.Now,
	}, nil
}

// Token returns a valid bearer token, minting a new one when the cached token is close to expiry.
func (i *ServiceTokenIssuer) Token() (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.now()
	if i.cached != "" && now.Before(i.expires.Add(-i.ttl/5)) {
		return i.cached, nil
	}

	expires := now.Add(i.ttl)
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Issuer:    i.issuer,
		Subject:   i.subject,
		Audience:  jwt.ClaimStrings{ServiceAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now.Add(-5 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign service token: %w", err)
	}
	i.cached = signed
	i.expires = expires
	return signed, nil
}

// ServiceTokenVerifier validates tokens minted by ServiceTokenIssuer instances sharing the secret.
type ServiceTokenVerifier struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewServiceTokenVerifier constructs a verifier. An empty issuer accepts any issuer.
func NewServiceTokenVerifier(cfg config.ServiceAuthConfig) (*ServiceTokenVerifier, error) {
	secret := strings.TrimSpace(cfg.SigningSecret)
	if secret == "" {
		return nil, ErrServiceSecretMissing
	}
	return &ServiceTokenVerifier{
		secret: []byte(secret),
		issuer: strings.TrimSpace(cfg.Issuer),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}, nil
}

// Verify parses the token and returns its subject.
func (v *ServiceTokenVerifier) Verify(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrServiceTokenInvalid, err)
	}
	if !claims.VerifyAudience(ServiceAudience, true) {
		return "", fmt.Errorf("%w: unexpected audience", ErrServiceTokenInvalid)
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return "", fmt.Errorf("%w: unexpected issuer", ErrServiceTokenInvalid)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", fmt.Errorf("%w: missing subject", ErrServiceTokenInvalid)
	}
	return claims.Subject, nil
}

// RequireServiceToken rejects requests without a valid service bearer token and stores a
// service identity in the request context.
func (v *ServiceTokenVerifier) RequireServiceToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			unauthorized(w, r, "unauthenticated", "service token missing")
			return
		}
		if v == nil {
			unauthorized(w, r, "unauthenticated", "service authentication unavailable")
			return
		}
		subject, err := v.Verify(token)
		if err != nil {
			unauthorized(w, r, "invalid_token", "service token invalid")
			return
		}
		identity := &Identity{UID: subject, Service: true}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}
