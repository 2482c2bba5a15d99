package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"
)

type stubTokenVerifier struct {
	token    *firebaseauth.Token
	err      error
	received string
}

func (s *stubTokenVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	s.received = idToken
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func TestRequireUser_AllowsValidToken(t *testing.T) {
	verifier := &stubTokenVerifier{
		token: &firebaseauth.Token{
			UID: "uid-123",
			Claims: map[string]interface{}{
				"email": " user@example.com ",
			},
		},
	}
	authn := NewAuthenticator(verifier)

	handlerCalled := false
	handler := authn.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if identity.UID != "uid-123" || identity.Email != "user@example.com" {
			t.Fatalf("unexpected identity %+v", identity)
		}
		if identity.IsService() {
			t.Fatalf("user identity must not be flagged as service")
		}
		if identity.Token() != verifier.token {
			t.Fatalf("expected decoded token to be retained")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer token-value")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if !handlerCalled {
		t.Fatalf("expected handler to be called")
	}
	if verifier.received != "token-value" {
		t.Fatalf("expected verifier to receive token-value, got %s", verifier.received)
	}
}

func TestRequireUser_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		verifier *stubTokenVerifier
		wantCode string
	}{
		{name: "missing header", header: "", verifier: &stubTokenVerifier{}, wantCode: "unauthenticated"},
		{name: "wrong scheme", header: "Basic abc", verifier: &stubTokenVerifier{}, wantCode: "unauthenticated"},
		{name: "expired token", header: "Bearer expired", verifier: &stubTokenVerifier{err: ErrTokenExpired}, wantCode: "token_expired"},
		{name: "invalid token", header: "Bearer bad", verifier: &stubTokenVerifier{err: ErrTokenInvalid}, wantCode: "invalid_token"},
		{name: "blank subject", header: "Bearer anon", verifier: &stubTokenVerifier{token: &firebaseauth.Token{}}, wantCode: "invalid_token"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := NewAuthenticator(tc.verifier).RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatalf("handler should not execute")
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rr.Code)
			}
			var body map[string]interface{}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("expected JSON body: %v", err)
			}
			if body["error"] != tc.wantCode {
				t.Fatalf("expected %s error, got %v", tc.wantCode, body["error"])
			}
		})
	}
}

func TestRequireUser_ChallengeHeader(t *testing.T) {
	handler := NewAuthenticator(&stubTokenVerifier{}).RequireUser(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not execute")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if got := rr.Header().Get("WWW-Authenticate"); got != bearerChallenge {
		t.Fatalf("expected bearer challenge, got %q", got)
	}
}

func TestRequireUser_VerifierTimeout(t *testing.T) {
	handler := NewAuthenticator(&stubTokenVerifier{err: context.DeadlineExceeded}).RequireUser(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not execute")
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer slow")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if rr.Header().Get("WWW-Authenticate") != "" {
		t.Fatalf("timeouts must not challenge the client")
	}
}
