package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopmesh/api/internal/platform/auth"
)

var fixedTime = time.Date(2025, time.March, 14, 12, 0, 0, 0, time.UTC)

func newOrderRequest(key, body, uid string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	if uid != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid}))
	}
	return req
}

func TestMiddleware_MissingHeaderPassesThrough(t *testing.T) {
	called := false
	handler := Middleware(NewMemoryStore())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusCreated)
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newOrderRequest("", `{}`, "user-1"))

	if !called || rr.Code != http.StatusCreated {
		t.Fatalf("expected handler to run, called=%v status=%d", called, rr.Code)
	}
}

func TestMiddleware_MissingHeaderRejectedWhenRequired(t *testing.T) {
	handler := Middleware(NewMemoryStore(), WithRequiredKey())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run without a key")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newOrderRequest("", `{}`, "user-1"))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	assertErrorResponse(t, rr.Body.Bytes(), "idempotency_key_required")
}

func TestMiddleware_InvalidKey(t *testing.T) {
	handler := Middleware(NewMemoryStore())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run for an invalid key")
	}))

	for _, key := range []string{"has space", strings.Repeat("k", maxKeyLength+1)} {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, newOrderRequest(key, `{}`, "user-1"))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("key %q: expected 400, got %d", key, rr.Code)
		}
		assertErrorResponse(t, rr.Body.Bytes(), "idempotency_key_invalid")
	}
}

func TestMiddleware_ReplaysStoredResponse(t *testing.T) {
	store := NewMemoryStore()
	var calls int
	handler := Middleware(store, WithClock(func() time.Time { return fixedTime }))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"ord_1"}`))
	}))

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, newOrderRequest("abc-123", `{"addressId":"a1"}`, "user-1"))
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, newOrderRequest("abc-123", `{"addressId":"a1"}`, "user-1"))

	if calls != 1 {
		t.Fatalf("expected handler to run once, got %d", calls)
	}
	if rr2.Code != http.StatusCreated || rr2.Header().Get(replayHeaderName) != "true" {
		t.Fatalf("expected replayed 201, got %d (replay=%q)", rr2.Code, rr2.Header().Get(replayHeaderName))
	}
	if rr2.Header().Get("Content-Type") != "application/json" || rr2.Body.String() != rr1.Body.String() {
		t.Fatalf("replayed response differs: %q vs %q", rr2.Body.String(), rr1.Body.String())
	}
}

func TestMiddleware_KeysAreScopedPerUser(t *testing.T) {
	store := NewMemoryStore()
	var calls int
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), newOrderRequest("shared", `{}`, "user-1"))
	handler.ServeHTTP(httptest.NewRecorder(), newOrderRequest("shared", `{}`, "user-2"))

	if calls != 2 {
		t.Fatalf("expected both users to reach the handler, got %d calls", calls)
	}
	if store.Len() != 2 {
		t.Fatalf("expected two records, got %d", store.Len())
	}
}

func TestMiddleware_ConflictingFingerprintReturnsConflict(t *testing.T) {
	handler := Middleware(NewMemoryStore())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), newOrderRequest("same-key", `{"addressId":"a1"}`, "user-1"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newOrderRequest("same-key", `{"addressId":"a2"}`, "user-1"))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	assertErrorResponse(t, rr.Body.Bytes(), "idempotency_key_conflict")
}

func TestMiddleware_PendingReservationReturnsConflict(t *testing.T) {
	store := NewMemoryStore()
	handler := Middleware(store, WithClock(func() time.Time { return fixedTime }))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run while the key is pending")
	}))

	req := newOrderRequest("pending-key", `{}`, "user-1")
	body, err := readAndReplayBody(req)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	fingerprint := requestFingerprint(req, body, "user-1")
	if _, err := store.Reserve(req.Context(), scopedKey("pending-key", "user-1"), fingerprint, fixedTime, time.Hour); err != nil {
		t.Fatalf("seed reservation: %v", err)
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 409 with Retry-After, got %d", rr.Code)
	}
	assertErrorResponse(t, rr.Body.Bytes(), "idempotency_in_progress")
}

func TestMiddleware_ServerErrorsAreNotStored(t *testing.T) {
	store := NewMemoryStore()
	var calls int
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))

	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, newOrderRequest("retry-key", `{}`, "user-1"))
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, newOrderRequest("retry-key", `{}`, "user-1"))

	if rr1.Code != http.StatusServiceUnavailable || rr2.Code != http.StatusCreated {
		t.Fatalf("expected 503 then 201, got %d then %d", rr1.Code, rr2.Code)
	}
	if calls != 2 {
		t.Fatalf("expected retry to reach the handler, got %d calls", calls)
	}
}

func TestMiddleware_SaveFailureReleasesReservation(t *testing.T) {
	store := &stubStore{failSave: true}
	handler := Middleware(store)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("ok"))
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, newOrderRequest("fail-key", `{}`, "user-1"))

	if rr.Code != http.StatusCreated || rr.Body.String() != "ok" {
		t.Fatalf("expected the handler response to pass through, got %d %q", rr.Code, rr.Body.String())
	}
	if !store.released {
		t.Fatalf("expected reservation to be released")
	}
}

func TestMemoryStore_CleanupExpired(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_, _ = store.Reserve(ctx, "old", "fp", fixedTime.Add(-2*time.Hour), time.Hour)
	_, _ = store.Reserve(ctx, "older", "fp", fixedTime.Add(-3*time.Hour), time.Hour)
	_, _ = store.Reserve(ctx, "fresh", "fp", fixedTime, time.Hour)

	removed, err := store.CleanupExpired(ctx, fixedTime, 1)
	if err != nil || removed != 1 {
		t.Fatalf("expected one removal, got %d (%v)", removed, err)
	}
	if store.Len() != 2 {
		t.Fatalf("expected two records left, got %d", store.Len())
	}
	if removed, _ := store.CleanupExpired(ctx, fixedTime.Add(2*time.Hour), 0); removed != 2 {
		t.Fatalf("expected remaining records to expire, removed %d", removed)
	}
}

func TestMemoryStore_ReleaseIgnoresForeignFingerprint(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	_, _ = store.Reserve(ctx, "k", "fp-1", fixedTime, time.Hour)
	_ = store.Release(ctx, "k", "fp-2")
	if store.Len() != 1 {
		t.Fatalf("release with another fingerprint should keep the record")
	}
}

type stubStore struct {
	failSave bool
	released bool
}

func (s *stubStore) Reserve(context.Context, string, string, time.Time, time.Duration) (Reservation, error) {
	return Reservation{State: ReservationStateNew}, nil
}

func (s *stubStore) SaveResponse(context.Context, string, string, Response, time.Time, time.Duration) error {
	if s.failSave {
		return errors.New("save failed")
	}
	return nil
}

func (s *stubStore) Release(context.Context, string, string) error {
	s.released = true
	return nil
}

func (s *stubStore) CleanupExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func assertErrorResponse(t *testing.T, payload []byte, expected string) {
	t.Helper()

	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		t.Fatalf("failed to decode error payload: %v", err)
	}
	if body.Error != expected {
		t.Fatalf("expected error code %s, got %s", expected, body.Error)
	}
}
