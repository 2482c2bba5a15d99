package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
)

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Quantity int `json:"quantity"`
	}

	cases := []struct {
		name    string
		body    string
		ctype   string
		wantErr bool
	}{
		{name: "valid", body: `{"quantity":2}`, ctype: "application/json"},
		{name: "empty", body: ``, ctype: "application/json", wantErr: true},
		{name: "unknown field", body: `{"qty":2}`, ctype: "application/json", wantErr: true},
		{name: "trailing", body: `{"quantity":2}{}`, ctype: "application/json", wantErr: true},
		{name: "wrong content type", body: `{"quantity":2}`, ctype: "text/plain", wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", tc.ctype)
			var dst payload
			err := DecodeJSON(req, &dst)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidBody) {
					t.Fatalf("expected ErrInvalidBody, got %v", err)
				}
				return
			}
			if err != nil || dst.Quantity != 2 {
				t.Fatalf("unexpected result %+v, %v", dst, err)
			}
		})
	}
}

func TestWriteErrorIncludesRequestID(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-1")
	rr := httptest.NewRecorder()

	WriteError(ctx, rr, NewError("basket_item_not_found", "item not in basket\n", http.StatusNotFound))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["requestId"] != "req-1" || body["message"] != "item not in basket" || body["status"] != float64(http.StatusNotFound) {
		t.Fatalf("unexpected body %v", body)
	}
	if _, ok := body["retryable"]; ok {
		t.Fatalf("retryable must be omitted for permanent failures")
	}
	if _, ok := body["traceId"]; ok {
		t.Fatalf("traceId must be omitted without a trace")
	}
}

func TestWriteErrorRetryable(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(context.Background(), rr, NewError("catalog_unavailable", "retry later", http.StatusServiceUnavailable).AsRetryable())

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["retryable"] != true {
		t.Fatalf("expected retryable flag, got %v", body)
	}
}
