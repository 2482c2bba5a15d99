package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/shopmesh/api/internal/domain"
	"github.com/shopmesh/api/internal/enrichment"
)

const (
	// CatalogBulkPath is the catalog service's bulk lookup endpoint.
	CatalogBulkPath = "/internal/catalog/bulk"
	// AddressBulkPath is the address service's bulk lookup endpoint.
	AddressBulkPath = "/internal/addresses/bulk"

	defaultMaxAttempts = 2
	maxResponseBytes   = 4 << 20
	requestIDHeader    = "X-Request-ID"
)

var tracer = otel.Tracer("github.com/shopmesh/api/internal/platform/remote")

// TokenSource supplies bearer tokens for outbound requests.
type TokenSource interface {
	Token() (string, error)
}

// StatusError reports a non-2xx response from a peer service.
type StatusError struct {
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote: %s returned %d: %s", e.Path, e.Status, e.Body)
}

func (e *StatusError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= http.StatusInternalServerError
}

// Client issues bulk lookups against a peer service. It never retries past the caller's deadline.
type Client struct {
	base        *url.URL
	http        *http.Client
	tokens      TokenSource
	logger      *zap.Logger
	maxAttempts int
	backoff     gax.Backoff
}

// Option customises the Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.http = client
		}
	}
}

// WithTokenSource attaches a bearer token to every request.
func WithTokenSource(tokens TokenSource) Option {
	return func(c *Client) {
		c.tokens = tokens
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMaxAttempts bounds attempts for retryable failures. One disables retries.
func WithMaxAttempts(attempts int) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.maxAttempts = attempts
		}
	}
}

// NewClient constructs a client for the service rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("remote: parse base url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("remote: base url %q must be http or https", baseURL)
	}
	c := &Client{
		base:        parsed,
		http:        &http.Client{Timeout: 10 * time.Second},
		logger:      zap.NewNop(),
		maxAttempts: defaultMaxAttempts,
		backoff: gax.Backoff{
			Initial:    50 * time.Millisecond,
			Max:        500 * time.Millisecond,
			Multiplier: 2,
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// BulkLookup posts ids to path and decodes the JSON array response into out.
func (c *Client) BulkLookup(ctx context.Context, path string, ids []string, out any) error {
	body, err := json.Marshal(BulkRequest{IDs: ids})
	if err != nil {
		return fmt.Errorf("remote: encode request: %w", err)
	}

	ctx, span := tracer.Start(ctx, "remote.BulkLookup", trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(
		attribute.String("http.route", path),
		attribute.Int("remote.ids", len(ids)),
	))
	defer span.End()

	backoff := c.backoff
	for attempt := 1; ; attempt++ {
		err = c.do(ctx, path, body, out)
		if err == nil {
			return nil
		}
		if attempt >= c.maxAttempts || !isRetryable(err) {
			break
		}
		pause := backoff.Pause()
		c.logger.Debug("remote bulk lookup retry",
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Duration("pause", pause),
			zap.Error(err),
		)
		if sleepErr := gax.Sleep(ctx, pause); sleepErr != nil {
			err = sleepErr
			break
		}
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "bulk lookup failed")
	return err
}

func (c *Client) do(ctx context.Context, path string, body []byte, out any) error {
	endpoint := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("remote: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	requestID := middleware.GetReqID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	req.Header.Set(requestIDHeader, requestID)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return fmt.Errorf("remote: service token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %s: %w", path, err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, maxResponseBytes)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(limited, 512))
		return &StatusError{Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if err := json.NewDecoder(limited).Decode(out); err != nil {
		return fmt.Errorf("remote: decode %s response: %w", path, err)
	}
	return nil
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.retryable()
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// CatalogFetcher resolves catalog entries through the catalog service's bulk endpoint.
func CatalogFetcher(c *Client) enrichment.Fetcher[domain.ProductID, domain.CatalogEntry] {
	return enrichment.FetcherFunc[domain.ProductID, domain.CatalogEntry](func(ctx context.Context, ids []domain.ProductID) (map[domain.ProductID]domain.CatalogEntry, error) {
		var payload []CatalogEntryPayload
		if err := c.BulkLookup(ctx, CatalogBulkPath, toStrings(ids), &payload); err != nil {
			return nil, err
		}
		out := make(map[domain.ProductID]domain.CatalogEntry, len(payload))
		for _, item := range payload {
			entry := item.Domain()
			if entry.ID != "" {
				out[entry.ID] = entry
			}
		}
		return out, nil
	})
}

// AddressFetcher resolves addresses through the address service's bulk endpoint.
func AddressFetcher(c *Client) enrichment.Fetcher[domain.AddressID, domain.Address] {
	return enrichment.FetcherFunc[domain.AddressID, domain.Address](func(ctx context.Context, ids []domain.AddressID) (map[domain.AddressID]domain.Address, error) {
		var payload []AddressPayload
		if err := c.BulkLookup(ctx, AddressBulkPath, toStrings(ids), &payload); err != nil {
			return nil, err
		}
		out := make(map[domain.AddressID]domain.Address, len(payload))
		for _, item := range payload {
			address := item.Domain()
			if address.ID != "" {
				out[address.ID] = address
			}
		}
		return out, nil
	})
}

// Ping checks the peer's liveness endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.JoinPath("/healthz").String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Path: "/healthz", Status: resp.StatusCode}
	}
	return nil
}

func toStrings[K ~string](ids []K) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
