package enrichment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/shopmesh/api/internal/domain"
)

var tracer = otel.Tracer("github.com/shopmesh/api/internal/enrichment")

// ErrFetchFailed reports that a bulk lookup failed as a whole.
var ErrFetchFailed = errors.New("enrichment: bulk fetch failed")

// FetchError identifies the entity type whose bulk lookup failed.
type FetchError struct {
	Entity domain.EntityType
	Err    error
}

func (e *FetchError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("enrichment: fetch %s: %v", e.Entity, e.Err)
}

func (e *FetchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches ErrFetchFailed.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailed
}

// Fetcher resolves many identifiers of one entity type in a single call. Identifiers the
// owning service does not know are omitted from the result.
type Fetcher[K ~string, E any] interface {
	FetchMany(ctx context.Context, ids []K) (map[K]E, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc[K ~string, E any] func(ctx context.Context, ids []K) (map[K]E, error)

// FetchMany implements Fetcher.
func (f FetcherFunc[K, E]) FetchMany(ctx context.Context, ids []K) (map[K]E, error) {
	return f(ctx, ids)
}

// Observer receives the outcome of each bulk fetch that reached the network.
type Observer interface {
	ObserveFetch(entity domain.EntityType, requested, resolved int, elapsed time.Duration, err error)
}

// Options tunes a single Fetch.
type Options struct {
	Timeout  time.Duration
	Observer Observer
	Clock    func() time.Time
}

// Lookup is the result of one bulk fetch: resolved entities, or a whole-call failure.
type Lookup[K ~string, E any] struct {
	entity  domain.EntityType
	entries map[K]E
	err     error
}

// NewLookup assembles a Lookup from already-fetched entries.
func NewLookup[K ~string, E any](entity domain.EntityType, entries map[K]E, err error) Lookup[K, E] {
	if err != nil {
		var fetchErr *FetchError
		if !errors.As(err, &fetchErr) {
			err = &FetchError{Entity: entity, Err: err}
		}
		entries = nil
	}
	return Lookup[K, E]{entity: entity, entries: entries, err: err}
}

// Entity returns the entity type the lookup resolved.
func (l Lookup[K, E]) Entity() domain.EntityType {
	return l.entity
}

// Err returns a *FetchError when the lookup failed as a whole.
func (l Lookup[K, E]) Err() error {
	return l.err
}

// Len returns the number of resolved entities.
func (l Lookup[K, E]) Len() int {
	return len(l.entries)
}

// Get returns the entity for id, or a marker describing why it is missing.
func (l Lookup[K, E]) Get(id K) (E, *domain.Unresolved) {
	var zero E
	if l.err != nil {
		return zero, &domain.Unresolved{Type: l.entity, ID: string(id), Reason: domain.UnresolvedFetchFailed}
	}
	entity, ok := l.entries[id]
	if !ok {
		return zero, &domain.Unresolved{Type: l.entity, ID: string(id), Reason: domain.UnresolvedNotFound}
	}
	return entity, nil
}

// Fetch resolves ids with exactly one call to fetcher. An empty set makes no call.
// Errors, including an expired timeout, fail this entity type only.
func Fetch[K ~string, E any](ctx context.Context, entity domain.EntityType, fetcher Fetcher[K, E], ids Set[K], opts Options) Lookup[K, E] {
	if ids.Len() == 0 {
		return Lookup[K, E]{entity: entity, entries: map[K]E{}}
	}
	if fetcher == nil {
		return NewLookup[K, E](entity, nil, errors.New("fetcher not configured"))
	}

	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	ctx, span := tracer.Start(ctx, "enrichment.Fetch", trace.WithAttributes(
		attribute.String("entity.type", string(entity)),
		attribute.Int("entity.requested", ids.Len()),
	))
	defer span.End()

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	requested := ids.Sorted()
	started := now()
	found, err := fetcher.FetchMany(ctx, requested)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	elapsed := now().Sub(started)

	var entries map[K]E
	if err == nil {
		entries = make(map[K]E, len(found))
		for id, value := range found {
			if ids.Has(id) {
				entries[id] = value
			}
		}
		span.SetAttributes(attribute.Int("entity.resolved", len(entries)))
	} else {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bulk fetch failed")
	}

	if opts.Observer != nil {
		opts.Observer.ObserveFetch(entity, len(requested), len(entries), elapsed, err)
	}

	return NewLookup(entity, entries, err)
}

// FetchPair runs two independent lookups concurrently and returns once both finish.
// A failure in one does not cancel the other.
func FetchPair[K1 ~string, E1 any, K2 ~string, E2 any](
	ctx context.Context,
	first func(context.Context) Lookup[K1, E1],
	second func(context.Context) Lookup[K2, E2],
) (Lookup[K1, E1], Lookup[K2, E2]) {
	var (
		a Lookup[K1, E1]
		b Lookup[K2, E2]
		g errgroup.Group
	)
	g.Go(func() error {
		a = first(ctx)
		return nil
	})
	g.Go(func() error {
		b = second(ctx)
		return nil
	})
	_ = g.Wait()
	return a, b
}
