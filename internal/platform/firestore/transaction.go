package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
)

// TxFunc runs inside a Firestore transaction and is replayed on contention, so it must not
// have side effects outside tx.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// TxOption tunes a single RunTransaction call.
type TxOption func(*txSettings)

type txSettings struct {
	attempts int
	budget   time.Duration
}

// WithTxAttempts sets how many times contended commits are retried.
func WithTxAttempts(n int) TxOption {
	return func(s *txSettings) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WithTxTimeout bounds the whole transaction including retries. A tighter caller deadline wins.
func WithTxTimeout(d time.Duration) TxOption {
	return func(s *txSettings) {
		if d > 0 {
			s.budget = d
		}
	}
}

// RunTransaction executes fn in a transaction on the provider's client.
func (p *Provider) RunTransaction(ctx context.Context, fn TxFunc, opts ...TxOption) error {
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}

	settings := txSettings{attempts: 5, budget: 10 * time.Second}
	for _, opt := range opts {
		opt(&settings)
	}
	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > settings.budget {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, settings.budget)
		defer cancel()
	}

	err = client.RunTransaction(ctx, fn, firestore.MaxAttempts(settings.attempts))
	return WrapError("transaction", err)
}
