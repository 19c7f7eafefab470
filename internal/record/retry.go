package record

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/matthewbaird/dirconsole/internal/query"
	"github.com/matthewbaird/dirconsole/internal/schema"
)

// WithReadRetry wraps a Store so that Get and List are repeated up to
// retries more times on a retryable TransportError, waiting exponentially
// longer from interval between attempts. Mutations are never retried.
func WithReadRetry(s Store, retries int, interval time.Duration) Store {
	if retries <= 0 {
		return s
	}
	return &retryStore{Store: s, retries: retries, interval: interval}
}

type retryStore struct {
	Store
	retries  int
	interval time.Duration
}

func (s *retryStore) Get(ctx context.Context, dir *schema.Directory, id string) (*Record, error) {
	var rec *Record
	err := s.do(ctx, func() error {
		var err error
		rec, err = s.Store.Get(ctx, dir, id)
		return err
	})
	return rec, err
}

func (s *retryStore) List(ctx context.Context, dir *schema.Directory, p query.ListParams) (*Page, error) {
	var page *Page
	err := s.do(ctx, func() error {
		var err error
		page, err = s.Store.List(ctx, dir, p)
		return err
	})
	return page, err
}

func (s *retryStore) do(ctx context.Context, fn func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.interval
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.retries)), ctx)

	return backoff.Retry(func() error {
		err := fn()
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b)
}

// IsRetryable reports whether err is a TransportError from an idempotent
// operation.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Retryable()
}
