// Package retry runs fallible operations under an exponential backoff policy.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dmitrijs2005/preservaudit/internal/dbx"
)

// InitialInterval is the first wait between attempts.
const InitialInterval = 100 * time.Millisecond

// NewExponentialBackoff returns a policy that stops after maxElapsedTime.
// It never stops if maxElapsedTime == 0.
func NewExponentialBackoff(initialInterval time.Duration, maxElapsedTime time.Duration) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = initialInterval
	eb.MaxElapsedTime = maxElapsedTime
	return eb
}

// Do calls fn until it succeeds, returns a permanent error, ctx is done or
// the policy gives up. The last error of fn is returned.
//
// A maxElapsed of zero or less allows a single attempt. Postgres errors that
// dbx.IsPermanent classifies are never retried.
func Do(ctx context.Context, maxElapsed time.Duration, fn func() error) error {
	var policy backoff.BackOff
	if maxElapsed <= 0 {
		policy = backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 0)
	} else {
		policy = NewExponentialBackoff(InitialInterval, maxElapsed)
	}
	policy = backoff.WithContext(policy, ctx)

	err := backoff.Retry(func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		err := fn()
		if dbx.IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
