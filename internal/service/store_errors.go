package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"iter"
	"time"

	"github.com/lib/pq"
	"github.com/sethvargo/go-retry"

	appErrors "github.com/noah-isme/mindcare-booking-api/pkg/errors"
)

const defaultReadRetryBackoff = 200 * time.Millisecond

// BookingOptions tunes the slot registry and booking ledger.
type BookingOptions struct {
	RequestTimeout   time.Duration
	ReadRetryBackoff time.Duration
	SummaryCacheTTL  time.Duration
	Now              func() time.Time
}

func (o BookingOptions) withDefaults() BookingOptions {
	if o.ReadRetryBackoff <= 0 {
		o.ReadRetryBackoff = defaultReadRetryBackoff
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

func (o BookingOptions) context(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.RequestTimeout)
}

// storeError maps a persistence failure onto the error kinds callers see.
func storeError(err error, message string) error {
	var appErr *appErrors.Error
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, context.DeadlineExceeded), isQueryCanceled(err):
		return appErrors.Cause(appErrors.ErrTimeout, err)
	case isTransient(err):
		return appErrors.Cause(appErrors.ErrStoreUnavailable, err)
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
	}
}

// isTransient reports connection-level failures worth one more attempt.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code.Class() == "08":
			return true
		case pqErr.Code == "57P01", pqErr.Code == "53300", pqErr.Code == "40001":
			return true
		}
	}
	return false
}

func isQueryCanceled(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "57014"
}

func readBackoff(d time.Duration) retry.Backoff {
	return retry.WithMaxRetries(1, retry.NewConstant(d))
}

// retryRead runs an idempotent read, retrying once on transient failures.
func retryRead[T any](ctx context.Context, backoff time.Duration, read func(context.Context) (T, error)) (T, error) {
	var out T
	err := retry.Do(ctx, readBackoff(backoff), func(ctx context.Context) error {
		value, err := read(ctx)
		if err != nil {
			if isTransient(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		out = value
		return nil
	})
	return out, err
}

// retrySeq reopens a sequence once when it fails before yielding anything.
// Store errors are mapped before they reach the caller.
func retrySeq[T any](ctx context.Context, backoff time.Duration, open func(context.Context) iter.Seq2[T, error]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		policy := readBackoff(backoff)
		for {
			var failed error
			started := false
			for item, err := range open(ctx) {
				if err != nil && !started && isTransient(err) {
					failed = err
					break
				}
				started = true
				if err != nil {
					yield(zero, storeError(err, "failed to read records"))
					return
				}
				if !yield(item, nil) {
					return
				}
			}
			if failed == nil {
				return
			}

			delay, stop := policy.Next()
			if stop {
				yield(zero, storeError(failed, "failed to read records"))
				return
			}
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				yield(zero, storeError(ctx.Err(), "failed to read records"))
				return
			case <-timer.C:
			}
		}
	}
}

func errSeq[T any](err error) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		yield(zero, err)
	}
}
