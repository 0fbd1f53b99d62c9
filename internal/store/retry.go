package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/eventagg/aggregator/internal/apperr"
)

const (
	maxAttempts  = 3
	baseBackoff  = 1 * time.Second
	maxBackoff   = 10 * time.Second
)

// withRetry runs fn up to maxAttempts times, retrying only on errors judged
// transient, with exponential backoff between attempts (1s, then 2s;
// doubling, capped at 10s). A committed transaction is never retried because fn reports its
// outcome through its own return, not through a side channel.
func withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	backoff := baseBackoff
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !isTransient(lastErr) || attempt == maxAttempts {
			break
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return apperr.Wrap(apperr.StoreUnavailable, "store operation cancelled", ctx.Err())
		case <-timer.C:
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return apperr.Wrap(apperr.StoreUnavailable, "store operation failed after retries", lastErr)
}

// isTransient classifies connection-level failures as retryable. Constraint
// violations and other query-shape errors are not retried.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, pgx.ErrTxClosed) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "08000", "08003", "08006", "08001", "08004", "57P01", "57P02", "57P03":
			return true
		default:
			return false
		}
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	return true
}
