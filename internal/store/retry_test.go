package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eventagg/aggregator/internal/apperr"
)

func TestIsTransient_ConnectionExceptionCodes(t *testing.T) {
	for _, code := range []string{"08000", "08003", "08006", "08001", "08004", "57P01", "57P02", "57P03"} {
		err := &pgconn.PgError{Code: code}
		assert.True(t, isTransient(err), "code %s should be transient", code)
	}
}

func TestIsTransient_ConstraintViolationNotRetried(t *testing.T) {
	err := &pgconn.PgError{Code: "23505"}
	assert.False(t, isTransient(err))
}

func TestIsTransient_TxClosedNotRetried(t *testing.T) {
	assert.False(t, isTransient(pgx.ErrTxClosed))
}

func TestIsTransient_DeadlineExceededIsRetried(t *testing.T) {
	assert.True(t, isTransient(context.DeadlineExceeded))
}

func TestIsTransient_NilIsNotTransient(t *testing.T) {
	assert.False(t, isTransient(nil))
}

func TestWithRetry_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_NonTransientFailsFast(t *testing.T) {
	calls := 0
	pgErr := &pgconn.PgError{Code: "23505"}
	err := withRetry(context.Background(), func(ctx context.Context) error {
		calls++
		return pgErr
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, apperr.StoreUnavailable, apperr.KindOf(err))
}

func TestWithRetry_RetriesTransientUpToMaxAttempts(t *testing.T) {
	calls := 0
	pgErr := &pgconn.PgError{Code: "08006"}
	start := time.Now()
	err := withRetry(context.Background(), func(ctx context.Context) error {
		calls++
		return pgErr
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, maxAttempts, calls)
	assert.GreaterOrEqual(t, elapsed, baseBackoff+2*baseBackoff)
}

func TestWithRetry_StopsOnContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	pgErr := &pgconn.PgError{Code: "08006"}

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := withRetry(ctx, func(ctx context.Context) error {
		calls++
		return pgErr
	})

	require.Error(t, err)
	assert.Less(t, calls, maxAttempts)
}
