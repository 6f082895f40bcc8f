package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), time.Second, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	sentinel := errors.New("not found")
	calls := 0
	err := Do(context.Background(), time.Second, func() error {
		calls++
		return Permanent(sentinel)
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 1, calls)
}

func TestDo_GivesUpAfterBudget(t *testing.T) {
	boom := errors.New("boom")
	err := Do(context.Background(), 150*time.Millisecond, func() error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, time.Second, func() error {
		calls++
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, calls)
}

func TestDo_ZeroBudgetIsSingleAttempt(t *testing.T) {
	for _, budget := range []time.Duration{0, -time.Second} {
		boom := errors.New("boom")
		calls := 0
		err := Do(context.Background(), budget, func() error {
			calls++
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls, "budget %v", budget)
	}
}

func TestDo_ConstraintViolationIsNotRetried(t *testing.T) {
	violation := &pgconn.PgError{Code: "23514", Message: "violates check constraint"}
	calls := 0
	err := Do(context.Background(), time.Second, func() error {
		calls++
		return fmt.Errorf("upsert: %w", violation)
	})
	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, "23514", pgErr.Code)
	assert.Equal(t, 1, calls)
}
