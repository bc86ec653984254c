package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/educore-sync/pkg/errors"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	p := Policy{MaxAttempts: 5, InitialBackoff: 100 * time.Millisecond, MaxBackoff: 350 * time.Millisecond, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 200*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 350*time.Millisecond, p.Backoff(3))
	assert.Equal(t, 350*time.Millisecond, p.Backoff(40))
}

func TestDoRetriesRemoteUnavailable(t *testing.T) {
	p := Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return appErrors.Clone(appErrors.ErrRemoteUnavailable, "")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	p := Policy{MaxAttempts: 5, InitialBackoff: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return appErrors.Clone(appErrors.ErrNotFound, "")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	p := Policy{MaxAttempts: 2, InitialBackoff: time.Millisecond}
	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return appErrors.Clone(appErrors.ErrRemoteUnavailable, "")
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, appErrors.IsRetryable(err))
}

func TestDoHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 10, InitialBackoff: time.Hour}
	err := p.Do(ctx, func(context.Context) error {
		cancel()
		return appErrors.Clone(appErrors.ErrRemoteUnavailable, "")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
