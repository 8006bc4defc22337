package imagegen

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 2, Backoff: time.Millisecond}
}

func TestDoSuccess(t *testing.T) {
	callCount := 0

	result, err := Do(context.Background(), fastPolicy(), func() (string, error) {
		callCount++
		return "ok", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, callCount)
}

func TestDoRetriesOnceOnRateLimit(t *testing.T) {
	callCount := 0

	result, err := Do(context.Background(), fastPolicy(), func() (string, error) {
		callCount++
		if callCount == 1 {
			return "", newStatusError("gemini", 429, "quota exceeded", nil)
		}
		return "ok", nil
	})

	assert.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 2, callCount)
}

func TestDoStopsAfterMaxAttempts(t *testing.T) {
	callCount := 0

	_, err := Do(context.Background(), fastPolicy(), func() (string, error) {
		callCount++
		return "", newStatusError("gemini", 503, "overloaded", nil)
	})

	var pe *Error
	assert.True(t, errors.As(err, &pe))
	assert.Equal(t, 503, pe.StatusCode)
	assert.Equal(t, 2, callCount)
}

func TestDoNoRetryOnPermanentError(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"bad request", newStatusError("gemini", 400, "bad prompt", nil)},
		{"server error", newStatusError("gemini", 500, "internal", nil)},
		{"plain error", errors.New("boom")},
		{"timeout", &Error{Kind: KindTimeout, Provider: "gemini"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			callCount := 0
			_, err := Do(context.Background(), fastPolicy(), func() (string, error) {
				callCount++
				return "", tt.err
			})

			assert.Error(t, err)
			assert.Equal(t, 1, callCount)
		})
	}
}

func TestDoStopsWaitingWhenContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	callCount := 0
	policy := RetryPolicy{MaxAttempts: 2, Backoff: time.Hour}
	_, err := Do(ctx, policy, func() (string, error) {
		callCount++
		return "", newStatusError("gemini", 429, "", nil)
	})

	assert.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, 1, callCount)
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "first line", userMessage("  first line\nsecond line"))

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	assert.Len(t, userMessage(string(long)), maxMessageLength+3)
}
