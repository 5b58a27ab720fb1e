package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithRateLimit_Disabled(t *testing.T) {
	inner := &countingProvider{resp: testResponse("ok")}
	p := WithRateLimit(inner, 0, 1)
	assert.Same(t, Provider(inner), p)
}

func TestWithRateLimit_AllowsWithinBudget(t *testing.T) {
	inner := &countingProvider{resp: testResponse("ok")}
	p := WithRateLimit(inner, 100, 2)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		resp, err := p.Completion(ctx, testRequest("q"))
		require.NoError(t, err)
		assert.Equal(t, "ok", resp.Text())
	}
}

func TestWithRateLimit_CancelledWait(t *testing.T) {
	inner := &countingProvider{resp: testResponse("ok")}
	// 极低速率：第二次调用必须等待
	p := WithRateLimit(inner, 0.001, 1)

	ctx := context.Background()
	_, err := p.Completion(ctx, testRequest("q"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = p.Completion(ctx, testRequest("q"))
	require.Error(t, err)

	var llmErr *Error
	require.True(t, errors.As(err, &llmErr))
	assert.Equal(t, ErrRateLimited, llmErr.Code)
	assert.Equal(t, int64(1), inner.calls.Load())
}
