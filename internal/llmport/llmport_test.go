package llmport_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edwarddev/tutorcore/internal/llmport"
)

type fakePort struct {
	calls int
	fn    func(call int) (llmport.Response, error)
}

func (f *fakePort) Generate(_ context.Context, _, _ string, _ llmport.Options) (llmport.Response, error) {
	f.calls++
	return f.fn(f.calls)
}

var errTransportFlaky = errors.New("connection refused")

func TestRetryingPortSucceedsAfterTransientFailure(t *testing.T) {
	fake := &fakePort{fn: func(call int) (llmport.Response, error) {
		if call < 2 {
			return llmport.Response{}, errTransportFlaky
		}
		return llmport.Response{Text: "ok"}, nil
	}}
	port := llmport.NewRetryingPort(fake, llmport.Config{
		Timeout: time.Second, MaxRetries: 2, EnableFallback: true, FallbackText: "fallback",
	})

	resp, err := port.Generate(context.Background(), "p", "s", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.False(t, resp.Degraded)
	assert.Equal(t, 2, fake.calls)
}

func TestRetryingPortFallsBackAfterExhaustingRetries(t *testing.T) {
	fake := &fakePort{fn: func(call int) (llmport.Response, error) {
		return llmport.Response{}, errTransportFlaky
	}}
	port := llmport.NewRetryingPort(fake, llmport.Config{
		Timeout: time.Second, MaxRetries: 1, EnableFallback: true, FallbackText: "sorry, unavailable",
	})

	resp, err := port.Generate(context.Background(), "p", "s", nil)
	require.NoError(t, err)
	assert.Equal(t, "sorry, unavailable", resp.Text)
	assert.True(t, resp.Degraded)
	assert.Equal(t, 2, fake.calls) // 1 initial + 1 retry
}

func TestRetryingPortReturnsErrorWhenFallbackDisabled(t *testing.T) {
	fake := &fakePort{fn: func(call int) (llmport.Response, error) {
		return llmport.Response{}, errTransportFlaky
	}}
	port := llmport.NewRetryingPort(fake, llmport.Config{
		Timeout: time.Second, MaxRetries: 0, EnableFallback: false,
	})

	_, err := port.Generate(context.Background(), "p", "s", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, llmport.ErrTransport))
}

func TestRetryingPortNeverRetriesModelMissing(t *testing.T) {
	fake := &fakePort{fn: func(call int) (llmport.Response, error) {
		return llmport.Response{}, llmport.ErrModelMissing
	}}
	port := llmport.NewRetryingPort(fake, llmport.Config{
		Timeout: time.Second, MaxRetries: 3, EnableFallback: true, FallbackText: "fallback",
	})

	_, err := port.Generate(context.Background(), "p", "s", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, llmport.ErrModelMissing))
	assert.Equal(t, 1, fake.calls)
}

func TestIsRetryableClassification(t *testing.T) {
	assert.False(t, llmport.IsRetryable(context.Canceled))
	assert.False(t, llmport.IsRetryable(context.DeadlineExceeded))
	assert.False(t, llmport.IsRetryable(llmport.ErrModelMissing))
	assert.True(t, llmport.IsRetryable(errTransportFlaky))
}
