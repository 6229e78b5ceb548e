package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/rstsite/internal/config"
	ferrors "git.home.luguber.info/inful/rstsite/internal/foundation/errors"
)

func TestNewPolicy(t *testing.T) {
	p := NewPolicy(config.RetryBackoffFixed, 5*time.Second, 2*time.Second, 5)
	assert.Equal(t, 2*time.Second, p.Initial, "initial is clamped to max")
	assert.Equal(t, 2*time.Second, p.Max)
	assert.Equal(t, config.RetryBackoffFixed, p.Mode)
	assert.Equal(t, 5, p.MaxRetries)

	assert.Equal(t, DefaultPolicy(), NewPolicy("", 0, 0, 0))
	assert.Equal(t, 0, NewPolicy("", 0, 0, -1).MaxRetries)
	require.NoError(t, DefaultPolicy().Validate())
	assert.Error(t, Policy{}.Validate())
}

func TestFromDeploy(t *testing.T) {
	cfg := config.Default()
	cfg.Deploy.Retries = 4
	cfg.Deploy.RetryBackoff = config.RetryBackoffLinear
	cfg.Deploy.RetryDelay = "1s"
	p := FromDeploy(cfg)
	assert.Equal(t, 4, p.MaxRetries)
	assert.Equal(t, config.RetryBackoffLinear, p.Mode)
	assert.Equal(t, time.Second, p.Initial)
}

func TestDelay(t *testing.T) {
	tests := []struct {
		mode  config.RetryBackoffMode
		delay []time.Duration
	}{
		{config.RetryBackoffFixed, []time.Duration{100, 100, 100, 100}},
		{config.RetryBackoffLinear, []time.Duration{100, 200, 300, 350}},
		{config.RetryBackoffExponential, []time.Duration{100, 200, 350, 350}},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			p := NewPolicy(tt.mode, 100, 350, 3)
			assert.Zero(t, p.Delay(0))
			for i, want := range tt.delay {
				assert.Equal(t, want, p.Delay(i+1), "retry %d", i+1)
			}
		})
	}
	assert.Equal(t, time.Duration(350), NewPolicy(config.RetryBackoffExponential, 100, 350, 3).Delay(64))
}

func TestDo(t *testing.T) {
	transient := ferrors.NetworkError("timeout").Build()
	permanent := ferrors.ValidationError("bad key").Build()
	p := NewPolicy(config.RetryBackoffFixed, time.Millisecond, time.Millisecond, 2)

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls, retries := 0, 0
		err := Do(context.Background(), p, func() error {
			calls++
			if calls < 3 {
				return transient
			}
			return nil
		}, func(int, time.Duration, error) { retries++ })
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, 2, retries)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), p, func() error { calls++; return transient }, nil)
		assert.ErrorIs(t, err, transient)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		calls := 0
		err := Do(context.Background(), p, func() error { calls++; return permanent }, nil)
		assert.ErrorIs(t, err, permanent)
		assert.Equal(t, 1, calls)
	})

	t.Run("plain errors are permanent", func(t *testing.T) {
		assert.False(t, Retryable(errors.New("boom")))
	})

	t.Run("stops when the context is done", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		slow := NewPolicy(config.RetryBackoffFixed, time.Hour, time.Hour, 5)
		calls := 0
		err := Do(ctx, slow, func() error { calls++; return transient }, nil)
		assert.ErrorIs(t, err, transient)
		assert.Equal(t, 1, calls)
	})
}
