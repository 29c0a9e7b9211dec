package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryString(t *testing.T) {
	tests := []struct {
		category Category
		want     string
	}{
		{CategoryPermanent, "permanent"},
		{CategoryTransient, "transient"},
		{CategoryConfiguration, "configuration"},
		{CategoryResolution, "resolution"},
		{CategoryTransmission, "transmission"},
		{Category(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.category.String())
		})
	}
}

func TestCategorize(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"nil", nil, CategoryPermanent},
		{"plain", base, CategoryPermanent},
		{"transient", Transient(base, "publish"), CategoryTransient},
		{"configuration", Configuration("receiverId", "must not be empty"), CategoryConfiguration},
		{"wrapped configuration", fmt.Errorf("setup: %w", Configuration("", "bad")), CategoryConfiguration},
		{"resolution", &ResolutionError{Kind: "transmitter", Type: "smtp"}, CategoryResolution},
		{"transmission", &TransmissionError{Transport: "redis", Destination: "orders", Err: base}, CategoryTransmission},
		{"transmission of transient", &TransmissionError{Transport: "redis", Destination: "orders", Err: Transient(base, "publish")}, CategoryTransient},
		{"aggregate of transients", &AggregateError{Errs: []error{Transient(base, "x")}}, CategoryTransmission},
		{"transmission of timeout", &TransmissionError{Transport: "local", Destination: "orders", Err: &TimeoutError{Err: context.DeadlineExceeded}}, CategoryTransient},
		{"timeout", &TimeoutError{Operation: "publish to orders", Duration: time.Second}, CategoryTransient},
		{"deadline", context.DeadlineExceeded, CategoryTransient},
		{"canceled", context.Canceled, CategoryPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Categorize(tt.err))
		})
	}
}

func TestHelperFunctions(t *testing.T) {
	assert.True(t, IsRetryable(Transient(errors.New("x"), "")))
	assert.False(t, IsRetryable(errors.New("x")))
	assert.True(t, IsConfiguration(Configuration("f", "bad")))
	assert.True(t, IsResolution(&ResolutionError{Kind: "receiver", Type: "t"}))
}

func TestErrorMessages(t *testing.T) {
	cause := errors.New("connection refused")

	assert.Equal(t, "configuration error on receiverId: must not be empty",
		Configuration("receiverId", "must not be empty").Error())
	assert.Equal(t, "configuration error: nope", Configuration("", "nope").Error())
	assert.Equal(t, `resolve transmitter "smtp": not registered`,
		(&ResolutionError{Kind: "transmitter", Type: "smtp"}).Error())
	assert.Equal(t, `resolve receiver "queue": connection refused`,
		(&ResolutionError{Kind: "receiver", Type: "queue", Err: cause}).Error())
	assert.Equal(t, "redis transmit to orders: connection refused",
		(&TransmissionError{Transport: "redis", Destination: "orders", Err: cause}).Error())
	assert.Equal(t, "publish to orders: timeout after 1.5s",
		(&TimeoutError{Operation: "publish to orders", Duration: 1500 * time.Millisecond}).Error())
	assert.Equal(t, "publish: connection refused (category: transient, attempts: 0)",
		Transient(cause, "publish").Error())
	assert.Equal(t, "receiver r1 panicked: oops",
		(&PanicError{ReceiverID: "r1", Value: "oops"}).Error())
}

func TestAggregateError(t *testing.T) {
	errA := errors.New("a failed")
	errB := &TransmissionError{Transport: "outbox", Destination: "B", Err: errors.New("b failed")}

	agg := &AggregateError{Errs: []error{errA, errB}}

	assert.Equal(t, "all 2 transmissions failed: a failed; outbox transmit to B: b failed", agg.Error())
	assert.ErrorIs(t, agg, errA)

	var txErr *TransmissionError
	require.ErrorAs(t, agg, &txErr)
	assert.Equal(t, "B", txErr.Destination)
	assert.Equal(t, []error{errA, errB}, agg.Unwrap())
}

func TestWithRetryContext(t *testing.T) {
	fast := RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2,
	}

	t.Run("succeeds first try", func(t *testing.T) {
		result := WithRetryContext(context.Background(), fast, func(context.Context) (int, error) {
			return 42, nil
		})
		require.NoError(t, result.Err)
		assert.Equal(t, 42, result.Value)
		assert.Equal(t, 1, result.Attempts)
	})

	t.Run("retries transient errors", func(t *testing.T) {
		calls := 0
		result := WithRetryContext(context.Background(), fast, func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", Transient(errors.New("flaky"), "publish")
			}
			return "ok", nil
		})
		require.NoError(t, result.Err)
		assert.Equal(t, "ok", result.Value)
		assert.Equal(t, 3, result.Attempts)
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		permanent := errors.New("bad payload")
		calls := 0
		result := WithRetryContext(context.Background(), fast, func(context.Context) (int, error) {
			calls++
			return 0, permanent
		})
		assert.ErrorIs(t, result.Err, permanent)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		flaky := errors.New("flaky")
		result := WithRetryContext(context.Background(), fast, func(context.Context) (int, error) {
			return 0, Transient(flaky, "publish")
		})
		assert.ErrorIs(t, result.Err, flaky)
		assert.Equal(t, 3, result.Attempts)
		assert.Equal(t, CategoryPermanent, Categorize(result.Err))
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		result := WithRetryContext(ctx, fast, func(context.Context) (int, error) {
			calls++
			return 0, nil
		})
		assert.ErrorIs(t, result.Err, context.Canceled)
		assert.Equal(t, 0, calls)
	})

	t.Run("custom retryable func", func(t *testing.T) {
		cfg := fast
		cfg.RetryableFunc = func(error) bool { return true }
		calls := 0
		result := WithRetryContext(context.Background(), cfg, func(context.Context) (int, error) {
			calls++
			return 0, errors.New("always")
		})
		require.Error(t, result.Err)
		assert.Equal(t, 3, calls)
	})
}
