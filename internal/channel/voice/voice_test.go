package voice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acme/lead-contact-engine/internal/channel"
	"github.com/acme/lead-contact-engine/internal/config"
	"github.com/acme/lead-contact-engine/internal/domain"
	"github.com/acme/lead-contact-engine/pkg/logger"
)

type providerFunc func(ctx context.Context, call Call) (Result, error)

func (f providerFunc) PlaceCall(ctx context.Context, call Call) (Result, error) { return f(ctx, call) }

func TestAdapterRejectsInvalidNumber(t *testing.T) {
	called := false
	a := NewAdapter(providerFunc(func(context.Context, Call) (Result, error) {
		called = true
		return Result{Answered: true}, nil
	}), "BR", 0, logger.NewNop())

	res, err := a.Send(context.Background(), channel.Message{Lead: domain.Lead{ID: "l1", Phone: "123"}})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, domain.FailureInvalidNumber, res.FailureType)
	assert.False(t, called)
}

func TestAdapterDialsNormalizedNumber(t *testing.T) {
	var got Call
	a := NewAdapter(providerFunc(func(_ context.Context, call Call) (Result, error) {
		got = call
		return Result{FailureType: domain.FailureBusy, Duration: time.Second}, nil
	}), "BR", time.Second, logger.NewNop())

	res, err := a.Send(context.Background(), channel.Message{
		TaskID: "t1",
		Lead:   domain.Lead{ID: "l1", Phone: "+55 11 98765-4321"},
		Body:   "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "+5511987654321", got.Number)
	assert.Equal(t, "hello", got.Script)
	assert.Equal(t, domain.FailureBusy, res.FailureType)
	assert.Equal(t, time.Second, res.Duration)
}

func TestAdapterUnknownFailureBecomesFailure(t *testing.T) {
	a := NewAdapter(providerFunc(func(context.Context, Call) (Result, error) {
		return Result{FailureType: "mystery"}, nil
	}), "BR", 0, logger.NewNop())

	res, err := a.Send(context.Background(), channel.Message{Lead: domain.Lead{Phone: "+5511987654321"}})
	require.NoError(t, err)
	assert.Equal(t, domain.FailureFailure, res.FailureType)
}

func TestSimulatorDeterministic(t *testing.T) {
	cfg := config.VoiceConfig{SuccessRate: 0.5, Seed: 42}
	a, b := NewSimulator(cfg), NewSimulator(cfg)

	for i := 0; i < 20; i++ {
		ra, err := a.PlaceCall(context.Background(), Call{})
		require.NoError(t, err)
		rb, err := b.PlaceCall(context.Background(), Call{})
		require.NoError(t, err)
		assert.Equal(t, ra, rb)
		if !ra.Answered {
			assert.True(t, ra.FailureType.Valid())
		}
	}
}

func TestSimulatorAlwaysAnswers(t *testing.T) {
	sim := NewSimulator(config.VoiceConfig{SuccessRate: 1, Seed: 7})
	res, err := sim.PlaceCall(context.Background(), Call{})
	require.NoError(t, err)
	assert.True(t, res.Answered)
}

func TestSimulatorHonoursCancellation(t *testing.T) {
	sim := NewSimulator(config.VoiceConfig{SuccessRate: 1, MinLatency: time.Minute, Seed: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := sim.PlaceCall(ctx, Call{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.FailureError, res.FailureType)
}
