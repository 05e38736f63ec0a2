package voice

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/acme/lead-contact-engine/internal/config"
	"github.com/acme/lead-contact-engine/internal/domain"
)

var simulatedFailures = []domain.FailureType{
	domain.FailureNoAnswer,
	domain.FailureNoAnswer,
	domain.FailureVoicemail,
	domain.FailureVoicemail,
	domain.FailureBusy,
	domain.FailureFailure,
}

// Simulator is a Provider that fakes call outcomes.
type Simulator struct {
	successRate float64
	minLatency  time.Duration
	maxLatency  time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulator constructs a simulator. A zero seed uses the current time.
func NewSimulator(cfg config.VoiceConfig) *Simulator {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	maxLatency := cfg.MaxLatency
	if maxLatency < cfg.MinLatency {
		maxLatency = cfg.MinLatency
	}
	return &Simulator{
		successRate: cfg.SuccessRate,
		minLatency:  cfg.MinLatency,
		maxLatency:  maxLatency,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// PlaceCall simulates a call attempt.
func (s *Simulator) PlaceCall(ctx context.Context, call Call) (Result, error) {
	s.mu.Lock()
	duration := s.minLatency
	if span := s.maxLatency - s.minLatency; span > 0 {
		duration += time.Duration(s.rng.Int63n(int64(span)))
	}
	answered := s.rng.Float64() < s.successRate
	failure := simulatedFailures[s.rng.Intn(len(simulatedFailures))]
	s.mu.Unlock()

	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Result{FailureType: domain.FailureError, Duration: duration, Error: ctx.Err().Error()}, ctx.Err()
		case <-timer.C:
		}
	}

	if answered {
		return Result{Answered: true, Duration: duration}, nil
	}
	return Result{FailureType: failure, Duration: duration, Error: "simulated " + string(failure)}, nil
}
