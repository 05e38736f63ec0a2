// Package voice places outbound calls through a telephony provider.
package voice

import (
	"context"
	"time"

	"github.com/acme/lead-contact-engine/internal/domain"
)

// Call is one outbound call request.
type Call struct {
	TaskID string
	LeadID string
	Number string
	Script string
}

// Result captures the outcome of a call attempt.
type Result struct {
	Answered    bool
	FailureType domain.FailureType
	Duration    time.Duration
	Error       string
}

// Provider abstracts telephony integrations.
type Provider interface {
	PlaceCall(ctx context.Context, call Call) (Result, error)
}
