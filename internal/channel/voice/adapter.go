package voice

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/acme/lead-contact-engine/internal/channel"
	"github.com/acme/lead-contact-engine/internal/domain"
	"github.com/acme/lead-contact-engine/pkg/logger"
)

// Adapter sends voice tasks through a Provider.
type Adapter struct {
	provider Provider
	region   string
	timeout  time.Duration
	logger   *logger.Logger
}

// NewAdapter constructs a voice adapter. Local numbers are resolved in region.
func NewAdapter(provider Provider, region string, timeout time.Duration, log *logger.Logger) *Adapter {
	return &Adapter{provider: provider, region: region, timeout: timeout, logger: log.Named("voice")}
}

// Send dials the lead. Numbers that fail E.164 validation are reported as
// invalid-number without reaching the provider.
func (a *Adapter) Send(ctx context.Context, msg channel.Message) (channel.SendResult, error) {
	number, err := channel.NormalizeE164(msg.Lead.Phone, a.region)
	if err != nil {
		a.logger.Debug("rejecting undialable number", zap.String("lead_id", msg.Lead.ID))
		return channel.Failed(domain.FailureInvalidNumber, err.Error(), 0), nil
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	res, err := a.provider.PlaceCall(ctx, Call{
		TaskID: msg.TaskID,
		LeadID: msg.Lead.ID,
		Number: number,
		Script: msg.Body,
	})
	if err != nil {
		return channel.SendResult{}, fmt.Errorf("voice: place call: %w", err)
	}

	if res.Answered {
		return channel.Delivered(res.Duration), nil
	}
	ft := res.FailureType
	if !ft.Valid() {
		ft = domain.FailureFailure
	}
	return channel.Failed(ft, res.Error, res.Duration), nil
}

var _ channel.Adapter = (*Adapter)(nil)
