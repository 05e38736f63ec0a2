package channel

import (
	"context"

	"go.uber.org/zap"

	"github.com/acme/lead-contact-engine/pkg/logger"
)

// LogAdapter records sends in the log and reports them delivered. It stands
// in for channels without a configured gateway in development.
type LogAdapter struct {
	logger *logger.Logger
}

// NewLogAdapter constructs a LogAdapter.
func NewLogAdapter(log *logger.Logger) *LogAdapter {
	return &LogAdapter{logger: log.Named("dry-run")}
}

func (a *LogAdapter) Send(ctx context.Context, msg Message) (SendResult, error) {
	a.logger.WithContext(ctx).Info("dry-run send",
		zap.String("task_id", msg.TaskID),
		zap.String("lead_id", msg.Lead.ID),
		zap.String("channel", string(msg.Channel)),
		zap.String("tone", string(msg.Tone)),
		zap.Int("body_len", len(msg.Body)),
	)
	return Delivered(0), nil
}
