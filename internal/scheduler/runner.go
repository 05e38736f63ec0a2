// Package scheduler runs periodic scheduling passes over the lead population.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/acme/lead-contact-engine/internal/config"
	apperrors "github.com/acme/lead-contact-engine/pkg/errors"
	"github.com/acme/lead-contact-engine/pkg/logger"
)

// PassRunner executes one scheduling pass.
type PassRunner interface {
	Run(ctx context.Context) (Report, error)
}

// Runner triggers passes on a ticker or a cron expression.
type Runner struct {
	pass   PassRunner
	cfg    config.SchedulerConfig
	logger *logger.Logger
}

// NewRunner constructs a Runner.
func NewRunner(pass PassRunner, cfg config.SchedulerConfig, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.NewNop()
	}
	return &Runner{pass: pass, cfg: cfg, logger: log.Named("runner")}
}

// Run executes the scheduling loop until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if r.cfg.Cron != "" {
		return r.runCron(ctx)
	}

	interval := r.cfg.TickInterval
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		r.tick(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Runner) runCron(ctx context.Context) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := parser.Parse(r.cfg.Cron)
	if err != nil {
		return fmt.Errorf("%w: scheduler cron %q: %v", apperrors.ErrValidation, r.cfg.Cron, err)
	}

	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	c.Schedule(sched, cron.FuncJob(func() { r.tick(ctx) }))
	c.Start()
	r.logger.Info("scheduler: cron started", zap.String("expr", r.cfg.Cron), zap.Time("next", sched.Next(time.Now())))

	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

func (r *Runner) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := r.pass.Run(ctx); err != nil && ctx.Err() == nil {
		if errors.Is(err, apperrors.ErrConflict) {
			r.logger.Debug("scheduler: previous pass still running")
			return
		}
		r.logger.Error("scheduler: pass failed", zap.Error(err))
	}
}
