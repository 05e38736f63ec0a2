// Package dispatch sends ranked contact tasks through their channel adapters
// under per-dialing-rule capacity and rate limits.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/acme/lead-contact-engine/internal/channel"
	"github.com/acme/lead-contact-engine/internal/domain"
	"github.com/acme/lead-contact-engine/internal/queue"
	"github.com/acme/lead-contact-engine/internal/repository"
	"github.com/acme/lead-contact-engine/internal/service/common"
	"github.com/acme/lead-contact-engine/internal/service/concurrency"
	"github.com/acme/lead-contact-engine/pkg/clock"
	apperrors "github.com/acme/lead-contact-engine/pkg/errors"
	"github.com/acme/lead-contact-engine/pkg/logger"
)

const (
	defaultWorkers = 8
	defaultMaxWait = 30 * time.Second
)

// TriggerRecorder records that a reengagement rule fired for a lead.
type TriggerRecorder interface {
	MarkTriggered(ctx context.Context, ruleID, leadID string, at time.Time) error
}

// Config bounds the worker pool and the time an adapter may take.
type Config struct {
	Workers int
	MaxWait time.Duration
}

// Dependencies are the collaborators of a Dispatcher.
type Dependencies struct {
	Leads     repository.LeadDirectory
	Attempts  repository.AttemptStore
	Channels  *channel.Registry
	Gauge     concurrency.Gauge
	Spacer    concurrency.Spacer
	Triggers  TriggerRecorder
	Publisher queue.Publisher
	Clock     clock.Clock
	Logger    *logger.Logger
}

// Job is one ranked task together with the lead snapshot it was built from
// and, for voice tasks, the dialing rule that governs it.
type Job struct {
	Task domain.Task
	Lead domain.Lead
	Rule *domain.DialingRule
}

// Outcome is the state a task ended the pass in.
type Outcome struct {
	Task       domain.Task
	Attempt    *domain.AttemptRecord
	RetryAfter *time.Time
}

// Dispatcher turns pending tasks into channel sends.
type Dispatcher struct {
	deps   Dependencies
	cfg    Config
	tracer trace.Tracer
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(deps Dependencies, cfg Config) *Dispatcher {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if deps.Publisher == nil {
		deps.Publisher = queue.NopPublisher{}
	}
	if deps.Gauge == nil {
		deps.Gauge = concurrency.NewLocalGauge()
	}
	if deps.Spacer == nil {
		deps.Spacer = concurrency.NewLocalSpacer()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = defaultMaxWait
	}
	deps.Logger = deps.Logger.Named("dispatch")
	return &Dispatcher{
		deps:   deps,
		cfg:    cfg,
		tracer: otel.Tracer("leadengine.dispatch"),
	}
}

// DispatchBatch dispatches jobs in the order given. Admission is decided
// sequentially so higher ranked jobs claim capacity first; admitted sends run
// on a pool of Config.Workers goroutines. The returned outcomes are index
// aligned with jobs.
func (d *Dispatcher) DispatchBatch(ctx context.Context, jobs []Job) []Outcome {
	outcomes := make([]Outcome, len(jobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Workers)

	for i := range jobs {
		job := jobs[i]
		out, release, admitted := d.admit(gctx, job)
		if !admitted {
			outcomes[i] = out
			d.publish(ctx, out)
			continue
		}
		idx := i
		g.Go(func() error {
			defer release()
			outcomes[idx] = d.send(gctx, job)
			d.publish(ctx, outcomes[idx])
			return nil
		})
	}

	_ = g.Wait()
	return outcomes
}

// Dispatch runs a single job through admission and send.
func (d *Dispatcher) Dispatch(ctx context.Context, job Job) Outcome {
	out, release, admitted := d.admit(ctx, job)
	if admitted {
		out = d.send(ctx, job)
		release()
	}
	d.publish(ctx, out)
	return out
}

// admit claims an in-flight slot, re-reads the lead and applies the rule's
// rate limit. On success the caller owns release.
func (d *Dispatcher) admit(ctx context.Context, job Job) (Outcome, func(), bool) {
	task := job.Task
	log := d.deps.Logger.WithContext(ctx)
	noop := func() {}

	release := noop
	if job.Rule != nil {
		capacity := job.Rule.SimultaneousChannels
		ok, err := d.deps.Gauge.TryAcquire(ctx, job.Rule.ID, capacity)
		if err != nil {
			log.Warn("dispatch: acquire in-flight slot", zap.String("dialing_rule_id", job.Rule.ID), zap.Error(err))
		}
		if err != nil || !ok {
			retry := d.deps.Clock.Now().Add(job.Rule.Gap())
			return deferred(task, domain.ReasonCapacity, &retry), noop, false
		}
		ruleID := job.Rule.ID
		release = func() {
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := d.deps.Gauge.Release(rctx, ruleID); err != nil {
				d.deps.Logger.Warn("dispatch: release in-flight slot", zap.String("dialing_rule_id", ruleID), zap.Error(err))
			}
		}
	}

	current, err := d.deps.Leads.Get(ctx, task.LeadID)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		release()
		return cancelled(task, domain.ReasonLeadMissing), noop, false
	case err != nil:
		release()
		log.Warn("dispatch: re-read lead", zap.String("lead_id", task.LeadID), zap.Error(err))
		return deferred(task, "", nil), noop, false
	case current.ContactReference().After(task.LeadContactAt):
		release()
		return cancelled(task, domain.ReasonContactedElsewhere), noop, false
	}

	if job.Rule != nil {
		now := d.deps.Clock.Now()
		ok, next, err := d.deps.Spacer.Reserve(ctx, job.Rule.ID, job.Rule.Gap(), now)
		if err != nil {
			log.Warn("dispatch: reserve call gap", zap.String("dialing_rule_id", job.Rule.ID), zap.Error(err))
			next = now.Add(job.Rule.Gap())
		}
		if err != nil || !ok {
			release()
			return deferred(task, domain.ReasonRateLimited, &next), noop, false
		}
	}

	return Outcome{}, release, true
}

// send delivers the task and records its attempt. It never returns an
// error: adapter failures become failed outcomes.
func (d *Dispatcher) send(ctx context.Context, job Job) Outcome {
	task := job.Task
	task.Status = domain.TaskDispatched

	ctx, span := d.tracer.Start(ctx, "dispatch.send", trace.WithAttributes(
		attribute.String("task.id", task.ID),
		attribute.String("lead.id", task.LeadID),
		attribute.String("channel", string(task.Channel)),
	))
	defer span.End()
	log := d.deps.Logger.WithContext(ctx)

	startedAt := d.deps.Clock.Now()
	res, err := d.deliver(ctx, job, startedAt)
	if err != nil {
		span.RecordError(err)
		log.Warn("dispatch: send failed", zap.String("task_id", task.ID), zap.String("lead_id", task.LeadID), zap.Error(err))
		res = channel.Failed(domain.FailureError, err.Error(), d.deps.Clock.Now().Sub(startedAt))
	}

	attempt := domain.AttemptRecord{
		ID:            uuid.NewString(),
		LeadID:        task.LeadID,
		TaskID:        task.ID,
		RuleID:        task.TriggeringRuleID,
		DialingRuleID: task.DialingRuleID,
		Channel:       task.Channel,
		Success:       res.Success,
		FailureType:   res.FailureType,
		Detail:        res.Detail,
		AttemptedAt:   startedAt,
		Duration:      res.Duration,
	}
	if attempt.Success {
		attempt.FailureType = ""
	} else if !attempt.FailureType.Valid() {
		attempt.FailureType = domain.FailureError
	}

	// Recording must survive a cancelled pass.
	rctx := context.WithoutCancel(ctx)
	if err := d.deps.Attempts.Append(rctx, attempt); err != nil {
		span.RecordError(err)
		log.Error("dispatch: append attempt", zap.String("task_id", task.ID), zap.Error(err))
	}

	if !attempt.Success {
		task.Status = domain.TaskFailed
		span.SetAttributes(attribute.String("failure_type", string(attempt.FailureType)))
		return Outcome{Task: task, Attempt: &attempt}
	}

	task.Status = domain.TaskCompleted
	if err := d.deps.Leads.RecordContact(rctx, task.LeadID, startedAt, task.AdvanceToStageID); err != nil {
		span.RecordError(err)
		log.Error("dispatch: record contact", zap.String("lead_id", task.LeadID), zap.Error(err))
	}
	if task.TriggeringRuleID != "" && d.deps.Triggers != nil {
		if err := d.deps.Triggers.MarkTriggered(rctx, task.TriggeringRuleID, task.LeadID, startedAt); err != nil {
			span.RecordError(err)
			log.Error("dispatch: mark rule triggered", zap.String("rule_id", task.TriggeringRuleID), zap.Error(err))
		}
	}
	return Outcome{Task: task, Attempt: &attempt}
}

// deliver calls the adapter, giving up after Config.MaxWait.
func (d *Dispatcher) deliver(ctx context.Context, job Job, now time.Time) (channel.SendResult, error) {
	adapter, err := d.deps.Channels.Lookup(job.Task.Channel)
	if err != nil {
		return channel.SendResult{}, err
	}

	sctx, cancel := context.WithTimeout(ctx, d.cfg.MaxWait)
	defer cancel()

	msg := channel.Message{
		TaskID:  job.Task.ID,
		Lead:    job.Lead,
		Channel: job.Task.Channel,
		Body:    job.Task.Message,
		Tone:    job.Task.Tone,
		Vars:    common.TemplateVars(job.Lead, job.Task.Channel, now),
	}

	type result struct {
		res channel.SendResult
		err error
	}
	done := make(chan result, 1)
	go func() {
		res, err := adapter.Send(sctx, msg)
		done <- result{res: res, err: err}
	}()

	select {
	case r := <-done:
		return r.res, r.err
	case <-sctx.Done():
		return channel.SendResult{}, fmt.Errorf("%w: no result from %s adapter within %s", apperrors.ErrTimeout, job.Task.Channel, d.cfg.MaxWait)
	}
}

func (d *Dispatcher) publish(ctx context.Context, out Outcome) {
	msg := queue.OutcomeMessage{
		TaskID:        out.Task.ID,
		LeadID:        out.Task.LeadID,
		RuleID:        out.Task.TriggeringRuleID,
		DialingRuleID: out.Task.DialingRuleID,
		Channel:       out.Task.Channel,
		Status:        out.Task.Status,
		Reason:        out.Task.Reason,
		Score:         out.Task.Score,
		RetryAfter:    out.RetryAfter,
		OccurredAt:    d.deps.Clock.Now(),
	}
	if out.Attempt != nil {
		msg.FailureType = out.Attempt.FailureType
		msg.DurationMs = out.Attempt.Duration.Milliseconds()
	}
	if err := d.deps.Publisher.PublishOutcome(context.WithoutCancel(ctx), msg); err != nil {
		d.deps.Logger.Warn("dispatch: publish outcome", zap.String("task_id", out.Task.ID), zap.Error(err))
	}
}

func deferred(task domain.Task, reason domain.Reason, retryAfter *time.Time) Outcome {
	task.Status = domain.TaskPending
	task.Reason = reason
	if retryAfter != nil {
		task.EarliestEligibleAt = *retryAfter
	}
	return Outcome{Task: task, RetryAfter: retryAfter}
}

func cancelled(task domain.Task, reason domain.Reason) Outcome {
	task.Status = domain.TaskCancelled
	task.Reason = reason
	return Outcome{Task: task}
}
