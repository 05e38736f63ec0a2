package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/acme/lead-contact-engine/internal/domain"
	"github.com/acme/lead-contact-engine/internal/queue"
	"github.com/acme/lead-contact-engine/internal/repository"
	"github.com/acme/lead-contact-engine/internal/service/common"
	"github.com/acme/lead-contact-engine/internal/service/dialing"
	"github.com/acme/lead-contact-engine/internal/service/dispatch"
	"github.com/acme/lead-contact-engine/internal/service/eligibility"
	"github.com/acme/lead-contact-engine/internal/service/priority"
	"github.com/acme/lead-contact-engine/internal/service/rules"
	"github.com/acme/lead-contact-engine/pkg/clock"
	apperrors "github.com/acme/lead-contact-engine/pkg/errors"
	"github.com/acme/lead-contact-engine/pkg/logger"
)

const defaultBatchSize = 1000

// RuleSource provides a consistent view of every rule and maintains the
// per-lead firing ledger.
type RuleSource interface {
	Snapshot() rules.Snapshot
	PruneFired(ctx context.Context, refs map[string]time.Time) (int, error)
}

// Dependencies are the collaborators of a Pass.
type Dependencies struct {
	Leads      repository.LeadDirectory
	Attempts   repository.AttemptStore
	Stats      repository.PassStatsRepository
	Rules      RuleSource
	Evaluator  *eligibility.Evaluator
	Dialer     *dialing.Scheduler
	Calculator *priority.Calculator
	Dispatcher *dispatch.Dispatcher
	Publisher  queue.Publisher
	Clock      clock.Clock
	Logger     *logger.Logger
}

// Report is the result of one scheduling pass.
type Report struct {
	Stats domain.PassStats `json:"stats"`
	Tasks []domain.Task    `json:"tasks"`
}

// LeadPreview shows what a pass would do for one lead without sending.
type LeadPreview struct {
	Lead       domain.Lead        `json:"lead"`
	Evaluation eligibility.Result `json:"evaluation"`
	Tasks      []domain.Task      `json:"tasks"`
}

// Pass runs scheduling passes: evaluate every active lead, decide dialing
// eligibility, score, keep one task per lead, rank and dispatch.
type Pass struct {
	deps      Dependencies
	batchSize int
	running   sync.Mutex
	tracer    trace.Tracer
}

// NewPass constructs a Pass. batchSize bounds the leads read per pass.
func NewPass(deps Dependencies, batchSize int) *Pass {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if deps.Publisher == nil {
		deps.Publisher = queue.NopPublisher{}
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	deps.Logger = deps.Logger.Named("scheduler")
	return &Pass{deps: deps, batchSize: batchSize, tracer: otel.Tracer("leadengine.scheduler")}
}

// plan holds what one lead contributes to a pass.
type plan struct {
	lead       domain.Lead
	evaluation eligibility.Result
	tasks      []domain.Task
	rules      map[string]*domain.DialingRule
}

// Run executes one pass. Only one pass runs at a time; a concurrent call
// fails with ErrConflict.
func (p *Pass) Run(ctx context.Context) (Report, error) {
	if !p.running.TryLock() {
		return Report{}, fmt.Errorf("%w: a scheduling pass is already running", apperrors.ErrConflict)
	}
	defer p.running.Unlock()

	started := p.deps.Clock.Now()
	stats := domain.PassStats{ID: uuid.NewString(), StartedAt: started}

	ctx, span := p.tracer.Start(ctx, "scheduler.pass", trace.WithAttributes(attribute.String("pass.id", stats.ID)))
	defer span.End()
	log := p.deps.Logger.WithContext(ctx)

	leads, err := p.deps.Leads.ListActive(ctx, p.batchSize)
	if err != nil {
		span.RecordError(err)
		return Report{}, fmt.Errorf("scheduler: list leads: %w", err)
	}
	stats.LeadsScanned = len(leads)
	span.SetAttributes(attribute.Int("leads.count", len(leads)))

	refs := make(map[string]time.Time, len(leads))
	for _, lead := range leads {
		refs[lead.ID] = lead.ContactReference()
	}
	if pruned, err := p.deps.Rules.PruneFired(ctx, refs); err != nil {
		log.Warn("scheduler: prune firing ledger", zap.Error(err))
	} else if pruned > 0 {
		log.Debug("scheduler: pruned firing ledger", zap.Int("entries", pruned))
	}

	snap := p.deps.Rules.Snapshot()
	var (
		all  []domain.Task
		jobs []dispatch.Job
	)

	ectx, espan := p.tracer.Start(ctx, "scheduler.evaluate")
	for _, lead := range leads {
		if ectx.Err() != nil {
			break
		}
		pl, err := p.planLead(ectx, lead, snap)
		if err != nil {
			espan.RecordError(err)
			log.Warn("scheduler: plan lead", zap.String("lead_id", lead.ID), zap.Error(err))
			continue
		}
		stats.Triggers += len(pl.evaluation.Triggers)
		stats.SkippedRules += len(pl.evaluation.Skipped)
		for _, task := range pl.tasks {
			if dispatchable(task) {
				jobs = append(jobs, dispatch.Job{Task: task, Lead: pl.lead, Rule: pl.rules[task.DialingRuleID]})
				continue
			}
			all = append(all, task)
		}
	}
	espan.End()

	sortJobs(jobs)
	if len(jobs) > 0 {
		log.Info("scheduler: dispatching tasks", zap.Int("count", len(jobs)))
		for _, out := range p.deps.Dispatcher.DispatchBatch(ctx, jobs) {
			all = append(all, out.Task)
			if out.Task.Status == domain.TaskCompleted || out.Task.Status == domain.TaskFailed {
				stats.Dispatched++
			}
		}
	}

	for _, task := range all {
		switch task.Status {
		case domain.TaskCompleted:
			stats.Completed++
		case domain.TaskFailed:
			stats.Failed++
		case domain.TaskPending:
			stats.Deferred++
		case domain.TaskAbandoned:
			stats.Abandoned++
		case domain.TaskCancelled:
			stats.Cancelled++
		}
	}
	stats.Tasks = len(all)
	stats.Duration = p.deps.Clock.Now().Sub(started)

	span.SetAttributes(
		attribute.Int("tasks.count", stats.Tasks),
		attribute.Int("tasks.dispatched", stats.Dispatched),
		attribute.Int("tasks.deferred", stats.Deferred),
	)

	// Statistics must be kept even when the pass was cancelled.
	rctx := context.WithoutCancel(ctx)
	if p.deps.Stats != nil {
		if err := p.deps.Stats.Record(rctx, stats); err != nil {
			span.RecordError(err)
			log.Error("scheduler: record pass statistics", zap.Error(err))
		}
	}
	if err := p.deps.Publisher.PublishPass(rctx, stats); err != nil {
		log.Warn("scheduler: publish pass statistics", zap.Error(err))
	}

	log.Info("scheduler: pass finished",
		zap.String("pass_id", stats.ID),
		zap.Int("leads", stats.LeadsScanned),
		zap.Int("dispatched", stats.Dispatched),
		zap.Int("deferred", stats.Deferred),
		zap.Int("abandoned", stats.Abandoned),
		zap.Duration("duration", stats.Duration),
	)
	return Report{Stats: stats, Tasks: all}, nil
}

// Preview plans one lead against the current rules without dispatching.
func (p *Pass) Preview(ctx context.Context, leadID string) (LeadPreview, error) {
	lead, err := p.deps.Leads.Get(ctx, leadID)
	if err != nil {
		return LeadPreview{}, fmt.Errorf("scheduler: preview: %w", err)
	}
	pl, err := p.planLead(ctx, lead, p.deps.Rules.Snapshot())
	if err != nil {
		return LeadPreview{}, err
	}
	tasks := pl.tasks
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return LeadPreview{Lead: lead, Evaluation: pl.evaluation, Tasks: tasks}, nil
}

// planLead builds every candidate task for lead, applies the dialing
// decision to voice tasks, scores them and keeps the best dispatchable one.
func (p *Pass) planLead(ctx context.Context, lead domain.Lead, snap rules.Snapshot) (plan, error) {
	pl := plan{lead: lead, evaluation: p.deps.Evaluator.Evaluate(lead, snap.Reengagement), rules: map[string]*domain.DialingRule{}}
	if len(pl.evaluation.Triggers) == 0 {
		return pl, nil
	}

	history, err := p.deps.Attempts.History(ctx, lead.ID)
	if err != nil {
		return pl, fmt.Errorf("scheduler: attempt history: %w", err)
	}

	now := p.deps.Clock.Now()
	dialRule := dialingRuleFor(lead, snap.Dialing)
	unanswered := unansweredSinceContact(history)

	for _, trig := range pl.evaluation.Triggers {
		ch, ok := pickChannel(lead, trig.Rule, dialRule != nil)
		task := domain.Task{
			ID:                 uuid.NewString(),
			LeadID:             lead.ID,
			TriggeringRuleID:   trig.Rule.ID,
			Channel:            ch,
			EarliestEligibleAt: now,
			Status:             domain.TaskPending,
			Tone:               trig.Rule.EmotionalTone,
			AdvanceToStageID:   trig.Rule.AdvanceToStageID,
			PriorAttempts:      unanswered,
			LeadContactAt:      lead.ContactReference(),
			CreatedAt:          now,
		}
		task.Message = common.Render(trig.Rule.MessageTemplate, common.TemplateVars(lead, ch, now))
		task.Score, task.MatchedRules = p.deps.Calculator.Score(lead, task, snap.Priorization)

		if !ok {
			task.Reason = domain.ReasonNoDialingRule
			pl.tasks = append(pl.tasks, task)
			continue
		}

		if ch == domain.ChannelVoice {
			task.DialingRuleID = dialRule.ID
			pl.rules[dialRule.ID] = dialRule
			decision, err := p.deps.Dialer.NextEligibleAttempt(ctx, lead, *dialRule, history)
			if err != nil {
				return pl, err
			}
			applyDecision(&task, decision)
		}
		pl.tasks = append(pl.tasks, task)
	}

	keepBest(pl.tasks)
	return pl, nil
}

func applyDecision(task *domain.Task, d domain.Decision) {
	if d.Eligible {
		return
	}
	task.Reason = d.Reason
	if d.Permanent {
		task.Status = domain.TaskAbandoned
		return
	}
	if d.RetryAfter != nil {
		task.EarliestEligibleAt = *d.RetryAfter
	}
}

// keepBest leaves at most one dispatchable task per lead: the highest scored,
// earlier triggers winning ties. Every other non-terminal task is superseded.
func keepBest(tasks []domain.Task) {
	best := -1
	for i, task := range tasks {
		if !dispatchable(task) {
			continue
		}
		if best < 0 || task.Score > tasks[best].Score {
			best = i
		}
	}
	if best < 0 {
		return
	}
	for i := range tasks {
		if i == best || tasks[i].Status.Terminal() {
			continue
		}
		tasks[i].Status = domain.TaskCancelled
		tasks[i].Reason = domain.ReasonSuperseded
	}
}

func dispatchable(task domain.Task) bool {
	return task.Status == domain.TaskPending && task.Reason == ""
}

// pickChannel prefers the lead's channel when the rule allows it, then the
// rule's order. Voice needs a dialing rule.
func pickChannel(lead domain.Lead, rule domain.ReengagementRule, voice bool) (domain.Channel, bool) {
	usable := func(ch domain.Channel) bool {
		return rule.AllowsChannel(ch) && (ch != domain.ChannelVoice || voice)
	}
	if lead.PreferredChannel != "" && usable(lead.PreferredChannel) {
		return lead.PreferredChannel, true
	}
	for _, ch := range rule.Channels {
		if usable(ch) {
			return ch, true
		}
	}
	if len(rule.Channels) > 0 {
		return rule.Channels[0], false
	}
	return "", false
}

// dialingRuleFor resolves the lead's assigned dialing rule, falling back to
// the oldest enabled one. Disabled assigned rules are returned so the
// dialing decision can report them.
func dialingRuleFor(lead domain.Lead, all []domain.DialingRule) *domain.DialingRule {
	if lead.DialingRuleID != "" {
		for i := range all {
			if all[i].ID == lead.DialingRuleID {
				return &all[i]
			}
		}
	}
	for i := range all {
		if all[i].Enabled {
			return &all[i]
		}
	}
	return nil
}

func unansweredSinceContact(history []domain.AttemptRecord) int {
	n := 0
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Success {
			break
		}
		n++
	}
	return n
}

func sortJobs(jobs []dispatch.Job) {
	tasks := make([]domain.Task, len(jobs))
	byID := make(map[string]dispatch.Job, len(jobs))
	for i, j := range jobs {
		tasks[i] = j.Task
		byID[j.Task.ID] = j
	}
	priority.Rank(tasks)
	for i, task := range tasks {
		jobs[i] = byID[task.ID]
	}
}
