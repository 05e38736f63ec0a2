package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acme/lead-contact-engine/internal/channel"
	"github.com/acme/lead-contact-engine/internal/domain"
	"github.com/acme/lead-contact-engine/internal/repository/memory"
	"github.com/acme/lead-contact-engine/internal/service/concurrency"
	"github.com/acme/lead-contact-engine/internal/service/dialing"
	"github.com/acme/lead-contact-engine/internal/service/dispatch"
	"github.com/acme/lead-contact-engine/internal/service/eligibility"
	"github.com/acme/lead-contact-engine/internal/service/priority"
	"github.com/acme/lead-contact-engine/internal/service/rules"
	"github.com/acme/lead-contact-engine/pkg/clock"
	apperrors "github.com/acme/lead-contact-engine/pkg/errors"
	"github.com/acme/lead-contact-engine/pkg/logger"
)

// Monday afternoon.
var now = time.Date(2025, 5, 5, 14, 0, 0, 0, time.UTC)

type sendLog struct {
	mu    sync.Mutex
	leads []string
}

func (s *sendLog) adapter(res channel.SendResult) channel.Adapter {
	return channel.AdapterFunc(func(_ context.Context, msg channel.Message) (channel.SendResult, error) {
		s.mu.Lock()
		s.leads = append(s.leads, msg.Lead.ID)
		s.mu.Unlock()
		return res, nil
	})
}

type env struct {
	store    *rules.Store
	leads    *memory.LeadDirectory
	attempts *memory.AttemptStore
	stats    *memory.PassStatsRepository
	registry *channel.Registry
	sent     *sendLog
	pass     *Pass
}

func newEnv(t *testing.T, leads ...domain.Lead) *env {
	t.Helper()
	clk := clock.Fixed{T: now}
	log := logger.NewNop()
	e := &env{
		store:    rules.NewStore(nil, clk, log),
		leads:    memory.NewLeadDirectory(leads...),
		attempts: memory.NewAttemptStore(),
		stats:    memory.NewPassStatsRepository(),
		registry: channel.NewRegistry(),
		sent:     &sendLog{},
	}
	gauge := concurrency.NewLocalGauge()
	dispatcher := dispatch.NewDispatcher(dispatch.Dependencies{
		Leads:    e.leads,
		Attempts: e.attempts,
		Channels: e.registry,
		Gauge:    gauge,
		Triggers: e.store,
		Clock:    clk,
		Logger:   log,
	}, dispatch.Config{Workers: 1, MaxWait: time.Second})

	e.pass = NewPass(Dependencies{
		Leads:      e.leads,
		Attempts:   e.attempts,
		Stats:      e.stats,
		Rules:      e.store,
		Evaluator:  eligibility.NewEvaluator(clk, e.store, log),
		Dialer:     dialing.NewScheduler(clk, gauge),
		Calculator: priority.NewCalculator(priority.Config{StageOrder: []string{"new", "contacted"}}, clk),
		Dispatcher: dispatcher,
		Clock:      clk,
		Logger:     log,
	}, 100)
	return e
}

func daysAgo(n int) time.Time { return now.AddDate(0, 0, -n) }

func testLead(id string, contacted time.Time, preferred domain.Channel) domain.Lead {
	return domain.Lead{
		ID:               id,
		Name:             "Lead " + id,
		Phone:            "+5511987654321",
		Email:            id + "@example.com",
		StageID:          "new",
		LastContactAt:    contacted,
		PreferredChannel: preferred,
		CreatedAt:        daysAgo(60),
	}
}

func (e *env) addReengagement(t *testing.T, days int, channels ...domain.Channel) domain.ReengagementRule {
	t.Helper()
	rule, err := e.store.AddReengagement(context.Background(), domain.ReengagementRule{
		Label:            "Silent leads",
		InactivityDays:   days,
		Enabled:          true,
		Channels:         channels,
		MessageTemplate:  "Hi {{first_name}}, it has been {{days_inactive}} days",
		AdvanceToStageID: "contacted",
	})
	require.NoError(t, err)
	return rule
}

func (e *env) addDialing(t *testing.T, maxAttempts int) domain.DialingRule {
	t.Helper()
	rule, err := e.store.AddDialingRule(context.Background(), domain.DialingRule{
		Label:                "Calls",
		Enabled:              true,
		SimultaneousChannels: 1,
		MaxAttemptsPerLead:   maxAttempts,
		StartDate:            daysAgo(30),
	})
	require.NoError(t, err)
	return rule
}

func TestPassDispatchesInPriorityOrder(t *testing.T) {
	e := newEnv(t, testLead("x", daysAgo(2), ""), testLead("y", daysAgo(9), ""))
	e.registry.Register(domain.ChannelMessage, e.sent.adapter(channel.Delivered(time.Second)))
	e.addReengagement(t, 1, domain.ChannelMessage)
	_, err := e.store.AddPriorizationRule(context.Background(), domain.PriorizationRule{
		Name:     "Longest silence first",
		IsActive: true,
		Weight:   2,
		Factors:  []domain.Factor{{FactorID: domain.FactorDaysWithoutContact, Weight: 5}},
	})
	require.NoError(t, err)

	report, err := e.pass.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"y", "x"}, e.sent.leads)
	assert.Equal(t, 2, report.Stats.LeadsScanned)
	assert.Equal(t, 2, report.Stats.Triggers)
	assert.Equal(t, 2, report.Stats.Dispatched)
	assert.Equal(t, 2, report.Stats.Completed)

	y, err := e.leads.Get(context.Background(), "y")
	require.NoError(t, err)
	assert.Equal(t, now, y.LastContactAt)
	assert.Equal(t, "contacted", y.StageID)

	latest, err := e.stats.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.Stats.ID, latest.ID)

	again, err := e.pass.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, again.Stats.Triggers)
	assert.Len(t, e.sent.leads, 2)
}

func TestPassRendersMessage(t *testing.T) {
	e := newEnv(t, testLead("ana", daysAgo(10), domain.ChannelMessage))
	var body string
	e.registry.Register(domain.ChannelMessage, channel.AdapterFunc(func(_ context.Context, msg channel.Message) (channel.SendResult, error) {
		body = msg.Body
		return channel.Delivered(0), nil
	}))
	e.addReengagement(t, 7, domain.ChannelMessage)

	_, err := e.pass.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Hi Lead, it has been 10 days", body)
}

func TestPassAbandonsExhaustedVoiceLead(t *testing.T) {
	lead := testLead("a", daysAgo(10), domain.ChannelVoice)
	e := newEnv(t, lead)
	e.registry.Register(domain.ChannelVoice, e.sent.adapter(channel.Delivered(time.Second)))
	e.addReengagement(t, 7, domain.ChannelVoice)
	dr := e.addDialing(t, 3)

	for i := 0; i < 3; i++ {
		require.NoError(t, e.attempts.Append(context.Background(), domain.AttemptRecord{
			ID:            string(rune('a' + i)),
			LeadID:        "a",
			DialingRuleID: dr.ID,
			Channel:       domain.ChannelVoice,
			FailureType:   domain.FailureNoAnswer,
			AttemptedAt:   daysAgo(5 - i),
		}))
	}

	report, err := e.pass.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, e.sent.leads)
	assert.Equal(t, 1, report.Stats.Abandoned)
	require.Len(t, report.Tasks, 1)
	assert.Equal(t, domain.TaskAbandoned, report.Tasks[0].Status)
	assert.Equal(t, domain.ReasonMaxAttemptsLead, report.Tasks[0].Reason)
}

func TestPassDefersVoiceWithoutDialingRule(t *testing.T) {
	e := newEnv(t, testLead("a", daysAgo(10), ""))
	e.addReengagement(t, 7, domain.ChannelVoice)

	report, err := e.pass.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stats.Deferred)
	require.Len(t, report.Tasks, 1)
	assert.Equal(t, domain.ReasonNoDialingRule, report.Tasks[0].Reason)
}

func TestPassFallsBackFromVoiceWithoutDialingRule(t *testing.T) {
	e := newEnv(t, testLead("a", daysAgo(10), domain.ChannelVoice))
	e.registry.Register(domain.ChannelEmail, e.sent.adapter(channel.Delivered(0)))
	e.addReengagement(t, 7, domain.ChannelVoice, domain.ChannelEmail)

	report, err := e.pass.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, e.sent.leads)
	require.Len(t, report.Tasks, 1)
	assert.Equal(t, domain.ChannelEmail, report.Tasks[0].Channel)
}

func TestPassKeepsOneTaskPerLead(t *testing.T) {
	e := newEnv(t, testLead("a", daysAgo(30), domain.ChannelMessage))
	e.registry.Register(domain.ChannelMessage, e.sent.adapter(channel.Delivered(0)))
	e.addReengagement(t, 7, domain.ChannelMessage)
	e.addReengagement(t, 21, domain.ChannelMessage)

	report, err := e.pass.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, e.sent.leads)
	assert.Equal(t, 2, report.Stats.Triggers)
	assert.Equal(t, 1, report.Stats.Completed)
	assert.Equal(t, 1, report.Stats.Cancelled)

	var superseded int
	for _, task := range report.Tasks {
		if task.Reason == domain.ReasonSuperseded {
			superseded++
		}
	}
	assert.Equal(t, 1, superseded)
}

func TestPassFailedSendIsCounted(t *testing.T) {
	e := newEnv(t, testLead("a", daysAgo(10), domain.ChannelMessage))
	e.registry.Register(domain.ChannelMessage, e.sent.adapter(channel.Failed(domain.FailureFailure, "rejected", 0)))
	e.addReengagement(t, 7, domain.ChannelMessage)

	report, err := e.pass.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stats.Dispatched)
	assert.Equal(t, 1, report.Stats.Failed)

	history, err := e.attempts.History(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.FailureFailure, history[0].FailureType)
}

func TestPassRejectsConcurrentRun(t *testing.T) {
	e := newEnv(t)
	e.pass.running.Lock()
	defer e.pass.running.Unlock()

	_, err := e.pass.Run(context.Background())
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
}

func TestPreviewDoesNotDispatch(t *testing.T) {
	e := newEnv(t, testLead("a", daysAgo(10), domain.ChannelVoice))
	e.registry.Register(domain.ChannelVoice, e.sent.adapter(channel.Delivered(0)))
	e.addReengagement(t, 7, domain.ChannelVoice)
	e.addDialing(t, 3)

	preview, err := e.pass.Preview(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, preview.Evaluation.Triggers, 1)
	require.Len(t, preview.Tasks, 1)
	assert.Equal(t, domain.ChannelVoice, preview.Tasks[0].Channel)
	assert.Equal(t, domain.TaskPending, preview.Tasks[0].Status)
	assert.Empty(t, preview.Tasks[0].Reason)
	assert.Empty(t, e.sent.leads)

	_, err = e.pass.Preview(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestPassPrunesStaleFiringLedger(t *testing.T) {
	e := newEnv(t, testLead("a", daysAgo(10), domain.ChannelMessage))
	rule := e.addReengagement(t, 30, domain.ChannelMessage)
	require.NoError(t, e.store.MarkTriggered(context.Background(), rule.ID, "a", daysAgo(20)))
	require.NoError(t, e.store.MarkTriggered(context.Background(), rule.ID, "gone", daysAgo(20)))

	_, err := e.pass.Run(context.Background())
	require.NoError(t, err)

	_, ok := e.store.LastFired(rule.ID, "a")
	assert.False(t, ok)
	_, ok = e.store.LastFired(rule.ID, "gone")
	assert.True(t, ok, "leads outside the scan keep their entries")
}
