package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acme/lead-contact-engine/internal/config"
	"github.com/acme/lead-contact-engine/internal/domain"
	"github.com/acme/lead-contact-engine/internal/repository/memory"
	"github.com/acme/lead-contact-engine/pkg/clock"
	"github.com/acme/lead-contact-engine/pkg/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Scheduler: config.SchedulerConfig{MaxBatchSize: 100},
		Dispatch:  config.DispatchConfig{Workers: 2, MaxWait: time.Second},
		Rules:     config.RulesConfig{Path: filepath.Join(t.TempDir(), "rules.json")},
		Channels: config.ChannelsConfig{
			PhoneRegion: "BR",
			Voice:       config.VoiceConfig{SuccessRate: 1, Seed: 7},
		},
	}
}

func TestNewWiresInMemoryComponents(t *testing.T) {
	cfg := testConfig(t)
	c, err := New(cfg, logger.NewNop(), clock.Fixed{T: time.Date(2025, 5, 5, 14, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	assert.IsType(t, &memory.LeadDirectory{}, c.Repositories().Leads)
	assert.IsType(t, &memory.AttemptStore{}, c.Repositories().Attempts)
	assert.Equal(t, []domain.Channel{domain.ChannelEmail, domain.ChannelMessage, domain.ChannelVoice}, c.Channels().Channels())
	assert.Empty(t, c.HealthChecks())
	require.NoError(t, c.EnsureTopics(context.Background()))
}

func TestNewLoadsAndPersistsRules(t *testing.T) {
	cfg := testConfig(t)
	c, err := New(cfg, logger.NewNop(), nil)
	require.NoError(t, err)

	_, err = c.Services().Rules.AddReengagement(context.Background(), domain.ReengagementRule{
		Label:          "Quiet week",
		InactivityDays: 7,
		Enabled:        true,
		Channels:       []domain.Channel{domain.ChannelMessage},
	})
	require.NoError(t, err)

	_, err = os.Stat(cfg.Rules.Path)
	require.NoError(t, err)

	reopened, err := New(cfg, logger.NewNop(), nil)
	require.NoError(t, err)
	rules := reopened.Services().Rules.ListReengagement()
	require.Len(t, rules, 1)
	assert.Equal(t, "Quiet week", rules[0].Label)
}

func TestNewRejectsCorruptRuleFile(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, os.WriteFile(cfg.Rules.Path, []byte("{broken"), 0o600))

	_, err := New(cfg, logger.NewNop(), nil)
	assert.Error(t, err)
}

func TestPassRunsAgainstEmptyDirectory(t *testing.T) {
	c, err := New(testConfig(t), logger.NewNop(), nil)
	require.NoError(t, err)

	report, err := c.Services().Pass.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Stats.LeadsScanned)

	latest, err := c.Repositories().PassStats.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, report.Stats.ID, latest.ID)
}

func TestWatchRulesWithoutFileReturnsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Rules.Path = ""
	c, err := New(cfg, logger.NewNop(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, c.WatchRules(ctx))
}
