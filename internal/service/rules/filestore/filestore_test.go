package filestore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acme/lead-contact-engine/internal/domain"
	"github.com/acme/lead-contact-engine/internal/service/rules"
	"github.com/acme/lead-contact-engine/pkg/clock"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	fs := New(path, nil)
	now := time.Date(2025, 2, 1, 8, 30, 0, 0, time.UTC)
	store := rules.NewStore(fs, clock.Fixed{T: now}, nil)
	ctx := context.Background()

	re, err := store.AddReengagement(ctx, domain.ReengagementRule{
		Label:           "Ten days",
		InactivityDays:  10,
		Enabled:         true,
		Channels:        []domain.Channel{domain.ChannelMessage, domain.ChannelVoice},
		MessageTemplate: "Hello {{name}}",
		EmotionalTone:   domain.ToneFriendly,
	})
	require.NoError(t, err)
	require.NoError(t, store.MarkTriggered(ctx, re.ID, "lead-1", now.Add(time.Minute)))

	end := now.AddDate(0, 1, 0)
	endTime := domain.TimeOfDay(18*60 + 30)
	_, err = store.AddDialingRule(ctx, domain.DialingRule{
		Label:                "Feb calls",
		Enabled:              true,
		SimultaneousChannels: 3,
		TimeBetweenCalls:     20,
		MaxAttemptsPerLead:   4,
		StartDate:            now,
		StartTime:            8 * 60,
		EndDate:              &end,
		EndTime:              &endTime,
		TimeZone:             "America/Sao_Paulo",
		CallingHours:         []domain.CallingWindow{{DayOfWeek: time.Monday, Start: 9 * 60, End: 17 * 60}},
		RedialIntervals: []domain.RedialInterval{
			{FailureType: domain.FailureNoAnswer, IntervalMinutes: 60, MaxAttempts: 3},
			{FailureType: domain.FailureInvalidNumber},
		},
	})
	require.NoError(t, err)
	_, err = store.AddPriorizationRule(ctx, domain.PriorizationRule{
		Name:      "Closing",
		IsActive:  true,
		Weight:    7,
		AppliesTo: domain.AppliesTo{StageID: "proposal"},
		Factors: []domain.Factor{
			{FactorID: domain.FactorDeadlineProximity, Weight: 5},
			{FactorID: domain.FactorEngagement, Weight: 2},
		},
	})
	require.NoError(t, err)

	saved := store.Snapshot()
	loaded, err := New(path, nil).Load()
	require.NoError(t, err)

	want, err := json.Marshal(saved)
	require.NoError(t, err)
	got, err := json.Marshal(loaded)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(got))

	require.Len(t, loaded.Dialing, 1)
	d := loaded.Dialing[0]
	require.NotNil(t, d.EndDate)
	assert.True(t, d.EndDate.Equal(end))
	require.NotNil(t, d.EndTime)
	assert.Equal(t, endTime, *d.EndTime)
	assert.True(t, d.CreatedAt.Equal(now))
	assert.Len(t, d.RedialIntervals, 2)
	require.Len(t, loaded.Priorization, 1)
	assert.Equal(t, saved.Priorization[0].Factors, loaded.Priorization[0].Factors)
	fired := loaded.LastFired[re.ID]["lead-1"]
	assert.True(t, fired.Equal(now.Add(time.Minute)))

	reloaded := rules.NewStore(nil, clock.Fixed{T: now}, nil)
	require.NoError(t, reloaded.Load(loaded))
	assert.Len(t, reloaded.ListReengagement(), 1)
}

func TestLoadMissingFile(t *testing.T) {
	snap, err := New(filepath.Join(t.TempDir(), "absent.json"), nil).Load()
	require.NoError(t, err)
	assert.Empty(t, snap.Dialing)
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.json")
	require.NoError(t, New(path, nil).Save(context.Background(), rules.Snapshot{}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "rules.json", entries[0].Name())
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	_, err := New(path, nil).Load()
	assert.Error(t, err)
}
