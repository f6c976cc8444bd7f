package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sentinelshare/sentinel/internal/core"
)

func TestMemoryPreferencesRoundTrip(t *testing.T) {
	s := NewMemoryStore(10, zap.NewNop())
	ctx := context.Background()

	prefs, err := s.Preferences(ctx, core.GlobalScope)
	require.NoError(t, err)
	assert.Empty(t, prefs.Senders)

	prefs.AddSender("amazon")
	require.NoError(t, s.SavePreferences(ctx, prefs))

	// Mutating the saved set must not leak into the store.
	prefs.AddSender("uber")

	got, err := s.Preferences(ctx, core.GlobalScope)
	require.NoError(t, err)
	assert.Equal(t, []string{"amazon"}, got.Senders)
}

func TestMemoryRuleIDsAssigned(t *testing.T) {
	s := NewMemoryStore(10, zap.NewNop())
	ctx := context.Background()

	first := &core.ManualRule{SenderPattern: "a@b.com", Purpose: "p"}
	second := &core.CategoryRule{MatchType: core.MatchSender, Pattern: "*@b.com", AssignedCategory: "retail"}
	require.NoError(t, s.AddManualRule(ctx, first))
	require.NoError(t, s.AddCategoryRule(ctx, second))

	assert.NotZero(t, first.ID)
	assert.NotZero(t, second.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, first.CreatedAt.IsZero())
}

func TestMemoryBlockLookupIsCaseInsensitive(t *testing.T) {
	s := NewMemoryStore(10, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, s.PutBlock(ctx, &core.TemporaryBlock{
		Sender:    "Shop@Example.com",
		Reason:    "pending",
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	block, err := s.GetBlock(ctx, "shop@example.com")
	require.NoError(t, err)
	assert.Equal(t, "pending", block.Reason)

	_, err = s.GetBlock(ctx, "other@example.com")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestMemoryLedgerEvictsOldestPastCapacity(t *testing.T) {
	s := NewMemoryStore(3, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.PutRecord(ctx, &core.ProcessedRecord{
			MessageID:   fmt.Sprintf("m%d", i),
			Decision:    core.DecisionIgnored,
			ProcessedAt: time.Now(),
		}))
	}

	for i := 0; i < 2; i++ {
		seen, err := s.Seen(ctx, fmt.Sprintf("m%d", i))
		require.NoError(t, err)
		assert.False(t, seen)
	}
	for i := 2; i < 5; i++ {
		seen, err := s.Seen(ctx, fmt.Sprintf("m%d", i))
		require.NoError(t, err)
		assert.True(t, seen)
	}
}

func TestMemoryUpdateRecord(t *testing.T) {
	s := NewMemoryStore(10, zap.NewNop())
	ctx := context.Background()

	rec := &core.ProcessedRecord{MessageID: "m1", Decision: core.DecisionForwarded, ProcessedAt: time.Now()}
	require.NoError(t, s.PutRecord(ctx, rec))

	rec.Decision = core.DecisionIgnored
	require.NoError(t, s.UpdateRecord(ctx, rec))

	got, err := s.GetRecord(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, core.DecisionIgnored, got.Decision)

	assert.ErrorIs(t, s.UpdateRecord(ctx, &core.ProcessedRecord{MessageID: "absent"}), core.ErrNotFound)
}

func TestMemoryCandidateLifecycle(t *testing.T) {
	s := NewMemoryStore(10, zap.NewNop())
	ctx := context.Background()

	c := &core.LearningCandidate{Sender: "deals@shop.com", Status: core.CandidatePending}
	require.NoError(t, s.PutCandidate(ctx, c))
	require.NotZero(t, c.ID)

	c.Status = core.CandidateApproved
	require.NoError(t, s.UpdateCandidate(ctx, c))

	pending, err := s.Candidates(ctx, core.CandidatePending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	all, err := s.Candidates(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, core.CandidateApproved, all[0].Status)
}
