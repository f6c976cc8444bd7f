package learning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sentinelshare/sentinel/internal/adapters/store"
	"github.com/sentinelshare/sentinel/internal/core"
)

func newEngine(t *testing.T) (*Engine, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore(100, zap.NewNop())
	return NewEngine(mem, mem, mem, DefaultMinMatches, zap.NewNop()), mem
}

func putIgnored(t *testing.T, mem *store.MemoryStore, id, sender, subject string) {
	t.Helper()
	require.NoError(t, mem.PutRecord(context.Background(), &core.ProcessedRecord{
		MessageID:   id,
		Sender:      sender,
		Subject:     subject,
		Decision:    core.DecisionIgnored,
		ProcessedAt: time.Now(),
	}))
}

func TestScanProposesCandidateFromRepeatedIgnores(t *testing.T) {
	e, mem := newEngine(t)
	ctx := context.Background()

	putIgnored(t, mem, "m1", "deals@shop.com", "Order #101 shipped")
	putIgnored(t, mem, "m2", "deals@shop.com", "Order #202 shipped")
	putIgnored(t, mem, "m3", "deals@shop.com", "Order #303 shipped")

	created, err := e.Scan(ctx, 72*time.Hour)
	require.NoError(t, err)
	require.Len(t, created, 1)

	c := created[0]
	assert.Equal(t, "deals@shop.com", c.Sender)
	assert.Equal(t, "order ## shipped", c.SubjectPattern)
	assert.Equal(t, 3, c.Matches)
	assert.Equal(t, core.CandidatePending, c.Status)
	assert.Equal(t, "Order #101 shipped", c.ExampleSubject)
	// 0.4 base + 0.15 per match; the 7-char shared prefix is below the
	// templated-mail bonus threshold.
	assert.InDelta(t, 0.85, c.Confidence, 0.001)
}

func TestScanBelowThresholdProposesNothing(t *testing.T) {
	e, mem := newEngine(t)

	putIgnored(t, mem, "m1", "deals@shop.com", "Order #101 shipped")

	created, err := e.Scan(context.Background(), 72*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestScanSkipsRuleCoveredSenders(t *testing.T) {
	e, mem := newEngine(t)
	ctx := context.Background()
	require.NoError(t, mem.AddManualRule(ctx, &core.ManualRule{SenderPattern: "*@shop.com", Purpose: "p"}))

	putIgnored(t, mem, "m1", "deals@shop.com", "Order #101 shipped")
	putIgnored(t, mem, "m2", "deals@shop.com", "Order #202 shipped")

	created, err := e.Scan(ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestScanDoesNotReproposeExistingCandidate(t *testing.T) {
	e, mem := newEngine(t)
	ctx := context.Background()

	putIgnored(t, mem, "m1", "deals@shop.com", "Order #101 shipped")
	putIgnored(t, mem, "m2", "deals@shop.com", "Order #202 shipped")

	first, err := e.Scan(ctx, 72*time.Hour)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := e.Scan(ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestScanIgnoresOldRecords(t *testing.T) {
	e, mem := newEngine(t)
	ctx := context.Background()

	old := time.Now().Add(-96 * time.Hour)
	require.NoError(t, mem.PutRecord(ctx, &core.ProcessedRecord{
		MessageID: "m1", Sender: "deals@shop.com", Subject: "Order #1",
		Decision: core.DecisionIgnored, ProcessedAt: old,
	}))
	require.NoError(t, mem.PutRecord(ctx, &core.ProcessedRecord{
		MessageID: "m2", Sender: "deals@shop.com", Subject: "Order #2",
		Decision: core.DecisionIgnored, ProcessedAt: old,
	}))

	created, err := e.Scan(ctx, 72*time.Hour)
	require.NoError(t, err)
	assert.Empty(t, created)
}

func TestApproveCreatesRuleAndFlipsStatus(t *testing.T) {
	e, mem := newEngine(t)
	ctx := context.Background()

	putIgnored(t, mem, "m1", "deals@shop.com", "Order #101 shipped")
	putIgnored(t, mem, "m2", "deals@shop.com", "Order #202 shipped")
	created, err := e.Scan(ctx, 72*time.Hour)
	require.NoError(t, err)
	require.Len(t, created, 1)

	rule, err := e.Approve(ctx, created[0].ID, "retail")
	require.NoError(t, err)
	assert.Equal(t, "deals@shop.com", rule.SenderPattern)
	assert.Equal(t, "retail", rule.Category)

	c, err := mem.GetCandidate(ctx, created[0].ID)
	require.NoError(t, err)
	assert.Equal(t, core.CandidateApproved, c.Status)

	// A second approval of the same candidate is rejected.
	_, err = e.Approve(ctx, created[0].ID, "retail")
	assert.Error(t, err)
}

func TestIgnoreDismissesCandidate(t *testing.T) {
	e, mem := newEngine(t)
	ctx := context.Background()

	putIgnored(t, mem, "m1", "deals@shop.com", "Order #101 shipped")
	putIgnored(t, mem, "m2", "deals@shop.com", "Order #202 shipped")
	created, err := e.Scan(ctx, 72*time.Hour)
	require.NoError(t, err)
	require.Len(t, created, 1)

	require.NoError(t, e.Ignore(ctx, created[0].ID))

	pending, err := e.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	rules, err := mem.ManualRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)
}
