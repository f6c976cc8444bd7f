package rules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sentinelshare/sentinel/internal/adapters/store"
	"github.com/sentinelshare/sentinel/internal/classify"
	"github.com/sentinelshare/sentinel/internal/core"
)

type evalFixture struct {
	evaluator *Evaluator
	blocks    *BlockManager
	state     *State
}

func newEvalFixture(t *testing.T) *evalFixture {
	t.Helper()
	logger := zap.NewNop()
	mem := store.NewMemoryStore(100, logger)
	blocks := NewBlockManager(mem, DefaultBlockTTL, logger)
	classifier := classify.New(nil, nil, logger)
	return &evalFixture{
		evaluator: NewEvaluator(classifier, blocks, logger),
		blocks:    blocks,
		state: &State{
			Prefs: core.NewPreferenceSet(core.GlobalScope),
		},
	}
}

func receiptMsg(from string) *core.Message {
	return &core.Message{
		ID:         "msg-1",
		From:       from,
		Subject:    "Order Confirmation #123",
		Body:       "Thanks! Your total was $49.99",
		ReceivedAt: time.Now(),
	}
}

func TestDecideEmptyStateForwards(t *testing.T) {
	f := newEvalFixture(t)

	verdict, err := f.evaluator.Decide(context.Background(), receiptMsg("receipts@store.com"), f.state)
	require.NoError(t, err)

	assert.Equal(t, core.DecisionForwarded, verdict.Decision)
	assert.Equal(t, "other", verdict.Category)
	assert.Equal(t, "no rule matched, passed receipt heuristic", verdict.Reason)
	assert.InDelta(t, 49.99, verdict.Amount, 0.001)
}

func TestDecideNonReceiptIsIgnoredNeverBlocked(t *testing.T) {
	f := newEvalFixture(t)
	f.state.Prefs.AddSender("friend")

	notReceipt := &core.Message{ID: "m", From: "friend@gmail.com", Subject: "hello", Body: "lunch?"}
	verdict, err := f.evaluator.Decide(context.Background(), notReceipt, f.state)
	require.NoError(t, err)

	assert.Equal(t, core.DecisionIgnored, verdict.Decision)
	assert.Equal(t, "not a receipt", verdict.Reason)
}

func TestDecideBlockedSender(t *testing.T) {
	f := newEvalFixture(t)
	f.state.Prefs.AddSender("store.com")

	verdict, err := f.evaluator.Decide(context.Background(), receiptMsg("receipts@store.com"), f.state)
	require.NoError(t, err)

	assert.Equal(t, core.DecisionBlocked, verdict.Decision)
	assert.Contains(t, verdict.Reason, "senders")
	assert.Contains(t, verdict.Reason, "store.com")
}

func TestDecideWhitelistOverridesBlocklist(t *testing.T) {
	f := newEvalFixture(t)
	f.state.Prefs.AddSender("store.com")
	f.state.Prefs.AddWhitelist("receipts@store.com")

	verdict, err := f.evaluator.Decide(context.Background(), receiptMsg("receipts@store.com"), f.state)
	require.NoError(t, err)

	assert.Equal(t, core.DecisionForwarded, verdict.Decision)
	assert.Contains(t, verdict.Reason, "whitelisted")
}

func TestDecideWhitelistBypassesReceiptGate(t *testing.T) {
	f := newEvalFixture(t)
	f.state.Prefs.AddWhitelist("friend@gmail.com")

	notReceipt := &core.Message{ID: "m", From: "friend@gmail.com", Subject: "hello", Body: "lunch?"}
	verdict, err := f.evaluator.Decide(context.Background(), notReceipt, f.state)
	require.NoError(t, err)

	assert.Equal(t, core.DecisionForwarded, verdict.Decision)
}

func TestDecideTemporaryBlockWinsOverWhitelist(t *testing.T) {
	f := newEvalFixture(t)
	ctx := context.Background()
	f.state.Prefs.AddWhitelist("receipts@store.com")
	require.NoError(t, f.blocks.Block(ctx, "receipts@store.com", "awaiting clarification"))

	verdict, err := f.evaluator.Decide(ctx, receiptMsg("Store <receipts@store.com>"), f.state)
	require.NoError(t, err)

	assert.Equal(t, core.DecisionBlocked, verdict.Decision)
	assert.Equal(t, "awaiting clarification", verdict.Reason)
}

func TestDecideManualRuleBeatsBlocklist(t *testing.T) {
	f := newEvalFixture(t)
	f.state.Prefs.AddSender("microsoft")
	f.state.ManualRules = []core.ManualRule{
		{ID: 1, SenderPattern: "xbox@microsoft.com", Purpose: "game pass receipts", Category: "subscriptions"},
	}

	verdict, err := f.evaluator.Decide(context.Background(), &core.Message{
		ID:      "m",
		From:    "Xbox <xbox@microsoft.com>",
		Subject: "Payment Receipt for Game Pass",
		Body:    "charged $15.00",
	}, f.state)
	require.NoError(t, err)

	assert.Equal(t, core.DecisionForwarded, verdict.Decision)
	assert.Equal(t, "subscriptions", verdict.Category)
	assert.Contains(t, verdict.Reason, "game pass receipts")
}

func TestDecideManualRulesDeclarationOrder(t *testing.T) {
	f := newEvalFixture(t)
	f.state.ManualRules = []core.ManualRule{
		{ID: 1, SenderPattern: "*@store.com", Purpose: "first", Category: "retail"},
		{ID: 2, SenderPattern: "receipts@store.com", Purpose: "second", Category: "payments"},
	}

	verdict, err := f.evaluator.Decide(context.Background(), receiptMsg("receipts@store.com"), f.state)
	require.NoError(t, err)

	assert.Contains(t, verdict.Reason, "first")
	assert.Equal(t, "retail", verdict.Category)
}

func TestDecideBlockedCategory(t *testing.T) {
	f := newEvalFixture(t)
	f.state.Prefs.AddCategory("transportation")

	verdict, err := f.evaluator.Decide(context.Background(), &core.Message{
		ID:      "m",
		From:    "Uber Receipts <noreply@uber.com>",
		Subject: "Your Tuesday trip receipt",
		Body:    "$23.10",
	}, f.state)
	require.NoError(t, err)

	assert.Equal(t, core.DecisionBlocked, verdict.Decision)
	assert.Equal(t, "transportation", verdict.Category)
	assert.Contains(t, verdict.Reason, "blocked categories")
}

func TestDecideBlockedKeyword(t *testing.T) {
	f := newEvalFixture(t)
	f.state.Prefs.AddKeyword("newsletter")

	verdict, err := f.evaluator.Decide(context.Background(), &core.Message{
		ID:      "m",
		From:    "receipts@store.com",
		Subject: "Receipt newsletter digest",
		Body:    "",
	}, f.state)
	require.NoError(t, err)

	assert.Equal(t, core.DecisionBlocked, verdict.Decision)
	assert.Contains(t, verdict.Reason, "keywords")
}

func TestDecideCategoryRulePriorityOrder(t *testing.T) {
	f := newEvalFixture(t)
	f.state.CategoryRules = []core.CategoryRule{
		{ID: 1, MatchType: core.MatchSender, Pattern: "*@store.com", AssignedCategory: "low", Priority: 1},
		{ID: 2, MatchType: core.MatchSender, Pattern: "*@store.com", AssignedCategory: "high", Priority: 5},
		{ID: 3, MatchType: core.MatchSender, Pattern: "*@store.com", AssignedCategory: "tie-later", Priority: 5},
	}

	verdict, err := f.evaluator.Decide(context.Background(), receiptMsg("receipts@store.com"), f.state)
	require.NoError(t, err)

	// Highest priority wins; the tie at priority 5 breaks on id ascending.
	assert.Equal(t, "high", verdict.Category)
}

func TestDecideCategoryRuleSubjectMatch(t *testing.T) {
	f := newEvalFixture(t)
	f.state.CategoryRules = []core.CategoryRule{
		{ID: 1, MatchType: core.MatchSubject, Pattern: "order confirmation*", AssignedCategory: "orders", Priority: 1},
	}

	verdict, err := f.evaluator.Decide(context.Background(), receiptMsg("receipts@store.com"), f.state)
	require.NoError(t, err)
	assert.Equal(t, "orders", verdict.Category)
}

func TestDecidePrivateRelaySenderNormalized(t *testing.T) {
	f := newEvalFixture(t)
	f.state.Prefs.AddSender("onepeloton.com")

	relay := receiptMsg(`"Peloton" <peloton_at_mail_onepeloton_com_k6myg754kg_192d3661@privaterelay.appleid.com>`)
	verdict, err := f.evaluator.Decide(context.Background(), relay, f.state)
	require.NoError(t, err)

	assert.Equal(t, core.DecisionBlocked, verdict.Decision)
}
