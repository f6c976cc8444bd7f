package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sentinelshare/sentinel/internal/adapters/store"
	"github.com/sentinelshare/sentinel/internal/classify"
	"github.com/sentinelshare/sentinel/internal/command"
	"github.com/sentinelshare/sentinel/internal/core"
	"github.com/sentinelshare/sentinel/internal/ledger"
	"github.com/sentinelshare/sentinel/internal/rules"
)

const recipient = "me@example.com"

type fakeMailbox struct {
	messages []*core.Message
}

func (f *fakeMailbox) FetchNewMessages(_ context.Context, _ time.Time) ([]*core.Message, error) {
	return f.messages, nil
}

type sentMail struct {
	to      string
	subject string
	body    string
}

type fakeMailer struct {
	sent []sentMail
	fail bool
}

func (f *fakeMailer) Deliver(_ context.Context, to, subject, htmlBody string) error {
	if f.fail {
		return errors.New("smtp connection refused")
	}
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: htmlBody})
	return nil
}

type fixture struct {
	engine  *Engine
	mailbox *fakeMailbox
	mailer  *fakeMailer
	store   *store.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zap.NewNop()
	mem := store.NewMemoryStore(100, logger)
	mailbox := &fakeMailbox{}
	mailer := &fakeMailer{}

	classifier := classify.New(nil, nil, logger)
	blocks := rules.NewBlockManager(mem, rules.DefaultBlockTTL, logger)
	evaluator := rules.NewEvaluator(classifier, blocks, logger)
	parser := command.NewParser(logger)
	applier := command.NewApplier(mem, blocks, mailer, recipient, logger)
	ledgerSvc := ledger.NewService(mem, mem, logger)

	eng := New(mailbox, mailer, mem, mem, evaluator, blocks, parser, applier, ledgerSvc, Options{
		Recipient:    recipient,
		Lookback:     72 * time.Hour,
		PollInterval: time.Minute,
	}, logger)

	return &fixture{engine: eng, mailbox: mailbox, mailer: mailer, store: mem}
}

func receipt(id, from, subject string) *core.Message {
	return &core.Message{
		ID:         id,
		From:       from,
		Subject:    subject,
		Body:       "Thanks! Your total was $12.50",
		ReceivedAt: time.Now(),
	}
}

func TestRunCycleForwardsReceipt(t *testing.T) {
	f := newFixture(t)
	f.mailbox.messages = []*core.Message{
		receipt("m1", "Uber Receipts <noreply@uber.com>", "Your trip receipt"),
	}

	summary, err := f.engine.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Forwarded)

	require.Len(t, f.mailer.sent, 1)
	mail := f.mailer.sent[0]
	assert.Equal(t, recipient, mail.to)
	assert.Equal(t, "Fwd: Your trip receipt", mail.subject)
	assert.Contains(t, mail.body, "From: Uber Receipts")
	assert.Contains(t, mail.body, "STOP")
	assert.Contains(t, mail.body, "NEVERMIND")
	assert.Contains(t, mail.body, "$12.50")

	rec, err := f.store.GetRecord(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, core.DecisionForwarded, rec.Decision)
	assert.Equal(t, "transportation", rec.Category)
	assert.Equal(t, "noreply@uber.com", rec.Sender)
}

func TestRunCycleIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.mailbox.messages = []*core.Message{
		receipt("m1", "noreply@uber.com", "Your trip receipt"),
	}
	ctx := context.Background()

	_, err := f.engine.RunCycle(ctx)
	require.NoError(t, err)
	_, err = f.engine.RunCycle(ctx)
	require.NoError(t, err)

	assert.Len(t, f.mailer.sent, 1, "overlapping fetch windows must not double-forward")
}

func TestRunCycleIgnoresNonReceipt(t *testing.T) {
	f := newFixture(t)
	f.mailbox.messages = []*core.Message{
		{ID: "m1", From: "friend@gmail.com", Subject: "lunch?", Body: "tomorrow?"},
	}

	summary, err := f.engine.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Ignored)
	assert.Empty(t, f.mailer.sent)

	rec, err := f.store.GetRecord(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "not a receipt", rec.Reason)
}

func TestRunCycleAppliesRepliesBeforeDeciding(t *testing.T) {
	f := newFixture(t)
	f.mailbox.messages = []*core.Message{
		{ID: "r1", From: "Me <" + recipient + ">", Subject: "Re: Fwd: Your trip receipt", Body: "stop uber"},
		receipt("m1", "Uber Receipts <noreply@uber.com>", "Your trip receipt"),
	}

	summary, err := f.engine.RunCycle(context.Background())
	require.NoError(t, err)

	// The reply lands in the ledger as ignored; the receipt is blocked by
	// the preference the reply just created.
	assert.Equal(t, 1, summary.Blocked)
	assert.Equal(t, 1, summary.Ignored)
	assert.Empty(t, f.mailer.sent)

	prefs, err := f.store.Preferences(context.Background(), core.GlobalScope)
	require.NoError(t, err)
	assert.Equal(t, []string{"uber"}, prefs.Senders)
}

func TestRunCycleReplyAppliedOnlyOnce(t *testing.T) {
	f := newFixture(t)
	f.mailbox.messages = []*core.Message{
		{ID: "r1", From: recipient, Subject: "Re: Fwd", Body: "stop uber"},
	}
	ctx := context.Background()

	_, err := f.engine.RunCycle(ctx)
	require.NoError(t, err)

	// Undo by hand, then rerun with the same fetch result. The ledger keeps
	// the reply from being reapplied.
	prefs, err := f.store.Preferences(ctx, core.GlobalScope)
	require.NoError(t, err)
	prefs.RemoveSender("uber")
	require.NoError(t, f.store.SavePreferences(ctx, prefs))

	_, err = f.engine.RunCycle(ctx)
	require.NoError(t, err)

	prefs, err = f.store.Preferences(ctx, core.GlobalScope)
	require.NoError(t, err)
	assert.Empty(t, prefs.Senders)
}

func TestRunCycleGenericStopBlocksSameCycle(t *testing.T) {
	f := newFixture(t)
	replyBody := "stop\n\n> From: Uber Receipts <noreply@uber.com>\n> Subject: Your trip receipt"
	f.mailbox.messages = []*core.Message{
		{ID: "r1", From: recipient, Subject: "Re: Fwd: Your trip receipt", Body: replyBody},
		receipt("m1", "Uber Receipts <noreply@uber.com>", "Your trip receipt"),
	}

	summary, err := f.engine.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Blocked)

	rec, err := f.store.GetRecord(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, core.DecisionBlocked, rec.Decision)
	assert.Equal(t, "awaiting clarification", rec.Reason)

	// The only outbound mail is the clarification, not a forward.
	require.Len(t, f.mailer.sent, 1)
	assert.Contains(t, f.mailer.sent[0].subject, "noreply@uber.com")
}

func TestRunCycleDeliveryFailureRecordedAsError(t *testing.T) {
	f := newFixture(t)
	f.mailer.fail = true
	f.mailbox.messages = []*core.Message{
		receipt("m1", "noreply@uber.com", "Your trip receipt"),
	}

	summary, err := f.engine.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 0, summary.Forwarded)

	rec, err := f.store.GetRecord(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, core.DecisionError, rec.Decision)
	assert.Contains(t, rec.Reason, "delivery failed")
}

func TestRunCycleHonorsCancellation(t *testing.T) {
	f := newFixture(t)
	f.mailbox.messages = []*core.Message{
		receipt("m1", "noreply@uber.com", "Your trip receipt"),
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.RunCycle(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStartStop(t *testing.T) {
	f := newFixture(t)
	f.mailbox.messages = []*core.Message{
		receipt("m1", "noreply@uber.com", "Your trip receipt"),
	}

	ctx := context.Background()
	f.engine.Start(ctx)
	// The first cycle runs immediately; give it a moment before stopping.
	time.Sleep(50 * time.Millisecond)
	f.engine.Stop()

	assert.Len(t, f.mailer.sent, 1)
}
