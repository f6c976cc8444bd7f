// Package engine orchestrates one processing cycle: apply reply commands
// first, then decide and forward new receipts, recording every decision in
// the ledger exactly once.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sentinelshare/sentinel/internal/command"
	"github.com/sentinelshare/sentinel/internal/core"
	"github.com/sentinelshare/sentinel/internal/ledger"
	"github.com/sentinelshare/sentinel/internal/rules"
)

// Options configure the processing loop.
type Options struct {
	// Recipient receives forwarded receipts; replies from this address are
	// treated as commands.
	Recipient string

	// Lookback is how far back each fetch reaches. The ledger deduplicates
	// the overlap between consecutive windows.
	Lookback time.Duration

	// PollInterval is the delay between cycles when running as a daemon.
	PollInterval time.Duration
}

// Engine drives the fetch-decide-forward pipeline.
type Engine struct {
	mailbox   core.MailboxSource
	mailer    core.MailSender
	prefs     core.PreferenceStore
	rules     core.RuleStore
	evaluator *rules.Evaluator
	blocks    *rules.BlockManager
	parser    *command.Parser
	applier   *command.Applier
	ledger    *ledger.Service
	opts      Options
	logger    *zap.Logger
	now       func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a processing engine.
func New(
	mailbox core.MailboxSource,
	mailer core.MailSender,
	prefs core.PreferenceStore,
	ruleStore core.RuleStore,
	evaluator *rules.Evaluator,
	blocks *rules.BlockManager,
	parser *command.Parser,
	applier *command.Applier,
	ledgerSvc *ledger.Service,
	opts Options,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		mailbox:   mailbox,
		mailer:    mailer,
		prefs:     prefs,
		rules:     ruleStore,
		evaluator: evaluator,
		blocks:    blocks,
		parser:    parser,
		applier:   applier,
		ledger:    ledgerSvc,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// WithClock overrides the time source. Intended for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// RunCycle executes one full cycle and returns its summary. Replies are
// applied before any decision so a STOP sent between cycles affects this
// cycle's mail.
func (e *Engine) RunCycle(ctx context.Context) (*core.RunSummary, error) {
	start := e.now()
	runID := "run-" + start.UTC().Format("20060102-150405")

	messages, err := e.mailbox.FetchNewMessages(ctx, start.Add(-e.opts.Lookback))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch mailbox: %w", err)
	}
	e.logger.Info("Cycle started",
		zap.String("run_id", runID), zap.Int("fetched", len(messages)))

	replies, inbound := e.split(messages)

	for _, msg := range replies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.processReply(ctx, msg, runID); err != nil {
			e.logger.Error("Failed to process reply",
				zap.String("message_id", msg.ID), zap.Error(err))
		}
	}

	// Rule state is loaded after the reply phase so fresh commands apply to
	// this cycle's decisions.
	state, err := e.loadState(ctx)
	if err != nil {
		return nil, err
	}

	for _, msg := range inbound {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.processMessage(ctx, msg, state, runID); err != nil {
			e.logger.Error("Failed to process message",
				zap.String("message_id", msg.ID), zap.Error(err))
		}
	}

	// Garbage-collect expired temporary blocks; lazy removal keeps decisions
	// correct without this, but dead entries should not accumulate.
	if _, err := e.blocks.Sweep(ctx); err != nil {
		e.logger.Warn("Block sweep failed", zap.Error(err))
	}

	summary, err := e.ledger.Summarize(ctx, runID)
	if err != nil {
		return nil, err
	}
	e.logger.Info("Cycle finished",
		zap.String("run_id", runID),
		zap.Int("forwarded", summary.Forwarded),
		zap.Int("blocked", summary.Blocked),
		zap.Int("ignored", summary.Ignored),
		zap.Int("errors", summary.Errors))
	return summary, nil
}

// Start runs cycles until Stop is called or the context is cancelled. The
// first cycle runs immediately.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		ticker := time.NewTicker(e.opts.PollInterval)
		defer ticker.Stop()

		for {
			if _, err := e.RunCycle(ctx); err != nil && ctx.Err() == nil {
				e.logger.Error("Cycle failed", zap.Error(err))
			}
			select {
			case <-ticker.C:
			case <-e.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop terminates the poll loop and waits for the in-flight cycle.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
}

// split separates command replies from ordinary inbound mail. A reply is any
// message whose sender address is the forward recipient.
func (e *Engine) split(messages []*core.Message) (replies, inbound []*core.Message) {
	recipient := strings.ToLower(e.opts.Recipient)
	for _, msg := range messages {
		if rules.AddressOf(msg.From) == recipient {
			replies = append(replies, msg)
		} else {
			inbound = append(inbound, msg)
		}
	}
	return replies, inbound
}

func (e *Engine) processReply(ctx context.Context, msg *core.Message, runID string) error {
	seen, err := e.ledger.AlreadyProcessed(ctx, msg.ID)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}

	commands := e.parser.Parse(msg.Body)
	if len(commands) > 0 {
		if err := e.applier.Apply(ctx, msg.Body, commands); err != nil {
			return err
		}
	}

	verdict := &core.Verdict{
		Decision: core.DecisionIgnored,
		Reason:   fmt.Sprintf("reply: %d command(s) applied", len(commands)),
	}
	return e.ledger.Record(ctx, msg, rules.AddressOf(msg.From), verdict, runID)
}

func (e *Engine) processMessage(ctx context.Context, msg *core.Message, state *rules.State, runID string) error {
	seen, err := e.ledger.AlreadyProcessed(ctx, msg.ID)
	if err != nil {
		return err
	}
	if seen {
		return nil
	}

	verdict, err := e.evaluator.Decide(ctx, msg, state)
	if err != nil {
		return err
	}

	if verdict.Decision == core.DecisionForwarded {
		subject, body := renderForward(msg, &verdict)
		if err := e.mailer.Deliver(ctx, e.opts.Recipient, subject, body); err != nil {
			e.logger.Error("Delivery failed",
				zap.String("message_id", msg.ID), zap.Error(err))
			verdict.Decision = core.DecisionError
			verdict.Reason = fmt.Sprintf("delivery failed: %v", err)
		}
	}

	sender := rules.AddressOf(rules.NormalizeFrom(msg.From))
	if err := e.ledger.Record(ctx, msg, sender, &verdict, runID); err != nil {
		return err
	}

	e.logger.Info("Message decided",
		zap.String("message_id", msg.ID),
		zap.String("sender", sender),
		zap.String("decision", string(verdict.Decision)),
		zap.String("category", verdict.Category),
		zap.String("reason", verdict.Reason))
	return nil
}

func (e *Engine) loadState(ctx context.Context) (*rules.State, error) {
	prefs, err := e.prefs.Preferences(ctx, core.GlobalScope)
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", err)
	}
	manual, err := e.rules.ManualRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load manual rules: %w", err)
	}
	category, err := e.rules.CategoryRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load category rules: %w", err)
	}
	return &rules.State{Prefs: prefs, ManualRules: manual, CategoryRules: category}, nil
}
