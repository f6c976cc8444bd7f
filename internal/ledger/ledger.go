// Package ledger provides the processing ledger: the idempotency gate that
// guarantees each message id is decided at most once, plus the explicit
// status-correction operations a human can apply after the fact.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sentinelshare/sentinel/internal/core"
)

// ErrWrongStatus is returned when a status correction is applied to a record
// whose current decision does not permit it.
var ErrWrongStatus = errors.New("record decision does not permit this correction")

// Service coordinates ledger reads and writes. Corrections that create rules
// go through the rule store so future runs honor them.
type Service struct {
	store  core.LedgerStore
	rules  core.RuleStore
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a ledger service.
func NewService(store core.LedgerStore, rules core.RuleStore, logger *zap.Logger) *Service {
	return &Service{store: store, rules: rules, logger: logger, now: time.Now}
}

// WithClock overrides the time source. Intended for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// AlreadyProcessed reports whether a decision already exists for the message.
func (s *Service) AlreadyProcessed(ctx context.Context, messageID string) (bool, error) {
	return s.store.Seen(ctx, messageID)
}

// Record writes the decision for a message. sender is the normalized address
// the evaluator matched against, not the raw From header.
func (s *Service) Record(ctx context.Context, msg *core.Message, sender string, verdict *core.Verdict, runID string) error {
	rec := &core.ProcessedRecord{
		MessageID:   msg.ID,
		Sender:      sender,
		Subject:     msg.Subject,
		Decision:    verdict.Decision,
		Category:    verdict.Category,
		Amount:      verdict.Amount,
		Reason:      verdict.Reason,
		ReceivedAt:  msg.ReceivedAt,
		ProcessedAt: s.now(),
		RunID:       runID,
	}
	if err := s.store.PutRecord(ctx, rec); err != nil {
		return fmt.Errorf("failed to record decision for %s: %w", msg.ID, err)
	}
	return nil
}

// MarkIgnored rewrites a forwarded or blocked record to ignored, appending an
// audit note so the original reason survives. Records already ignored or in
// error state are rejected with ErrWrongStatus.
func (s *Service) MarkIgnored(ctx context.Context, messageID, note string) error {
	rec, err := s.store.GetRecord(ctx, messageID)
	if err != nil {
		return err
	}
	if rec.Decision != core.DecisionForwarded && rec.Decision != core.DecisionBlocked {
		return fmt.Errorf("%w: %s is %s", ErrWrongStatus, messageID, rec.Decision)
	}

	previous := rec.Decision
	rec.Decision = core.DecisionIgnored
	rec.Reason = appendNote(rec.Reason, fmt.Sprintf("was %s, marked ignored: %s", previous, note))
	if err := s.store.UpdateRecord(ctx, rec); err != nil {
		return fmt.Errorf("failed to update record %s: %w", messageID, err)
	}

	s.logger.Info("Record marked ignored",
		zap.String("message_id", messageID),
		zap.String("previous", string(previous)))
	return nil
}

// MarkForwarded rewrites an ignored record to forwarded and creates a manual
// rule for the record's sender so the correction sticks for future mail.
func (s *Service) MarkForwarded(ctx context.Context, messageID, note string) (*core.ManualRule, error) {
	rec, err := s.store.GetRecord(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if rec.Decision != core.DecisionIgnored {
		return nil, fmt.Errorf("%w: %s is %s", ErrWrongStatus, messageID, rec.Decision)
	}

	rule := &core.ManualRule{
		SenderPattern: rec.Sender,
		Purpose:       fmt.Sprintf("correction for %s", rec.Subject),
		Category:      rec.Category,
		CreatedAt:     s.now(),
	}
	if err := s.rules.AddManualRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to create correction rule: %w", err)
	}

	rec.Decision = core.DecisionForwarded
	rec.Reason = appendNote(rec.Reason, fmt.Sprintf("was ignored, marked forwarded: %s", note))
	if err := s.store.UpdateRecord(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to update record %s: %w", messageID, err)
	}

	s.logger.Info("Record marked forwarded",
		zap.String("message_id", messageID),
		zap.Int64("rule_id", rule.ID))
	return rule, nil
}

// Summarize aggregates the decisions of one run.
func (s *Service) Summarize(ctx context.Context, runID string) (*core.RunSummary, error) {
	records, err := s.store.RecordsByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load run %s: %w", runID, err)
	}

	summary := &core.RunSummary{RunID: runID}
	for i, rec := range records {
		if i == 0 || rec.ProcessedAt.Before(summary.StartedAt) {
			summary.StartedAt = rec.ProcessedAt
		}
		switch rec.Decision {
		case core.DecisionForwarded:
			summary.Forwarded++
		case core.DecisionBlocked:
			summary.Blocked++
		case core.DecisionIgnored:
			summary.Ignored++
		case core.DecisionError:
			summary.Errors++
		}
	}
	return summary, nil
}

func appendNote(reason, note string) string {
	if reason == "" {
		return note
	}
	return reason + "; " + note
}
