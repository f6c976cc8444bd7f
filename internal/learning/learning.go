// Package learning mines the processing ledger for repeated ignored senders
// and proposes manual rules for human approval. Suggestions never mutate rule
// state on their own; only Approve does.
package learning

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sentinelshare/sentinel/internal/core"
	"github.com/sentinelshare/sentinel/internal/match"
)

// DefaultMinMatches is the minimum number of ignored messages from one sender
// before a candidate is proposed.
const DefaultMinMatches = 2

var digitRunRe = regexp.MustCompile(`\d+`)

// Engine scans ledger history and manages the candidate lifecycle.
type Engine struct {
	ledger     core.LedgerStore
	rules      core.RuleStore
	candidates core.CandidateStore
	minMatches int
	logger     *zap.Logger
	now        func() time.Time
}

// NewEngine creates a learning engine. A non-positive minMatches falls back
// to DefaultMinMatches.
func NewEngine(
	ledger core.LedgerStore,
	rules core.RuleStore,
	candidates core.CandidateStore,
	minMatches int,
	logger *zap.Logger,
) *Engine {
	if minMatches <= 0 {
		minMatches = DefaultMinMatches
	}
	return &Engine{
		ledger:     ledger,
		rules:      rules,
		candidates: candidates,
		minMatches: minMatches,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the time source. Intended for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

type group struct {
	sender   string
	shape    string
	subjects []string
}

// Scan examines ignored records within the lookback window and stores a
// pending candidate per (sender, subject shape) group that clears the
// minimum-matches threshold. Senders already covered by a manual rule and
// groups already proposed are skipped. Returns the newly created candidates.
func (e *Engine) Scan(ctx context.Context, lookback time.Duration) ([]core.LearningCandidate, error) {
	since := e.now().Add(-lookback)
	records, err := e.ledger.RecordsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger history: %w", err)
	}

	manual, err := e.rules.ManualRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load manual rules: %w", err)
	}
	existing, err := e.candidates.Candidates(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates: %w", err)
	}

	groups := make(map[string]*group)
	for _, rec := range records {
		if rec.Decision != core.DecisionIgnored || rec.Sender == "" {
			continue
		}
		if senderCovered(manual, rec.Sender) {
			continue
		}
		shape := subjectShape(rec.Subject)
		key := rec.Sender + "\x00" + shape
		g, ok := groups[key]
		if !ok {
			g = &group{sender: rec.Sender, shape: shape}
			groups[key] = g
		}
		g.subjects = append(g.subjects, rec.Subject)
	}

	var created []core.LearningCandidate
	for _, g := range groups {
		if len(g.subjects) < e.minMatches {
			continue
		}
		if alreadyProposed(existing, g.sender, g.shape) {
			continue
		}

		candidate := &core.LearningCandidate{
			Sender:         g.sender,
			SubjectPattern: g.shape,
			Confidence:     confidence(len(g.subjects), g.subjects),
			Matches:        len(g.subjects),
			ExampleSubject: g.subjects[0],
			Status:         core.CandidatePending,
			CreatedAt:      e.now(),
		}
		if err := e.candidates.PutCandidate(ctx, candidate); err != nil {
			return created, fmt.Errorf("failed to store candidate for %s: %w", g.sender, err)
		}
		created = append(created, *candidate)

		e.logger.Info("Rule candidate proposed",
			zap.String("sender", g.sender),
			zap.Int("matches", candidate.Matches),
			zap.Float64("confidence", candidate.Confidence))
	}
	return created, nil
}

// Approve turns a pending candidate into a manual rule. The rule is created
// before the status flips, so a partial failure leaves the candidate pending
// rather than silently losing the rule.
func (e *Engine) Approve(ctx context.Context, id int64, category string) (*core.ManualRule, error) {
	candidate, err := e.candidates.GetCandidate(ctx, id)
	if err != nil {
		return nil, err
	}
	if candidate.Status != core.CandidatePending {
		return nil, fmt.Errorf("candidate %d is %s, not pending", id, candidate.Status)
	}

	rule := &core.ManualRule{
		SenderPattern: candidate.Sender,
		Purpose:       fmt.Sprintf("learned from %d ignored messages", candidate.Matches),
		Category:      category,
		CreatedAt:     e.now(),
	}
	if err := e.rules.AddManualRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to create rule from candidate %d: %w", id, err)
	}

	candidate.Status = core.CandidateApproved
	if err := e.candidates.UpdateCandidate(ctx, candidate); err != nil {
		return nil, fmt.Errorf("failed to mark candidate %d approved: %w", id, err)
	}

	e.logger.Info("Rule candidate approved",
		zap.Int64("candidate_id", id), zap.Int64("rule_id", rule.ID))
	return rule, nil
}

// Ignore dismisses a pending candidate so future scans do not re-propose it.
func (e *Engine) Ignore(ctx context.Context, id int64) error {
	candidate, err := e.candidates.GetCandidate(ctx, id)
	if err != nil {
		return err
	}
	if candidate.Status != core.CandidatePending {
		return fmt.Errorf("candidate %d is %s, not pending", id, candidate.Status)
	}

	candidate.Status = core.CandidateIgnored
	return e.candidates.UpdateCandidate(ctx, candidate)
}

// Pending lists candidates awaiting a decision.
func (e *Engine) Pending(ctx context.Context) ([]core.LearningCandidate, error) {
	return e.candidates.Candidates(ctx, core.CandidatePending)
}

// subjectShape collapses digit runs so "Order #123 shipped" and
// "Order #456 shipped" group together.
func subjectShape(subject string) string {
	shape := digitRunRe.ReplaceAllString(strings.ToLower(subject), "#")
	return strings.Join(strings.Fields(shape), " ")
}

func senderCovered(rules []core.ManualRule, sender string) bool {
	for _, rule := range rules {
		if rule.SenderPattern != "" && match.Matches(rule.SenderPattern, sender) {
			return true
		}
	}
	return false
}

func alreadyProposed(existing []core.LearningCandidate, sender, shape string) bool {
	for _, c := range existing {
		if strings.EqualFold(c.Sender, sender) && c.SubjectPattern == shape {
			return true
		}
	}
	return false
}

// confidence grows with repetition and gains a small bonus when every subject
// shares a common prefix, which suggests templated mail.
func confidence(matches int, subjects []string) float64 {
	score := 0.4 + 0.15*float64(matches)
	if score > 0.9 {
		score = 0.9
	}
	if len(subjects) > 1 && commonPrefixLen(subjects) >= 8 {
		score += 0.05
	}
	if score > 0.95 {
		score = 0.95
	}
	return score
}

func commonPrefixLen(subjects []string) int {
	prefix := subjects[0]
	for _, s := range subjects[1:] {
		n := 0
		for n < len(prefix) && n < len(s) && prefix[n] == s[n] {
			n++
		}
		prefix = prefix[:n]
	}
	return len(prefix)
}
