// Package rules combines whitelist, blocklists, temporary blocks, manual
// rules and category rules into a single decision with a reason trace.
package rules

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/sentinelshare/sentinel/internal/classify"
	"github.com/sentinelshare/sentinel/internal/core"
	"github.com/sentinelshare/sentinel/internal/match"
)

// State is the rule snapshot one decision is evaluated against. The caller
// loads it once per message (or once per run phase) through the persistence
// ports; the evaluator never reaches into storage for it.
type State struct {
	Prefs         *core.PreferenceSet
	ManualRules   []core.ManualRule
	CategoryRules []core.CategoryRule
}

// Evaluator turns a classified message plus rule state into a terminal
// decision. Evaluation short-circuits in a fixed order: explicit human
// overrides (temporary block, whitelist) dominate heuristics, and the
// receipt check gates whether blocklist logic applies at all, so a rejected
// non-receipt is "ignored" rather than "blocked".
type Evaluator struct {
	classifier *classify.Classifier
	blocks     *BlockManager
	logger     *zap.Logger
}

// NewEvaluator creates a rule evaluator.
func NewEvaluator(classifier *classify.Classifier, blocks *BlockManager, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		classifier: classifier,
		blocks:     blocks,
		logger:     logger,
	}
}

// Decide evaluates one message against the rule state.
func (e *Evaluator) Decide(ctx context.Context, msg *core.Message, state *State) (core.Verdict, error) {
	from := NormalizeFrom(msg.From)
	addr := AddressOf(from)

	// 1. Active temporary block wins over everything.
	block, err := e.blocks.ActiveBlock(ctx, addr)
	if err != nil {
		return core.Verdict{}, err
	}
	if block != nil {
		e.logger.Debug("Sender temporarily blocked",
			zap.String("message_id", msg.ID), zap.String("sender", addr))
		return core.Verdict{
			Decision: core.DecisionBlocked,
			Category: e.classifier.Categorize(msg),
			Reason:   block.Reason,
		}, nil
	}

	// 2. Whitelist bypasses every blocklist check below.
	if entry, ok := match.ContainsAny(state.Prefs.Whitelist, from); ok {
		return core.Verdict{
			Decision: core.DecisionForwarded,
			Category: e.categoryFor(msg, state),
			Reason:   fmt.Sprintf("sender whitelisted (%s)", entry),
			Amount:   e.classifier.ExtractAmount(msg),
		}, nil
	}

	// 3. Non-receipts are ignored, never blocked.
	if !e.classifier.IsReceipt(msg) {
		return core.Verdict{
			Decision: core.DecisionIgnored,
			Reason:   "not a receipt",
		}, nil
	}

	// 4. Manual rules, declaration order, first match wins.
	for i := range state.ManualRules {
		rule := &state.ManualRules[i]
		if !manualRuleMatches(rule, from, msg.Subject) {
			continue
		}
		category := rule.Category
		if category == "" {
			category = e.categoryFor(msg, state)
		}
		return core.Verdict{
			Decision: core.DecisionForwarded,
			Category: category,
			Reason:   fmt.Sprintf("manual rule: %s", rule.Purpose),
			Amount:   e.classifier.ExtractAmount(msg),
		}, nil
	}

	// 5. Blocklists: senders, then categories, then keywords.
	if entry, ok := match.ContainsAny(state.Prefs.Senders, from); ok {
		return core.Verdict{
			Decision: core.DecisionBlocked,
			Category: e.classifier.Categorize(msg),
			Reason:   fmt.Sprintf("matched blocked senders entry %q", entry),
		}, nil
	}
	if category := e.classifier.Categorize(msg); containsFold(state.Prefs.Categories, category) {
		return core.Verdict{
			Decision: core.DecisionBlocked,
			Category: category,
			Reason:   fmt.Sprintf("category %q is in blocked categories", category),
		}, nil
	}
	if entry, ok := match.ContainsAny(state.Prefs.Keywords, msg.Subject); ok {
		return core.Verdict{
			Decision: core.DecisionBlocked,
			Category: e.classifier.Categorize(msg),
			Reason:   fmt.Sprintf("subject matched blocked keywords entry %q", entry),
		}, nil
	}

	// 6. Forward.
	return core.Verdict{
		Decision: core.DecisionForwarded,
		Category: e.categoryFor(msg, state),
		Reason:   "no rule matched, passed receipt heuristic",
		Amount:   e.classifier.ExtractAmount(msg),
	}, nil
}

// categoryFor applies category rules (priority descending, id ascending on
// ties) and falls back to the classifier's category chain.
func (e *Evaluator) categoryFor(msg *core.Message, state *State) string {
	ordered := orderCategoryRules(state.CategoryRules)
	from := NormalizeFrom(msg.From)

	for i := range ordered {
		rule := &ordered[i]
		var value string
		switch rule.MatchType {
		case core.MatchSender:
			value = from
		case core.MatchSubject:
			value = msg.Subject
		default:
			continue
		}
		if match.Matches(rule.Pattern, value) {
			return rule.AssignedCategory
		}
	}
	return e.classifier.Categorize(msg)
}

// orderCategoryRules returns a copy sorted by priority descending, then id
// ascending for determinism.
func orderCategoryRules(in []core.CategoryRule) []core.CategoryRule {
	out := append([]core.CategoryRule(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// manualRuleMatches requires every non-empty pattern of the rule to match;
// a rule with no patterns never matches.
func manualRuleMatches(rule *core.ManualRule, from, subject string) bool {
	if rule.SenderPattern == "" && rule.SubjectPattern == "" {
		return false
	}
	if rule.SenderPattern != "" && !match.Contains(rule.SenderPattern, from) {
		return false
	}
	if rule.SubjectPattern != "" && !match.Contains(rule.SubjectPattern, subject) {
		return false
	}
	return true
}

func containsFold(list []string, value string) bool {
	for _, item := range list {
		if match.Matches(item, value) {
			return true
		}
	}
	return false
}
