package core

import (
	"strings"
	"time"
)

// Message is an immutable snapshot of an inbound email as captured by the
// mailbox collaborator. The pipeline never mutates it after capture.
type Message struct {
	ID         string
	From       string
	To         []string
	Subject    string
	Body       string
	ReceivedAt time.Time
	Source     string
}

// Decision is the terminal outcome for one processed message.
type Decision string

const (
	DecisionForwarded Decision = "forwarded"
	DecisionBlocked   Decision = "blocked"
	DecisionIgnored   Decision = "ignored"
	DecisionError     Decision = "error"
)

// Verdict is the result of rule evaluation for a single message.
type Verdict struct {
	Decision Decision
	Category string
	Reason   string
	Amount   float64
}

// GlobalScope is the preference scope used when no per-user scoping applies.
const GlobalScope = "global"

// PreferenceSet holds the four semantic preference containers for one scope.
// A sender present in Whitelist always overrides blocklist membership.
type PreferenceSet struct {
	Scope      string
	Senders    []string
	Categories []string
	Keywords   []string
	Whitelist  []string
}

// NewPreferenceSet returns an empty preference set for the given scope.
func NewPreferenceSet(scope string) *PreferenceSet {
	return &PreferenceSet{Scope: scope}
}

func containsFold(list []string, value string) bool {
	for _, item := range list {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}

func addUnique(list []string, value string) ([]string, bool) {
	if containsFold(list, value) {
		return list, false
	}
	return append(list, value), true
}

func removeFold(list []string, value string) ([]string, bool) {
	for i, item := range list {
		if strings.EqualFold(item, value) {
			return append(list[:i], list[i+1:]...), true
		}
	}
	return list, false
}

// AddSender adds a blocked-sender entry. Returns false if already present.
func (p *PreferenceSet) AddSender(v string) (changed bool) {
	p.Senders, changed = addUnique(p.Senders, v)
	return changed
}

// AddCategory adds a blocked-category entry. Returns false if already present.
func (p *PreferenceSet) AddCategory(v string) (changed bool) {
	p.Categories, changed = addUnique(p.Categories, v)
	return changed
}

// AddKeyword adds a blocked-keyword entry. Returns false if already present.
func (p *PreferenceSet) AddKeyword(v string) (changed bool) {
	p.Keywords, changed = addUnique(p.Keywords, v)
	return changed
}

// AddWhitelist adds an always-forward entry. Returns false if already present.
func (p *PreferenceSet) AddWhitelist(v string) (changed bool) {
	p.Whitelist, changed = addUnique(p.Whitelist, v)
	return changed
}

// RemoveSender drops a blocked-sender entry. No-op if absent.
func (p *PreferenceSet) RemoveSender(v string) (changed bool) {
	p.Senders, changed = removeFold(p.Senders, v)
	return changed
}

// RemoveCategory drops a blocked-category entry. No-op if absent.
func (p *PreferenceSet) RemoveCategory(v string) (changed bool) {
	p.Categories, changed = removeFold(p.Categories, v)
	return changed
}

// Clone returns a deep copy so callers can mutate without aliasing the
// snapshot handed to the evaluator.
func (p *PreferenceSet) Clone() *PreferenceSet {
	return &PreferenceSet{
		Scope:      p.Scope,
		Senders:    append([]string(nil), p.Senders...),
		Categories: append([]string(nil), p.Categories...),
		Keywords:   append([]string(nil), p.Keywords...),
		Whitelist:  append([]string(nil), p.Whitelist...),
	}
}

// ManualRule is a user-authored sender/subject pattern with an attached
// purpose. Manual rules are matched in declaration order; first match wins.
type ManualRule struct {
	ID             int64
	SenderPattern  string
	SubjectPattern string
	Purpose        string
	Category       string
	CreatedAt      time.Time
}

// CategoryMatchType selects which message field a category rule matches.
type CategoryMatchType string

const (
	MatchSender  CategoryMatchType = "sender"
	MatchSubject CategoryMatchType = "subject"
)

// CategoryRule assigns a category label rather than a forward/block decision.
// Rules are evaluated in descending priority order, ties broken by ID ascending.
type CategoryRule struct {
	ID               int64
	MatchType        CategoryMatchType
	Pattern          string
	AssignedCategory string
	Priority         int
	CreatedAt        time.Time
}

// TemporaryBlock is a time-boxed suppression of a sender. Sender is stored
// lowercased. Expired blocks are lazily removed the first time they are
// observed past ExpiresAt.
type TemporaryBlock struct {
	Sender    string
	Reason    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Active reports whether the block is still in force at the given instant.
func (b *TemporaryBlock) Active(now time.Time) bool {
	return !now.After(b.ExpiresAt)
}

// ProcessedRecord is the ledger entry created exactly once per message id.
// Decision may later be rewritten by the explicit status-correction
// operations, which also append an audit note to Reason.
type ProcessedRecord struct {
	MessageID   string
	Sender      string
	Subject     string
	Decision    Decision
	Category    string
	Amount      float64
	Reason      string
	ReceivedAt  time.Time
	ProcessedAt time.Time
	RunID       string
}

// RunSummary aggregates the records of one poll cycle for reporting.
type RunSummary struct {
	RunID     string
	StartedAt time.Time
	Forwarded int
	Blocked   int
	Ignored   int
	Errors    int
}

// Total returns the number of records in the run.
func (s RunSummary) Total() int {
	return s.Forwarded + s.Blocked + s.Ignored + s.Errors
}

// CandidateStatus is the lifecycle state of a learning candidate.
type CandidateStatus string

const (
	CandidatePending  CandidateStatus = "pending"
	CandidateApproved CandidateStatus = "approved"
	CandidateIgnored  CandidateStatus = "ignored"
)

// LearningCandidate is a machine-suggested rule mined from repeated
// unclassified history. It never mutates rule state until approved.
type LearningCandidate struct {
	ID             int64
	Sender         string
	SubjectPattern string
	Confidence     float64
	Matches        int
	ExampleSubject string
	Status         CandidateStatus
	CreatedAt      time.Time
}
