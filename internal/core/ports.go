package core

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when no entry exists for the given key.
var ErrNotFound = errors.New("not found")

// PreferenceStore persists per-scope preference sets.
type PreferenceStore interface {
	// Preferences returns the set for a scope, or an empty set if none is stored.
	Preferences(ctx context.Context, scope string) (*PreferenceSet, error)

	// SavePreferences replaces the stored set for the set's scope.
	SavePreferences(ctx context.Context, set *PreferenceSet) error
}

// RuleStore persists manual and category rules.
type RuleStore interface {
	// ManualRules returns all manual rules in declaration order.
	ManualRules(ctx context.Context) ([]ManualRule, error)

	// AddManualRule stores a rule and assigns its ID.
	AddManualRule(ctx context.Context, rule *ManualRule) error

	// CategoryRules returns all category rules; callers order them.
	CategoryRules(ctx context.Context) ([]CategoryRule, error)

	// AddCategoryRule stores a rule and assigns its ID.
	AddCategoryRule(ctx context.Context, rule *CategoryRule) error
}

// BlockStore persists temporary sender blocks keyed by lowercased sender.
type BlockStore interface {
	// GetBlock returns the block for a sender, or ErrNotFound.
	GetBlock(ctx context.Context, sender string) (*TemporaryBlock, error)

	// PutBlock creates or overwrites the block for its sender.
	PutBlock(ctx context.Context, block *TemporaryBlock) error

	// DeleteBlock removes a block. Deleting an absent block is not an error.
	DeleteBlock(ctx context.Context, sender string) error

	// Blocks returns all stored blocks, expired ones included.
	Blocks(ctx context.Context) ([]TemporaryBlock, error)
}

// LedgerStore persists processed records. Implementations may retain only the
// most recent entries, provided capacity comfortably exceeds one fetch window.
type LedgerStore interface {
	// Seen reports whether a record exists for the message id.
	Seen(ctx context.Context, messageID string) (bool, error)

	// PutRecord stores a record keyed by its message id.
	PutRecord(ctx context.Context, rec *ProcessedRecord) error

	// GetRecord returns the record for a message id, or ErrNotFound.
	GetRecord(ctx context.Context, messageID string) (*ProcessedRecord, error)

	// UpdateRecord rewrites an existing record, or ErrNotFound.
	UpdateRecord(ctx context.Context, rec *ProcessedRecord) error

	// RecordsSince returns records processed at or after the given instant.
	RecordsSince(ctx context.Context, since time.Time) ([]ProcessedRecord, error)

	// RecordsByRun returns all records belonging to one run.
	RecordsByRun(ctx context.Context, runID string) ([]ProcessedRecord, error)
}

// CandidateStore persists learning candidates.
type CandidateStore interface {
	// Candidates returns candidates with the given status; empty status means all.
	Candidates(ctx context.Context, status CandidateStatus) ([]LearningCandidate, error)

	// GetCandidate returns the candidate with the given id, or ErrNotFound.
	GetCandidate(ctx context.Context, id int64) (*LearningCandidate, error)

	// PutCandidate stores a new candidate and assigns its ID.
	PutCandidate(ctx context.Context, c *LearningCandidate) error

	// UpdateCandidate rewrites an existing candidate, or ErrNotFound.
	UpdateCandidate(ctx context.Context, c *LearningCandidate) error
}

// MailboxSource fetches new messages from the monitored mailbox.
type MailboxSource interface {
	FetchNewMessages(ctx context.Context, since time.Time) ([]*Message, error)
}

// MailSender delivers outbound mail built by the pipeline.
type MailSender interface {
	Deliver(ctx context.Context, to, subject, htmlBody string) error
}
