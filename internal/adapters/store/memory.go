// Package store provides implementations of the persistence ports: an
// in-memory store for tests and single-process setups, SQLite and MySQL
// stores for durable deployments, and a Redis-backed processing ledger.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sentinelshare/sentinel/internal/core"
)

// DefaultLedgerCapacity bounds the in-memory ledger when no capacity is
// configured. It must comfortably exceed the number of messages processed
// between two consecutive poll cycles.
const DefaultLedgerCapacity = 10000

// MemoryStore is an in-memory implementation of every persistence port.
type MemoryStore struct {
	mu sync.RWMutex

	prefs         map[string]*core.PreferenceSet
	manualRules   []core.ManualRule
	categoryRules []core.CategoryRule
	blocks        map[string]core.TemporaryBlock
	candidates    map[int64]core.LearningCandidate

	records  map[string]core.ProcessedRecord
	order    []string // message ids, oldest first, for bounded eviction
	capacity int

	nextRuleID      int64
	nextCandidateID int64

	logger *zap.Logger
}

// NewMemoryStore creates an in-memory store with a bounded ledger. A
// non-positive capacity falls back to DefaultLedgerCapacity.
func NewMemoryStore(capacity int, logger *zap.Logger) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultLedgerCapacity
	}
	return &MemoryStore{
		prefs:      make(map[string]*core.PreferenceSet),
		blocks:     make(map[string]core.TemporaryBlock),
		candidates: make(map[int64]core.LearningCandidate),
		records:    make(map[string]core.ProcessedRecord),
		capacity:   capacity,
		logger:     logger,
	}
}

// Preferences returns the stored set for a scope, or a fresh empty set.
func (s *MemoryStore) Preferences(ctx context.Context, scope string) (*core.PreferenceSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if set, ok := s.prefs[scope]; ok {
		return set.Clone(), nil
	}
	return core.NewPreferenceSet(scope), nil
}

// SavePreferences replaces the stored set for the set's scope.
func (s *MemoryStore) SavePreferences(ctx context.Context, set *core.PreferenceSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prefs[set.Scope] = set.Clone()
	return nil
}

// ManualRules returns all manual rules in declaration order.
func (s *MemoryStore) ManualRules(ctx context.Context) ([]core.ManualRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]core.ManualRule(nil), s.manualRules...), nil
}

// AddManualRule stores a rule and assigns its ID.
func (s *MemoryStore) AddManualRule(ctx context.Context, rule *core.ManualRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextRuleID++
	rule.ID = s.nextRuleID
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}
	s.manualRules = append(s.manualRules, *rule)
	return nil
}

// CategoryRules returns all category rules.
func (s *MemoryStore) CategoryRules(ctx context.Context) ([]core.CategoryRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]core.CategoryRule(nil), s.categoryRules...), nil
}

// AddCategoryRule stores a rule and assigns its ID.
func (s *MemoryStore) AddCategoryRule(ctx context.Context, rule *core.CategoryRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextRuleID++
	rule.ID = s.nextRuleID
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}
	s.categoryRules = append(s.categoryRules, *rule)
	return nil
}

// GetBlock returns the block for a sender, or core.ErrNotFound.
func (s *MemoryStore) GetBlock(ctx context.Context, sender string) (*core.TemporaryBlock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	block, ok := s.blocks[strings.ToLower(sender)]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &block, nil
}

// PutBlock creates or overwrites the block for its sender.
func (s *MemoryStore) PutBlock(ctx context.Context, block *core.TemporaryBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blocks[strings.ToLower(block.Sender)] = *block
	return nil
}

// DeleteBlock removes a block; removing an absent block is a no-op.
func (s *MemoryStore) DeleteBlock(ctx context.Context, sender string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blocks, strings.ToLower(sender))
	return nil
}

// Blocks returns all stored blocks, expired ones included.
func (s *MemoryStore) Blocks(ctx context.Context) ([]core.TemporaryBlock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.TemporaryBlock, 0, len(s.blocks))
	for _, block := range s.blocks {
		out = append(out, block)
	}
	return out, nil
}

// Seen reports whether a record exists for the message id.
func (s *MemoryStore) Seen(ctx context.Context, messageID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.records[messageID]
	return ok, nil
}

// PutRecord stores a record, evicting the oldest entries past capacity.
func (s *MemoryStore) PutRecord(ctx context.Context, rec *core.ProcessedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.MessageID]; !exists {
		s.order = append(s.order, rec.MessageID)
	}
	s.records[rec.MessageID] = *rec

	for len(s.order) > s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.records, oldest)
	}
	return nil
}

// GetRecord returns the record for a message id, or core.ErrNotFound.
func (s *MemoryStore) GetRecord(ctx context.Context, messageID string) (*core.ProcessedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[messageID]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &rec, nil
}

// UpdateRecord rewrites an existing record.
func (s *MemoryStore) UpdateRecord(ctx context.Context, rec *core.ProcessedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.MessageID]; !ok {
		return core.ErrNotFound
	}
	s.records[rec.MessageID] = *rec
	return nil
}

// RecordsSince returns records processed at or after the given instant,
// oldest first.
func (s *MemoryStore) RecordsSince(ctx context.Context, since time.Time) ([]core.ProcessedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.ProcessedRecord
	for _, rec := range s.records {
		if !rec.ProcessedAt.Before(since) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProcessedAt.Before(out[j].ProcessedAt) })
	return out, nil
}

// RecordsByRun returns all records belonging to one run, oldest first.
func (s *MemoryStore) RecordsByRun(ctx context.Context, runID string) ([]core.ProcessedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.ProcessedRecord
	for _, rec := range s.records {
		if rec.RunID == runID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProcessedAt.Before(out[j].ProcessedAt) })
	return out, nil
}

// Candidates returns candidates with the given status; empty status means all.
func (s *MemoryStore) Candidates(ctx context.Context, status core.CandidateStatus) ([]core.LearningCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []core.LearningCandidate
	for _, c := range s.candidates {
		if status == "" || c.Status == status {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetCandidate returns the candidate with the given id, or core.ErrNotFound.
func (s *MemoryStore) GetCandidate(ctx context.Context, id int64) (*core.LearningCandidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.candidates[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return &c, nil
}

// PutCandidate stores a new candidate and assigns its ID.
func (s *MemoryStore) PutCandidate(ctx context.Context, c *core.LearningCandidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextCandidateID++
	c.ID = s.nextCandidateID
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	s.candidates[c.ID] = *c
	return nil
}

// UpdateCandidate rewrites an existing candidate.
func (s *MemoryStore) UpdateCandidate(ctx context.Context, c *core.LearningCandidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.candidates[c.ID]; !ok {
		return core.ErrNotFound
	}
	s.candidates[c.ID] = *c
	return nil
}
