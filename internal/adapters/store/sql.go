package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sentinelshare/sentinel/internal/core"
)

// SQLStore implements every persistence port over database/sql. The SQLite
// and MySQL constructors differ only in driver and schema DDL.
type SQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func newSQLStore(db *sql.DB, schema []string, logger *zap.Logger) (*SQLStore, error) {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return &SQLStore{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Preferences returns the stored set for a scope, or a fresh empty set.
func (s *SQLStore) Preferences(ctx context.Context, scope string) (*core.PreferenceSet, error) {
	var senders, categories, keywords, whitelist string
	err := s.db.QueryRowContext(ctx, `
		SELECT senders, categories, keywords, whitelist
		FROM preferences WHERE scope = ?
	`, scope).Scan(&senders, &categories, &keywords, &whitelist)
	if err == sql.ErrNoRows {
		return core.NewPreferenceSet(scope), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query preferences: %w", err)
	}

	set := core.NewPreferenceSet(scope)
	for _, pair := range []struct {
		raw  string
		dest *[]string
	}{
		{senders, &set.Senders},
		{categories, &set.Categories},
		{keywords, &set.Keywords},
		{whitelist, &set.Whitelist},
	} {
		if err := decodeList(pair.raw, pair.dest); err != nil {
			return nil, fmt.Errorf("failed to decode preferences for %s: %w", scope, err)
		}
	}
	return set, nil
}

// SavePreferences replaces the stored set for the set's scope.
func (s *SQLStore) SavePreferences(ctx context.Context, set *core.PreferenceSet) error {
	senders, err := encodeList(set.Senders)
	if err != nil {
		return err
	}
	categories, err := encodeList(set.Categories)
	if err != nil {
		return err
	}
	keywords, err := encodeList(set.Keywords)
	if err != nil {
		return err
	}
	whitelist, err := encodeList(set.Whitelist)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		REPLACE INTO preferences (scope, senders, categories, keywords, whitelist)
		VALUES (?, ?, ?, ?, ?)
	`, set.Scope, senders, categories, keywords, whitelist)
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}

// ManualRules returns all manual rules in declaration order.
func (s *SQLStore) ManualRules(ctx context.Context) ([]core.ManualRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_pattern, subject_pattern, purpose, category, created_at
		FROM manual_rules ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query manual rules: %w", err)
	}
	defer rows.Close()

	var out []core.ManualRule
	for rows.Next() {
		var rule core.ManualRule
		var createdAt string
		if err := rows.Scan(&rule.ID, &rule.SenderPattern, &rule.SubjectPattern,
			&rule.Purpose, &rule.Category, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan manual rule: %w", err)
		}
		rule.CreatedAt = parseTime(createdAt)
		out = append(out, rule)
	}
	return out, rows.Err()
}

// AddManualRule stores a rule and assigns its ID.
func (s *SQLStore) AddManualRule(ctx context.Context, rule *core.ManualRule) error {
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO manual_rules (sender_pattern, subject_pattern, purpose, category, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, rule.SenderPattern, rule.SubjectPattern, rule.Purpose, rule.Category, formatTime(rule.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert manual rule: %w", err)
	}
	rule.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read rule id: %w", err)
	}
	return nil
}

// CategoryRules returns all category rules.
func (s *SQLStore) CategoryRules(ctx context.Context) ([]core.CategoryRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, match_type, pattern, assigned_category, priority, created_at
		FROM category_rules ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query category rules: %w", err)
	}
	defer rows.Close()

	var out []core.CategoryRule
	for rows.Next() {
		var rule core.CategoryRule
		var matchType, createdAt string
		if err := rows.Scan(&rule.ID, &matchType, &rule.Pattern,
			&rule.AssignedCategory, &rule.Priority, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan category rule: %w", err)
		}
		rule.MatchType = core.CategoryMatchType(matchType)
		rule.CreatedAt = parseTime(createdAt)
		out = append(out, rule)
	}
	return out, rows.Err()
}

// AddCategoryRule stores a rule and assigns its ID.
func (s *SQLStore) AddCategoryRule(ctx context.Context, rule *core.CategoryRule) error {
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO category_rules (match_type, pattern, assigned_category, priority, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, string(rule.MatchType), rule.Pattern, rule.AssignedCategory, rule.Priority, formatTime(rule.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert category rule: %w", err)
	}
	rule.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read rule id: %w", err)
	}
	return nil
}

// GetBlock returns the block for a sender, or core.ErrNotFound.
func (s *SQLStore) GetBlock(ctx context.Context, sender string) (*core.TemporaryBlock, error) {
	var block core.TemporaryBlock
	var createdAt, expiresAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT sender, reason, created_at, expires_at
		FROM temp_blocks WHERE sender = ?
	`, strings.ToLower(sender)).Scan(&block.Sender, &block.Reason, &createdAt, &expiresAt)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query block: %w", err)
	}
	block.CreatedAt = parseTime(createdAt)
	block.ExpiresAt = parseTime(expiresAt)
	return &block, nil
}

// PutBlock creates or overwrites the block for its sender.
func (s *SQLStore) PutBlock(ctx context.Context, block *core.TemporaryBlock) error {
	_, err := s.db.ExecContext(ctx, `
		REPLACE INTO temp_blocks (sender, reason, created_at, expires_at)
		VALUES (?, ?, ?, ?)
	`, strings.ToLower(block.Sender), block.Reason,
		formatTime(block.CreatedAt), formatTime(block.ExpiresAt))
	if err != nil {
		return fmt.Errorf("failed to save block: %w", err)
	}
	return nil
}

// DeleteBlock removes a block; removing an absent block is a no-op.
func (s *SQLStore) DeleteBlock(ctx context.Context, sender string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM temp_blocks WHERE sender = ?
	`, strings.ToLower(sender))
	if err != nil {
		return fmt.Errorf("failed to delete block: %w", err)
	}
	return nil
}

// Blocks returns all stored blocks, expired ones included.
func (s *SQLStore) Blocks(ctx context.Context) ([]core.TemporaryBlock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sender, reason, created_at, expires_at FROM temp_blocks
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocks: %w", err)
	}
	defer rows.Close()

	var out []core.TemporaryBlock
	for rows.Next() {
		var block core.TemporaryBlock
		var createdAt, expiresAt string
		if err := rows.Scan(&block.Sender, &block.Reason, &createdAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("failed to scan block: %w", err)
		}
		block.CreatedAt = parseTime(createdAt)
		block.ExpiresAt = parseTime(expiresAt)
		out = append(out, block)
	}
	return out, rows.Err()
}

// Seen reports whether a record exists for the message id.
func (s *SQLStore) Seen(ctx context.Context, messageID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM processed WHERE message_id = ?
	`, messageID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to query ledger: %w", err)
	}
	return true, nil
}

// PutRecord stores a record keyed by its message id.
func (s *SQLStore) PutRecord(ctx context.Context, rec *core.ProcessedRecord) error {
	_, err := s.db.ExecContext(ctx, `
		REPLACE INTO processed
			(message_id, sender, subject, decision, category, amount, reason,
			 received_at, processed_at, run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.MessageID, rec.Sender, rec.Subject, string(rec.Decision), rec.Category,
		rec.Amount, rec.Reason, formatTime(rec.ReceivedAt), formatTime(rec.ProcessedAt), rec.RunID)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

// GetRecord returns the record for a message id, or core.ErrNotFound.
func (s *SQLStore) GetRecord(ctx context.Context, messageID string) (*core.ProcessedRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT message_id, sender, subject, decision, category, amount, reason,
		       received_at, processed_at, run_id
		FROM processed WHERE message_id = ?
	`, messageID)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query record: %w", err)
	}
	return rec, nil
}

// UpdateRecord rewrites an existing record.
func (s *SQLStore) UpdateRecord(ctx context.Context, rec *core.ProcessedRecord) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE processed
		SET sender = ?, subject = ?, decision = ?, category = ?, amount = ?,
		    reason = ?, received_at = ?, processed_at = ?, run_id = ?
		WHERE message_id = ?
	`, rec.Sender, rec.Subject, string(rec.Decision), rec.Category, rec.Amount,
		rec.Reason, formatTime(rec.ReceivedAt), formatTime(rec.ProcessedAt), rec.RunID, rec.MessageID)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return core.ErrNotFound
	}
	return nil
}

// RecordsSince returns records processed at or after the given instant.
func (s *SQLStore) RecordsSince(ctx context.Context, since time.Time) ([]core.ProcessedRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, sender, subject, decision, category, amount, reason,
		       received_at, processed_at, run_id
		FROM processed WHERE processed_at >= ? ORDER BY processed_at
	`, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// RecordsByRun returns all records belonging to one run.
func (s *SQLStore) RecordsByRun(ctx context.Context, runID string) ([]core.ProcessedRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, sender, subject, decision, category, amount, reason,
		       received_at, processed_at, run_id
		FROM processed WHERE run_id = ? ORDER BY processed_at
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// Candidates returns candidates with the given status; empty status means all.
func (s *SQLStore) Candidates(ctx context.Context, status core.CandidateStatus) ([]core.LearningCandidate, error) {
	query := `
		SELECT id, sender, subject_pattern, confidence, matches, example_subject, status, created_at
		FROM candidates`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	var out []core.LearningCandidate
	for rows.Next() {
		var c core.LearningCandidate
		var candidateStatus, createdAt string
		if err := rows.Scan(&c.ID, &c.Sender, &c.SubjectPattern, &c.Confidence,
			&c.Matches, &c.ExampleSubject, &candidateStatus, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		c.Status = core.CandidateStatus(candidateStatus)
		c.CreatedAt = parseTime(createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCandidate returns the candidate with the given id, or core.ErrNotFound.
func (s *SQLStore) GetCandidate(ctx context.Context, id int64) (*core.LearningCandidate, error) {
	var c core.LearningCandidate
	var status, createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sender, subject_pattern, confidence, matches, example_subject, status, created_at
		FROM candidates WHERE id = ?
	`, id).Scan(&c.ID, &c.Sender, &c.SubjectPattern, &c.Confidence,
		&c.Matches, &c.ExampleSubject, &status, &createdAt)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query candidate: %w", err)
	}
	c.Status = core.CandidateStatus(status)
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

// PutCandidate stores a new candidate and assigns its ID.
func (s *SQLStore) PutCandidate(ctx context.Context, c *core.LearningCandidate) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO candidates (sender, subject_pattern, confidence, matches, example_subject, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.Sender, c.SubjectPattern, c.Confidence, c.Matches, c.ExampleSubject,
		string(c.Status), formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert candidate: %w", err)
	}
	c.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read candidate id: %w", err)
	}
	return nil
}

// UpdateCandidate rewrites an existing candidate.
func (s *SQLStore) UpdateCandidate(ctx context.Context, c *core.LearningCandidate) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE candidates
		SET sender = ?, subject_pattern = ?, confidence = ?, matches = ?,
		    example_subject = ?, status = ?
		WHERE id = ?
	`, c.Sender, c.SubjectPattern, c.Confidence, c.Matches, c.ExampleSubject,
		string(c.Status), c.ID)
	if err != nil {
		return fmt.Errorf("failed to update candidate: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return core.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*core.ProcessedRecord, error) {
	var rec core.ProcessedRecord
	var decision, receivedAt, processedAt string
	err := row.Scan(&rec.MessageID, &rec.Sender, &rec.Subject, &decision,
		&rec.Category, &rec.Amount, &rec.Reason, &receivedAt, &processedAt, &rec.RunID)
	if err != nil {
		return nil, err
	}
	rec.Decision = core.Decision(decision)
	rec.ReceivedAt = parseTime(receivedAt)
	rec.ProcessedAt = parseTime(processedAt)
	return &rec, nil
}

func collectRecords(rows *sql.Rows) ([]core.ProcessedRecord, error) {
	var out []core.ProcessedRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func encodeList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("failed to encode list: %w", err)
	}
	return string(raw), nil
}

func decodeList(raw string, dest *[]string) error {
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), dest)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
