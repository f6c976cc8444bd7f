package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/sentinelshare/sentinel/internal/core"
)

const (
	recordKeyPrefix = "sentinel:rec:"
	recordIndexKey  = "sentinel:recs"
	runKeyPrefix    = "sentinel:run:"
)

// RedisLedger is a Redis-backed processing ledger. Records live under one key
// each, with a sorted set indexing them by processing time for retention and
// range queries. Only the ledger port lives in Redis; rules and preferences
// stay in the primary store.
type RedisLedger struct {
	client   *redis.Client
	capacity int
	logger   *zap.Logger
}

// NewRedisLedger creates a Redis ledger. A non-positive capacity falls back
// to DefaultLedgerCapacity.
func NewRedisLedger(addr, password string, db, capacity int, logger *zap.Logger) (*RedisLedger, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisLedgerFromClient(client, capacity, logger), nil
}

// NewRedisLedgerFromClient wraps an existing client. Intended for tests.
func NewRedisLedgerFromClient(client *redis.Client, capacity int, logger *zap.Logger) *RedisLedger {
	if capacity <= 0 {
		capacity = DefaultLedgerCapacity
	}
	return &RedisLedger{client: client, capacity: capacity, logger: logger}
}

// Close closes the underlying client.
func (l *RedisLedger) Close() error {
	return l.client.Close()
}

// Seen reports whether a record exists for the message id.
func (l *RedisLedger) Seen(ctx context.Context, messageID string) (bool, error) {
	n, err := l.client.Exists(ctx, recordKeyPrefix+messageID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check ledger: %w", err)
	}
	return n > 0, nil
}

// PutRecord stores a record and evicts the oldest entries past capacity.
func (l *RedisLedger) PutRecord(ctx context.Context, rec *core.ProcessedRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	pipe := l.client.TxPipeline()
	pipe.Set(ctx, recordKeyPrefix+rec.MessageID, raw, 0)
	pipe.ZAdd(ctx, recordIndexKey, redis.Z{
		Score:  float64(rec.ProcessedAt.UnixNano()),
		Member: rec.MessageID,
	})
	pipe.SAdd(ctx, runKeyPrefix+rec.RunID, rec.MessageID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	return l.evict(ctx)
}

func (l *RedisLedger) evict(ctx context.Context) error {
	size, err := l.client.ZCard(ctx, recordIndexKey).Result()
	if err != nil {
		return fmt.Errorf("failed to size ledger index: %w", err)
	}
	excess := size - int64(l.capacity)
	if excess <= 0 {
		return nil
	}

	victims, err := l.client.ZRange(ctx, recordIndexKey, 0, excess-1).Result()
	if err != nil {
		return fmt.Errorf("failed to list eviction victims: %w", err)
	}

	pipe := l.client.TxPipeline()
	for _, id := range victims {
		pipe.Del(ctx, recordKeyPrefix+id)
	}
	pipe.ZRemRangeByRank(ctx, recordIndexKey, 0, excess-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to evict old records: %w", err)
	}

	l.logger.Debug("Evicted old ledger records", zap.Int("count", len(victims)))
	return nil
}

// GetRecord returns the record for a message id, or core.ErrNotFound.
func (l *RedisLedger) GetRecord(ctx context.Context, messageID string) (*core.ProcessedRecord, error) {
	raw, err := l.client.Get(ctx, recordKeyPrefix+messageID).Bytes()
	if err == redis.Nil {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}

	var rec core.ProcessedRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return &rec, nil
}

// UpdateRecord rewrites an existing record.
func (l *RedisLedger) UpdateRecord(ctx context.Context, rec *core.ProcessedRecord) error {
	seen, err := l.Seen(ctx, rec.MessageID)
	if err != nil {
		return err
	}
	if !seen {
		return core.ErrNotFound
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if err := l.client.Set(ctx, recordKeyPrefix+rec.MessageID, raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	return nil
}

// RecordsSince returns records processed at or after the given instant,
// oldest first.
func (l *RedisLedger) RecordsSince(ctx context.Context, since time.Time) ([]core.ProcessedRecord, error) {
	ids, err := l.client.ZRangeByScore(ctx, recordIndexKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixNano(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger index: %w", err)
	}
	return l.loadAll(ctx, ids)
}

// RecordsByRun returns all records belonging to one run.
func (l *RedisLedger) RecordsByRun(ctx context.Context, runID string) ([]core.ProcessedRecord, error) {
	ids, err := l.client.SMembers(ctx, runKeyPrefix+runID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load run index: %w", err)
	}
	return l.loadAll(ctx, ids)
}

func (l *RedisLedger) loadAll(ctx context.Context, ids []string) ([]core.ProcessedRecord, error) {
	var out []core.ProcessedRecord
	for _, id := range ids {
		rec, err := l.GetRecord(ctx, id)
		if err == core.ErrNotFound {
			// Evicted between index read and load; the run index may outlive
			// the record.
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}
