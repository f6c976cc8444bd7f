package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sentinelshare/sentinel/internal/core"
)

// DefaultBlockTTL is the lifetime of a temporary block when none is configured.
const DefaultBlockTTL = 24 * time.Hour

// BlockManager maintains time-boxed sender suppressions with automatic
// expiry. All operations are idempotent and never fail on missing or
// duplicate state; two cycles expiring the same block concurrently is safe.
type BlockManager struct {
	store  core.BlockStore
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewBlockManager creates a block manager. A non-positive ttl falls back to
// DefaultBlockTTL.
func NewBlockManager(store core.BlockStore, ttl time.Duration, logger *zap.Logger) *BlockManager {
	if ttl <= 0 {
		ttl = DefaultBlockTTL
	}
	return &BlockManager{
		store:  store,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (m *BlockManager) WithClock(now func() time.Time) *BlockManager {
	m.now = now
	return m
}

// Block creates or overwrites a temporary block for the sender. Re-blocking
// resets the expiry window.
func (m *BlockManager) Block(ctx context.Context, sender, reason string) error {
	sender = normalizeSender(sender)
	if sender == "" {
		return errors.New("empty sender")
	}

	now := m.now()
	block := &core.TemporaryBlock{
		Sender:    sender,
		Reason:    reason,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.PutBlock(ctx, block); err != nil {
		return fmt.Errorf("failed to store temporary block: %w", err)
	}

	m.logger.Info("Temporary block created",
		zap.String("sender", sender),
		zap.String("reason", reason),
		zap.Time("expires_at", block.ExpiresAt))
	return nil
}

// ActiveBlock returns the block in force for the sender, or nil. An expired
// block encountered here is lazily removed; a cleanup failure only means the
// dead entry lingers until the next observation.
func (m *BlockManager) ActiveBlock(ctx context.Context, sender string) (*core.TemporaryBlock, error) {
	sender = normalizeSender(sender)
	block, err := m.store.GetBlock(ctx, sender)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up temporary block: %w", err)
	}

	if block.Active(m.now()) {
		return block, nil
	}

	if err := m.store.DeleteBlock(ctx, sender); err != nil {
		m.logger.Warn("Failed to remove expired block",
			zap.String("sender", sender), zap.Error(err))
	}
	return nil, nil
}

// IsBlocked reports whether the sender has an active block.
func (m *BlockManager) IsBlocked(ctx context.Context, sender string) (bool, error) {
	block, err := m.ActiveBlock(ctx, sender)
	if err != nil {
		return false, err
	}
	return block != nil, nil
}

// Cancel removes the sender's block unconditionally. Cancelling an absent
// block is a no-op, not an error.
func (m *BlockManager) Cancel(ctx context.Context, sender string) error {
	sender = normalizeSender(sender)
	if err := m.store.DeleteBlock(ctx, sender); err != nil && !errors.Is(err, core.ErrNotFound) {
		return fmt.Errorf("failed to cancel temporary block: %w", err)
	}
	m.logger.Info("Temporary block cancelled", zap.String("sender", sender))
	return nil
}

// Sweep removes all expired blocks. Lazy cleanup in ActiveBlock keeps results
// correct without it; this exists for garbage collection on a timer.
func (m *BlockManager) Sweep(ctx context.Context) (int, error) {
	blocks, err := m.store.Blocks(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list temporary blocks: %w", err)
	}

	now := m.now()
	removed := 0
	for i := range blocks {
		if blocks[i].Active(now) {
			continue
		}
		if err := m.store.DeleteBlock(ctx, blocks[i].Sender); err != nil {
			m.logger.Warn("Failed to sweep expired block",
				zap.String("sender", blocks[i].Sender), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		m.logger.Debug("Swept expired blocks", zap.Int("removed", removed))
	}
	return removed, nil
}

func normalizeSender(sender string) string {
	return strings.ToLower(strings.TrimSpace(sender))
}
