package store

import "github.com/sentinelshare/sentinel/internal/core"

// Store bundles every persistence port backed by one primary database. The
// ledger port may still be served by a separate backend (see RedisLedger).
type Store interface {
	core.PreferenceStore
	core.RuleStore
	core.BlockStore
	core.LedgerStore
	core.CandidateStore
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLStore)(nil)

	_ core.LedgerStore = (*RedisLedger)(nil)
)
