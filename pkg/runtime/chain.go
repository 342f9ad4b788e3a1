package runtime

import (
	"math"
	"sync/atomic"

	"github.com/kilnworks/kiln/pkg/latch"
)

// chain tracks the monotonically growing sequence of batch indices and the
// rollback threshold that cancels batches scheduled past it. A rollback
// retires the current chain (its threshold drops, canceling every batch
// beyond the target) and the runtime continues on a fresh chain seeded at the
// target index.
type chain struct {
	lastBatchIndex    atomic.Int64
	rollbackThreshold atomic.Uint64
	rolledBack        *latch.Latch
}

// newChain starts a chain whose next batch index is last+1. A fresh runtime
// passes -1 so the first batch gets index 0.
func newChain(last int64) *chain {
	c := &chain{rolledBack: latch.New()}
	c.lastBatchIndex.Store(last)
	c.rollbackThreshold.Store(math.MaxUint64)
	return c
}

// nextBatchIndex allocates the next index.
func (c *chain) nextBatchIndex() uint64 {
	return uint64(c.lastBatchIndex.Add(1))
}

// head returns the last allocated index, or -1 if no batch was scheduled.
func (c *chain) head() int64 {
	return c.lastBatchIndex.Load()
}

// cancelAfter drops the rollback threshold to target: every batch with a
// higher index on this chain observes itself as canceled.
func (c *chain) cancelAfter(target uint64) {
	c.rollbackThreshold.Store(target)
	c.rolledBack.Open()
}

func (c *chain) threshold() uint64 {
	return c.rollbackThreshold.Load()
}
