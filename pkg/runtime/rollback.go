package runtime

import (
	"github.com/kilnworks/kiln/pkg/latch"
	"github.com/kilnworks/kiln/pkg/metrics"
	"github.com/kilnworks/kiln/pkg/state"
	"github.com/kilnworks/kiln/pkg/store"
)

// rollbackCmd reverts every state change made by batches in the inclusive
// index range [lower, upper], walking newest to oldest so each resource
// unwinds through its intermediate versions back to the version it had
// before the range.
type rollbackCmd struct {
	lower uint64
	upper uint64
	done  *latch.Latch
}

func newRollbackCmd(lower, upper uint64, done *latch.Latch) *rollbackCmd {
	return &rollbackCmd{lower: lower, upper: upper, done: done}
}

// Exec commits the write worker's in-flight batch first so the rollback scans
// a consistent view, then applies and commits the rollback in its own batch,
// and hands the worker a fresh batch to continue on.
func (c *rollbackCmd) Exec(s store.Store, wb *store.WriteBatch) *store.WriteBatch {
	s.Commit(wb)
	s.Commit(c.buildRollbackBatch(s))
	return s.NewBatch()
}

func (c *rollbackCmd) Done() {
	metrics.RollbacksTotal.Inc()
	c.done.Open()
}

func (c *rollbackCmd) Kind() string {
	return "rollback"
}

func (c *rollbackCmd) buildRollbackBatch(s store.Store) *store.WriteBatch {
	wb := s.NewBatch()

	// Per-resource version being unwound. Seeded from the latest pointer and
	// stepped down through each batch's rollback pointer, so every
	// intermediate data entry gets removed even when several rolled-back
	// batches touched the same resource.
	unwound := make(map[string]uint64)

	for index := c.upper; index >= c.lower; index-- {
		type entry struct {
			idBytes    []byte
			oldVersion uint64
		}
		var entries []entry
		s.PrefixScan(store.SpaceRollbackPtr, state.EncodeVersion(index), func(key, value []byte) bool {
			_, idBytes := state.SplitPrefixedKey(key)
			entries = append(entries, entry{
				idBytes:    append([]byte(nil), idBytes...),
				oldVersion: state.DecodeVersion(value),
			})
			return true
		})

		for _, e := range entries {
			c.applyRollbackPtr(s, wb, unwound, index, e.idBytes, e.oldVersion)
		}

		if index == 0 {
			break
		}
	}
	return wb
}

// applyRollbackPtr undoes one (batch, resource) change: drop the data entry
// the batch produced, restore the latest pointer to the pre-batch version
// (or remove it if the resource did not exist), and consume the rollback
// pointer itself.
func (c *rollbackCmd) applyRollbackPtr(
	s store.Store,
	wb *store.WriteBatch,
	unwound map[string]uint64,
	batchIndex uint64,
	idBytes []byte,
	oldVersion uint64,
) {
	current, seen := unwound[string(idBytes)]
	if !seen {
		if latest, ok := s.Get(store.SpaceLatestPtr, idBytes); ok {
			current, seen = state.DecodeVersion(latest), true
		}
	}
	// current == oldVersion means the batch persisted but never committed
	// (its latest pointer never moved); there is no live data entry to drop.
	if seen && current != oldVersion {
		wb.Delete(store.SpaceData, state.DataKey(current, idBytes))
	}
	unwound[string(idBytes)] = oldVersion

	if oldVersion == 0 {
		wb.Delete(store.SpaceLatestPtr, idBytes)
	} else {
		wb.Put(store.SpaceLatestPtr, idBytes, state.EncodeVersion(oldVersion))
	}
	wb.Delete(store.SpaceRollbackPtr, state.RollbackKey(batchIndex, idBytes))
}
