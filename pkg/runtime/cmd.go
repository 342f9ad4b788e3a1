package runtime

import (
	"github.com/kilnworks/kiln/pkg/state"
	"github.com/kilnworks/kiln/pkg/store"
)

// The runtime speaks to the storage manager through a small closed set of
// command shapes: one read (resolve a chain head) and three writes (persist a
// state diff, commit a batch, roll the chain back).

// readLatestDataCmd loads a chain head's current state from storage and
// publishes it as the access's read state.
type readLatestDataCmd struct {
	access *ResourceAccess
}

func (c *readLatestDataCmd) Exec(r store.Reader) {
	c.access.setReadState(state.FromLatest(r, c.access.meta.Resource))
}

// writeStateDiffCmd persists one completed state diff.
type writeStateDiffCmd struct {
	diff *StateDiff
}

func (c *writeStateDiffCmd) Exec(_ store.Store, wb *store.WriteBatch) *store.WriteBatch {
	c.diff.write(wb)
	return wb
}

func (c *writeStateDiffCmd) Done() {
	c.diff.writeDone()
}

func (c *writeStateDiffCmd) Kind() string {
	return "state_diff"
}

// commitBatchCmd finalizes a batch: every changed resource's latest pointer
// moves to the version the batch produced.
type commitBatchCmd struct {
	batch *Batch
}

func (c *commitBatchCmd) Exec(_ store.Store, wb *store.WriteBatch) *store.WriteBatch {
	c.batch.commit(wb)
	return wb
}

func (c *commitBatchCmd) Done() {
	c.batch.commitDone()
}

func (c *commitBatchCmd) Kind() string {
	return "commit_batch"
}
