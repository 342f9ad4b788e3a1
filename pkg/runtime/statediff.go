package runtime

import (
	"fmt"
	"sync/atomic"

	"github.com/kilnworks/kiln/pkg/state"
	"github.com/kilnworks/kiln/pkg/store"
	"github.com/kilnworks/kiln/pkg/types"
)

// StateDiff is the per-(batch, resource) rollback record: the versioned state
// the batch read the resource at, and the versioned state it left behind.
// Every ResourceAccess of the batch touching the same resource shares one
// diff; the batch-head access publishes the read side, the batch-tail access
// publishes the written side. Publishing the written side is what enqueues
// the diff's durable write.
type StateDiff struct {
	batch        *Batch
	resource     types.ResourceID
	readState    atomic.Pointer[state.VersionedState]
	writtenState atomic.Pointer[state.VersionedState]
}

func newStateDiff(batch *Batch, resource types.ResourceID) *StateDiff {
	return &StateDiff{batch: batch, resource: resource}
}

// Resource returns the resource this diff covers.
func (d *StateDiff) Resource() types.ResourceID {
	return d.resource
}

// ReadState returns the state the batch read the resource at. Panics before
// the batch-head access resolves.
func (d *StateDiff) ReadState() *state.VersionedState {
	v := d.readState.Load()
	if v == nil {
		panic(fmt.Sprintf("state diff %s: read state unknown", d.resource))
	}
	return v
}

// WrittenState returns the state the batch left the resource at. Panics
// before the batch-tail access resolves.
func (d *StateDiff) WrittenState() *state.VersionedState {
	v := d.writtenState.Load()
	if v == nil {
		panic(fmt.Sprintf("state diff %s: written state unknown", d.resource))
	}
	return v
}

// Changed reports whether the batch actually produced a new version. Diffs of
// read-only chains (and of failed writes that republished their read state)
// leave the resource untouched and are skipped on the durable path.
func (d *StateDiff) Changed() bool {
	read, written := d.readState.Load(), d.writtenState.Load()
	return read != nil && written != nil && written.Version() > read.Version()
}

func (d *StateDiff) setReadState(v *state.VersionedState) {
	d.readState.Store(v)
}

// setWrittenState completes the diff. A diff that changed its resource flows
// to storage; an unchanged one is done the moment it completes.
func (d *StateDiff) setWrittenState(v *state.VersionedState) {
	d.writtenState.Store(v)
	if d.Changed() {
		d.batch.submitWrite(&writeStateDiffCmd{diff: d})
	}
}

// write appends the diff's durable records to a storage write batch: the new
// version's data entry, and the rollback pointer remembering the pre-batch
// version.
func (d *StateDiff) write(wb *store.WriteBatch) {
	d.WrittenState().WriteData(wb)
	d.ReadState().WriteRollbackPtr(wb, d.batch.Index())
}

func (d *StateDiff) writeDone() {
	d.batch.decreasePendingWrites()
}
