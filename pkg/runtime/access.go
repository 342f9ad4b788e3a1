package runtime

import (
	"fmt"
	"sync/atomic"

	"github.com/kilnworks/kiln/pkg/state"
	"github.com/kilnworks/kiln/pkg/storage"
	"github.com/kilnworks/kiln/pkg/types"
)

// ResourceAccess is one node in a resource's access chain: one transaction's
// declared read or write of that resource. Nodes of the same resource link
// into a total order across batches; versioned state flows along the links.
//
// Both state slots publish exactly once. Once a node's read state lands, its
// backward link is severed so finished chain prefixes become collectible.
type ResourceAccess struct {
	meta        types.AccessMetadata
	tx          *RuntimeTx
	diff        *StateDiff
	isBatchHead bool
	isBatchTail atomic.Bool

	readState    atomic.Pointer[state.VersionedState]
	writtenState atomic.Pointer[state.VersionedState]
	prev         atomic.Pointer[ResourceAccess]
	next         atomic.Pointer[ResourceAccess]
}

// newResourceAccess links a new access behind prev (nil for a chain head).
// Whether the node is its batch's head on this resource falls out of diff
// sharing: a predecessor holding the same diff belongs to the same batch and
// loses its tail flag.
func newResourceAccess(meta types.AccessMetadata, tx *RuntimeTx, diff *StateDiff, prev *ResourceAccess) *ResourceAccess {
	a := &ResourceAccess{meta: meta, tx: tx, diff: diff}
	a.isBatchTail.Store(true)
	if prev != nil && prev.diff == diff {
		prev.isBatchTail.Store(false)
		a.isBatchHead = false
	} else {
		a.isBatchHead = true
	}
	a.prev.Store(prev)
	return a
}

// Metadata returns the access type and resource id.
func (a *ResourceAccess) Metadata() types.AccessMetadata {
	return a.meta
}

// ReadState returns the state this access observed. Panics if the access has
// not resolved yet.
func (a *ResourceAccess) ReadState() *state.VersionedState {
	v := a.readState.Load()
	if v == nil {
		panic(fmt.Sprintf("resource access %s: read state unknown", a.meta.Resource))
	}
	return v
}

// WrittenState returns the state this access passed downstream. Panics if
// not yet published.
func (a *ResourceAccess) WrittenState() *state.VersionedState {
	v := a.writtenState.Load()
	if v == nil {
		panic(fmt.Sprintf("resource access %s: written state unknown", a.meta.Resource))
	}
	return v
}

// IsBatchHead reports whether no predecessor on this resource belongs to the
// same batch.
func (a *ResourceAccess) IsBatchHead() bool {
	return a.isBatchHead
}

// IsBatchTail reports whether no successor on this resource belongs to the
// same batch.
func (a *ResourceAccess) IsBatchTail() bool {
	return a.isBatchTail.Load()
}

// StateDiff returns the per-(batch, resource) diff this access feeds.
func (a *ResourceAccess) StateDiff() *StateDiff {
	return a.diff
}

// connect wires the node into the live graph. With a predecessor, the node
// registers as its successor and picks up the predecessor's written state if
// it already landed (the publish-once slot absorbs the race with a concurrent
// publication). Without one, the chain head's state comes from storage.
func (a *ResourceAccess) connect(sm *storage.Manager) {
	prev := a.prev.Load()
	if prev == nil {
		sm.SubmitRead(&readLatestDataCmd{access: a})
		return
	}
	prev.next.Store(a)
	if ws := prev.writtenState.Load(); ws != nil {
		a.setReadState(ws)
	}
}

// setReadState publishes the observed state. First publisher wins; the
// losing path of the connect race is a no-op. Read accesses are transparent:
// they immediately forward the state as their written state so a run of
// readers behind a write all become ready together.
func (a *ResourceAccess) setReadState(v *state.VersionedState) {
	if !a.readState.CompareAndSwap(nil, v) {
		return
	}
	a.prev.Store(nil) // sever the back-link so finished ancestors can be freed

	if a.isBatchHead {
		a.diff.setReadState(v)
	}
	if a.meta.Type == types.AccessRead {
		a.setWrittenState(v)
	}
	a.tx.decreasePendingResources()
}

// setWrittenState publishes the state this access leaves behind and pushes it
// forward: to the diff if this is the batch tail, and to the chain successor
// if one is attached.
func (a *ResourceAccess) setWrittenState(v *state.VersionedState) {
	if !a.writtenState.CompareAndSwap(nil, v) {
		return
	}
	if a.IsBatchTail() {
		a.diff.setWrittenState(v)
	}
	if next := a.next.Load(); next != nil {
		next.setReadState(v)
	}
}
