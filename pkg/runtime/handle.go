package runtime

import (
	"github.com/kilnworks/kiln/pkg/state"
	"github.com/kilnworks/kiln/pkg/types"
)

// AccessHandle is the VM's window onto one declared resource access. Reads go
// straight to the resolved state; the first mutation takes a copy-on-write
// snapshot at version+1, so the shared graph state is never touched in place.
//
// Handles live for one VM invocation on one worker goroutine and are not
// safe for concurrent use.
type AccessHandle struct {
	access  *ResourceAccess
	current *state.VersionedState
	mutated bool
}

func newAccessHandle(access *ResourceAccess) *AccessHandle {
	return &AccessHandle{access: access, current: access.ReadState()}
}

// Metadata returns the declared access (resource id and type).
func (h *AccessHandle) Metadata() types.AccessMetadata {
	return h.access.meta
}

// Version returns the version the handle currently points at.
func (h *AccessHandle) Version() uint64 {
	return h.current.Version()
}

// IsNew reports whether the resource did not exist before this access.
func (h *AccessHandle) IsNew() bool {
	return h.current.IsNew()
}

// State returns the current state for reading. Callers must not mutate it;
// use StateMut.
func (h *AccessHandle) State() *state.State {
	return h.current.State()
}

// StateMut returns the state for mutation, cloning it at version+1 on first
// use. Only valid on write accesses.
func (h *AccessHandle) StateMut() *state.State {
	if h.access.meta.Type != types.AccessWrite {
		panic("state mutation through a read access")
	}
	if !h.mutated {
		h.current = h.current.MutatedCopy()
		h.mutated = true
	}
	return h.current.State()
}

// commitChanges publishes the handle's state as the access's written state.
// Write accesses that never mutated republish their read state, which keeps
// the chain live without producing a new version.
func (h *AccessHandle) commitChanges() {
	if h.access.meta.Type == types.AccessWrite {
		h.access.setWrittenState(h.current)
	}
}

// rollbackChanges discards any mutation and republishes the original read
// state, so chain successors proceed on the value the failed transaction saw.
func (h *AccessHandle) rollbackChanges() {
	if h.access.meta.Type == types.AccessWrite {
		h.access.setWrittenState(h.access.ReadState())
	}
}
