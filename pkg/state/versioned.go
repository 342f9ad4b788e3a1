package state

import (
	"fmt"

	"github.com/kilnworks/kiln/pkg/store"
	"github.com/kilnworks/kiln/pkg/types"
)

// VersionedState binds a resource id to one immutable version of its state.
// Version 0 means the resource does not exist yet. Instances are shared
// through the resource graph and must never be mutated in place; MutatedCopy
// produces the successor version.
type VersionedState struct {
	resource types.ResourceID
	version  uint64
	state    *State
}

// Empty returns the version-0 state for a resource.
func Empty(id types.ResourceID) *VersionedState {
	return &VersionedState{resource: id, version: 0, state: NewState()}
}

// New binds an explicit version to a state value.
func New(id types.ResourceID, version uint64, s *State) *VersionedState {
	return &VersionedState{resource: id, version: version, state: s}
}

// FromLatest loads the current version of a resource, or the empty version-0
// state if the resource has never been written. Missing data behind a live
// latest pointer means the store is corrupt and panics.
func FromLatest(r store.Reader, id types.ResourceID) *VersionedState {
	idBytes := id.Bytes()
	versionBytes, ok := r.Get(store.SpaceLatestPtr, idBytes)
	if !ok {
		return Empty(id)
	}
	version := DecodeVersion(versionBytes)

	data, ok := r.Get(store.SpaceData, DataKey(version, idBytes))
	if !ok {
		panic(fmt.Sprintf("state: missing data for %s@v%d", id, version))
	}
	s, err := UnmarshalState(data)
	if err != nil {
		panic(fmt.Sprintf("state: corrupt data for %s@v%d: %v", id, version, err))
	}
	return &VersionedState{resource: id, version: version, state: s}
}

// Resource returns the resource id.
func (v *VersionedState) Resource() types.ResourceID {
	return v.resource
}

// Version returns the version number.
func (v *VersionedState) Version() uint64 {
	return v.version
}

// State returns the state payload. Callers must treat it as read-only.
func (v *VersionedState) State() *State {
	return v.state
}

// IsNew reports whether this is the not-yet-existing version 0.
func (v *VersionedState) IsNew() bool {
	return v.version == 0
}

// MutatedCopy returns a deep copy at version+1 for copy-on-write mutation.
func (v *VersionedState) MutatedCopy() *VersionedState {
	return &VersionedState{
		resource: v.resource,
		version:  v.version + 1,
		state:    v.state.Clone(),
	}
}

// WriteData appends the data-space entry for this version to the batch.
func (v *VersionedState) WriteData(batch *store.WriteBatch) {
	batch.Put(store.SpaceData, DataKey(v.version, v.resource.Bytes()), v.state.MarshalBinary())
}

// WriteLatestPtr points the latest-ptr entry of the resource at this version.
// Version 0 never gets a pointer: absence is what marks a resource as not
// existing.
func (v *VersionedState) WriteLatestPtr(batch *store.WriteBatch) {
	if v.version == 0 {
		return
	}
	batch.Put(store.SpaceLatestPtr, v.resource.Bytes(), EncodeVersion(v.version))
}

// WriteRollbackPtr records this version as the pre-batch version of the
// resource for the given batch.
func (v *VersionedState) WriteRollbackPtr(batch *store.WriteBatch, batchIndex uint64) {
	batch.Put(store.SpaceRollbackPtr, RollbackKey(batchIndex, v.resource.Bytes()), EncodeVersion(v.version))
}
