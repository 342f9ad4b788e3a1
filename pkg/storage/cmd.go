package storage

import "github.com/kilnworks/kiln/pkg/store"

// ReadCmd is a typed read command executed by the reader pool. A submitted
// command executes exactly once; ordering across commands is not preserved.
type ReadCmd interface {
	Exec(r store.Reader)
}

// WriteCmd is a typed write command executed by the write worker. Exec
// applies the command's operations to the accumulated batch and returns the
// batch to keep accumulating into — usually the same one, but a command may
// commit and replace it (rollback does). Done runs after the batch holding
// the command has durably committed.
type WriteCmd interface {
	Exec(s store.Store, batch *store.WriteBatch) *store.WriteBatch
	Done()
	// Kind labels the command for metrics.
	Kind() string
}
