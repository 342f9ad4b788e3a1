package runtime

import "github.com/kilnworks/kiln/pkg/types"

// VM executes a single transaction's business logic against the handles of
// the resources it declared. Implementations must be deterministic in their
// inputs, must only mutate write handles, and must be safe to call from many
// worker goroutines at once.
type VM interface {
	ProcessTransaction(tx types.Transaction, resources []*AccessHandle) (types.Effects, error)
}

// Notarizer observes each batch once all of its transactions have executed.
// It runs on the notarization driver goroutine, before the batch's commit is
// scheduled, and may inspect Txs and StateDiffs.
type Notarizer interface {
	NotarizeBatch(batch *Batch)
}

// NotarizerFunc adapts a function to the Notarizer interface.
type NotarizerFunc func(batch *Batch)

func (f NotarizerFunc) NotarizeBatch(batch *Batch) {
	f(batch)
}
