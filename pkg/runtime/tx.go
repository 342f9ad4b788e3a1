package runtime

import (
	"sync/atomic"

	"github.com/kilnworks/kiln/pkg/metrics"
	"github.com/kilnworks/kiln/pkg/types"
)

// RuntimeTx is one scheduled transaction: the host's payload plus its chain
// links. It counts down unresolved accesses; when the count hits zero the
// transaction lands on its batch's availability queue.
type RuntimeTx struct {
	vm               VM
	batch            *Batch
	tx               types.Transaction
	accesses         []*ResourceAccess
	pendingResources atomic.Int64
	effects          atomic.Pointer[effectsBox]
}

type effectsBox struct {
	effects types.Effects
}

// Transaction returns the host's transaction payload.
func (t *RuntimeTx) Transaction() types.Transaction {
	return t.tx
}

// AccessedResources returns the transaction's chain nodes in declaration
// order.
func (t *RuntimeTx) AccessedResources() []*ResourceAccess {
	return t.accesses
}

// Effects returns the VM's result, or nil if the transaction has not executed
// successfully.
func (t *RuntimeTx) Effects() types.Effects {
	box := t.effects.Load()
	if box == nil {
		return nil
	}
	return box.effects
}

// Execute runs the transaction through the VM on a worker goroutine. On
// success each write handle publishes its (possibly mutated) state; on VM
// error each write handle republishes its read state so the chain keeps
// flowing on the original value. Either way the batch's pending count drops.
func (t *RuntimeTx) Execute() {
	handles := make([]*AccessHandle, len(t.accesses))
	for i, access := range t.accesses {
		handles[i] = newAccessHandle(access)
	}

	effects, err := t.vm.ProcessTransaction(t.tx, handles)
	metrics.TxsExecuted.Inc()
	if err != nil {
		metrics.TxsFailed.Inc()
		for _, h := range handles {
			h.rollbackChanges()
		}
	} else {
		t.effects.Store(&effectsBox{effects: effects})
		for _, h := range handles {
			h.commitChanges()
		}
	}

	t.batch.decreasePendingTxs()
}

func (t *RuntimeTx) decreasePendingResources() {
	if t.pendingResources.Add(-1) == 0 {
		t.batch.pushAvailableTx(t)
	}
}
