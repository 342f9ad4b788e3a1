package runtime_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kilnworks/kiln/pkg/runtime"
	"github.com/kilnworks/kiln/pkg/store"
	"github.com/kilnworks/kiln/pkg/types"
)

// A transaction is ready only once every declared access has resolved: one
// pending predecessor holds the whole transaction back even when its other
// resources are free.
func TestReadinessRequiresAllAccesses(t *testing.T) {
	st := store.NewMemStore()

	gate := make(chan struct{})
	var gateOnce sync.Once
	closeGate := func() { gateOnce.Do(func() { close(gate) }) }

	var blockerDone atomic.Bool
	var dependentSawBlocker atomic.Bool

	vm := &testVM{hook: func(tt *testTx, handles []*runtime.AccessHandle) (types.Effects, error) {
		switch tt.id {
		case 0: // blocker: holds resource 1's chain until the gate opens
			<-gate
			blockerDone.Store(true)
		case 2: // dependent: reads resources 1 and 2
			dependentSawBlocker.Store(blockerDone.Load())
		}
		appendTxID(tt, handles)
		return tt.id, nil
	}}

	rt := newTestRuntime(t, st, vm, 4)
	defer rt.Shutdown()
	defer closeGate()

	batch := rt.Process([]types.Transaction{
		tx(0, write(1)),
		tx(1, write(2)),
		tx(2, read(1), read(2)),
	})

	// Resource 2 resolves quickly (tx 1 has no predecessors), but tx 2 must
	// keep waiting on resource 1.
	time.Sleep(50 * time.Millisecond)
	assert.False(t, dependentSawBlocker.Load() && !blockerDone.Load())
	assert.Equal(t, int64(2), batch.NumPending(), "only tx 1 may have finished")

	closeGate()
	batch.WaitCommitted()

	assert.True(t, dependentSawBlocker.Load(), "dependent ran after the blocker published")
	assertWrittenState(t, st, 1, 0)
	assertWrittenState(t, st, 2, 1)
}
