package runtime_test

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilnworks/kiln/pkg/log"
	"github.com/kilnworks/kiln/pkg/runtime"
	"github.com/kilnworks/kiln/pkg/state"
	"github.com/kilnworks/kiln/pkg/storage"
	"github.com/kilnworks/kiln/pkg/store"
	"github.com/kilnworks/kiln/pkg/types"
)

func TestMain(m *testing.M) {
	log.Init(log.Config{Level: log.ErrorLevel, JSONOutput: true, Output: io.Discard})
	os.Exit(m.Run())
}

// testTx declares accesses and carries an id the test VM writes into every
// write handle.
type testTx struct {
	id       uint64
	accesses []types.AccessMetadata
}

func (t *testTx) AccessedResources() []types.AccessMetadata {
	return t.accesses
}

func tx(id uint64, accesses ...types.AccessMetadata) *testTx {
	return &testTx{id: id, accesses: accesses}
}

func read(id uint64) types.AccessMetadata  { return types.Read(types.Uint64ID(id)) }
func write(id uint64) types.AccessMetadata { return types.Write(types.Uint64ID(id)) }

func be(id uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return buf[:]
}

// testVM appends the transaction id to each write handle's data; an optional
// hook replaces or wraps the default behavior.
type testVM struct {
	hook func(tx *testTx, handles []*runtime.AccessHandle) (types.Effects, error)
}

func (vm *testVM) ProcessTransaction(t types.Transaction, handles []*runtime.AccessHandle) (types.Effects, error) {
	tt := t.(*testTx)
	if vm.hook != nil {
		return vm.hook(tt, handles)
	}
	appendTxID(tt, handles)
	return tt.id, nil
}

func appendTxID(tt *testTx, handles []*runtime.AccessHandle) {
	for _, h := range handles {
		if h.Metadata().Type == types.AccessWrite {
			s := h.StateMut()
			s.Data = append(s.Data, be(tt.id)...)
		}
	}
}

func newTestRuntime(t *testing.T, st store.Store, vm runtime.VM, workers int) *runtime.Runtime {
	t.Helper()
	if vm == nil {
		vm = &testVM{}
	}
	rt, err := runtime.New(runtime.Config{
		Workers: workers,
		VM:      vm,
		Storage: storage.Config{
			Read:  storage.ReadConfig{MaxReaders: 4, BufferDepthPerReader: 16},
			Write: storage.WriteConfig{MaxBatchSize: 64, MaxBatchDuration: 2 * time.Millisecond},
		},
	}, st)
	require.NoError(t, err)
	return rt
}

// assertWrittenState checks that a resource's current version and data match
// the given writer sequence: version equals the writer count, data is the
// concatenation of the writer ids.
func assertWrittenState(t *testing.T, r store.Reader, resource uint64, writers ...uint64) {
	t.Helper()
	vs := state.FromLatest(r, types.Uint64ID(resource))
	assert.Equal(t, uint64(len(writers)), vs.Version(), "version of resource %d", resource)

	var expected []byte
	for _, w := range writers {
		expected = append(expected, be(w)...)
	}
	assert.Equal(t, expected, vs.State().Data, "data of resource %d", resource)
}

func countPrefix(r store.Reader, space store.Space, prefix []byte) int {
	count := 0
	r.PrefixScan(space, prefix, func(k, v []byte) bool {
		count++
		return true
	})
	return count
}

func TestConflictingWritesSerialize(t *testing.T) {
	st := store.NewMemStore()
	rt := newTestRuntime(t, st, nil, 4)
	defer rt.Shutdown()

	batch := rt.Process([]types.Transaction{
		tx(0, write(1)),
		tx(1, write(1)),
	})
	assert.Equal(t, uint64(0), batch.Index())
	batch.WaitCommitted()

	assert.True(t, batch.WasProcessed())
	assert.True(t, batch.WasPersisted())
	assert.True(t, batch.WasCommitted())
	assert.False(t, batch.WasCanceled())
	assertWrittenState(t, st, 1, 0, 1)
}

func TestParallelReadsRunConcurrently(t *testing.T) {
	st := store.NewMemStore()

	var concurrent, maxConcurrent atomic.Int64
	gate := make(chan struct{})
	var gateOnce sync.Once
	closeGate := func() { gateOnce.Do(func() { close(gate) }) }

	vm := &testVM{hook: func(tt *testTx, handles []*runtime.AccessHandle) (types.Effects, error) {
		cur := concurrent.Add(1)
		for {
			observed := maxConcurrent.Load()
			if cur <= observed || maxConcurrent.CompareAndSwap(observed, cur) {
				break
			}
		}
		<-gate
		concurrent.Add(-1)
		return tt.id, nil
	}}

	rt := newTestRuntime(t, st, vm, 3)
	defer rt.Shutdown()
	defer closeGate()

	batch := rt.Process([]types.Transaction{
		tx(0, read(3)),
		tx(1, read(3)),
		tx(2, read(3)),
	})

	// Reads do not serialize: all three transactions become ready together
	// and spread across the three workers.
	deadline := time.Now().Add(5 * time.Second)
	for maxConcurrent.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, int64(3), maxConcurrent.Load())
	closeGate()
	batch.WaitCommitted()

	vs := state.FromLatest(st, types.Uint64ID(3))
	assert.Equal(t, uint64(0), vs.Version())
	assert.Empty(t, vs.State().Data)
	assert.Equal(t, 0, st.Len(store.SpaceData))
}

func TestWriteThenParallelReads(t *testing.T) {
	st := store.NewMemStore()

	var mu sync.Mutex
	observed := make(map[uint64][]byte)

	vm := &testVM{hook: func(tt *testTx, handles []*runtime.AccessHandle) (types.Effects, error) {
		for _, h := range handles {
			if h.Metadata().Type == types.AccessRead {
				mu.Lock()
				observed[tt.id] = append([]byte(nil), h.State().Data...)
				mu.Unlock()
			}
		}
		appendTxID(tt, handles)
		return tt.id, nil
	}}

	rt := newTestRuntime(t, st, vm, 4)
	defer rt.Shutdown()

	batch := rt.Process([]types.Transaction{
		tx(0, write(3)),
		tx(1, read(3)),
		tx(2, read(3)),
	})
	batch.WaitCommitted()

	assertWrittenState(t, st, 3, 0)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, be(0), observed[1], "reader 1 must observe the write")
	assert.Equal(t, be(0), observed[2], "reader 2 must observe the write")
}

func TestCrossBatchChain(t *testing.T) {
	st := store.NewMemStore()

	var mu sync.Mutex
	observed := make(map[uint64][]byte)
	vm := &testVM{hook: func(tt *testTx, handles []*runtime.AccessHandle) (types.Effects, error) {
		for _, h := range handles {
			if h.Metadata().Type == types.AccessRead {
				mu.Lock()
				observed[tt.id] = append([]byte(nil), h.State().Data...)
				mu.Unlock()
			}
		}
		appendTxID(tt, handles)
		return tt.id, nil
	}}

	rt := newTestRuntime(t, st, vm, 4)
	defer rt.Shutdown()

	first := rt.Process([]types.Transaction{tx(0, write(1))})
	second := rt.Process([]types.Transaction{
		tx(1, write(1)),
		tx(2, read(1)),
	})
	assert.Equal(t, uint64(0), first.Index())
	assert.Equal(t, uint64(1), second.Index())

	second.WaitCommitted()
	assert.True(t, first.WasCommitted(), "commits are ordered: batch 0 before batch 1")

	assertWrittenState(t, st, 1, 0, 1)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, append(be(0), be(1)...), observed[2])
}

func TestRollback(t *testing.T) {
	st := store.NewMemStore()
	rt := newTestRuntime(t, st, nil, 4)
	defer rt.Shutdown()

	first := rt.Process([]types.Transaction{tx(0, write(1))})
	second := rt.Process([]types.Transaction{tx(1, write(1)), tx(2, read(1))})
	third := rt.Process([]types.Transaction{tx(3, write(3))})
	third.WaitCommitted()

	assertWrittenState(t, st, 1, 0, 1)
	assertWrittenState(t, st, 3, 3)

	rt.RollbackTo(0)

	// Only the first batch's effects survive.
	assertWrittenState(t, st, 1, 0)
	vs := state.FromLatest(st, types.Uint64ID(3))
	assert.Equal(t, uint64(0), vs.Version())

	// No rollback pointers remain for batch indices > 0.
	assert.Equal(t, 0, countPrefix(st, store.SpaceRollbackPtr, be(1)))
	assert.Equal(t, 0, countPrefix(st, store.SpaceRollbackPtr, be(2)))
	assert.Equal(t, 1, st.Len(store.SpaceRollbackPtr), "batch 0's pointer stays")

	assert.True(t, second.WasCanceled())
	assert.True(t, third.WasCanceled())
	assert.False(t, first.WasCanceled())

	// The chain continues after the target index.
	fourth := rt.Process([]types.Transaction{tx(4, write(1))})
	assert.Equal(t, uint64(1), fourth.Index())
	fourth.WaitCommitted()
	assertWrittenState(t, st, 1, 0, 4)
}

func TestRollbackToHeadIsNoop(t *testing.T) {
	st := store.NewMemStore()
	rt := newTestRuntime(t, st, nil, 2)
	defer rt.Shutdown()

	batch := rt.Process([]types.Transaction{tx(0, write(1))})
	batch.WaitCommitted()

	rt.RollbackTo(batch.Index())

	assert.False(t, batch.WasCanceled())
	assertWrittenState(t, st, 1, 0)
}

func TestVMFailureRollsBackWrites(t *testing.T) {
	st := store.NewMemStore()
	vm := &testVM{hook: func(tt *testTx, handles []*runtime.AccessHandle) (types.Effects, error) {
		appendTxID(tt, handles)
		return nil, errors.New("vm rejected transaction")
	}}
	rt := newTestRuntime(t, st, vm, 2)
	defer rt.Shutdown()

	batch := rt.Process([]types.Transaction{tx(0, write(5))})
	batch.WaitPersisted()

	assert.False(t, batch.WasCanceled())
	_, ok := st.Get(store.SpaceLatestPtr, types.Uint64ID(5).Bytes())
	assert.False(t, ok, "failed write must not move the latest pointer")
	assert.Equal(t, 0, st.Len(store.SpaceData))
	assert.Equal(t, 0, st.Len(store.SpaceRollbackPtr))

	// The batch still commits (as a no-op) and the failed transaction has no
	// effects.
	batch.WaitCommitted()
	assert.True(t, batch.WasCommitted())
	assert.Nil(t, batch.Txs()[0].Effects())
}

func TestVMFailureDoesNotBlockChainSuccessors(t *testing.T) {
	st := store.NewMemStore()
	vm := &testVM{hook: func(tt *testTx, handles []*runtime.AccessHandle) (types.Effects, error) {
		if tt.id == 1 {
			return nil, errors.New("boom")
		}
		appendTxID(tt, handles)
		return tt.id, nil
	}}
	rt := newTestRuntime(t, st, vm, 2)
	defer rt.Shutdown()

	batch := rt.Process([]types.Transaction{
		tx(0, write(1)),
		tx(1, write(1)), // fails; successors proceed on tx 0's value
		tx(2, write(1)),
	})
	batch.WaitCommitted()

	assertWrittenState(t, st, 1, 0, 2)
}

func TestReadOnlyBatchLeavesStoreUntouched(t *testing.T) {
	st := store.NewMemStore()
	rt := newTestRuntime(t, st, nil, 2)
	defer rt.Shutdown()

	seed := rt.Process([]types.Transaction{tx(0, write(1))})
	seed.WaitCommitted()

	dataLen := st.Len(store.SpaceData)
	rollbackLen := st.Len(store.SpaceRollbackPtr)

	batch := rt.Process([]types.Transaction{
		tx(1, read(1)),
		tx(2, read(2)),
	})
	batch.WaitCommitted()

	assert.Equal(t, dataLen, st.Len(store.SpaceData))
	assert.Equal(t, rollbackLen, st.Len(store.SpaceRollbackPtr))
	assertWrittenState(t, st, 1, 0)
}

func TestSameTransactionTwiceThenRollback(t *testing.T) {
	st := store.NewMemStore()
	rt := newTestRuntime(t, st, nil, 2)
	defer rt.Shutdown()

	base := rt.Process([]types.Transaction{tx(9, write(7))})
	base.WaitCommitted()

	rt.Process([]types.Transaction{tx(0, write(7))})
	second := rt.Process([]types.Transaction{tx(0, write(7))})
	second.WaitCommitted()

	assertWrittenState(t, st, 7, 9, 0, 0)
	assert.Equal(t, 3, st.Len(store.SpaceData), "each version keeps its data entry")

	rt.RollbackTo(base.Index())
	assertWrittenState(t, st, 7, 9)
	assert.Equal(t, 1, st.Len(store.SpaceData))
}

func TestDuplicateAccessInOneTransactionPanics(t *testing.T) {
	st := store.NewMemStore()
	rt := newTestRuntime(t, st, nil, 2)
	defer rt.Shutdown()

	assert.Panics(t, func() {
		rt.Process([]types.Transaction{tx(0, write(1), read(1))})
	})
}

func TestEmptyAccessVectorExecutesImmediately(t *testing.T) {
	st := store.NewMemStore()
	executed := make(chan uint64, 1)
	vm := &testVM{hook: func(tt *testTx, handles []*runtime.AccessHandle) (types.Effects, error) {
		assert.Empty(t, handles)
		executed <- tt.id
		return tt.id, nil
	}}
	rt := newTestRuntime(t, st, vm, 2)
	defer rt.Shutdown()

	batch := rt.Process([]types.Transaction{tx(42)})
	batch.WaitCommitted()

	select {
	case id := <-executed:
		assert.Equal(t, uint64(42), id)
	default:
		t.Fatal("transaction never executed")
	}
	assert.Equal(t, uint64(42), batch.Txs()[0].Effects())
}

func TestEmptyBatch(t *testing.T) {
	st := store.NewMemStore()
	rt := newTestRuntime(t, st, nil, 2)
	defer rt.Shutdown()

	batch := rt.Process(nil)
	batch.WaitCommitted()
	assert.True(t, batch.WasProcessed())
	assert.True(t, batch.WasPersisted())
	assert.True(t, batch.WasCommitted())
}

func TestSingleWorkerRuntime(t *testing.T) {
	st := store.NewMemStore()
	rt := newTestRuntime(t, st, nil, 1)
	defer rt.Shutdown()

	batch := rt.Process([]types.Transaction{
		tx(0, write(1)),
		tx(1, write(2)),
		tx(2, write(1), write(2)),
	})
	batch.WaitCommitted()

	assertWrittenState(t, st, 1, 0, 2)
	assertWrittenState(t, st, 2, 1, 2)
}

func TestCancellationSuppressesWrites(t *testing.T) {
	st := store.NewMemStore()

	entered := make(chan struct{})
	gate := make(chan struct{})
	var gateOnce sync.Once
	closeGate := func() { gateOnce.Do(func() { close(gate) }) }

	vm := &testVM{hook: func(tt *testTx, handles []*runtime.AccessHandle) (types.Effects, error) {
		if tt.id == 1 {
			close(entered)
			<-gate
		}
		appendTxID(tt, handles)
		return tt.id, nil
	}}
	rt := newTestRuntime(t, st, vm, 2)
	defer rt.Shutdown()
	defer closeGate()

	first := rt.Process([]types.Transaction{tx(0, write(1))})
	first.WaitCommitted()

	second := rt.Process([]types.Transaction{tx(1, write(2))})
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("transaction never started")
	}

	// Cancel the in-flight batch, then let its transaction finish.
	rt.RollbackTo(first.Index())
	assert.True(t, second.WasCanceled())
	closeGate()

	second.WaitProcessed()
	second.WaitPersisted()
	second.WaitCommitted() // returns early, the batch never commits

	assert.False(t, second.WasCommitted())
	_, ok := st.Get(store.SpaceLatestPtr, types.Uint64ID(2).Bytes())
	assert.False(t, ok, "canceled batch must not publish state")
	assert.Equal(t, 1, st.Len(store.SpaceData), "only the first batch's write persists")
	assertWrittenState(t, st, 1, 0)
}

func TestNotarizerObservesBatchesInOrder(t *testing.T) {
	st := store.NewMemStore()

	var mu sync.Mutex
	var notarized []uint64
	notarizer := runtime.NotarizerFunc(func(b *runtime.Batch) {
		assert.True(t, b.WasProcessed())
		assert.False(t, b.WasCommitted(), "notarization happens before commit")
		mu.Lock()
		notarized = append(notarized, b.Index())
		mu.Unlock()
	})

	rt, err := runtime.New(runtime.Config{
		Workers:   2,
		VM:        &testVM{},
		Notarizer: notarizer,
		Storage:   storage.Config{Read: storage.ReadConfig{MaxReaders: 2, BufferDepthPerReader: 8}, Write: storage.WriteConfig{MaxBatchSize: 16, MaxBatchDuration: time.Millisecond}},
	}, st)
	require.NoError(t, err)
	defer rt.Shutdown()

	var last *runtime.Batch
	for i := 0; i < 5; i++ {
		last = rt.Process([]types.Transaction{tx(uint64(i), write(uint64(i)))})
	}
	last.WaitCommitted()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, notarized)
}

func TestCommittedChannelSelect(t *testing.T) {
	st := store.NewMemStore()
	rt := newTestRuntime(t, st, nil, 2)
	defer rt.Shutdown()

	batch := rt.Process([]types.Transaction{tx(0, write(1))})
	select {
	case <-batch.Committed():
	case <-time.After(5 * time.Second):
		t.Fatal("commit never signaled")
	}
	assert.True(t, batch.WasCommitted())
}

func TestEffectsExposedAfterProcessing(t *testing.T) {
	st := store.NewMemStore()
	rt := newTestRuntime(t, st, nil, 2)
	defer rt.Shutdown()

	batch := rt.Process([]types.Transaction{tx(7, write(1)), tx(8, read(1))})
	batch.WaitProcessed()

	assert.Equal(t, uint64(7), batch.Txs()[0].Effects())
	assert.Equal(t, uint64(8), batch.Txs()[1].Effects())
}

func TestBoltBackedEndToEnd(t *testing.T) {
	dir := t.TempDir()
	st, err := store.OpenBolt(dir)
	require.NoError(t, err)

	rt := newTestRuntime(t, st, nil, 4)
	rt.Process([]types.Transaction{tx(0, write(1))})
	second := rt.Process([]types.Transaction{tx(1, write(1), write(2)), tx(2, read(1))})
	second.WaitCommitted()
	rt.Shutdown()
	require.NoError(t, st.Close())

	// Reopen: state must be durable.
	reopened, err := store.OpenBolt(dir)
	require.NoError(t, err)
	defer reopened.Close()

	assertWrittenState(t, reopened, 1, 0, 1)
	assertWrittenState(t, reopened, 2, 1)
}
