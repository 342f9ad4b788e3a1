package runtime

import (
	"sync/atomic"
	"time"

	"github.com/kilnworks/kiln/pkg/executor"
	"github.com/kilnworks/kiln/pkg/latch"
	"github.com/kilnworks/kiln/pkg/metrics"
	"github.com/kilnworks/kiln/pkg/storage"
	"github.com/kilnworks/kiln/pkg/store"
	"github.com/kilnworks/kiln/pkg/types"
)

// Batch is one submitted group of transactions: the unit of processing,
// persistence, commit and rollback. Its three latches open in order as the
// batch crosses each milestone; cancellation (a rollback past this batch) is
// a predicate, not a latch — waiters of a canceled batch return early.
type Batch struct {
	chain       *chain
	index       uint64
	storage     *storage.Manager
	txs         []*RuntimeTx
	stateDiffs  []*StateDiff
	available   injector
	onAvailable func()

	pendingTxs    atomic.Int64
	pendingWrites atomic.Int64

	processed   *latch.Latch
	persisted   *latch.Latch
	committed   *latch.Latch
	scheduledAt time.Time
}

// newBatch builds the batch's runtime transactions and their access chains.
// It runs on the scheduling goroutine; the chains are wired into the live
// graph by connect afterwards.
func newBatch(r *Runtime, txs []types.Transaction) *Batch {
	b := &Batch{
		chain:       r.chain,
		index:       r.chain.nextBatchIndex(),
		storage:     r.storage,
		onAvailable: r.pool.WakeAll,
		processed:   latch.New(),
		persisted:   latch.New(),
		committed:   latch.New(),
		scheduledAt: time.Now(),
	}
	b.pendingTxs.Store(int64(len(txs)))

	for _, tx := range txs {
		rt := &RuntimeTx{vm: r.vm, batch: b, tx: tx}
		rt.accesses = r.buildAccesses(tx, rt, b)
		rt.pendingResources.Store(int64(len(rt.accesses)))
		b.txs = append(b.txs, rt)
	}
	return b
}

// connect performs the second wiring pass: every access hooks into its
// resource chain (or requests a storage load at the chain head). A
// transaction with no declared accesses is ready immediately.
func (b *Batch) connect() {
	if len(b.txs) == 0 {
		b.processed.Open()
		b.persisted.Open()
		return
	}
	for _, tx := range b.txs {
		if len(tx.accesses) == 0 {
			b.pushAvailableTx(tx)
			continue
		}
		for _, access := range tx.accesses {
			access.connect(b.storage)
		}
	}
}

// Index returns the batch's position in the chain.
func (b *Batch) Index() uint64 {
	return b.index
}

// Txs returns the batch's transactions in submission order.
func (b *Batch) Txs() []*RuntimeTx {
	return b.txs
}

// StateDiffs returns one diff per distinct resource the batch touches.
func (b *Batch) StateDiffs() []*StateDiff {
	return b.stateDiffs
}

// WasCanceled reports whether a rollback has moved the chain below this
// batch. Canceled batches stop submitting writes and never commit.
func (b *Batch) WasCanceled() bool {
	return b.index > b.chain.threshold()
}

// WasProcessed reports whether every transaction has executed.
func (b *Batch) WasProcessed() bool {
	return b.processed.IsOpen()
}

// Processed returns a channel closed when the batch is processed. A canceled
// batch may never close it; select against the batch's cancellation if that
// matters, or use WaitProcessed.
func (b *Batch) Processed() <-chan struct{} {
	return b.processed.Done()
}

// WaitProcessed blocks until the batch is processed or canceled.
func (b *Batch) WaitProcessed() {
	b.waitLatch(b.processed)
}

// WasPersisted reports whether every state diff is durable.
func (b *Batch) WasPersisted() bool {
	return b.persisted.IsOpen()
}

// Persisted returns a channel closed when the batch is persisted.
func (b *Batch) Persisted() <-chan struct{} {
	return b.persisted.Done()
}

// WaitPersisted blocks until the batch is persisted or canceled.
func (b *Batch) WaitPersisted() {
	b.waitLatch(b.persisted)
}

// WasCommitted reports whether the batch's commit completed.
func (b *Batch) WasCommitted() bool {
	return b.committed.IsOpen()
}

// Committed returns a channel closed when the batch is committed.
func (b *Batch) Committed() <-chan struct{} {
	return b.committed.Done()
}

// WaitCommitted blocks until the batch is committed or canceled.
func (b *Batch) WaitCommitted() {
	b.waitLatch(b.committed)
}

// waitLatch waits for a milestone, returning early if the batch is canceled.
// A rollback that does not cancel this batch just re-enters the wait.
func (b *Batch) waitLatch(l *latch.Latch) {
	for {
		if b.WasCanceled() || l.IsOpen() {
			return
		}
		select {
		case <-l.Done():
			return
		case <-b.chain.rolledBack.Done():
			if b.WasCanceled() {
				return
			}
			// The rollback targeted a later index; the milestone is still
			// coming and the chain latch stays open, so wait directly.
			<-l.Done()
			return
		}
	}
}

// NumPending returns the count of transactions not yet executed.
func (b *Batch) NumPending() int64 {
	return b.pendingTxs.Load()
}

// ScheduleCommit submits the batch's commit command. The notarization driver
// calls this once the batch is persisted; canceled batches never commit.
func (b *Batch) ScheduleCommit() {
	if !b.WasCanceled() {
		b.storage.SubmitWrite(&commitBatchCmd{batch: b})
	}
}

// StealTasks implements executor.Batch.
func (b *Batch) StealTasks(local *executor.Deque) (executor.Task, bool) {
	tx, ok := b.available.stealInto(local)
	if !ok {
		return nil, false
	}
	return tx, true
}

// IsDepleted implements executor.Batch: no pending and no available work.
func (b *Batch) IsDepleted() bool {
	return b.pendingTxs.Load() == 0 && b.available.isEmpty()
}

func (b *Batch) pushAvailableTx(tx *RuntimeTx) {
	b.available.push(tx)
	if b.onAvailable != nil {
		b.onAvailable()
	}
}

func (b *Batch) decreasePendingTxs() {
	if b.pendingTxs.Add(-1) == 0 {
		b.processed.Open()
		metrics.BatchProcessDuration.Observe(time.Since(b.scheduledAt).Seconds())
		// All writes were submitted before the last transaction finished, so
		// a zero here is final and the batch may already be durable.
		if b.pendingWrites.Load() == 0 {
			b.persisted.Open()
		}
	}
}

// submitWrite forwards a write to storage on the batch's account. Writes on
// canceled batches are suppressed.
func (b *Batch) submitWrite(cmd storage.WriteCmd) {
	if b.WasCanceled() {
		return
	}
	b.pendingWrites.Add(1)
	b.storage.SubmitWrite(cmd)
}

func (b *Batch) decreasePendingWrites() {
	if b.pendingWrites.Add(-1) == 0 && b.pendingTxs.Load() == 0 {
		b.persisted.Open()
	}
}

// commit moves every changed resource's latest pointer to the version this
// batch produced. Runs on the write worker.
func (b *Batch) commit(wb *store.WriteBatch) {
	if b.WasCanceled() {
		return
	}
	for _, diff := range b.stateDiffs {
		if diff.Changed() {
			diff.WrittenState().WriteLatestPtr(wb)
		}
	}
}

func (b *Batch) commitDone() {
	b.committed.Open()
	metrics.BatchesCommitted.Inc()
}
