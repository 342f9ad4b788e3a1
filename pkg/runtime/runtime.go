package runtime

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kilnworks/kiln/pkg/events"
	"github.com/kilnworks/kiln/pkg/executor"
	"github.com/kilnworks/kiln/pkg/latch"
	"github.com/kilnworks/kiln/pkg/log"
	"github.com/kilnworks/kiln/pkg/metrics"
	"github.com/kilnworks/kiln/pkg/storage"
	"github.com/kilnworks/kiln/pkg/store"
	"github.com/kilnworks/kiln/pkg/types"
)

// Config holds runtime construction parameters.
type Config struct {
	// Workers is the executor pool size; <= 0 uses one worker per CPU.
	Workers int
	// VM executes transactions. Required.
	VM VM
	// Notarizer observes processed batches. Optional.
	Notarizer Notarizer
	// Storage tunes the storage pipeline.
	Storage storage.Config
}

// Runtime is the deterministic parallel transaction runtime: it schedules
// batches of transactions onto per-resource access chains, executes them on
// a work-stealing pool, and drives their state through the asynchronous
// storage pipeline.
//
// Process and RollbackTo must be called from a single goroutine; everything
// they start runs concurrently behind the scenes.
type Runtime struct {
	vm         VM
	chain      *chain
	storage    *storage.Manager
	pool       *executor.Pool
	driver     *driver
	broker     *events.Broker
	resources  map[string]*ResourceAccess
	instanceID uuid.UUID
	logger     zerolog.Logger
}

// New starts a runtime on top of the given store.
func New(cfg Config, st store.Store) (*Runtime, error) {
	if cfg.VM == nil {
		return nil, fmt.Errorf("runtime config requires a VM")
	}

	broker := events.NewBroker()
	broker.Start()

	logger := log.WithComponent("runtime")
	r := &Runtime{
		vm:         cfg.VM,
		chain:      newChain(-1),
		storage:    storage.NewManager(cfg.Storage, st),
		pool:       executor.New(cfg.Workers),
		broker:     broker,
		resources:  make(map[string]*ResourceAccess),
		instanceID: uuid.New(),
		logger:     logger,
	}
	r.driver = newDriver(cfg.Notarizer, broker, logger)

	r.writeInstanceMeta(st)
	logger.Info().
		Str("instance_id", r.instanceID.String()).
		Int("workers", r.pool.WorkerCount()).
		Msg("runtime started")
	return r, nil
}

// Process schedules a batch of transactions. The returned batch is strictly
// ordered after every previously scheduled batch; its latches report
// progress.
func (r *Runtime) Process(txs []types.Transaction) *Batch {
	batch := newBatch(r, txs)
	batch.connect()

	r.driver.enqueue(batch)
	r.pool.Execute(batch)

	metrics.BatchesScheduled.Inc()
	r.broker.Publish(&events.Event{Type: events.EventBatchScheduled, BatchIndex: batch.Index()})
	r.logger.Debug().
		Uint64("batch_index", batch.Index()).
		Int("tx_count", len(txs)).
		Int("state_diffs", len(batch.stateDiffs)).
		Msg("batch scheduled")
	return batch
}

// RollbackTo reverts the chain to end at targetIndex: every batch scheduled
// after it is canceled and its durable changes are undone. Blocks until the
// store reflects the target state. Rolling back to the current head or past
// it is a no-op.
func (r *Runtime) RollbackTo(targetIndex uint64) {
	head := r.chain.head()
	if head < 0 || uint64(head) <= targetIndex {
		return
	}

	canceled := r.chain
	r.chain = newChain(int64(targetIndex))
	canceled.cancelAfter(targetIndex)
	metrics.BatchesCanceled.Add(float64(uint64(head) - targetIndex))

	done := latch.New()
	r.storage.SubmitWrite(newRollbackCmd(targetIndex+1, uint64(head), done))
	done.Wait()

	// The in-memory chain tails no longer match the store; drop them so the
	// next accesses reload from storage.
	clear(r.resources)

	r.broker.Publish(&events.Event{Type: events.EventRollbackCompleted, BatchIndex: targetIndex})
	r.logger.Info().
		Uint64("target_index", targetIndex).
		Int64("previous_head", head).
		Msg("rollback completed")
}

// Shutdown drains the lifecycle of every scheduled batch, then stops the
// executor, the storage pipeline, and the event broker.
func (r *Runtime) Shutdown() {
	r.driver.shutdown()
	r.pool.Shutdown()
	r.storage.Shutdown()
	r.broker.Stop()
	r.logger.Info().Msg("runtime stopped")
}

// Storage exposes the storage manager (and through it the store).
func (r *Runtime) Storage() *storage.Manager {
	return r.storage
}

// Events exposes the lifecycle event broker.
func (r *Runtime) Events() *events.Broker {
	return r.broker
}

// InstanceID returns this runtime instance's id.
func (r *Runtime) InstanceID() uuid.UUID {
	return r.instanceID
}

// buildAccesses creates the transaction's chain nodes in declaration order,
// appending each behind the resource's current last access and collecting one
// state diff per distinct resource the batch touches.
func (r *Runtime) buildAccesses(tx types.Transaction, rt *RuntimeTx, b *Batch) []*ResourceAccess {
	metas := tx.AccessedResources()
	accesses := make([]*ResourceAccess, 0, len(metas))
	for _, meta := range metas {
		key := string(meta.Resource.Bytes())
		prev := r.resources[key]

		var diff *StateDiff
		if prev != nil && prev.tx.batch == b {
			if prev.tx == rt {
				panic(fmt.Sprintf("duplicate access to %s within one transaction", meta.Resource))
			}
			diff = prev.diff
		} else {
			diff = newStateDiff(b, meta.Resource)
			b.stateDiffs = append(b.stateDiffs, diff)
		}

		access := newResourceAccess(meta, rt, diff, prev)
		r.resources[key] = access
		accesses = append(accesses, access)
	}
	return accesses
}

// writeInstanceMeta records this instance in the metas space.
func (r *Runtime) writeInstanceMeta(st store.Store) {
	wb := st.NewBatch()
	wb.Put(store.SpaceMetas, []byte("instance_id"), []byte(r.instanceID.String()))
	wb.Put(store.SpaceMetas, []byte("started_at"), []byte(time.Now().UTC().Format(time.RFC3339)))
	st.Commit(wb)
}
