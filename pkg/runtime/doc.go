/*
Package runtime is kiln's scheduler and resource-dependency core.

Transactions arrive in batches and declare, in order, the resources they read
and write. The runtime threads each declared access onto a per-resource chain:
writes serialize everything behind them, reads are transparent and resolve in
parallel. Non-conflicting work executes concurrently while every resource
still observes the exact submission order.

# Architecture

	┌────────────────────── RUNTIME ───────────────────────┐
	│                                                       │
	│  Process(txs)                                         │
	│     │  build RuntimeTx records + ResourceAccess chains│
	│     ▼                                                 │
	│  resource chains ──── chain heads load from storage,  │
	│     │                 interior nodes await their       │
	│     │                 predecessor's written state      │
	│     ▼                                                 │
	│  availability queue ─ transactions whose accesses     │
	│     │                 all resolved                     │
	│     ▼                                                 │
	│  executor workers ─── run the VM, publish written     │
	│     │                 state, which propagates to       │
	│     │                 chain successors                 │
	│     ▼                                                 │
	│  state diffs ──────── flow to storage as they         │
	│     │                 complete                         │
	│     ▼                                                 │
	│  batch latches ────── processed → persisted →         │
	│                       committed                        │
	└───────────────────────────────────────────────────────┘

# Core Components

Runtime:
  - Entry point: Process schedules a batch, RollbackTo reverts the chain,
    Shutdown drains everything
  - Owns the per-resource last-access map (the graph's growth point)
  - Single-goroutine contract: Process and RollbackTo are called from one
    scheduling goroutine

Batch:
  - One submitted group of transactions, the unit of commit and rollback
  - Three one-shot latches (processed, persisted, committed) plus the
    cancellation predicate
  - Availability queue that executor workers bulk-steal from

ResourceAccess:
  - One node in a per-resource chain
  - read/written state slots publish exactly once (compare-and-swap)
  - The backward link is severed once the read state lands, so finished
    chain prefixes become collectible

StateDiff:
  - Per-(batch, resource) rollback record shared by all of the batch's
    accesses to that resource
  - Read side comes from the batch-head access, written side from the
    batch-tail access
  - Completing the written side enqueues the durable write; diffs that did
    not change their resource skip storage entirely

AccessHandle:
  - The VM's copy-on-write window onto one access
  - First mutation clones the state at version+1

# Lifecycle

A batch crosses three milestones, always in order:

  - processed: every transaction executed (pending count hit zero)
  - persisted: every changed state diff is durable
  - committed: the commit command moved the latest pointers

The notarization driver walks each batch through this sequence in FIFO order
and invokes the host's notarizer between processing and commit, so commits of
batch N never precede commits of batch N-1.

Cancellation is not a latch. A batch whose index exceeds the chain's rollback
threshold observes WasCanceled, its waiters return early, its writes are
suppressed, and its commit is never scheduled. In-flight transactions finish
harmlessly; their publications flow through the in-memory graph but never
reach the store.

# Usage

	st, _ := store.OpenBolt(dataDir)
	rt, err := runtime.New(runtime.Config{
		Workers: 8,
		VM:      myVM,
		Storage: storage.DefaultConfig(),
	}, st)
	if err != nil {
		return err
	}
	defer rt.Shutdown()

	batch := rt.Process(txs)
	batch.WaitCommitted()

	rt.RollbackTo(batch.Index() - 1) // undo the batch

# Error Handling

  - VM errors are per-transaction and non-fatal: the transaction's write
    handles republish their read state and the chain proceeds on the
    original values
  - Duplicate resource declarations within one transaction panic at
    scheduling time
  - Store commit failures panic inside the storage pipeline (durable-path
    corruption is not recoverable)

# Integration Points

This package integrates with:

  - pkg/executor: batches implement the executor's Batch contract
  - pkg/storage: chain-head reads, state diff writes, commits and rollbacks
  - pkg/events: the driver publishes lifecycle events
  - pkg/metrics: batch, transaction and rollback counters

# Concurrency

The hot path is lock-free: state slots are publish-once atomic pointers and
nothing holds a lock across a VM call. The only mutexes sit in the
availability queues and worker deques, held for pushes and pops only. The
scheduler's resource map is confined to the scheduling goroutine.
*/
package runtime
