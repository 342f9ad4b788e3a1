/*
Package executor runs tasks on a fixed pool of work-stealing workers.

# Architecture

	┌──────────────────── EXECUTOR POOL ───────────────────┐
	│                                                       │
	│  Execute(batch) ── broadcast handle to every worker   │
	│                                                       │
	│  ┌─ worker 0 ─────────┐   ┌─ worker N ─────────┐     │
	│  │ inbox (batches)    │   │ inbox (batches)    │     │
	│  │ batch queue        │   │ batch queue        │     │
	│  │ local FIFO deque ◄─┼───┼─► stealable by peers│     │
	│  │ park (100ms)       │   │ park (100ms)       │     │
	│  └────────────────────┘   └────────────────────┘     │
	└───────────────────────────────────────────────────────┘

# Worker Loop

Each iteration a worker tries, in order:

  - its own deque (work it bulk-stole earlier)
  - its live batches: StealTasks moves a chunk of ready tasks from the
    batch's availability queue into the local deque and returns one;
    depleted batches are unlinked
  - a randomized scan of the other workers' deques

If every source is empty the worker parks with a short timeout; submissions
and newly available tasks wake it early.

# Contracts

The pool knows nothing about transactions. It executes Tasks produced by
Batches:

	type Task interface{ Execute() }
	type Batch interface {
		StealTasks(local *Deque) (Task, bool)
		IsDepleted() bool
	}

Submitting a batch hands a shared handle to every worker, so whichever
workers are free drain it; bulk steals amortize the availability queue's
synchronization.

# Usage

	pool := executor.New(runtime.NumCPU())
	defer pool.Shutdown()

	pool.Execute(batch)   // workers start stealing its tasks
	pool.WakeAll()        // after pushing tasks onto an already-live batch

Shutdown opens the stop latch, wakes every worker, and joins them. Tasks not
yet executed stay on their batches.
*/
package executor
