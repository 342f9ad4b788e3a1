/*
Package storage runs the asynchronous pipeline between the runtime and its
key-value store.

# Architecture

	┌────────────────── STORAGE MANAGER ─────────────────┐
	│                                                     │
	│  SubmitRead ──→ command queue ──→ reader pool       │
	│                 (adaptive: one active reader per    │
	│                  BufferDepthPerReader queued        │
	│                  commands, capped at MaxReaders)    │
	│                                                     │
	│  SubmitWrite ─→ command queue ──→ write worker      │
	│                 (accumulates one write batch,       │
	│                  commits on size or age, then       │
	│                  runs Done callbacks)               │
	└─────────────────────────────────────────────────────┘

# Read Subsystem

A bounded pool of reader goroutines drains a single shared queue. Parallelism
adapts to load: each submission recomputes the target active set from the
queue depth, wakes parked readers into it, and readers whose id falls outside
the target park themselves after finishing a command. Shutdown force-wakes
every reader.

Contract: a submitted read command executes exactly once; ordering across
commands is not preserved. The runtime tolerates this because each read
resolves exactly one chain head.

# Write Subsystem

A single writer goroutine owns the store's write path. Commands execute
against an accumulating write batch; the batch commits when it reaches
MaxBatchSize commands or MaxBatchDuration of age, whichever comes first.
After a commit every included command's Done callback runs, which is the
durability signal the batch lifecycle builds on.

A command may replace the batch during Exec: the rollback command commits the
in-flight batch for a consistent view, applies itself, and hands back a fresh
batch.

The writer parks with a MaxBatchDuration timeout when its queue is empty and
is woken early once a full batch is waiting. On shutdown it drains the queue
and commits before exiting, so no submitted write is lost.

# Usage

	m := storage.NewManager(storage.Config{
		Read:  storage.ReadConfig{MaxReaders: 8, BufferDepthPerReader: 128},
		Write: storage.WriteConfig{MaxBatchSize: 1000, MaxBatchDuration: 10 * time.Millisecond},
	}, st)
	defer m.Shutdown()

	m.SubmitRead(cmd)   // executes once, on some reader
	m.SubmitWrite(cmd)  // durable once cmd.Done() runs

# Failure Semantics

Store errors on the commit path panic: a half-applied durable write is
unrecoverable. A read command that cannot resolve never completes; the host
must provide a store whose reads succeed, or the runtime cannot make
progress.

# Integration Points

This package integrates with:

  - pkg/store: the Store collaborator the pipeline drives
  - pkg/runtime: supplies the concrete read and write commands
  - pkg/metrics: queue depth, active readers, commit size and counts
*/
package storage
