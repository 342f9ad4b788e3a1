package executor

// Task is one unit of work a worker executes.
type Task interface {
	Execute()
}

// Batch is a producer of ready tasks. Implementations expose a lock-free-ish
// availability queue workers steal from; a batch is depleted once it will
// never produce another task.
type Batch interface {
	// StealTasks moves a chunk of available tasks into the worker's local
	// deque and returns one of them for immediate execution.
	StealTasks(local *Deque) (Task, bool)

	// IsDepleted reports whether the batch has no pending and no available
	// tasks left; depleted batches are unlinked from worker queues.
	IsDepleted() bool
}
