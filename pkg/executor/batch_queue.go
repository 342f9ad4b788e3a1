package executor

import "container/list"

// batchQueue holds the batches a worker is currently drawing tasks from. New
// batches arrive through the worker's inbox; depleted batches are unlinked so
// the queue only ever walks live producers.
type batchQueue struct {
	queue *list.List
	inbox chan Batch
}

func newBatchQueue(inbox chan Batch) *batchQueue {
	return &batchQueue{queue: list.New(), inbox: inbox}
}

// steal scans the live batches for available tasks, bulk-stealing into the
// worker's deque. When every known batch is empty it pulls newly submitted
// batches from the inbox and rescans.
func (q *batchQueue) steal(local *Deque) (Task, bool) {
	for {
		for elem := q.queue.Front(); elem != nil; {
			batch := elem.Value.(Batch)
			if task, ok := batch.StealTasks(local); ok {
				return task, true
			}
			next := elem.Next()
			if batch.IsDepleted() {
				q.queue.Remove(elem)
			}
			elem = next
		}

		if !q.pullNewBatches() {
			return nil, false
		}
	}
}

func (q *batchQueue) pullNewBatches() bool {
	pulled := false
	for {
		select {
		case batch := <-q.inbox:
			q.queue.PushBack(batch)
			pulled = true
		default:
			return pulled
		}
	}
}
