package runtime

import (
	"sync"

	"github.com/kilnworks/kiln/pkg/executor"
)

// stealChunkLimit caps how many ready transactions one bulk steal moves into
// a worker's deque, so a single worker cannot hoard a burst.
const stealChunkLimit = 32

// injector is a batch's availability queue: ready transactions pushed by
// whichever goroutine resolved their last access, stolen in chunks by
// executor workers.
type injector struct {
	mu    sync.Mutex
	items []*RuntimeTx
	head  int
}

func (q *injector) push(tx *RuntimeTx) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, tx)
}

func (q *injector) isEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.head == len(q.items)
}

// stealInto pops one transaction for immediate execution and moves up to
// half of the remaining ready ones into the worker's local deque.
func (q *injector) stealInto(local *executor.Deque) (*RuntimeTx, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.items) - q.head
	if n == 0 {
		return nil, false
	}
	take := (n + 1) / 2
	if take > stealChunkLimit {
		take = stealChunkLimit
	}

	first := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	for i := 1; i < take; i++ {
		local.Push(q.items[q.head])
		q.items[q.head] = nil
		q.head++
	}
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return first, true
}
