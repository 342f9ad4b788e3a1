package executor

import (
	"time"

	"github.com/kilnworks/kiln/pkg/metrics"
)

const (
	inboxCapacity = 1024
	parkTimeout   = 100 * time.Millisecond
)

type worker struct {
	id      int
	deque   *Deque
	inbox   chan Batch
	wake    chan struct{}
	batches *batchQueue
}

func newWorker(id int) *worker {
	inbox := make(chan Batch, inboxCapacity)
	return &worker{
		id:      id,
		deque:   &Deque{},
		inbox:   inbox,
		wake:    make(chan struct{}, 1),
		batches: newBatchQueue(inbox),
	}
}

func (w *worker) run(p *Pool) {
	defer p.wg.Done()
	logger := p.logger.With().Int("worker_id", w.id).Logger()
	logger.Debug().Msg("worker started")

	for !p.shutdown.IsOpen() {
		task, source := w.findTask(p)
		if task == nil {
			metrics.WorkerParks.Inc()
			w.park(p)
			continue
		}
		metrics.TasksStolen.WithLabelValues(source).Inc()
		task.Execute()
	}
	logger.Debug().Msg("worker stopped")
}

// findTask tries, in order: the local deque, the worker's live batches, and
// finally the other workers' deques.
func (w *worker) findTask(p *Pool) (Task, string) {
	if task, ok := w.deque.Pop(); ok {
		return task, "local"
	}
	if task, ok := w.batches.steal(w.deque); ok {
		return task, "batch"
	}
	if task, ok := p.stealFromPeers(w.id); ok {
		return task, "peer"
	}
	return nil, ""
}

func (w *worker) park(p *Pool) {
	timer := time.NewTimer(parkTimeout)
	defer timer.Stop()
	select {
	case <-w.wake:
	case <-timer.C:
	case <-p.shutdown.Done():
	}
}
