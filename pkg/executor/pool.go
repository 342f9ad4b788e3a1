package executor

import (
	"math/rand/v2"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kilnworks/kiln/pkg/latch"
	"github.com/kilnworks/kiln/pkg/log"
)

// Pool is a fixed set of worker goroutines draining ready tasks from
// submitted batches, with work stealing between workers.
type Pool struct {
	workers  []*worker
	shutdown *latch.Latch
	wg       sync.WaitGroup
	logger   zerolog.Logger
}

// New starts a pool with the given number of workers; workerCount <= 0 uses
// one worker per CPU.
func New(workerCount int) *Pool {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	p := &Pool{
		shutdown: latch.New(),
		logger:   log.WithComponent("executor"),
	}
	for id := 0; id < workerCount; id++ {
		p.workers = append(p.workers, newWorker(id))
	}
	p.wg.Add(workerCount)
	for _, w := range p.workers {
		go w.run(p)
	}
	return p
}

// Execute hands a batch to every worker. Each worker keeps its own handle so
// any of them can steal the batch's tasks as they become available.
func (p *Pool) Execute(b Batch) {
	for _, w := range p.workers {
		w.inbox <- b
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
}

// WakeAll unparks every worker. The runtime calls this when new tasks land on
// an already-submitted batch's availability queue.
func (p *Pool) WakeAll() {
	for _, w := range p.workers {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
}

// WorkerCount returns the pool size.
func (p *Pool) WorkerCount() int {
	return len(p.workers)
}

// Shutdown stops all workers and waits for them to exit. Tasks not yet
// executed stay on their batches.
func (p *Pool) Shutdown() {
	p.shutdown.Open()
	p.WakeAll()
	p.wg.Wait()
	p.logger.Debug().Msg("executor stopped")
}

// stealFromPeers scans the other workers' deques in round-robin order from a
// random start.
func (p *Pool) stealFromPeers(workerID int) (Task, bool) {
	n := len(p.workers)
	if n <= 1 {
		return nil, false
	}
	start := rand.IntN(n)
	for offset := 0; offset < n; offset++ {
		id := (start + offset) % n
		if id == workerID {
			continue
		}
		if task, ok := p.workers[id].deque.Steal(); ok {
			return task, true
		}
	}
	return nil, false
}
