package storage

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/kilnworks/kiln/pkg/latch"
	"github.com/kilnworks/kiln/pkg/metrics"
	"github.com/kilnworks/kiln/pkg/store"
)

// readPool executes read commands on a bounded pool of reader goroutines.
// Parallelism is adaptive: submitters size the active set to the queue depth,
// and readers whose id falls outside the active set park themselves.
type readPool struct {
	cfg      ReadConfig
	store    store.Reader
	queue    *cmdQueue[ReadCmd]
	active   atomic.Int64
	workers  []*readWorker
	shutdown *latch.Latch
	wg       sync.WaitGroup
	logger   zerolog.Logger
}

type readWorker struct {
	id     int
	wake   chan struct{}
	parked atomic.Bool
}

func newReadPool(cfg ReadConfig, r store.Reader, shutdown *latch.Latch, logger zerolog.Logger) *readPool {
	if cfg.MaxReaders <= 0 {
		cfg.MaxReaders = 1
	}
	if cfg.BufferDepthPerReader <= 0 {
		cfg.BufferDepthPerReader = 1
	}
	p := &readPool{
		cfg:      cfg,
		store:    r,
		queue:    newCmdQueue[ReadCmd](),
		shutdown: shutdown,
		logger:   logger,
	}
	for id := 0; id < cfg.MaxReaders; id++ {
		w := &readWorker{id: id, wake: make(chan struct{}, 1)}
		p.workers = append(p.workers, w)
		p.wg.Add(1)
		go p.run(w)
	}
	return p
}

// Submit enqueues a read command and retunes the active reader set. Each
// submitted command executes exactly once.
func (p *readPool) Submit(cmd ReadCmd) {
	depth := p.queue.Push(cmd)
	metrics.ReadQueueDepth.Set(float64(depth))

	target := depth/p.cfg.BufferDepthPerReader + 1
	if target > p.cfg.MaxReaders {
		target = p.cfg.MaxReaders
	}
	p.active.Store(int64(target))
	metrics.ActiveReaders.Set(float64(target))

	for _, w := range p.workers[:target] {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
}

func (p *readPool) run(w *readWorker) {
	defer p.wg.Done()

	for !p.shutdown.IsOpen() {
		cmd, ok := p.queue.Pop()
		if !ok {
			p.park(w)
			continue
		}
		cmd.Exec(p.store)
		metrics.StorageReadsTotal.Inc()

		if p.beyondTarget(w) {
			p.park(w)
		}
	}
	p.logger.Debug().Int("reader_id", w.id).Msg("reader stopped")
}

// beyondTarget reports whether the reader sits outside the active set and
// should yield its slot.
func (p *readPool) beyondTarget(w *readWorker) bool {
	return int64(w.id) >= p.active.Load()
}

func (p *readPool) park(w *readWorker) {
	w.parked.Store(true)
	defer w.parked.Store(false)

	// Re-check after flagging ourselves parked: a submitter may have pushed
	// between our failed pop and here.
	if !p.queue.Empty() && !p.beyondTarget(w) {
		return
	}
	select {
	case <-w.wake:
	case <-p.shutdown.Done():
	}
}
