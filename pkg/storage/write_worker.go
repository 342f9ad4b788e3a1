package storage

import (
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/kilnworks/kiln/pkg/latch"
	"github.com/kilnworks/kiln/pkg/metrics"
	"github.com/kilnworks/kiln/pkg/store"
)

// writeWorker is the single goroutine that owns the store's write path. It
// accumulates commands into one write batch and group-commits when the batch
// is full or old enough, then runs each command's post-commit callback.
type writeWorker struct {
	cfg      WriteConfig
	store    store.Store
	queue    *cmdQueue[WriteCmd]
	wake     chan struct{}
	parked   atomic.Bool
	shutdown *latch.Latch
	stopped  chan struct{}
	logger   zerolog.Logger
}

func newWriteWorker(cfg WriteConfig, s store.Store, shutdown *latch.Latch, logger zerolog.Logger) *writeWorker {
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 1
	}
	if cfg.MaxBatchDuration <= 0 {
		cfg.MaxBatchDuration = 10 * time.Millisecond
	}
	w := &writeWorker{
		cfg:      cfg,
		store:    s,
		queue:    newCmdQueue[WriteCmd](),
		wake:     make(chan struct{}, 1),
		shutdown: shutdown,
		stopped:  make(chan struct{}),
		logger:   logger,
	}
	go w.run()
	return w
}

// Submit enqueues a write command. The worker is woken early once a full
// batch is waiting; otherwise its parking timeout bounds the commit latency.
func (w *writeWorker) Submit(cmd WriteCmd) {
	if w.queue.Push(cmd) >= w.cfg.MaxBatchSize && w.parked.Load() {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
}

func (w *writeWorker) run() {
	defer close(w.stopped)

	batch := w.store.NewBatch()
	var cmds []WriteCmd
	created := time.Now()

	commit := func() {
		if len(cmds) == 0 {
			return
		}
		w.store.Commit(batch)
		metrics.StorageCommitsTotal.Inc()
		metrics.StorageCommitSize.Observe(float64(len(cmds)))
		for _, cmd := range cmds {
			cmd.Done()
		}
		cmds = cmds[:0]
		batch = w.store.NewBatch()
		created = time.Now()
	}

	for !w.shutdown.IsOpen() {
		if len(cmds) > 0 && (len(cmds) >= w.cfg.MaxBatchSize || time.Since(created) >= w.cfg.MaxBatchDuration) {
			commit()
		}

		cmd, ok := w.queue.Pop()
		if !ok {
			w.park()
			continue
		}
		batch = cmd.Exec(w.store, batch)
		metrics.StorageWritesTotal.WithLabelValues(cmd.Kind()).Inc()
		cmds = append(cmds, cmd)
	}

	// Drain remaining work before exit so no submitted write is lost.
	for {
		cmd, ok := w.queue.Pop()
		if !ok {
			break
		}
		batch = cmd.Exec(w.store, batch)
		metrics.StorageWritesTotal.WithLabelValues(cmd.Kind()).Inc()
		cmds = append(cmds, cmd)
	}
	commit()
	w.logger.Debug().Msg("write worker stopped")
}

func (w *writeWorker) park() {
	w.parked.Store(true)
	defer w.parked.Store(false)

	if !w.queue.Empty() {
		return
	}
	timer := time.NewTimer(w.cfg.MaxBatchDuration)
	defer timer.Stop()
	select {
	case <-w.wake:
	case <-timer.C:
	case <-w.shutdown.Done():
	}
}
