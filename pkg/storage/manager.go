package storage

import (
	"github.com/rs/zerolog"

	"github.com/kilnworks/kiln/pkg/latch"
	"github.com/kilnworks/kiln/pkg/log"
	"github.com/kilnworks/kiln/pkg/store"
)

// Manager owns the asynchronous storage pipeline: a pool of readers with
// adaptive parallelism and a single write worker with batched group-commit.
type Manager struct {
	store    store.Store
	readers  *readPool
	writer   *writeWorker
	shutdown *latch.Latch
	logger   zerolog.Logger
}

// NewManager starts the storage pipeline on top of the given store.
func NewManager(cfg Config, s store.Store) *Manager {
	logger := log.WithComponent("storage")
	shutdown := latch.New()
	return &Manager{
		store:    s,
		readers:  newReadPool(cfg.Read, s, shutdown, logger),
		writer:   newWriteWorker(cfg.Write, s, shutdown, logger),
		shutdown: shutdown,
		logger:   logger,
	}
}

// SubmitRead enqueues a read command; it will execute exactly once, on an
// arbitrary reader, in no particular order relative to other reads.
func (m *Manager) SubmitRead(cmd ReadCmd) {
	m.readers.Submit(cmd)
}

// SubmitWrite enqueues a write command for the next group commit.
func (m *Manager) SubmitWrite(cmd WriteCmd) {
	m.writer.Submit(cmd)
}

// Store exposes the underlying store for direct reads (tests, host tooling).
func (m *Manager) Store() store.Store {
	return m.store
}

// Shutdown stops the pipeline. The write worker drains its queue and commits
// before exiting; readers stop without executing queued commands.
func (m *Manager) Shutdown() {
	m.shutdown.Open()
	for _, w := range m.readers.workers {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
	m.readers.wg.Wait()
	<-m.writer.stopped
	m.logger.Debug().Msg("storage manager stopped")
}
