package storage_test

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilnworks/kiln/pkg/storage"
	"github.com/kilnworks/kiln/pkg/store"
)

type countingRead struct {
	executions atomic.Int64
	total      *atomic.Int64
}

func (c *countingRead) Exec(r store.Reader) {
	c.executions.Add(1)
	c.total.Add(1)
}

type putWrite struct {
	key  string
	done chan struct{}
}

func (w *putWrite) Exec(s store.Store, wb *store.WriteBatch) *store.WriteBatch {
	wb.Put(store.SpaceData, []byte(w.key), []byte("v"))
	return wb
}

func (w *putWrite) Done() {
	close(w.done)
}

func (w *putWrite) Kind() string { return "put" }

func newManager(t *testing.T, cfg storage.Config) (*storage.Manager, *store.MemStore) {
	t.Helper()
	st := store.NewMemStore()
	m := storage.NewManager(cfg, st)
	t.Cleanup(m.Shutdown)
	return m, st
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestReadsExecuteExactlyOnce(t *testing.T) {
	m, _ := newManager(t, storage.Config{
		Read:  storage.ReadConfig{MaxReaders: 4, BufferDepthPerReader: 8},
		Write: storage.WriteConfig{MaxBatchSize: 10, MaxBatchDuration: 5 * time.Millisecond},
	})

	const total = 2000
	var executed atomic.Int64
	cmds := make([]*countingRead, total)
	for i := range cmds {
		cmds[i] = &countingRead{total: &executed}
	}

	var wg sync.WaitGroup
	for submitter := 0; submitter < 8; submitter++ {
		wg.Add(1)
		go func(offset int) {
			defer wg.Done()
			for i := offset; i < total; i += 8 {
				m.SubmitRead(cmds[i])
			}
		}(submitter)
	}
	wg.Wait()

	waitFor(t, 5*time.Second, func() bool { return executed.Load() == total })
	for i, cmd := range cmds {
		require.Equal(t, int64(1), cmd.executions.Load(), "command %d", i)
	}
}

func TestReadsExecuteWithSingleReader(t *testing.T) {
	m, _ := newManager(t, storage.Config{
		Read:  storage.ReadConfig{MaxReaders: 1, BufferDepthPerReader: 1},
		Write: storage.WriteConfig{MaxBatchSize: 10, MaxBatchDuration: 5 * time.Millisecond},
	})

	var executed atomic.Int64
	for i := 0; i < 100; i++ {
		m.SubmitRead(&countingRead{total: &executed})
	}
	waitFor(t, 5*time.Second, func() bool { return executed.Load() == 100 })
}

func TestWriteWorkerCommitsOnBatchSize(t *testing.T) {
	m, st := newManager(t, storage.Config{
		Read:  storage.ReadConfig{MaxReaders: 1, BufferDepthPerReader: 1},
		Write: storage.WriteConfig{MaxBatchSize: 10, MaxBatchDuration: time.Hour},
	})

	dones := make([]chan struct{}, 10)
	for i := range dones {
		dones[i] = make(chan struct{})
		m.SubmitWrite(&putWrite{key: fmt.Sprintf("k%d", i), done: dones[i]})
	}

	for i, done := range dones {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("write %d not durable", i)
		}
	}
	assert.Equal(t, 10, st.Len(store.SpaceData))
}

func TestWriteWorkerCommitsOnBatchAge(t *testing.T) {
	m, st := newManager(t, storage.Config{
		Read:  storage.ReadConfig{MaxReaders: 1, BufferDepthPerReader: 1},
		Write: storage.WriteConfig{MaxBatchSize: 1000, MaxBatchDuration: 10 * time.Millisecond},
	})

	done := make(chan struct{})
	m.SubmitWrite(&putWrite{key: "aged", done: done})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("age-triggered commit never happened")
	}
	_, ok := st.Get(store.SpaceData, []byte("aged"))
	assert.True(t, ok)
}

func TestWriteDoneRunsAfterDurability(t *testing.T) {
	st := store.NewMemStore()
	m := storage.NewManager(storage.Config{
		Read:  storage.ReadConfig{MaxReaders: 1, BufferDepthPerReader: 1},
		Write: storage.WriteConfig{MaxBatchSize: 1, MaxBatchDuration: time.Millisecond},
	}, st)
	defer m.Shutdown()

	observed := make(chan bool, 1)
	m.SubmitWrite(&observingWrite{store: st, observed: observed})

	select {
	case visible := <-observed:
		assert.True(t, visible, "Done ran before the write was durable")
	case <-time.After(5 * time.Second):
		t.Fatal("write never completed")
	}
}

type observingWrite struct {
	store    *store.MemStore
	observed chan bool
}

func (w *observingWrite) Exec(s store.Store, wb *store.WriteBatch) *store.WriteBatch {
	wb.Put(store.SpaceData, []byte("observed"), []byte("v"))
	return wb
}

func (w *observingWrite) Done() {
	_, ok := w.store.Get(store.SpaceData, []byte("observed"))
	w.observed <- ok
}

func (w *observingWrite) Kind() string { return "observing" }

func TestShutdownDrainsPendingWrites(t *testing.T) {
	st := store.NewMemStore()
	m := storage.NewManager(storage.Config{
		Read:  storage.ReadConfig{MaxReaders: 2, BufferDepthPerReader: 16},
		Write: storage.WriteConfig{MaxBatchSize: 1 << 20, MaxBatchDuration: time.Hour},
	}, st)

	const total = 500
	dones := make([]chan struct{}, total)
	for i := range dones {
		dones[i] = make(chan struct{})
		m.SubmitWrite(&putWrite{key: fmt.Sprintf("drain-%d", i), done: dones[i]})
	}

	m.Shutdown()

	for i, done := range dones {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("write %d lost on shutdown", i)
		}
	}
	assert.Equal(t, total, st.Len(store.SpaceData))
}
