package runtime

import (
	"github.com/rs/zerolog"

	"github.com/kilnworks/kiln/pkg/events"
)

// driver is the notarization loop: a single goroutine draining batches in
// FIFO order through their lifecycle — await processing, hand the batch to
// the notarizer, await persistence, schedule the commit, await it. Canceled
// batches fall straight through without notarization or commit.
type driver struct {
	queue     chan *Batch
	notarizer Notarizer
	broker    *events.Broker
	stopped   chan struct{}
	logger    zerolog.Logger
}

func newDriver(notarizer Notarizer, broker *events.Broker, logger zerolog.Logger) *driver {
	d := &driver{
		queue:     make(chan *Batch, 4096),
		notarizer: notarizer,
		broker:    broker,
		stopped:   make(chan struct{}),
		logger:    logger,
	}
	go d.run()
	return d
}

func (d *driver) enqueue(batch *Batch) {
	d.queue <- batch
}

// shutdown closes the intake and waits for already-enqueued batches to run
// their lifecycle to the end.
func (d *driver) shutdown() {
	close(d.queue)
	<-d.stopped
}

func (d *driver) run() {
	defer close(d.stopped)

	for batch := range d.queue {
		batch.WaitProcessed()
		if batch.WasCanceled() {
			d.publish(events.EventBatchCanceled, batch)
			d.logger.Debug().Uint64("batch_index", batch.Index()).Msg("batch canceled, skipping commit")
			continue
		}
		d.publish(events.EventBatchProcessed, batch)

		if d.notarizer != nil {
			d.notarizer.NotarizeBatch(batch)
		}

		batch.WaitPersisted()
		if batch.WasCanceled() {
			d.publish(events.EventBatchCanceled, batch)
			continue
		}
		d.publish(events.EventBatchPersisted, batch)

		batch.ScheduleCommit()
		batch.WaitCommitted()
		if batch.WasCommitted() {
			d.publish(events.EventBatchCommitted, batch)
		} else {
			d.publish(events.EventBatchCanceled, batch)
		}
	}
}

func (d *driver) publish(kind events.EventType, batch *Batch) {
	d.broker.Publish(&events.Event{Type: kind, BatchIndex: batch.Index()})
}
