/*
Package events distributes runtime lifecycle events to subscribers.

The runtime publishes an event when a batch is scheduled and when a rollback
completes; its notarization driver publishes one each time a batch crosses a
later lifecycle boundary (processed, persisted, committed, canceled). Delivery is best-effort: a subscriber whose buffer
is full misses the event rather than stalling the runtime.
*/
package events
