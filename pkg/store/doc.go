/*
Package store defines the key-value store contract the runtime persists into,
and a BoltDB-backed implementation of it.

The store is organized into a fixed set of state spaces (BoltDB buckets):

	data          version (be u64) || resource id  ->  serialized state
	latest_ptr    resource id                      ->  version (be u64)
	rollback_ptr  batch index (be u64) || resource id -> version (be u64)
	metas         runtime metadata

Reads happen concurrently from the storage manager's reader pool; writes are
funneled through a single write worker that accumulates a WriteBatch and
commits it in one transaction. Commit is all-or-nothing: a batch that fails to
apply panics, because a partially applied durable write is unrecoverable.
*/
package store
