package store

type batchOp struct {
	space  Space
	key    []byte
	value  []byte
	delete bool
}

// WriteBatch buffers put and delete operations until the store commits them
// in a single transaction. Batches are built by one goroutine at a time (the
// storage manager's write worker) and are not safe for concurrent use.
type WriteBatch struct {
	ops []batchOp
}

// NewWriteBatch returns an empty batch. Stores hand these out via NewBatch so
// implementations can pre-size them.
func NewWriteBatch() *WriteBatch {
	return &WriteBatch{}
}

// Put records key = value in the given space. Key and value are copied; the
// caller may reuse its buffers.
func (b *WriteBatch) Put(space Space, key, value []byte) {
	b.ops = append(b.ops, batchOp{
		space: space,
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
	})
}

// Delete records removal of key from the given space.
func (b *WriteBatch) Delete(space Space, key []byte) {
	b.ops = append(b.ops, batchOp{
		space:  space,
		key:    append([]byte(nil), key...),
		delete: true,
	})
}

// Len returns the number of buffered operations.
func (b *WriteBatch) Len() int {
	return len(b.ops)
}
