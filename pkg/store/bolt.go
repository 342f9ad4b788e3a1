package store

import (
	"bytes"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

// BoltStore implements Store on top of a single BoltDB file. Each state space
// is a bucket; Commit applies a whole write batch inside one update
// transaction, so batches are all-or-nothing.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (or creates) the store under dataDir and creates all state
// space buckets.
func OpenBolt(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "kiln.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, space := range Spaces {
			if _, err := tx.CreateBucketIfNotExists(space.Bucket()); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", space, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Get(space Space, key []byte) ([]byte, bool) {
	var value []byte
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		data := s.bucket(tx, space).Get(key)
		if data != nil {
			// The slice is only valid inside the transaction.
			value = append([]byte(nil), data...)
			ok = true
		}
		return nil
	})
	if err != nil {
		panic(fmt.Sprintf("store: get failed in %s: %v", space, err))
	}
	return value, ok
}

func (s *BoltStore) PrefixScan(space Space, prefix []byte, fn func(key, value []byte) bool) {
	err := s.db.View(func(tx *bolt.Tx) error {
		c := s.bucket(tx, space).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if !fn(k, v) {
				break
			}
		}
		return nil
	})
	if err != nil {
		panic(fmt.Sprintf("store: prefix scan failed in %s: %v", space, err))
	}
}

func (s *BoltStore) NewBatch() *WriteBatch {
	return NewWriteBatch()
}

// Commit applies the batch inside a single update transaction. A failure here
// means durable state can no longer be trusted, so it panics rather than
// letting the runtime continue on a half-written store.
func (s *BoltStore) Commit(batch *WriteBatch) {
	if batch.Len() == 0 {
		return
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, op := range batch.ops {
			b := s.bucket(tx, op.space)
			if op.delete {
				if err := b.Delete(op.key); err != nil {
					return err
				}
			} else if err := b.Put(op.key, op.value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		panic(fmt.Sprintf("store: write batch commit failed: %v", err))
	}
}

func (s *BoltStore) bucket(tx *bolt.Tx, space Space) *bolt.Bucket {
	b := tx.Bucket(space.Bucket())
	if b == nil {
		panic(fmt.Sprintf("store: missing bucket %s", space))
	}
	return b
}
