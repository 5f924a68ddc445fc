package kvstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spaolacci/murmur3"
	bolt "go.etcd.io/bbolt"
)

func partitionBucket(idx int) []byte {
	return []byte(fmt.Sprintf("partition-%06d", idx))
}

// BoltStore is a Store backed by a single bbolt file, with one bucket per
// partition. Keys are routed to a partition by a stable 32-bit murmur3
// hash taken modulo the partition count (the hash's low bits when the
// count is a power of two). Keeping every partition's data in one bbolt.DB lets a batch
// spanning several partitions commit inside a single bbolt transaction,
// so the engine-level write is atomic across the whole batch rather than
// only within one partition.
type BoltStore struct {
	db         *bolt.DB
	partitions int
}

// Open opens (or creates) a partitioned store rooted at path. partitions
// must be >= 1; a value of 1 collapses to a single bucket.
func Open(path string, partitions uint16) (*BoltStore, error) {
	if partitions == 0 {
		return nil, fmt.Errorf("kvstore: partitions must be >= 1")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("kvstore: creating root %s: %w", path, err)
	}

	file := filepath.Join(path, "store.db")
	db, err := bolt.Open(file, 0o644, nil)
	if err != nil {
		return nil, fmt.Errorf("kvstore: opening %s: %w", file, err)
	}

	n := int(partitions)
	if err := db.Update(func(tx *bolt.Tx) error {
		for i := 0; i < n; i++ {
			if _, err := tx.CreateBucketIfNotExists(partitionBucket(i)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("kvstore: creating partition buckets: %w", err)
	}

	return &BoltStore{db: db, partitions: n}, nil
}

// PartitionFor returns the index of the sub-store key hashes to.
func (s *BoltStore) PartitionFor(key []byte) int {
	return partitionIndex(key, s.partitions)
}

func partitionIndex(key []byte, n int) int {
	if n == 1 {
		return 0
	}
	h := murmur3.Sum32(key)
	return int(h % uint32(n))
}

// Get routes to the partition key hashes to and looks up its value.
func (s *BoltStore) Get(key []byte) ([]byte, bool, error) {
	idx := partitionIndex(key, s.partitions)
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(partitionBucket(idx)).Get(key)
		if v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return value, value != nil, nil
}

// BeginBatch starts a new write batch that may span any subset of the
// store's partitions.
func (s *BoltStore) BeginBatch() WriteBatch {
	return &boltBatch{store: s}
}

// Close closes the underlying bbolt file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

type boltBatch struct {
	store *BoltStore
	ops   []KV
}

func (b *boltBatch) Set(key, value []byte) {
	b.ops = append(b.ops, KV{Key: key, Value: value})
}

// Commit applies every staged key across every partition it touches
// inside a single bbolt transaction, so a reader can never observe the
// batch applied to one partition but not another. The caller (the
// database's single write lock in dbserver) ensures no concurrent batch
// runs at the same time, and a WAL entry covering the whole batch has
// already been durably appended before Commit is invoked, so a failure
// partway through is recovered by WAL replay on restart.
func (b *boltBatch) Commit() error {
	if len(b.ops) == 0 {
		return nil
	}
	err := b.store.db.Update(func(tx *bolt.Tx) error {
		for _, kv := range b.ops {
			idx := partitionIndex(kv.Key, b.store.partitions)
			bucket := tx.Bucket(partitionBucket(idx))
			if err := bucket.Put(kv.Key, kv.Value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("kvstore: committing batch: %w", err)
	}
	return nil
}
