// Package bolt provides a bbolt-backed implementation of the storage.Store
// interface. Records are stored as JSON; secondary indexes live in their own
// buckets and are maintained inside the same write transaction.
package bolt

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/mmynk/paysplit/internal/storage"
)

var (
	bucketUsers             = []byte("users")
	bucketUsersByAddress    = []byte("users_by_address")
	bucketSplits            = []byte("splits")
	bucketEscrows           = []byte("escrows")
	bucketEscrowsByUser     = []byte("escrows_by_user")
	bucketSettlements       = []byte("settlements")
	bucketSettlementsByKey  = []byte("settlements_by_key")
	bucketSettlementsByEsc  = []byte("settlements_by_escrow")
	bucketCompletedByEscrow = []byte("settlements_completed")
)

// Ensure BoltStore implements storage.Store
var _ storage.Store = (*BoltStore)(nil)

// BoltStore implements storage.Store using bbolt.
type BoltStore struct {
	db *bbolt.DB
}

// Open opens or creates the bbolt database at dbPath.
// The parent directory is created if it does not exist.
func Open(dbPath string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{
			bucketUsers, bucketUsersByAddress, bucketSplits, bucketEscrows, bucketEscrowsByUser,
			bucketSettlements, bucketSettlementsByKey, bucketSettlementsByEsc, bucketCompletedByEscrow,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }

func put(b *bbolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return b.Put([]byte(key), data)
}

// get decodes the value under key into v, returning a NotFoundError when
// the key is absent.
func get(b *bbolt.Bucket, entity, key string, v any) error {
	data := b.Get([]byte(key))
	if data == nil {
		return &storage.NotFoundError{Entity: entity, ID: key}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s %s: %w", entity, key, err)
	}
	return nil
}

// indexKey builds prefix\x00 followed by big-endian parts so cursors iterate
// in numeric order within a prefix.
func indexKey(prefix string, parts ...uint64) []byte {
	k := make([]byte, 0, len(prefix)+1+8*len(parts))
	k = append(k, prefix...)
	k = append(k, 0)
	for _, p := range parts {
		k = binary.BigEndian.AppendUint64(k, p)
	}
	return k
}

// scanPrefixReverse visits the values under prefix from last key to first.
func scanPrefixReverse(b *bbolt.Bucket, prefix string, fn func(v []byte) error) error {
	start := indexKey(prefix)
	end := append([]byte(prefix), 1)

	c := b.Cursor()
	k, v := c.Seek(end)
	if k == nil {
		k, v = c.Last()
	} else {
		k, v = c.Prev()
	}
	for ; k != nil && bytes.HasPrefix(k, start); k, v = c.Prev() {
		if err := fn(v); err != nil {
			return err
		}
	}
	return nil
}

// scanPrefix visits the values under prefix in key order.
func scanPrefix(b *bbolt.Bucket, prefix string, fn func(v []byte) error) error {
	start := indexKey(prefix)
	c := b.Cursor()
	for k, v := c.Seek(start); k != nil && bytes.HasPrefix(k, start); k, v = c.Next() {
		if err := fn(v); err != nil {
			return err
		}
	}
	return nil
}
