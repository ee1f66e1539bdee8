package storage

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	outcomeBucket    = "outcomes"
	expiryValueBytes = 8
)

// boltStore implements a Store backed by BoltDB. Values are an 8-byte
// big-endian unix expiry followed by the fingerprint.
type boltStore struct {
	db              *bolt.DB
	cleanupMu       sync.Mutex
	lastCleanup     atomic.Int64
	outcomeTTL      time.Duration
	cleanupInterval time.Duration
}

// openBolt initializes a BoltDB-backed Store.
func openBolt(path string, opts Options) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(outcomeBucket))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("init bucket: %w", err)
	}

	store := &boltStore{
		db:              db,
		outcomeTTL:      opts.OutcomeTTL,
		cleanupInterval: opts.CleanupInterval,
	}
	store.lastCleanup.Store(time.Now().Unix())
	return store, nil
}

// Close closes the BoltDB store.
func (b *boltStore) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Changed compares fingerprint against the remembered value for endpointID.
func (b *boltStore) Changed(endpointID, fingerprint string) (bool, error) {
	if b == nil || b.db == nil {
		return true, nil
	}

	now := time.Now()
	if err := b.maybeCleanupExpired(now); err != nil {
		return false, err
	}

	changed := true
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(outcomeBucket))
		if bucket == nil {
			return fmt.Errorf("outcome bucket missing")
		}

		expiry, stored, ok := decodeEntry(bucket.Get([]byte(endpointID)))
		if ok && expiry.After(now) && stored == fingerprint {
			changed = false
		}
		return nil
	})
	return changed, err
}

// Remember stores fingerprint as the latest outcome for endpointID.
func (b *boltStore) Remember(endpointID, fingerprint string) error {
	if b == nil || b.db == nil {
		return nil
	}

	now := time.Now()
	if err := b.maybeCleanupExpired(now); err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(outcomeBucket))
		if bucket == nil {
			return fmt.Errorf("outcome bucket missing")
		}
		return bucket.Put([]byte(endpointID), encodeEntry(now.Add(b.outcomeTTL), fingerprint))
	})
}

// maybeCleanupExpired removes expired entries on a fixed cadence to avoid unbounded growth.
func (b *boltStore) maybeCleanupExpired(now time.Time) error {
	if b == nil || b.db == nil {
		return nil
	}

	last := time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	b.cleanupMu.Lock()
	defer b.cleanupMu.Unlock()

	last = time.Unix(b.lastCleanup.Load(), 0)
	if now.Sub(last) < b.cleanupInterval {
		return nil
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(outcomeBucket))
		if bucket == nil {
			return fmt.Errorf("outcome bucket missing")
		}

		// Deleting through the cursor while iterating skips keys.
		var expired [][]byte
		cursor := bucket.Cursor()
		for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
			expiry, _, ok := decodeEntry(v)
			if !ok || !expiry.After(now) {
				expired = append(expired, append([]byte(nil), k...))
			}
		}
		for _, k := range expired {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		b.lastCleanup.Store(now.Unix())
	}
	return err
}

func encodeEntry(expiry time.Time, fingerprint string) []byte {
	buf := make([]byte, expiryValueBytes+len(fingerprint))
	binary.BigEndian.PutUint64(buf, uint64(expiry.Unix()))
	copy(buf[expiryValueBytes:], fingerprint)
	return buf
}

// decodeEntry splits a stored value into expiry and fingerprint.
func decodeEntry(value []byte) (time.Time, string, bool) {
	if len(value) < expiryValueBytes {
		return time.Time{}, "", false
	}
	unix := int64(binary.BigEndian.Uint64(value[:expiryValueBytes]))
	if unix <= 0 {
		return time.Time{}, "", false
	}
	return time.Unix(unix, 0), string(value[expiryValueBytes:]), true
}
