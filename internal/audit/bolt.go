package audit

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"github.com/yairfalse/sweeper/pkg/resource"
)

var bucketDeletions = []byte("deletions")

// BoltSink is a local append-only mirror of the audit log.
type BoltSink struct {
	db *bbolt.DB
}

// OpenBolt opens or creates the bbolt file at path.
func OpenBolt(path string) (*BoltSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create audit directory: %w", err)
		}
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketDeletions)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init audit bucket: %w", err)
	}

	return &BoltSink{db: db}, nil
}

// Append stores rec under the next sequence number.
func (b *BoltSink) Append(_ context.Context, rec resource.DeletionRecord) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal deletion record: %w", err)
	}

	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketDeletions)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		if err := bucket.Put(seqKey(seq), value); err != nil {
			return fmt.Errorf("put deletion record: %w", err)
		}
		return nil
	})
}

// List returns all records in append order. Used by the history command only.
func (b *BoltSink) List() ([]resource.DeletionRecord, error) {
	var records []resource.DeletionRecord

	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDeletions).ForEach(func(_, v []byte) error {
			var rec resource.DeletionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshal deletion record: %w", err)
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

// Close closes the database.
func (b *BoltSink) Close() error {
	return b.db.Close()
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
