// Package stats persists per-identifier frame counters between monitor runs.
package stats

import (
	"encoding/binary"
	"time"

	bolt "go.etcd.io/bbolt"
)

const bucketKey = "frame_counts"

type Store struct {
	db *bolt.DB
}

// Open opens or creates the counter database and makes sure the bucket exists.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketKey))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Count bumps the counter for an identifier and returns the new total.
func (s *Store) Count(identifier uint32) (uint64, error) {
	var total uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketKey))
		key := make([]byte, 4)
		binary.BigEndian.PutUint32(key, identifier)
		if v := b.Get(key); v != nil {
			total = binary.BigEndian.Uint64(v)
		}
		total++
		val := make([]byte, 8)
		binary.BigEndian.PutUint64(val, total)
		return b.Put(key, val)
	})
	return total, err
}

// Snapshot returns all counters keyed by identifier.
func (s *Store) Snapshot() (map[uint32]uint64, error) {
	out := make(map[uint32]uint64)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketKey))
		return b.ForEach(func(k, v []byte) error {
			out[binary.BigEndian.Uint32(k)] = binary.BigEndian.Uint64(v)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Reset drops every counter.
func (s *Store) Reset() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketKey)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(bucketKey))
		return err
	})
}
