// Package database provides persistence with BoltDB: magnets added to debrid
// accounts during resolution (so the cleanup job can delete them later) and
// resolved links that outlive a process restart.
package database

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	dbFileMode = 0600
	dbDirMode  = 0755
)

var (
	bucketMagnets     = []byte("magnets")
	bucketResolutions = []byte("resolutions")
)

// Magnet records one magnet added to a debrid account.
type Magnet struct {
	ID               string    `json:"id"`
	InfoHash         string    `json:"info_hash"`
	Name             string    `json:"name"`
	Provider         string    `json:"provider"`
	ProviderMagnetID string    `json:"provider_magnet_id"`
	AddedAt          time.Time `json:"added_at"`
}

// Resolution is a persisted resolved link.
type Resolution struct {
	Key         string    `json:"key"`
	PlayableURL string    `json:"playable_url"`
	FileName    string    `json:"file_name"`
	Provider    string    `json:"provider"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Database is the persistence contract used by the resolution pipeline and
// the cleanup job.
type Database interface {
	StoreMagnet(magnet *Magnet) error
	GetOldMagnets(olderThan time.Duration) ([]Magnet, error)
	DeleteMagnet(id string) error
	StoreResolution(res *Resolution) error
	GetResolution(key string) (*Resolution, error)
	Close() error
}

// BoltDB implements Database on a bbolt file.
type BoltDB struct {
	db *bolt.DB
}

// Open creates or opens the database file at path.
func Open(path string) (*BoltDB, error) {
	if err := os.MkdirAll(filepath.Dir(path), dbDirMode); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := bolt.Open(path, dbFileMode, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketMagnets); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketResolutions)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// StoreMagnet records a magnet added to a provider account.
func (b *BoltDB) StoreMagnet(magnet *Magnet) error {
	if magnet.AddedAt.IsZero() {
		magnet.AddedAt = time.Now()
	}
	data, err := json.Marshal(magnet)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMagnets).Put([]byte(magnet.ID), data)
	})
}

// GetOldMagnets returns magnets added more than olderThan ago.
func (b *BoltDB) GetOldMagnets(olderThan time.Duration) ([]Magnet, error) {
	cutoff := time.Now().Add(-olderThan)
	var out []Magnet
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMagnets).ForEach(func(_, v []byte) error {
			var m Magnet
			if err := json.Unmarshal(v, &m); err != nil {
				return nil // skip unreadable record
			}
			if m.AddedAt.Before(cutoff) {
				out = append(out, m)
			}
			return nil
		})
	})
	return out, err
}

// DeleteMagnet removes a magnet record.
func (b *BoltDB) DeleteMagnet(id string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketMagnets).Delete([]byte(id))
	})
}

// StoreResolution persists a resolved link under its resolution key.
func (b *BoltDB) StoreResolution(res *Resolution) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketResolutions).Put([]byte(res.Key), data)
	})
}

// GetResolution returns the persisted resolution for key, or nil when absent
// or expired. Expired records are deleted on read.
func (b *BoltDB) GetResolution(key string) (*Resolution, error) {
	var res *Resolution
	err := b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketResolutions)
		data := bucket.Get([]byte(key))
		if data == nil {
			return nil
		}
		var r Resolution
		if err := json.Unmarshal(data, &r); err != nil {
			return bucket.Delete([]byte(key))
		}
		if time.Now().After(r.ExpiresAt) {
			return bucket.Delete([]byte(key))
		}
		res = &r
		return nil
	})
	return res, err
}

// Close closes the underlying bbolt file.
func (b *BoltDB) Close() error {
	return b.db.Close()
}
