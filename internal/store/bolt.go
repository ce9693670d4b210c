// Package store persists the cumulative fuel and distance totals across
// restarts in a bbolt database.
package store

import (
	"encoding/binary"
	"fmt"
	"log"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketName  = []byte("fuel_data")
	keyFuel     = []byte("fuel_consumed") // µL
	keyDistance = []byte("dist_tr")       // m
)

// Bolt is a meter.Store backed by a single bbolt file.
type Bolt struct {
	db *bbolt.DB
}

// Open opens or creates the database at path and makes sure the bucket
// exists.
func Open(path string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0o666, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create bucket: %w", err)
	}
	log.Printf("[store] opened %s", path)
	return &Bolt{db: db}, nil
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

// CumulativeFuel returns the stored fuel total in µL. A missing entry reads
// as zero.
func (b *Bolt) CumulativeFuel() (uint64, error) {
	return b.get(keyFuel)
}

// CumulativeDistance returns the stored distance total in metres.
func (b *Bolt) CumulativeDistance() (uint64, error) {
	return b.get(keyDistance)
}

func (b *Bolt) SetCumulativeFuel(ul uint64) error {
	return b.put(keyFuel, ul)
}

func (b *Bolt) SetCumulativeDistance(m uint64) error {
	return b.put(keyDistance, m)
}

func (b *Bolt) get(key []byte) (uint64, error) {
	var v uint64
	err := b.db.View(func(tx *bbolt.Tx) error {
		bk := tx.Bucket(bucketName)
		if bk == nil {
			return nil
		}
		raw := bk.Get(key)
		switch {
		case raw == nil:
			log.Printf("[store] warning: %s not stored yet, reading 0", key)
		case len(raw) != 8:
			return fmt.Errorf("store: %s: bad value length %d", key, len(raw))
		default:
			v = binary.BigEndian.Uint64(raw)
		}
		return nil
	})
	return v, err
}

func (b *Bolt) put(key []byte, v uint64) error {
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], v)
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bk, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		return bk.Put(key, raw[:])
	})
	if err != nil {
		return fmt.Errorf("store: write %s: %w", key, err)
	}
	return nil
}
