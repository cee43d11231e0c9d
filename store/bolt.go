package store

import (
	"bytes"
	"context"
	"encoding/binary"

	bolt "go.etcd.io/bbolt"

	"github.com/voxelkit/slicecache/cacheerr"
)

// metaBucket holds per-namespace bookkeeping, currently just the schema
// version under schemaKey.
var (
	metaBucket = []byte("__slicecache_meta")
	schemaKey  = []byte("schema_version")
)

// Bolt is a file-backed Store using bbolt. One bucket per namespace; the
// database file may be shared by several namespaces.
type Bolt struct {
	db     *bolt.DB
	bucket []byte
}

// OpenBolt opens (creating if needed) the bbolt database at path and the
// bucket named storeName inside it. When the stored schema version
// differs from schemaVersion the bucket is dropped and recreated empty —
// a full clear instead of field-level migration.
func OpenBolt(path, storeName string, schemaVersion uint32) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, cacheerr.Wrap(cacheerr.CodeStorageUnavailable, err, "open bolt database")
	}

	bucket := []byte(storeName)
	err = db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(metaBucket)
		if err != nil {
			return err
		}
		versionKey := append(append([]byte(nil), bucket...), schemaKey...)
		stored := meta.Get(versionKey)

		var want [4]byte
		binary.LittleEndian.PutUint32(want[:], schemaVersion)

		if stored != nil && !bytes.Equal(stored, want[:]) {
			// Version mismatch: wipe the namespace.
			if b := tx.Bucket(bucket); b != nil {
				if err := tx.DeleteBucket(bucket); err != nil {
					return err
				}
			}
		}
		if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
			return err
		}
		return meta.Put(versionKey, want[:])
	})
	if err != nil {
		_ = db.Close()
		return nil, cacheerr.Wrap(cacheerr.CodeStorageUnavailable, err, "initialize bolt namespace")
	}
	return &Bolt{db: db, bucket: bucket}, nil
}

// Get returns the record stored under key.
func (s *Bolt) Get(_ context.Context, key string) ([]byte, bool, error) {
	var rec []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(key))
		if v != nil {
			// v is only valid inside the transaction.
			rec = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, cacheerr.Wrap(cacheerr.CodeStorageUnavailable, err, "bolt get")
	}
	return rec, rec != nil, nil
}

// Put stores rec under key.
func (s *Bolt) Put(_ context.Context, key string, rec []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), rec)
	})
	return cacheerr.Wrap(cacheerr.CodeStorageUnavailable, err, "bolt put")
}

// Delete removes the record under key.
func (s *Bolt) Delete(_ context.Context, key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
	return cacheerr.Wrap(cacheerr.CodeStorageUnavailable, err, "bolt delete")
}

// Keys lists every key in the namespace.
func (s *Bolt) Keys(_ context.Context) ([]string, error) {
	var keys []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, cacheerr.Wrap(cacheerr.CodeStorageUnavailable, err, "bolt keys")
	}
	return keys, nil
}

// Clear drops and recreates the namespace bucket.
func (s *Bolt) Clear(_ context.Context) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(s.bucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(s.bucket)
		return err
	})
	return cacheerr.Wrap(cacheerr.CodeStorageUnavailable, err, "bolt clear")
}

// Close closes the underlying database.
func (s *Bolt) Close() error {
	return s.db.Close()
}
