package agent

import (
	"encoding/json"
	"fmt"
	"strconv"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/warren/pkg/types"
)

var bucketRegistry = []byte("registry")

// RegistryStore durably records which container ids are currently
// allocated, so a restarted daemon never reissues one of them to a
// new container while its old containerd task might still be
// lingering. It intentionally does not attempt to persist or restore
// full container state — reattaching to a live containerd task after
// a restart is not implemented (Agent.RestoreIDs only reserves ids).
type RegistryStore interface {
	Put(id types.ContainerID, cfg types.ContainerConfig) error
	Delete(id types.ContainerID) error
	LoadAll() (map[types.ContainerID]types.ContainerConfig, error)
	Close() error
}

// BoltRegistryStore is the bbolt-backed RegistryStore, grounded on
// pkg/storage/boltdb.go's bucket-per-kind, JSON-marshaled-value idiom
// (also followed by pkg/capability.BoltStore) rather than reusing
// pkg/storage's own Store type, whose interface was shaped around the
// cluster's Node/Service/Container value types this daemon does not
// have (pkg/storage itself is not part of this module).
type BoltRegistryStore struct {
	db *bolt.DB
}

// NewBoltRegistryStore opens (creating if necessary) a bbolt database
// at path and ensures the registry bucket exists.
func NewBoltRegistryStore(path string) (*BoltRegistryStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("registry: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRegistry)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("registry: create bucket: %w", err)
	}
	return &BoltRegistryStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltRegistryStore) Close() error { return s.db.Close() }

// Put persists id's configuration snapshot, upserting any prior entry.
func (s *BoltRegistryStore) Put(id types.ContainerID, cfg types.ContainerConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("registry: marshal container %d: %w", id, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRegistry).Put(idKey(id), data)
	})
}

// Delete removes id's persisted entry, if any.
func (s *BoltRegistryStore) Delete(id types.ContainerID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRegistry).Delete(idKey(id))
	})
}

// LoadAll returns every persisted id and the configuration it was last
// created with.
func (s *BoltRegistryStore) LoadAll() (map[types.ContainerID]types.ContainerConfig, error) {
	out := make(map[types.ContainerID]types.ContainerConfig)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRegistry).ForEach(func(k, v []byte) error {
			n, err := strconv.ParseInt(string(k), 10, 32)
			if err != nil {
				return fmt.Errorf("registry: decode key %q: %w", k, err)
			}
			var cfg types.ContainerConfig
			if err := json.Unmarshal(v, &cfg); err != nil {
				return fmt.Errorf("registry: decode container %s: %w", k, err)
			}
			out[types.ContainerID(n)] = cfg
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func idKey(id types.ContainerID) []byte {
	return []byte(strconv.FormatInt(int64(id), 10))
}
