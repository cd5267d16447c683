package capability

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/warren/pkg/types"
)

var bucketCapabilities = []byte("capabilities")

// BoltStore persists capability bundles in a bbolt database, grounded
// on pkg/storage/boltdb.go's bucket-per-kind layout (one bucket, JSON
// value per key, opened once at construction).
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) a bbolt database at path
// and ensures the capabilities bucket exists.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("capability: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCapabilities)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("capability: create bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error { return s.db.Close() }

// Define upserts a capability bundle.
func (s *BoltStore) Define(name types.CapabilityName, fragments []types.GatewayConfigFragment) error {
	data, err := json.Marshal(fragments)
	if err != nil {
		return fmt.Errorf("capability: marshal %s: %w", name, err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCapabilities).Put([]byte(name), data)
	})
}

// Resolve implements Store.
func (s *BoltStore) Resolve(name types.CapabilityName) ([]types.GatewayConfigFragment, error) {
	var fragments []types.GatewayConfigFragment
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCapabilities).Get([]byte(name))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrUnknownCapability, name)
		}
		return json.Unmarshal(data, &fragments)
	})
	if err != nil {
		return nil, err
	}
	return fragments, nil
}

// List implements Store.
func (s *BoltStore) List() ([]types.CapabilityName, error) {
	var names []types.CapabilityName
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCapabilities).ForEach(func(k, _ []byte) error {
			names = append(names, types.CapabilityName(k))
			return nil
		})
	})
	return names, err
}
