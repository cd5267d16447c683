package capability

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cuemby/warren/pkg/types"
)

// ErrUnknownCapability is returned by Resolve when name has no
// registered definition.
var ErrUnknownCapability = errors.New("capability: unknown name")

// Store resolves a capability name into the gateway configuration
// fragments it applies, and enumerates known names (spec §4.4
// ListCapabilities).
type Store interface {
	Resolve(name types.CapabilityName) ([]types.GatewayConfigFragment, error)
	List() ([]types.CapabilityName, error)
}

// MemoryStore is a process-local Store, suitable for tests and as the
// daemon's default when no persisted override is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	bundles map[types.CapabilityName][]types.GatewayConfigFragment
}

// NewMemoryStore creates an empty in-memory capability store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bundles: make(map[types.CapabilityName][]types.GatewayConfigFragment)}
}

// Define registers or replaces a capability bundle.
func (s *MemoryStore) Define(name types.CapabilityName, fragments []types.GatewayConfigFragment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundles[name] = fragments
}

// Resolve implements Store.
func (s *MemoryStore) Resolve(name types.CapabilityName) ([]types.GatewayConfigFragment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fragments, ok := s.bundles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCapability, name)
	}
	out := make([]types.GatewayConfigFragment, len(fragments))
	copy(out, fragments)
	return out, nil
}

// List implements Store.
func (s *MemoryStore) List() ([]types.CapabilityName, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.CapabilityName, 0, len(s.bundles))
	for name := range s.bundles {
		out = append(out, name)
	}
	return out, nil
}
