package config

import (
	"fmt"
	"time"

	"github.com/cuemby/warren/pkg/types"
)

// Resolved is the fully-merged configuration the agent is constructed
// with. Every field here is a static, agent-wide default; per-container
// overrides arrive later as DynamicContainerOption entries on
// CreateContainer and are layered on top of these values.
type Resolved struct {
	// SharedMountsDir is the host directory under which each
	// container gets an "SC-<id>" subdirectory (spec §6 "Persisted
	// state layout").
	SharedMountsDir string

	// SocketPath is where the RPC adapter listens.
	SocketPath string

	// ContainerdSocketPath is passed through to pkg/container's
	// runtime driver; empty means auto-detect.
	ContainerdSocketPath string

	// DefaultContainerConfig seeds every new container's immutable
	// configuration snapshot before dynamic options are applied.
	DefaultContainerConfig types.ContainerConfig

	// PreloadCount is how many containers to pre-create at daemon
	// startup so CreateContainer can hand one out immediately
	// (spec_full supplement, grounded in original_source preload
	// behavior).
	PreloadCount int

	// ShutdownGracePeriod bounds how long Destroy waits for a
	// graceful stop before forcing termination, used when a
	// container's own ShutdownTimeoutSeconds is unset (zero).
	ShutdownGracePeriod time.Duration

	// CapabilityStorePath, if non-empty, selects a durable
	// bbolt-backed capability store; empty means in-memory only.
	CapabilityStorePath string

	// RegistryStorePath, if non-empty, selects a durable bbolt-backed
	// agent registry (id pool + container metadata) so ids are not
	// reissued across daemon restarts; empty means in-memory only.
	RegistryStorePath string

	// DBusProxyHelperPath names the external dbus-proxy executable. No
	// package reads it: pkg/dbusproxy.Start runs "dbus-proxy" from $PATH.
	DBusProxyHelperPath string
}

// Validate checks the mandatory-key and dependency rules a resolved
// config must satisfy before the agent can be constructed from it. The
// rules themselves mirror the externalized layered-config loader's
// mandatory/dependency checks; this is the one place the core still
// enforces them, on the assembled result.
func (r Resolved) Validate() error {
	if r.SharedMountsDir == "" {
		return fmt.Errorf("config: sharedMountsDir is mandatory")
	}
	if r.PreloadCount < 0 {
		return fmt.Errorf("config: preloadCount must be >= 0")
	}
	if r.DefaultContainerConfig.TemporaryFileSystemEnabled && r.DefaultContainerConfig.TemporaryFileSystemSize <= 0 {
		return fmt.Errorf("config: temporaryFileSystemSize is mandatory when temporaryFileSystemEnabled is set")
	}
	if r.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("config: shutdownGracePeriod must be positive")
	}
	return nil
}
