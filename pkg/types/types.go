package types

import (
	"time"
)

// ContainerID identifies a container within an agent's registry. It is a
// small non-negative integer, reused after destruction.
type ContainerID int32

// InvalidContainerID is the reserved sentinel meaning "no container".
const InvalidContainerID ContainerID = -1

// MaxContainerID is the exclusive upper bound for valid container ids
// (2^31), per the id validation rule in the container id contract.
const MaxContainerID int64 = 1 << 31

// ContainerState is the lifecycle state of a Container.
type ContainerState string

const (
	ContainerCreated   ContainerState = "CREATED"
	ContainerReady     ContainerState = "READY"
	ContainerSuspended ContainerState = "SUSPENDED"
	ContainerTerminated ContainerState = "TERMINATED"
	ContainerInvalid   ContainerState = "INVALID"
)

// GatewayState is the lifecycle state of a Gateway.
type GatewayState string

const (
	GatewayCreated    GatewayState = "CREATED"
	GatewayConfigured GatewayState = "CONFIGURED"
	GatewayActivated  GatewayState = "ACTIVATED"
)

// ContainerConfig is the immutable configuration snapshot a container is
// created with. It is resolved externally (see pkg/config) and never
// mutated for the container's lifetime.
type ContainerConfig struct {
	WriteBufferEnabled        bool
	TemporaryFileSystemEnabled bool
	TemporaryFileSystemSize   int64 // bytes
	RuntimeConfigPath         string
	ShutdownTimeoutSeconds    int
	Bridge                    *BridgeConfig // nil if networking is not configured for this container
}

// BridgeConfig describes the host bridge device a container's network
// gateway attaches to.
type BridgeConfig struct {
	Device       string
	IPv4Address  string
	PrefixLength int
}

// DynamicContainerOption is one entry of the dynamic-options JSON array
// accepted by CreateContainer (spec §6).
type DynamicContainerOption struct {
	WriteBufferEnabled                     *bool  `json:"writeBufferEnabled,omitempty"`
	TemporaryFileSystemWriteBufferEnabled  *bool  `json:"temporaryFileSystemWriteBufferEnabled,omitempty"`
	TemporaryFileSystemSize                *int64 `json:"temporaryFileSystemSize,omitempty"`
}

// EnvMap is a simple key/value environment override map, last-write-wins
// on merge.
type EnvMap map[string]string

// Merge returns a new EnvMap with values from override replacing values
// from the receiver for shared keys.
func (e EnvMap) Merge(override EnvMap) EnvMap {
	out := make(EnvMap, len(e)+len(override))
	for k, v := range e {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// List renders the map as "KEY=VALUE" strings, suitable for exec
// environments. Order is not guaranteed.
func (e EnvMap) List() []string {
	out := make([]string, 0, len(e))
	for k, v := range e {
		out = append(out, k+"="+v)
	}
	return out
}

// JobExitSentinel marks a signal-terminated job; callers compare against
// zero for "success" per the process-exit notifier contract.
const JobExitSentinel = 128

// FDRedirect carries optional fd overrides for a job's stdio. A value of
// -1 means "inherit".
type FDRedirect struct {
	Stdin  int
	Stdout int
	Stderr int
}

// NoRedirect is the default FDRedirect: inherit everything.
var NoRedirect = FDRedirect{Stdin: -1, Stdout: -1, Stderr: -1}

// CapabilityName identifies a named bundle of gateway configuration
// fragments resolved by the external capability store (pkg/capability).
type CapabilityName string

// GatewayConfigFragment is one gateway's slice of a resolved capability:
// the gateway id it targets and the raw JSON config array to feed its
// setConfig.
type GatewayConfigFragment struct {
	GatewayID string
	Config    []byte // JSON array
}

// ProcessExitEvent is delivered by the process-exit notifier exactly
// once per registered pid.
type ProcessExitEvent struct {
	Pid      int
	ExitCode int
}

// Succeeded reports whether the process exited with code zero.
func (e ProcessExitEvent) Succeeded() bool {
	return e.ExitCode == 0
}

// ProcessStateChangedEvent mirrors the asynchronous RPC notification
// emitted by Execute on process termination (spec §6).
type ProcessStateChangedEvent struct {
	ContainerID ContainerID
	Pid         int
	Running     bool
	ExitCode    int
	At          time.Time
}
