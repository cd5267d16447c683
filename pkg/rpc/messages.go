package rpc

import "github.com/cuemby/warren/pkg/types"

// ListRequest requests every registered container id.
type ListRequest struct{}

// ListResponse carries the registry's current ids, ascending.
type ListResponse struct {
	ContainerIDs []types.ContainerID `json:"containerIds"`
}

// ListCapabilitiesRequest requests every known capability name.
type ListCapabilitiesRequest struct{}

// ListCapabilitiesResponse carries the capability store's full name list.
type ListCapabilitiesResponse struct {
	Names []types.CapabilityName `json:"names"`
}

// CreateContainerRequest carries the dynamic-options JSON array (spec
// §6) as a raw string; the agent parses it.
type CreateContainerRequest struct {
	DynamicOptionsJSON string `json:"dynamicOptionsJson"`
}

// CreateContainerResponse carries the newly allocated id.
type CreateContainerResponse struct {
	ContainerID types.ContainerID `json:"containerId"`
}

// ExecuteRequest starts a command inside a container.
type ExecuteRequest struct {
	ContainerID    types.ContainerID `json:"containerId"`
	CommandLine    string            `json:"commandLine"`
	WorkingDir     string            `json:"workingDir"`
	OutputFilePath string            `json:"outputFilePath"`
	Env            types.EnvMap      `json:"env"`
}

// ExecuteResponse carries the host-visible pid of the started process.
type ExecuteResponse struct {
	Pid int `json:"pid"`
}

// SuspendRequest/ResumeRequest/DestroyRequest identify the target
// container for their respective lifecycle operations.
type SuspendRequest struct {
	ContainerID types.ContainerID `json:"containerId"`
}

type ResumeRequest struct {
	ContainerID types.ContainerID `json:"containerId"`
}

type DestroyRequest struct {
	ContainerID types.ContainerID `json:"containerId"`
}

// Empty is returned by RPCs with no payload beyond success.
type Empty struct{}

// BindMountRequest bind-mounts a host path into a container.
type BindMountRequest struct {
	ContainerID   types.ContainerID `json:"containerId"`
	HostPath      string            `json:"hostPath"`
	ContainerPath string            `json:"containerPath"`
	ReadOnly      bool              `json:"readOnly"`
}

// SetCapabilitiesRequest assigns a set of named capabilities to a
// container.
type SetCapabilitiesRequest struct {
	ContainerID types.ContainerID      `json:"containerId"`
	Names       []types.CapabilityName `json:"names"`
}

// WatchProcessStateRequest opens a server-streaming subscription to a
// single container's process-exit notifications (spec §6's async
// ProcessStateChanged event, modeled here as a stream the client reads
// until the process it names has exited).
type WatchProcessStateRequest struct {
	ContainerID types.ContainerID `json:"containerId"`
	Pid         int               `json:"pid"`
}

// ProcessStateChanged mirrors types.ProcessStateChangedEvent on the
// wire.
type ProcessStateChanged struct {
	ContainerID types.ContainerID `json:"containerId"`
	Pid         int               `json:"pid"`
	Running     bool              `json:"running"`
	ExitCode    int               `json:"exitCode"`
}
