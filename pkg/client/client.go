/*
Package client is a thin Go wrapper over pkg/rpc's gRPC service, one
method per RPC, used by this module's tests (its own and pkg/rpc's
server test); cmd/scagentd does not use it.
Grounded on the teacher's pkg/client.Client (constructor dials and
stores a generated stub; every method opens its own short-lived
context and forwards to that stub) — generalized here to call
grpc.ClientConn.Invoke/NewStream directly, since pkg/rpc has no
generated stub to wrap (spec §1 externalizes the .proto toolchain).
*/
package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/cuemby/warren/pkg/rpc"
	"github.com/cuemby/warren/pkg/types"
)

// defaultCallTimeout bounds every unary call below: withTimeout always
// applies it, so a caller's own deadline only matters when earlier.
const defaultCallTimeout = 10 * time.Second

// Client dials the daemon's Unix-domain gRPC socket.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to the daemon listening on socketPath.
func Dial(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix:"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(rpc.CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", socketPath, err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultCallTimeout)
}

// List returns every registered container id.
func (c *Client) List(ctx context.Context) ([]types.ContainerID, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	resp := new(rpc.ListResponse)
	if err := c.conn.Invoke(ctx, "/rpc.Agent/List", &rpc.ListRequest{}, resp); err != nil {
		return nil, err
	}
	return resp.ContainerIDs, nil
}

// ListCapabilities returns every known capability name.
func (c *Client) ListCapabilities(ctx context.Context) ([]types.CapabilityName, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	resp := new(rpc.ListCapabilitiesResponse)
	if err := c.conn.Invoke(ctx, "/rpc.Agent/ListCapabilities", &rpc.ListCapabilitiesRequest{}, resp); err != nil {
		return nil, err
	}
	return resp.Names, nil
}

// CreateContainer creates a container, applying dynamicOptionsJSON
// (spec §6) over the daemon's defaults. An empty string keeps the
// defaults unmodified.
func (c *Client) CreateContainer(ctx context.Context, dynamicOptionsJSON string) (types.ContainerID, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	resp := new(rpc.CreateContainerResponse)
	req := &rpc.CreateContainerRequest{DynamicOptionsJSON: dynamicOptionsJSON}
	if err := c.conn.Invoke(ctx, "/rpc.Agent/CreateContainer", req, resp); err != nil {
		return types.InvalidContainerID, err
	}
	return resp.ContainerID, nil
}

// Execute starts cmdline inside id, returning its host-visible pid.
func (c *Client) Execute(ctx context.Context, id types.ContainerID, cmdline, workingDir, outputFilePath string, env types.EnvMap) (int, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	resp := new(rpc.ExecuteResponse)
	req := &rpc.ExecuteRequest{
		ContainerID:    id,
		CommandLine:    cmdline,
		WorkingDir:     workingDir,
		OutputFilePath: outputFilePath,
		Env:            env,
	}
	if err := c.conn.Invoke(ctx, "/rpc.Agent/Execute", req, resp); err != nil {
		return 0, err
	}
	return resp.Pid, nil
}

// Suspend freezes a container's processes.
func (c *Client) Suspend(ctx context.Context, id types.ContainerID) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return c.conn.Invoke(ctx, "/rpc.Agent/Suspend", &rpc.SuspendRequest{ContainerID: id}, new(rpc.Empty))
}

// Resume thaws a previously suspended container.
func (c *Client) Resume(ctx context.Context, id types.ContainerID) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return c.conn.Invoke(ctx, "/rpc.Agent/Resume", &rpc.ResumeRequest{ContainerID: id}, new(rpc.Empty))
}

// Destroy tears a container down and returns its id to the pool.
func (c *Client) Destroy(ctx context.Context, id types.ContainerID) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	return c.conn.Invoke(ctx, "/rpc.Agent/Destroy", &rpc.DestroyRequest{ContainerID: id}, new(rpc.Empty))
}

// BindMount bind-mounts hostPath into the container rootfs.
func (c *Client) BindMount(ctx context.Context, id types.ContainerID, hostPath, containerPath string, readOnly bool) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	req := &rpc.BindMountRequest{
		ContainerID:   id,
		HostPath:      hostPath,
		ContainerPath: containerPath,
		ReadOnly:      readOnly,
	}
	return c.conn.Invoke(ctx, "/rpc.Agent/BindMount", req, new(rpc.Empty))
}

// SetCapabilities assigns a set of named capabilities to a container.
func (c *Client) SetCapabilities(ctx context.Context, id types.ContainerID, names []types.CapabilityName) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	req := &rpc.SetCapabilitiesRequest{ContainerID: id, Names: names}
	return c.conn.Invoke(ctx, "/rpc.Agent/SetCapabilities", req, new(rpc.Empty))
}

// WatchProcessState blocks until pid (started in container id) exits,
// returning its terminal state. It opens a server-streaming call and
// reads exactly one message off it.
func (c *Client) WatchProcessState(ctx context.Context, id types.ContainerID, pid int) (*rpc.ProcessStateChanged, error) {
	desc := &grpc.StreamDesc{ServerStreams: true}
	stream, err := c.conn.NewStream(ctx, desc, "/rpc.Agent/WatchProcessState")
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&rpc.WatchProcessStateRequest{ContainerID: id, Pid: pid}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}

	ev := new(rpc.ProcessStateChanged)
	if err := stream.RecvMsg(ev); err != nil {
		return nil, err
	}
	return ev, nil
}
