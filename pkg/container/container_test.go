package container

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/warren/pkg/types"
)

func newTestContainer(t *testing.T, rt Runtime) *Container {
	t.Helper()
	dir := t.TempDir()
	c := New(types.ContainerID(1), dir, types.ContainerConfig{ShutdownTimeoutSeconds: 5}, rt)
	require.NoError(t, c.Initialize())
	return c
}

func TestLifecycleHappyPath(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer(t, newFakeRuntime())

	assert.Equal(t, types.ContainerCreated, c.State())
	require.NoError(t, c.Create(ctx))

	pid, err := c.Start(ctx)
	require.NoError(t, err)
	assert.Greater(t, pid, 0)
	assert.Equal(t, types.ContainerReady, c.State())

	require.NoError(t, c.Suspend(ctx))
	assert.Equal(t, types.ContainerSuspended, c.State())

	require.NoError(t, c.Resume(ctx))
	assert.Equal(t, types.ContainerReady, c.State())

	require.NoError(t, c.Destroy(ctx, time.Second))
	assert.Equal(t, types.ContainerTerminated, c.State())
}

func TestDestroyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer(t, newFakeRuntime())
	require.NoError(t, c.Create(ctx))
	require.NoError(t, c.Destroy(ctx, time.Second))
	require.NoError(t, c.Destroy(ctx, time.Second))
	assert.Equal(t, types.ContainerTerminated, c.State())
}

func TestSuspendFailureTrapsInvalid(t *testing.T) {
	ctx := context.Background()
	rt := newFakeRuntime()
	rt.failSuspend = true
	c := newTestContainer(t, rt)

	require.NoError(t, c.Create(ctx))
	_, err := c.Start(ctx)
	require.NoError(t, err)

	err = c.Suspend(ctx)
	require.Error(t, err)
	assert.Equal(t, types.ContainerInvalid, c.State())

	err = c.Resume(ctx)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSuspendRejectedWhenNotReady(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer(t, newFakeRuntime())

	err := c.Suspend(ctx)
	require.Error(t, err)
	var stateErr *StateError
	assert.True(t, errors.As(err, &stateErr))
	assert.Equal(t, types.ContainerCreated, stateErr.State)
}

func TestAttachMergesEnvironmentAndRequiresReady(t *testing.T) {
	ctx := context.Background()
	c := newTestContainer(t, newFakeRuntime())

	_, err := c.Attach(ctx, "/bin/true", AttachSpec{Stdin: -1, Stdout: -1, Stderr: -1})
	require.Error(t, err)

	require.NoError(t, c.Create(ctx))
	_, err = c.Start(ctx)
	require.NoError(t, err)

	c.SetEnvironmentVariable("FOO", "bar")
	pid, err := c.Attach(ctx, "/bin/true", AttachSpec{Env: types.EnvMap{"FOO": "baz"}, Stdin: -1, Stdout: -1, Stderr: -1})
	require.NoError(t, err)
	assert.Greater(t, pid, 0)
}

func TestAttachGatewayRejectsDuplicateID(t *testing.T) {
	c := newTestContainer(t, newFakeRuntime())
	require.NoError(t, c.AttachGateway(fakeGateway{id: "env"}))
	err := c.AttachGateway(fakeGateway{id: "env"})
	assert.Error(t, err)
}

type fakeGateway struct{ id string }

func (f fakeGateway) ID() string     { return f.id }
func (f fakeGateway) Teardown() error { return nil }
