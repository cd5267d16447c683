package rpc

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/warren/pkg/agent"
	"github.com/cuemby/warren/pkg/capability"
	"github.com/cuemby/warren/pkg/client"
	"github.com/cuemby/warren/pkg/config"
	"github.com/cuemby/warren/pkg/notifier"
)

func testAgentForServer(t *testing.T) *agent.Agent {
	t.Helper()
	cfg := config.Resolved{
		SharedMountsDir:     t.TempDir(),
		ShutdownGracePeriod: time.Second,
	}
	reactor := notifier.New()
	reactor.Start()
	t.Cleanup(reactor.Stop)

	return agent.New(cfg, newFakeRuntime(), reactor, capability.NewMemoryStore(), nil)
}

// TestServerStartOnServesInheritedListener confirms StartOn behaves
// like Start once handed an already-open listener — the systemd
// socket-activation path cmd/scagentd takes never calls Start itself.
func TestServerStartOnServesInheritedListener(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "scagentd.sock")
	lis, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	srv := NewServer(testAgentForServer(t), socketPath)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.StartOn(lis) }()
	t.Cleanup(srv.Stop)

	require.Eventually(t, func() bool {
		c, err := client.Dial(socketPath)
		if err != nil {
			return false
		}
		defer c.Close()
		_, err = c.List(context.Background())
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	srv.Stop()
	select {
	case err := <-errCh:
		require.NoError(t, err, "Serve returns nil once GracefulStop was called")
	case <-time.After(2 * time.Second):
		t.Fatal("StartOn did not return after Stop")
	}
}
