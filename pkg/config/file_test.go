package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
sharedMountsDir: /var/lib/scagentd/mounts
socketPath: /run/scagentd/scagentd.sock
preloadCount: 3
shutdownGracePeriod: 10s
defaultContainer:
  writeBufferEnabled: true
  bridge:
    device: br-scagentd
    ipv4Address: 10.0.3.1
    prefixLength: 24
`

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoadFileAndResolve(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)

	f, err := LoadFile(path)
	require.NoError(t, err)

	r := f.Resolve()
	assert.Equal(t, "/var/lib/scagentd/mounts", r.SharedMountsDir)
	assert.Equal(t, "/run/scagentd/scagentd.sock", r.SocketPath)
	assert.Equal(t, 3, r.PreloadCount)
	assert.Equal(t, 10*time.Second, r.ShutdownGracePeriod)
	assert.True(t, r.DefaultContainerConfig.WriteBufferEnabled)
	require.NotNil(t, r.DefaultContainerConfig.Bridge)
	assert.Equal(t, "br-scagentd", r.DefaultContainerConfig.Bridge.Device)
	assert.Equal(t, 24, r.DefaultContainerConfig.Bridge.PrefixLength)
}

func TestResolveWithoutBridgeLeavesItNil(t *testing.T) {
	f, err := LoadFile(writeTempConfig(t, "sharedMountsDir: /tmp/mounts\n"))
	require.NoError(t, err)

	r := f.Resolve()
	assert.Nil(t, r.DefaultContainerConfig.Bridge)
}

func TestLoadFileMissingPath(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}
