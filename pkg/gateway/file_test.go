package gateway

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileGatewayAccumulatesEntries(t *testing.T) {
	dir := t.TempDir()
	hostFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(hostFile, []byte("x"), 0644))

	g := NewFileGateway()
	cfg := fmt.Sprintf(`[{"path-host":%q,"path-container":"/etc/app/config.yaml"}]`, hostFile)
	require.NoError(t, g.SetConfig([]byte(cfg)))
	require.Len(t, g.entries, 1)
	assert.True(t, g.entries[0].readOnly())
}

func TestFileGatewayRejectsDuplicateContainerPath(t *testing.T) {
	dir := t.TempDir()
	hostFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(hostFile, []byte("x"), 0644))

	g := NewFileGateway()
	cfg := fmt.Sprintf(`[{"path-host":%q,"path-container":"/etc/app/config.yaml"},{"path-host":%q,"path-container":"/etc/app/config.yaml"}]`, hostFile, hostFile)
	err := g.SetConfig([]byte(cfg))
	assert.Error(t, err)
}

func TestFileGatewayRejectsMissingHostPath(t *testing.T) {
	g := NewFileGateway()
	err := g.SetConfig([]byte(`[{"path-host":"/no/such/file","path-container":"/etc/x"}]`))
	assert.Error(t, err)
}

func TestFileGatewayRejectsSymlinkOverDirectory(t *testing.T) {
	dir := t.TempDir()
	g := NewFileGateway()
	cfg := fmt.Sprintf(`[{"path-host":%q,"path-container":"/data","create-symlink":true}]`, dir)
	err := g.SetConfig([]byte(cfg))
	assert.Error(t, err)
}
