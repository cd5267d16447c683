package gateway

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeviceGatewayAccumulatesPending(t *testing.T) {
	g := NewDeviceGateway()
	require.NoError(t, g.SetConfig([]byte(`[{"name":"/dev/ttyUSB0","mode":"0660"}]`)))
	require.Len(t, g.pending, 1)
	assert.Equal(t, "/dev/ttyUSB0", g.pending[0].Name)
}

func TestDeviceGatewayRejectsBadMode(t *testing.T) {
	g := NewDeviceGateway()
	err := g.SetConfig([]byte(`[{"name":"/dev/ttyUSB0","mode":"not-octal"}]`))
	assert.Error(t, err)
}

func TestDeviceGatewayIsDynamic(t *testing.T) {
	g := NewDeviceGateway()
	assert.True(t, g.Dynamic())
}

func TestDeviceGatewayUnionOfPermissions(t *testing.T) {
	g := NewDeviceGateway()
	g.active["/dev/ttyUSB0"] = 0640
	mode, err := parseMode("0004")
	require.NoError(t, err)
	union := mode | g.active["/dev/ttyUSB0"]
	assert.Equal(t, "0644", fmt.Sprintf("0%o", uint32(union.Perm())))
}
