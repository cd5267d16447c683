package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCgroupsGatewayAppliesInOrder(t *testing.T) {
	g := NewCgroupsGateway()
	require.NoError(t, g.SetConfig([]byte(`[{"setting":"cpu.shares","value":"512"},{"setting":"memory.limit_in_bytes","value":"1048576"}]`)))
	assert.Equal(t, []string{"cpu.shares", "memory.limit_in_bytes"}, g.order)
}

func TestCgroupsGatewayDuplicateSettingLastWriteWins(t *testing.T) {
	g := NewCgroupsGateway()
	require.NoError(t, g.SetConfig([]byte(`[{"setting":"cpu.shares","value":"256"},{"setting":"cpu.shares","value":"512"}]`)))
	assert.Equal(t, []string{"cpu.shares"}, g.order)
	assert.Equal(t, "512", g.items["cpu.shares"])
}

func TestCgroupsGatewayRejectsMissingSetting(t *testing.T) {
	g := NewCgroupsGateway()
	err := g.SetConfig([]byte(`[{"value":"1"}]`))
	assert.Error(t, err)
}
