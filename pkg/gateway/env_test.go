package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvGatewayAccumulatesAndAppends(t *testing.T) {
	g := NewEnvGateway()
	require.NoError(t, g.SetConfig([]byte(`[{"name":"PATH","value":"/usr/bin"},{"name":"PATH","value":":/opt/bin","append":true}]`)))
	assert.Equal(t, "/usr/bin:/opt/bin", g.vars["PATH"])
}

func TestEnvGatewayRejectsRedefineWithoutAppend(t *testing.T) {
	g := NewEnvGateway()
	err := g.SetConfig([]byte(`[{"name":"FOO","value":"1"},{"name":"FOO","value":"2"}]`))
	assert.Error(t, err)
}

func TestEnvGatewayRejectsMissingName(t *testing.T) {
	g := NewEnvGateway()
	err := g.SetConfig([]byte(`[{"value":"1"}]`))
	assert.Error(t, err)
}
