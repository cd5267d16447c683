package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPAllocatorWrapsAt254(t *testing.T) {
	a := NewIPAllocator()
	for i := 2; i <= 254; i++ {
		assert.Equal(t, i, a.Allocate("br0"))
	}
	assert.Equal(t, 2, a.Allocate("br0"))
}

func TestIPAllocatorIndependentPerBridge(t *testing.T) {
	a := NewIPAllocator()
	assert.Equal(t, 2, a.Allocate("br0"))
	assert.Equal(t, 2, a.Allocate("br1"))
	assert.Equal(t, 3, a.Allocate("br0"))
}

func TestNetworkGatewayAccumulatesEntries(t *testing.T) {
	g := NewNetworkGateway(NewIPAllocator())
	require.NoError(t, g.SetConfig([]byte(`[{"direction":"INCOMING","allow":[{"host":"10.0.0.5","ports":[80,443],"target":"ACCEPT"}]}]`)))
	require.Len(t, g.entries, 1)
	assert.Equal(t, "INCOMING", g.entries[0].Direction)
	assert.Equal(t, portList{"80", "443"}, g.entries[0].Allow[0].Ports)
}

func TestNetworkRuleRejectsInvalidProtocol(t *testing.T) {
	g := NewNetworkGateway(NewIPAllocator())
	err := g.SetConfig([]byte(`[{"direction":"OUTGOING","allow":[{"protocols":"sctp","target":"ACCEPT"}]}]`))
	assert.Error(t, err)
}

func TestPortListUnmarshalsIntStringAndArray(t *testing.T) {
	var single portList
	require.NoError(t, json.Unmarshal([]byte(`80`), &single))
	assert.Equal(t, portList{"80"}, single)

	var rng portList
	require.NoError(t, json.Unmarshal([]byte(`"8000:9000"`), &rng))
	assert.Equal(t, portList{"8000:9000"}, rng)

	var arr portList
	require.NoError(t, json.Unmarshal([]byte(`[80, "443:444"]`), &arr))
	assert.Equal(t, portList{"80", "443:444"}, arr)
}

func TestProtocolListUnmarshalsStringAndArray(t *testing.T) {
	var single protocolList
	require.NoError(t, json.Unmarshal([]byte(`"tcp"`), &single))
	assert.Equal(t, protocolList{"tcp"}, single)

	var arr protocolList
	require.NoError(t, json.Unmarshal([]byte(`["tcp","udp"]`), &arr))
	assert.Equal(t, protocolList{"tcp", "udp"}, arr)

	var bad protocolList
	assert.Error(t, json.Unmarshal([]byte(`"sctp"`), &bad))
}

func TestEffectiveProtocolsDefaultsWhenPortsGiven(t *testing.T) {
	r := networkRule{Ports: portList{"80"}}
	assert.Equal(t, []string{"tcp", "udp"}, r.effectiveProtocols())

	r2 := networkRule{Protocols: protocolList{"icmp"}}
	assert.Equal(t, []string{"icmp"}, r2.effectiveProtocols())

	r3 := networkRule{}
	assert.Nil(t, r3.effectiveProtocols())
}

func TestBuildIPTablesArgsSinglePortVsMultiport(t *testing.T) {
	single := buildIPTablesArgs("INCOMING", networkRule{Ports: portList{"80"}, Target: "ACCEPT"}, "tcp")
	assert.Equal(t, []string{"-A", "INPUT", "-p", "tcp", "--dport", "80", "-j", "ACCEPT"}, single)

	multi := buildIPTablesArgs("OUTGOING", networkRule{Ports: portList{"80", "443"}, Target: "DROP"}, "tcp")
	assert.Equal(t, []string{"-A", "OUTPUT", "-p", "tcp", "--match", "multiport", "--dports", "80,443", "-j", "DROP"}, multi)

	wildcardHost := buildIPTablesArgs("INCOMING", networkRule{Host: "*", Target: "ACCEPT"}, "")
	assert.Equal(t, []string{"-A", "INPUT", "-j", "ACCEPT"}, wildcardHost)
}

func TestNetworkGatewayRejectsBadDirection(t *testing.T) {
	g := NewNetworkGateway(NewIPAllocator())
	err := g.SetConfig([]byte(`[{"direction":"SIDEWAYS","allow":[]}]`))
	assert.Error(t, err)
}

func TestNetworkGatewayRejectsBadTarget(t *testing.T) {
	g := NewNetworkGateway(NewIPAllocator())
	err := g.SetConfig([]byte(`[{"direction":"OUTGOING","allow":[{"target":"MAYBE"}]}]`))
	assert.Error(t, err)
}

func TestSubnetWithOctet(t *testing.T) {
	assert.Equal(t, "10.0.3.5", subnetWithOctet("10.0.3.1", 5))
}

func TestBridgeAddressPresent(t *testing.T) {
	out := `5: br-scagentd    inet 10.0.3.1/24 brd 10.0.3.255 scope global br-scagentd\       valid_lft forever preferred_lft forever`
	assert.True(t, bridgeAddressPresent(out, "10.0.3.1", 24))
	assert.False(t, bridgeAddressPresent(out, "10.0.3.1", 16))
	assert.False(t, bridgeAddressPresent(out, "10.0.4.1", 24))
	assert.False(t, bridgeAddressPresent("", "10.0.3.1", 24))
}
