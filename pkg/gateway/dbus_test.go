package gateway

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withoutEnv unsets name for the duration of the test and restores
// whatever value (if any) it had afterward.
func withoutEnv(t *testing.T, name string) {
	t.Helper()
	if prev, ok := os.LookupEnv(name); ok {
		require.NoError(t, os.Unsetenv(name))
		t.Cleanup(func() { _ = os.Setenv(name, prev) })
	}
}

func TestDBusGatewayAccumulatesPending(t *testing.T) {
	g := NewSessionDBusGateway()
	require.NoError(t, g.SetConfig([]byte(`[{"direction":"outgoing","interface":"org.freedesktop.Notifications","method":"Notify"}]`)))
	require.Len(t, g.pending, 1)
	assert.Equal(t, "outgoing", g.pending[0].Direction)
	assert.Equal(t, "org.freedesktop.Notifications", g.pending[0].Interface)
	assert.Equal(t, "Notify", g.pending[0].Method)
	assert.Equal(t, "*", g.pending[0].ObjectPath, "omitted fields normalize to the match-anything wildcard")
}

func TestDBusGatewayRejectsBadDirection(t *testing.T) {
	g := NewSystemDBusGateway()
	err := g.SetConfig([]byte(`[{"direction":"sideways"}]`))
	assert.Error(t, err)
}

func TestDBusGatewayDefaultsEmptyEntryToWildcardEverything(t *testing.T) {
	g := NewSessionDBusGateway()
	require.NoError(t, g.SetConfig([]byte(`[{}]`)))
	require.Len(t, g.pending, 1)
	assert.Equal(t, dbusEntry{Direction: "*", Interface: "*", ObjectPath: "*", Method: "*"}, g.pending[0])
}

func TestSessionDBusGatewayActivateFailsWithoutHostEnv(t *testing.T) {
	withoutEnv(t, "DBUS_SESSION_BUS_ADDRESS")

	g := NewSessionDBusGateway()
	require.NoError(t, g.SetConfig([]byte(`[{"direction":"*"}]`)))

	err := g.Activate(context.Background(), readyContainer(t))
	require.Error(t, err)
	assert.IsType(t, &ActivationError{}, err)
}

func TestSystemDBusGatewayActivateOnlyWarnsWithoutHostEnv(t *testing.T) {
	withoutEnv(t, "DBUS_SYSTEM_BUS_ADDRESS")

	g := NewSystemDBusGateway()
	require.NoError(t, g.SetConfig([]byte(`[{"direction":"*"}]`)))

	err := g.Activate(context.Background(), readyContainer(t))
	// The missing host env var does not abort activation for the
	// system bus; whether it ultimately succeeds depends on whether a
	// real dbus-proxy binary is on $PATH in the test environment, so
	// this only asserts activation was attempted rather than rejected
	// outright for the reason the session-bus case is.
	if err != nil {
		assert.NotContains(t, err.Error(), "is unreachable")
	}
}

func TestDBusGatewaysAreIndependentAndDynamic(t *testing.T) {
	session := NewSessionDBusGateway()
	system := NewSystemDBusGateway()
	assert.Equal(t, "dbus-session", session.ID())
	assert.Equal(t, "dbus-system", system.ID())
	assert.True(t, session.Dynamic())
	assert.True(t, system.Dynamic())
}
