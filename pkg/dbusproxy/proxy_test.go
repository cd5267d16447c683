package dbusproxy

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nopCloser lets WriteConfig's byte-count check be exercised without a
// real subprocess.
type nopCloser struct{ bytes.Buffer }

func (nopCloser) Close() error { return nil }

func TestWriteConfigMarshalsAsNewlineDelimitedJSON(t *testing.T) {
	var buf nopCloser
	p := &Proxy{stdin: &buf, socketPath: "/tmp/does-not-matter.sock"}

	require.NoError(t, p.WriteConfig([]FilterRule{{
		Direction:  "outgoing",
		Interface:  "org.freedesktop.Notifications",
		ObjectPath: "*",
		Method:     "*",
	}}))

	line := buf.String()
	require.True(t, len(line) > 0 && line[len(line)-1] == '\n')

	var rules []FilterRule
	require.NoError(t, json.Unmarshal([]byte(line[:len(line)-1]), &rules))
	assert.Equal(t, "org.freedesktop.Notifications", rules[0].Interface)
}
