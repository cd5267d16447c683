package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cuemby/warren/pkg/container"
	"github.com/cuemby/warren/pkg/containerfs"
)

// fileEntry is one element of the file gateway's config array (spec
// §4.3.2). ReadOnly defaults to true and CreateSymlink to false when
// absent, so they are pointers to tell "unset" from "false".
type fileEntry struct {
	PathHost       string  `json:"path-host"`
	PathContainer  string  `json:"path-container"`
	ReadOnly       *bool   `json:"read-only"`
	CreateSymlink  *bool   `json:"create-symlink"`
	EnvVarName     string  `json:"env-var-name"`
	EnvVarPrefix   string  `json:"env-var-prefix"`
	EnvVarSuffix   string  `json:"env-var-suffix"`
}

func (e fileEntry) readOnly() bool {
	return e.ReadOnly == nil || *e.ReadOnly
}

func (e fileEntry) createSymlink() bool {
	return e.CreateSymlink != nil && *e.CreateSymlink
}

// FileGateway bind-mounts host paths into a container. Not dynamic:
// the full set of mounts is fixed once activated.
type FileGateway struct {
	*Base

	mu      sync.Mutex
	entries []fileEntry
	seen    map[string]bool // path-container -> true, duplicate rejection
}

// NewFileGateway constructs the file gateway in the CREATED state.
func NewFileGateway() *FileGateway {
	g := &FileGateway{seen: make(map[string]bool)}
	g.Base = NewBase("file", false, g.readElement, g.activate, g.teardown)
	return g
}

func (g *FileGateway) readElement(raw json.RawMessage) error {
	var e fileEntry
	if err := decodeElement(raw, &e); err != nil {
		return err
	}
	if e.PathHost == "" || e.PathContainer == "" {
		return fmt.Errorf("file gateway: path-host and path-container are required")
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen[e.PathContainer] {
		return fmt.Errorf("file gateway: path-container %q already mapped", e.PathContainer)
	}

	hostKind, err := containerfs.StatHostPath(e.PathHost)
	if err != nil {
		return fmt.Errorf("file gateway: stat %s: %w", e.PathHost, err)
	}
	if e.createSymlink() && hostKind == containerfs.HostPathDir {
		return fmt.Errorf("file gateway: create-symlink is only valid for files, %s is a directory", e.PathHost)
	}

	g.seen[e.PathContainer] = true
	g.entries = append(g.entries, e)
	return nil
}

func (g *FileGateway) activate(_ context.Context, c *container.Container) error {
	g.mu.Lock()
	entries := append([]fileEntry(nil), g.entries...)
	g.mu.Unlock()

	env := make(map[string]string)
	for _, e := range entries {
		if err := c.BindMount(e.PathHost, e.PathContainer, e.readOnly()); err != nil {
			return fmt.Errorf("mount %s -> %s: %w", e.PathHost, e.PathContainer, err)
		}
		if e.EnvVarName != "" {
			env[e.EnvVarName] = e.EnvVarPrefix + e.PathContainer + e.EnvVarSuffix
		}
	}
	for k, v := range env {
		c.SetEnvironmentVariable(k, v)
	}
	return nil
}

func (g *FileGateway) teardown() error {
	// Mounts are tracked on the container's own undo stack (pushed by
	// BindMount) and unwound there on destroy; nothing left to reverse
	// here.
	return nil
}
