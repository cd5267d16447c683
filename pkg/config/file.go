package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/warren/pkg/types"
)

// File is the on-disk layered-config document the daemon reads before
// applying any command-line overrides. It mirrors Resolved field for
// field rather than embedding it directly, since YAML needs its own
// tags and a *BridgeFile indirection for the optional bridge block.
type File struct {
	SharedMountsDir      string `yaml:"sharedMountsDir"`
	SocketPath           string `yaml:"socketPath"`
	ContainerdSocketPath string `yaml:"containerdSocketPath"`
	PreloadCount         int    `yaml:"preloadCount"`
	ShutdownGracePeriod  string `yaml:"shutdownGracePeriod"`
	CapabilityStorePath  string `yaml:"capabilityStorePath"`
	RegistryStorePath    string `yaml:"registryStorePath"`
	DBusProxyHelperPath  string `yaml:"dbusProxyHelperPath"`

	DefaultContainer struct {
		WriteBufferEnabled         bool         `yaml:"writeBufferEnabled"`
		TemporaryFileSystemEnabled bool         `yaml:"temporaryFileSystemEnabled"`
		TemporaryFileSystemSize    int64        `yaml:"temporaryFileSystemSize"`
		RuntimeConfigPath          string       `yaml:"runtimeConfigPath"`
		ShutdownTimeoutSeconds     int          `yaml:"shutdownTimeoutSeconds"`
		Bridge                     *BridgeFile  `yaml:"bridge"`
	} `yaml:"defaultContainer"`
}

// BridgeFile is the YAML shape of types.BridgeConfig.
type BridgeFile struct {
	Device       string `yaml:"device"`
	IPv4Address  string `yaml:"ipv4Address"`
	PrefixLength int    `yaml:"prefixLength"`
}

// LoadFile reads and parses a daemon config file. A missing or
// unreadable path is returned as an error.
func LoadFile(path string) (File, error) {
	var f File
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return f, nil
}

// Resolve converts the parsed file into a Resolved value. An unset or
// unparsable ShutdownGracePeriod yields the zero duration, so callers
// that layer flag defaults on top still end up with a sane value —
// Resolved.Validate rejects a zero grace period before the agent is
// ever constructed from it.
func (f File) Resolve() Resolved {
	r := Resolved{
		SharedMountsDir:      f.SharedMountsDir,
		SocketPath:           f.SocketPath,
		ContainerdSocketPath: f.ContainerdSocketPath,
		PreloadCount:         f.PreloadCount,
		CapabilityStorePath:  f.CapabilityStorePath,
		RegistryStorePath:    f.RegistryStorePath,
		DBusProxyHelperPath:  f.DBusProxyHelperPath,
		DefaultContainerConfig: types.ContainerConfig{
			WriteBufferEnabled:         f.DefaultContainer.WriteBufferEnabled,
			TemporaryFileSystemEnabled: f.DefaultContainer.TemporaryFileSystemEnabled,
			TemporaryFileSystemSize:    f.DefaultContainer.TemporaryFileSystemSize,
			RuntimeConfigPath:          f.DefaultContainer.RuntimeConfigPath,
			ShutdownTimeoutSeconds:     f.DefaultContainer.ShutdownTimeoutSeconds,
		},
	}
	if f.DefaultContainer.Bridge != nil {
		r.DefaultContainerConfig.Bridge = &types.BridgeConfig{
			Device:       f.DefaultContainer.Bridge.Device,
			IPv4Address:  f.DefaultContainer.Bridge.IPv4Address,
			PrefixLength: f.DefaultContainer.Bridge.PrefixLength,
		}
	}
	if d, err := time.ParseDuration(f.ShutdownGracePeriod); err == nil {
		r.ShutdownGracePeriod = d
	}
	return r
}
