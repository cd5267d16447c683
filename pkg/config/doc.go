// Package config holds the resolved, immutable configuration value the
// agent is constructed with, plus the pieces cmd/scagentd assembles it
// from: an optional YAML override file (File, LoadFile, Resolve) and
// Validate, which checks mandatory keys and inter-key dependencies.
// Key-file parsing is not done in this module; the agent itself only
// ever sees the resulting Resolved value.
package config
