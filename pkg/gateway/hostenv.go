package gateway

import (
	"fmt"
	"os"
)

// hostXDGRuntimeDir returns the host's XDG_RUNTIME_DIR, falling back
// to the per-uid default systemd/logind normally sets up.
func hostXDGRuntimeDir() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir
	}
	return fmt.Sprintf("/run/user/%d", os.Getuid())
}
