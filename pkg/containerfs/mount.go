package containerfs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/moby/sys/mountinfo"
	"golang.org/x/sys/unix"
)

// ResolveContainerPath normalizes containerPath and asserts it resolves
// under rootfs, rejecting ".." escapes (spec §4.2 bindMount rule, and
// the BindMount boundary behavior in spec §8). It returns the absolute
// host-side path the container path maps to.
func ResolveContainerPath(rootfs, containerPath string) (string, error) {
	if !filepath.IsAbs(containerPath) {
		containerPath = "/" + containerPath
	}
	joined := filepath.Join(rootfs, containerPath)

	rootfsClean := filepath.Clean(rootfs)
	if joined != rootfsClean && !strings.HasPrefix(joined, rootfsClean+string(os.PathSeparator)) {
		return "", fmt.Errorf("containerfs: container path %q escapes rootfs", containerPath)
	}
	return joined, nil
}

// HostPathKind distinguishes the two bindable path shapes.
type HostPathKind int

const (
	HostPathFile HostPathKind = iota
	HostPathDir
)

// StatHostPath verifies hostPath exists and reports whether it is a
// file or a directory, per the bindMount contract ("host_path must
// exist and be a file or directory; type determines the kind of mount
// created").
func StatHostPath(hostPath string) (HostPathKind, error) {
	info, err := os.Stat(hostPath)
	if err != nil {
		return 0, fmt.Errorf("containerfs: host path %q: %w", hostPath, err)
	}
	if info.IsDir() {
		return HostPathDir, nil
	}
	return HostPathFile, nil
}

// EnsureDir creates path (and any missing parents) and, on success,
// pushes an undo action onto stack that removes only the first missing
// ancestor it had to create (so pre-existing directories on the
// container side are never deleted on teardown).
func EnsureDir(path string, mode os.FileMode, stack *Stack) error {
	firstMissing, err := firstMissingAncestor(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(path, mode); err != nil {
		return fmt.Errorf("containerfs: mkdir %q: %w", path, err)
	}

	if firstMissing != "" && stack != nil {
		stack.Push(Func("rmdir:"+firstMissing, func() error {
			return os.RemoveAll(firstMissing)
		}))
	}
	return nil
}

func firstMissingAncestor(path string) (string, error) {
	dir := filepath.Clean(path)
	for {
		_, err := os.Stat(dir)
		if err == nil {
			return "", nil // path (or an ancestor) already exists; nothing new created
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("containerfs: stat %q: %w", dir, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir, nil // reached filesystem root without finding an existing ancestor
		}
		if _, perr := os.Stat(parent); perr == nil {
			return dir, nil // parent exists, dir itself is the first missing one
		}
		dir = parent
	}
}

// Tracker records which in-container paths are already bind-mounted, so
// a second BindMount of the same container path can be rejected before
// any filesystem change (spec §4.2 "Re-mounting the same container_path
// twice fails").
type Tracker struct {
	mu     sync.Mutex
	mounts map[string]bool
}

// NewTracker creates an empty mount tracker.
func NewTracker() *Tracker {
	return &Tracker{mounts: make(map[string]bool)}
}

// Reserve claims containerPath for mounting, failing if it is already
// claimed.
func (t *Tracker) Reserve(containerPath string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.mounts[containerPath] {
		return fmt.Errorf("containerfs: %q is already mounted", containerPath)
	}
	t.mounts[containerPath] = true
	return nil
}

// Release frees containerPath so it may be reused (called from the
// mount's undo action).
func (t *Tracker) Release(containerPath string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.mounts, containerPath)
}

// BindMount creates a bind mount from hostPath into the resolved
// in-container path and, on success, pushes the unmount action onto
// stack. Missing intermediate directories on the container side are
// created first and recorded for their own undo.
func BindMount(hostPath, rootfs, containerPath string, readOnly bool, tracker *Tracker, stack *Stack) error {
	kind, err := StatHostPath(hostPath)
	if err != nil {
		return err
	}

	resolved, err := ResolveContainerPath(rootfs, containerPath)
	if err != nil {
		return err
	}

	if err := tracker.Reserve(containerPath); err != nil {
		return err
	}

	if kind == HostPathDir {
		if err := EnsureDir(resolved, 0755, stack); err != nil {
			tracker.Release(containerPath)
			return err
		}
	} else {
		if err := EnsureDir(filepath.Dir(resolved), 0755, stack); err != nil {
			tracker.Release(containerPath)
			return err
		}
		if _, err := os.Stat(resolved); os.IsNotExist(err) {
			f, ferr := os.OpenFile(resolved, os.O_CREATE, 0644)
			if ferr != nil {
				tracker.Release(containerPath)
				return fmt.Errorf("containerfs: create mount target %q: %w", resolved, ferr)
			}
			f.Close()
			stack.Push(Func("rm:"+resolved, func() error { return os.Remove(resolved) }))
		} else if dirInfo, statErr := os.Stat(resolved); statErr == nil && dirInfo.IsDir() {
			tracker.Release(containerPath)
			return fmt.Errorf("containerfs: cannot bind file %q over existing directory %q", hostPath, resolved)
		}
	}

	flags := uintptr(unix.MS_BIND)
	if err := unix.Mount(hostPath, resolved, "", flags, ""); err != nil {
		tracker.Release(containerPath)
		return fmt.Errorf("containerfs: bind mount %q -> %q: %w", hostPath, resolved, err)
	}

	if readOnly {
		remountFlags := uintptr(unix.MS_BIND | unix.MS_REMOUNT | unix.MS_RDONLY)
		if err := unix.Mount("", resolved, "", remountFlags, ""); err != nil {
			_ = unix.Unmount(resolved, 0)
			tracker.Release(containerPath)
			return fmt.Errorf("containerfs: remount read-only %q: %w", resolved, err)
		}
	}

	stack.Push(Func("unmount:"+resolved, func() error {
		defer tracker.Release(containerPath)
		// Destroy's runtime cleanup can tear down the whole mount
		// namespace before the undo stack unwinds; only attempt the
		// unmount if the kernel still reports it mounted.
		mounted, err := mountinfo.Mounted(resolved)
		if err != nil {
			return fmt.Errorf("containerfs: check mount state of %q: %w", resolved, err)
		}
		if !mounted {
			return nil
		}
		return unix.Unmount(resolved, unix.MNT_DETACH)
	}))

	return nil
}
