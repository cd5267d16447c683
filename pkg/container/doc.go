/*
Package container drives a single OS-level container through its
lifecycle and exposes the uniform operations the agent dispatches to:
create, start, stop, destroy, suspend/resume, bind-mount, device-node
mount, environment and cgroup configuration, and attaching a job into
the container's namespaces.

# State machine

	CREATED --start()---> READY <--suspend()/resume()--> SUSPENDED
	   |                    |                                |
	   +---- destroy() -----+---------- destroy() -----------+
	                        |
	                        v
	                  TERMINATED

	Any lifecycle operation may drive the container into the INVALID
	trap state on an unrecoverable runtime failure (a failed suspend or
	resume in particular). INVALID accepts no further operation except
	observation; destroy on an already-TERMINATED container is a no-op.

# Runtime driver

A Container holds a Runtime collaborator, the seam the teacher's
containerd-backed runtime driver occupies, generalized here to the
container-supervisor's richer operation set (bind mounts, device
nodes, cgroup items, attach/exec). The default implementation drives
containerd directly; tests substitute a fake.

# Undo stack

Every directory created and every mount established for a container is
pushed onto its pkg/containerfs.Stack. Destroy unwinds it in reverse,
logging and continuing past any failed release.
*/
package container
