/*
Package containerfs provides the scoped filesystem primitives a
container's lifecycle needs: creating the per-container state
directories (spec §6 "Persisted state layout"), bind-mounting host
paths into a container's root filesystem with path-escape rejection,
and the undo stack that guarantees every successful mount, directory,
or temp file is reversed, in reverse order, on destroy (spec §3 "undo
stack", §5 "Resource lifecycle").

# Undo stack

	Push(action) on every successful acquisition
	...
	Unwind() walks the stack top-to-bottom (LIFO), running each
	action's Undo(); a failing Undo is logged and unwinding continues
	-- it never aborts partway through.

This mirrors the teacher's volume driver's "create directory, record
path, RemoveAll on delete" shape, generalized from a single action kind
to a stack of heterogeneous ones.
*/
package containerfs
