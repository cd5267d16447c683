/*
Package types holds the shared value types for the container supervisor:
container identity and lifecycle state, gateway configuration shapes,
and job stdio and exit-event descriptors; the typed errors of the RPC
surface live in pkg/agent, not here. Every other package in
this module imports types instead of redeclaring these shapes, the way
every package in the original orchestrator imported a single central
types package.

# Container identity

A ContainerID is a small non-negative integer handed out by the agent's
id pool (see pkg/agent) and reused after a container is destroyed.
InvalidContainerID is the reserved sentinel -1.

# Lifecycle

Container states form a small machine:

	CREATED --start()--> READY <--suspend/resume--> SUSPENDED
	READY --destroy()--> TERMINATED
	any --failure--> INVALID (trap state, terminal)

INVALID is reachable from any other state when the underlying runtime
reports a failure it cannot recover from (failed suspend/resume,
corrupted root filesystem, etc.) and nothing but observation succeeds
against it afterward.

Gateways have their own three-state machine (CREATED -> CONFIGURED ->
ACTIVATED) independent of the container's.
*/
package types
