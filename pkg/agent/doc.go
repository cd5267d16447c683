/*
Package agent implements the RPC-facing container registry (spec
§4.4): a map from ContainerId to Container, a small LIFO id pool, and
the operations pkg/rpc dispatches to (CreateContainer, Execute,
Suspend/Resume, Destroy, BindMount, SetCapabilities, List,
ListCapabilities). Every operation is meant to run from a single
reactor goroutine — the Agent itself does not spawn goroutines beyond
what pkg/job and pkg/notifier already own.
*/
package agent
