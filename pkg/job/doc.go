/*
Package job implements the two job kinds a container can run (spec
§4.5): CommandJob, an attached shell command, and FunctionJob, a
caller-provided Go function executed inside the container's joined
namespaces. Both share the pid()/isRunning()/wait() contract and the
same exit fan-out: CommandJob's Start registers a single callback with
the pkg/notifier reactor, while FunctionJob's Start hands the same
kind of callback to the runtime, which calls it when the function
returns. That callback updates the job's own state and then fans out
to every listener attached via OnExit, so the agent's
RPC-facing ProcessStateChanged listener and the job's internal Wait
channel share one reactor registration instead of racing to replace
each other.
*/
package job
