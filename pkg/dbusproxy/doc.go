/*
Package dbusproxy supervises one external dbus-proxy helper process
per D-Bus instance (session or system bus) a container is granted
access to. The gateway layer (pkg/gateway) owns when to spawn, extend,
or kill a proxy; this package owns the process lifecycle: spawning it
against a unix socket path, waiting for the socket to appear, and
feeding it filter configuration over stdin as newline-delimited JSON
with an explicit byte-count acknowledgement, grounded on the same
external-helper-supervision shape the teacher uses for its systemd
unit lifecycle (spawn, poll for readiness, signal on teardown).
*/
package dbusproxy
