/*
Package capability resolves a named capability bundle (spec §4.4
SetCapabilities) into the ordered set of gateway configuration
fragments it applies. The definitions themselves are maintained by an
external operator-facing system per spec §1 — this package only
defines the resolution contract an agent consumes, plus two concrete
implementations: an in-memory store for tests and daemon defaults, and
a bbolt-backed one for a persisted local override.
*/
package capability
