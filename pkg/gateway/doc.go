/*
Package gateway implements the capability-enforcer framework (spec
§4.3) and its eight built-in enforcers: network, file, device, cgroups,
two independent D-Bus instances (session and system bus), wayland,
pulse, and environment.

Every gateway shares the same three-state lifecycle

	CREATED --setConfig--> CONFIGURED --activate--> ACTIVATED --teardown--> CREATED

driven by the shared Base type, which owns state transitions and
delegates the gateway-specific parts — validating one configuration
element, doing the activation work, reversing it — to three functions
supplied by each concrete gateway's constructor. This mirrors the
teacher's middleware chain-of-handlers shape (a small ordered pipeline
each stage only partially owns) generalized from "handle one HTTP
request" to "own one enforcement concern for one container across its
lifetime".

Dynamic gateways (device, D-Bus, wayland) may be reconfigured
and re-activated after activation; the rest trap ACTIVATED permanently
until teardown.
*/
package gateway
