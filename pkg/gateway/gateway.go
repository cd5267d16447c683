package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/warren/pkg/container"
	"github.com/cuemby/warren/pkg/log"
	"github.com/cuemby/warren/pkg/metrics"
	"github.com/cuemby/warren/pkg/types"
)

// Gateway is the common interface every capability enforcer
// implements; it is also what pkg/container.AttachedGateway requires,
// so an activated Gateway can be registered directly with a
// container.
type Gateway interface {
	ID() string
	Dynamic() bool
	State() types.GatewayState
	SetConfig(raw []byte) error
	Activate(ctx context.Context, c *container.Container) error
	Teardown() error
}

// ElementReader validates and absorbs one configuration element.
// Implementations accumulate into the concrete gateway's own fields;
// an error aborts the whole SetConfig call per spec §4.3.
type ElementReader func(raw json.RawMessage) error

// Activator performs the gateway-specific activation work once Base
// has confirmed CONFIGURED state and a container is attached.
type Activator func(ctx context.Context, c *container.Container) error

// Tearer reverses a successful Activator call.
type Tearer func() error

// Base implements the shared setConfig/activate/teardown state
// machine (spec §4.3), delegating the gateway-specific parts to the
// three functions supplied at construction.
type Base struct {
	mu sync.Mutex

	id      string
	dynamic bool
	state   types.GatewayState

	container *container.Container
	elements  []json.RawMessage

	readElement ElementReader
	doActivate  Activator
	doTeardown  Tearer

	log zerolog.Logger
}

// NewBase constructs a gateway framework skeleton in the CREATED
// state. id is the stable gateway name (e.g. "network"); dynamic
// controls whether setConfig/activate may be repeated after
// activation.
func NewBase(id string, dynamic bool, readElement ElementReader, doActivate Activator, doTeardown Tearer) *Base {
	return &Base{
		id:          id,
		dynamic:     dynamic,
		state:       types.GatewayCreated,
		readElement: readElement,
		doActivate:  doActivate,
		doTeardown:  doTeardown,
		log:         log.WithGatewayID(id),
	}
}

func (b *Base) ID() string               { return b.id }
func (b *Base) Dynamic() bool            { return b.dynamic }
func (b *Base) State() types.GatewayState { b.mu.Lock(); defer b.mu.Unlock(); return b.state }

// Elements returns the accumulated raw configuration entries, in the
// order they were appended across one or more SetConfig calls.
func (b *Base) Elements() []json.RawMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]json.RawMessage, len(b.elements))
	copy(out, b.elements)
	return out
}

// Container returns the container this gateway is attached to, if
// any (nil before a successful Activate).
func (b *Base) Container() *container.Container {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.container
}

// SetConfig validates raw as a non-empty JSON array of objects,
// delegates each element to readElement, and on success accumulates
// the array and transitions CREATED/CONFIGURED -> CONFIGURED.
func (b *Base) SetConfig(raw []byte) error {
	b.mu.Lock()
	state := b.state
	dynamic := b.dynamic
	b.mu.Unlock()

	if state == types.GatewayActivated && !dynamic {
		return &ConfigError{GatewayID: b.id, Reason: "gateway already activated and is not dynamic"}
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		return &ConfigError{GatewayID: b.id, Reason: "config must be a JSON array", Err: err}
	}
	if len(elements) == 0 {
		return &ConfigError{GatewayID: b.id, Reason: "config array must be non-empty"}
	}

	for _, el := range elements {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(el, &obj); err != nil {
			return &ConfigError{GatewayID: b.id, Reason: "config element must be a JSON object", Err: err}
		}
		if err := b.readElement(el); err != nil {
			return &ConfigError{GatewayID: b.id, Reason: "element rejected", Err: err}
		}
	}

	b.mu.Lock()
	b.elements = append(b.elements, elements...)
	if b.state == types.GatewayCreated {
		b.state = types.GatewayConfigured
	}
	b.mu.Unlock()
	return nil
}

// Activate requires CONFIGURED state and a container to attach to; on
// success it delegates to doActivate and transitions to ACTIVATED.
func (b *Base) Activate(ctx context.Context, c *container.Container) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.GatewayActivationDuration, b.id)

	b.mu.Lock()
	if b.state != types.GatewayConfigured && !(b.dynamic && b.state == types.GatewayActivated) {
		b.mu.Unlock()
		metrics.GatewayActivationsTotal.WithLabelValues(b.id, "rejected").Inc()
		return &ActivationError{GatewayID: b.id, Reason: "gateway is not configured"}
	}
	if c == nil {
		b.mu.Unlock()
		metrics.GatewayActivationsTotal.WithLabelValues(b.id, "rejected").Inc()
		return &NotAttachedError{GatewayID: b.id}
	}
	b.container = c
	b.mu.Unlock()

	if err := b.doActivate(ctx, c); err != nil {
		metrics.GatewayActivationsTotal.WithLabelValues(b.id, "failed").Inc()
		return &ActivationError{GatewayID: b.id, Reason: "activation callback failed", Err: err}
	}

	b.mu.Lock()
	b.state = types.GatewayActivated
	b.mu.Unlock()
	metrics.GatewayActivationsTotal.WithLabelValues(b.id, "succeeded").Inc()
	return nil
}

// Teardown requires ACTIVATED state; on success it delegates to
// doTeardown and, for non-dynamic gateways, returns to CREATED.
func (b *Base) Teardown() error {
	b.mu.Lock()
	if b.state != types.GatewayActivated {
		b.mu.Unlock()
		return &ActivationError{GatewayID: b.id, Reason: "gateway is not activated"}
	}
	b.mu.Unlock()

	if err := b.doTeardown(); err != nil {
		return &TeardownError{GatewayID: b.id, Err: err}
	}

	b.mu.Lock()
	if !b.dynamic {
		b.state = types.GatewayCreated
		b.elements = nil
	}
	b.container = nil
	b.mu.Unlock()
	return nil
}

func decodeElement(raw json.RawMessage, v interface{}) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode config element: %w", err)
	}
	return nil
}
