// Package packet defines the inbound application message routed by the dispatcher.
package packet

import (
	"errors"
	"fmt"
)

// ErrFieldNotFound is returned when reading a field the packet does not carry.
var ErrFieldNotFound = errors.New("field not found")

// FieldError reports a failed field read.
type FieldError struct {
	Action string
	Field  string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("packet %q: %s: %s", e.Action, ErrFieldNotFound, e.Field)
}

func (e *FieldError) Unwrap() error {
	return ErrFieldNotFound
}

// Packet is one inbound message: an action, named fields and optional
// positional arguments. Positional arguments are never folded into the
// named fields; they are zipped against a handler's parameter list at
// bind time, so a packet can be processed any number of times.
type Packet struct {
	action string
	fields map[string]any
	args   []any
}

// New creates a packet for action. Any args are kept as positional arguments.
func New(action string, args ...any) *Packet {
	p := &Packet{
		action: action,
		fields: make(map[string]any),
	}
	if len(args) > 0 {
		p.args = append([]any(nil), args...)
	}
	return p
}

// Action returns the packet's action identifier.
func (p *Packet) Action() string {
	return p.action
}

// Set stores value under name, replacing any previous value.
func (p *Packet) Set(name string, value any) *Packet {
	p.fields[name] = value
	return p
}

// Has reports whether a named field is present.
func (p *Packet) Has(name string) bool {
	_, ok := p.fields[name]
	return ok
}

// Get returns the named field or a *FieldError wrapping ErrFieldNotFound.
func (p *Packet) Get(name string) (any, error) {
	v, ok := p.fields[name]
	if !ok {
		return nil, &FieldError{Action: p.action, Field: name}
	}
	return v, nil
}

// Args returns a copy of the positional arguments.
func (p *Packet) Args() []any {
	if len(p.args) == 0 {
		return nil
	}
	return append([]any(nil), p.args...)
}

// HasArgs reports whether the packet was built with positional arguments.
func (p *Packet) HasArgs() bool {
	return len(p.args) > 0
}

// Fields returns a copy of the named fields.
func (p *Packet) Fields() map[string]any {
	out := make(map[string]any, len(p.fields))
	for k, v := range p.fields {
		out[k] = v
	}
	return out
}

// Len returns the number of named fields.
func (p *Packet) Len() int {
	return len(p.fields)
}

func (p *Packet) String() string {
	return fmt.Sprintf("Packet(%s fields=%d args=%d)", p.action, len(p.fields), len(p.args))
}
