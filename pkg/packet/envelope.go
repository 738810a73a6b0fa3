package packet

// Envelope is the JSON wire form of a Packet.
type Envelope struct {
	Action string         `json:"action"`
	Fields map[string]any `json:"fields,omitempty"`
	Args   []any          `json:"args,omitempty"`
}

// Packet builds a Packet from the envelope.
func (e *Envelope) Packet() *Packet {
	p := New(e.Action, e.Args...)
	for k, v := range e.Fields {
		p.Set(k, v)
	}
	return p
}

// FromPacket builds the wire envelope for p.
func FromPacket(p *Packet) *Envelope {
	env := &Envelope{Action: p.action, Args: p.Args()}
	if len(p.fields) > 0 {
		env.Fields = p.Fields()
	}
	return env
}
