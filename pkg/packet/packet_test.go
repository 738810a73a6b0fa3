package packet

import (
	"encoding/json"
	"errors"
	"testing"
)

const packetTestPrefix = "packet:packet_test"

func TestSet_OverwritesAndChains(t *testing.T) {
	p := New("setint").Set("value", 1).Set("value", 3).Set("other", "x")

	if p.Len() != 2 {
		t.Fatalf("%s - Len = %d, want 2", packetTestPrefix, p.Len())
	}
	v, err := p.Get("value")
	if err != nil {
		t.Fatalf("%s - unexpected error: %v", packetTestPrefix, err)
	}
	if v != 3 {
		t.Errorf("%s - value = %v, want 3 (last write wins)", packetTestPrefix, v)
	}
}

func TestHas(t *testing.T) {
	p := New("a").Set("present", nil)

	if !p.Has("present") {
		t.Errorf("%s - expected Has(present) with nil value", packetTestPrefix)
	}
	if p.Has("absent") {
		t.Errorf("%s - expected Has(absent) = false", packetTestPrefix)
	}
}

func TestGet_MissingField(t *testing.T) {
	p := New("lookup")

	_, err := p.Get("value")
	if err == nil {
		t.Fatalf("%s - expected error for absent field", packetTestPrefix)
	}
	if !errors.Is(err, ErrFieldNotFound) {
		t.Errorf("%s - expected ErrFieldNotFound, got %v", packetTestPrefix, err)
	}
	var fe *FieldError
	if !errors.As(err, &fe) {
		t.Fatalf("%s - expected *FieldError, got %T", packetTestPrefix, err)
	}
	if fe.Field != "value" || fe.Action != "lookup" {
		t.Errorf("%s - FieldError = %+v", packetTestPrefix, fe)
	}
}

func TestNew_PositionalArgsNotFields(t *testing.T) {
	p := New("setint", 3, "x")

	if p.Len() != 0 {
		t.Errorf("%s - positional args must not populate fields, Len = %d", packetTestPrefix, p.Len())
	}
	if !p.HasArgs() {
		t.Fatalf("%s - expected HasArgs", packetTestPrefix)
	}

	args := p.Args()
	args[0] = 99
	if p.Args()[0] != 3 {
		t.Errorf("%s - Args must return a copy", packetTestPrefix)
	}
}

func TestFields_ReturnsCopy(t *testing.T) {
	p := New("a").Set("k", 1)
	f := p.Fields()
	f["k"] = 2
	f["new"] = true

	if v, _ := p.Get("k"); v != 1 {
		t.Errorf("%s - mutation through Fields leaked into packet", packetTestPrefix)
	}
	if p.Has("new") {
		t.Errorf("%s - mutation through Fields added a field", packetTestPrefix)
	}
}

func TestEnvelope_JSON(t *testing.T) {
	raw := `{"action":"move","fields":{"x":1,"y":2.5},"args":["a"]}`

	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("%s - failed to unmarshal: %v", packetTestPrefix, err)
	}
	p := env.Packet()

	if p.Action() != "move" {
		t.Errorf("%s - Action = %q, want move", packetTestPrefix, p.Action())
	}
	if v, _ := p.Get("y"); v != 2.5 {
		t.Errorf("%s - y = %v, want 2.5", packetTestPrefix, v)
	}
	if len(p.Args()) != 1 || p.Args()[0] != "a" {
		t.Errorf("%s - Args = %v, want [a]", packetTestPrefix, p.Args())
	}

	back := FromPacket(p)
	if back.Action != "move" || len(back.Fields) != 2 || len(back.Args) != 1 {
		t.Errorf("%s - FromPacket = %+v", packetTestPrefix, back)
	}
}

func TestFromPacket_OmitsEmpty(t *testing.T) {
	data, err := json.Marshal(FromPacket(New("ping")))
	if err != nil {
		t.Fatalf("%s - marshal failed: %v", packetTestPrefix, err)
	}
	if string(data) != `{"action":"ping"}` {
		t.Errorf("%s - got %s, want {\"action\":\"ping\"}", packetTestPrefix, data)
	}
}
