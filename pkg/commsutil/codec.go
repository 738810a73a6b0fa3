package commsutil

import (
	"bytes"
	"encoding/json"
	"fmt"

	comms "github.com/nats-io/nats.go"
)

const codecLogPrefix = "commsutil:codec"

// EncodePayload serializes a wire value to JSON.
func EncodePayload(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%s - encode %T: %w", codecLogPrefix, v, err)
	}
	return data, nil
}

// DecodePayload deserializes exactly one JSON value into v. Empty payloads
// and trailing data are rejected.
func DecodePayload(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("%s - empty payload", codecLogPrefix)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%s - decode %T: %w", codecLogPrefix, v, err)
	}
	if dec.More() {
		return fmt.Errorf("%s - trailing data after payload", codecLogPrefix)
	}
	return nil
}

// Reply encodes v and responds to msg. Messages without a reply subject are
// skipped.
func Reply(msg *comms.Msg, v any) error {
	if msg == nil || msg.Reply == "" {
		return nil
	}
	data, err := EncodePayload(v)
	if err != nil {
		return err
	}
	if err := msg.Respond(data); err != nil {
		return fmt.Errorf("%s - respond on %s: %w", codecLogPrefix, msg.Reply, err)
	}
	return nil
}
