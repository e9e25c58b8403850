package bus

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type valuePayload struct {
	Value any `json:"value"`
}

type presencePayload struct {
	Connected bool `json:"connected"`
}

// DecodeValue unwraps a {"value": ...} payload. An empty payload is a
// valid nil value, as is {"value": null}.
func DecodeValue(payload []byte) (any, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, nil
	}
	var p valuePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return p.Value, nil
}

// EncodeValue wraps v as {"value": v}.
func EncodeValue(v any) ([]byte, error) {
	data, err := json.Marshal(valuePayload{Value: v})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return data, nil
}

// DecodePresence reports whether a presence payload announces the service.
// An empty payload means the service is gone. A payload that is not an
// object (some publishers send a bare value) counts as present.
func DecodePresence(payload []byte) bool {
	if len(bytes.TrimSpace(payload)) == 0 {
		return false
	}
	var p presencePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return true
	}
	return p.Connected
}
