package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Encode serializes a Message as a single JSON line and writes it to w.
func Encode(w io.Writer, msg *Message) error {
	if err := validate(msg); err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	if err := encoder.Encode(msg); err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	return nil
}

// Decode parses one line into a Message. Unknown fields are rejected.
func Decode(line []byte) (*Message, error) {
	var msg Message

	decoder := json.NewDecoder(bytes.NewReader(line))
	decoder.DisallowUnknownFields() // Strict parsing

	if err := decoder.Decode(&msg); err != nil {
		return nil, fmt.Errorf("failed to decode message: %w", err)
	}
	if err := validate(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DecodeLenient is like Decode but tolerates unknown fields, so newer build
// tools keep working. Only the type is still required.
func DecodeLenient(line []byte) (*Message, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty message")
	}

	var msg Message
	if err := json.Unmarshal(trimmed, &msg); err != nil {
		return nil, fmt.Errorf("message is not valid JSON: %w", err)
	}
	if err := validate(&msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func validate(msg *Message) error {
	if msg.Type == "" {
		return fmt.Errorf("message missing required field: type")
	}
	switch strings.ToLower(msg.Type) {
	case TypeInvalid, TypeStart, TypeDone:
		msg.Type = strings.ToLower(msg.Type)
		return nil
	default:
		return fmt.Errorf("invalid message type: %q (must be 'invalid', 'start' or 'done')", msg.Type)
	}
}
