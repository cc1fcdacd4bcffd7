package content

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// EncodeString serializes a string into an envelope with content type [TypeText].
func EncodeString(value string) *Envelope {
	return &Envelope{ContentType: TypeText, Payload: strings.NewReader(value)}
}

// DecodeString reads an envelope produced by [EncodeString] back into a string.
func DecodeString(e *Envelope) (string, error) {
	if err := e.expect(TypeText); err != nil {
		return "", err
	}
	r, err := e.Reader()
	if err != nil {
		return "", err
	}
	defer func() {
		_ = r.Close()
	}()
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read string content: %w", err)
	}
	return string(data), nil
}

// EncodeJSON serializes a JSON-compatible value into an envelope with content
// type [TypeJSON].
func EncodeJSON(document any) (*Envelope, error) {
	data, err := json.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal json content: %w", err)
	}
	return &Envelope{ContentType: TypeJSON, Payload: strings.NewReader(string(data))}, nil
}

// DecodeJSON reads an envelope produced by [EncodeJSON] into out.
func DecodeJSON(e *Envelope, out any) error {
	if err := e.expect(TypeJSON); err != nil {
		return err
	}
	r, err := e.Reader()
	if err != nil {
		return err
	}
	defer func() {
		_ = r.Close()
	}()
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return fmt.Errorf("failed to decode json content: %w", err)
	}
	return nil
}
