package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Preamble is an SSE comment sent first so proxies and clients see the
// response start immediately.
const Preamble = ":\n\n"

// FormatSSE renders one Server-Sent Event. data must be a single line of JSON.
func FormatSSE(eventType string, data []byte) string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, data)
}

// WriteEvent writes ev to w as an SSE frame.
func WriteEvent(w io.Writer, ev Event) error {
	payload := []byte(ev.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err := io.WriteString(w, FormatSSE(ev.Type, compact(payload)))
	return err
}

// WriteJSON encodes data and writes it to w as an SSE frame.
func WriteJSON(w io.Writer, eventType string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, FormatSSE(eventType, b))
	return err
}

// compact strips insignificant whitespace, including newlines, which would
// otherwise split the data field.
func compact(raw []byte) []byte {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}
