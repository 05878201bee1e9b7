package livefeed

import (
	"encoding/json"
	"time"
)

// Message is the envelope pushed to live feed subscribers.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Marshal marshals the message to JSON bytes, stamping it if needed.
func (m *Message) Marshal() ([]byte, error) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	return json.Marshal(m)
}

// Message types sent to dashboards.
const (
	MessageTypeHello        = "hello"
	MessageTypeRecordStored = "record_stored"
)
