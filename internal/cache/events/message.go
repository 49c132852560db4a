package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType names the payload carried by a Message.
type MessageType string

const (
	MessageTypeStoreChange    MessageType = "store_change"
	MessageTypeSyncComplete   MessageType = "sync_complete"
	MessageTypeSettingsChange MessageType = "settings_change"
	MessageTypeMarksChange    MessageType = "marks_change"

	// MessageTypeStats carries record counts. Every client gets one on
	// connect.
	MessageTypeStats MessageType = "stats"
)

// Message is one JSON frame sent to clients.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage marshals data into a message of type typ.
func NewMessage(typ MessageType, data any) (Message, error) {
	msg := Message{Type: typ, Timestamp: time.Now().UTC()}
	if data == nil {
		return msg, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("failed to marshal %s data: %w", typ, err)
	}
	msg.Data = raw
	return msg, nil
}

func (m Message) encode() ([]byte, error) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}
	return json.Marshal(m)
}
