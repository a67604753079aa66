package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/hsm-core/internal/archive"
)

// EventMessage is the JSON payload published for each archive event.
type EventMessage struct {
	Op         string    `json:"op"`
	Path       string    `json:"path"`
	Before     []string  `json:"states_before"`
	Success    bool      `json:"success"`
	Changed    bool      `json:"changed"`
	Attempts   int       `json:"attempts"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	ClientID   string    `json:"client_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewEventMessage converts ev to its wire form.
func NewEventMessage(ev archive.Event, clientID string) EventMessage {
	before := make([]string, len(ev.Before))
	for i, s := range ev.Before {
		before[i] = string(s)
	}
	return EventMessage{
		Op:         string(ev.Op),
		Path:       ev.Path,
		Before:     before,
		Success:    ev.Success,
		Changed:    ev.Changed,
		Attempts:   ev.Attempts,
		DurationMS: ev.Duration.Milliseconds(),
		Error:      ev.Error,
		ClientID:   clientID,
		Timestamp:  ev.Time.UTC(),
	}
}

// DecodeEventMessage parses a payload received on an archive event topic.
func DecodeEventMessage(payload []byte) (EventMessage, error) {
	var m EventMessage
	if err := json.Unmarshal(payload, &m); err != nil {
		return EventMessage{}, fmt.Errorf("decoding archive event: %w", err)
	}
	return m, nil
}
