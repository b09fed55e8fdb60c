package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// Session event types.
const (
	EventSessionInvalidated      = "session.invalidated"
	EventSessionRefreshExhausted = "session.refresh_exhausted"
	EventDeviceConflict          = "device.conflict"
	EventDeviceTakeover          = "device.takeover"
	EventURLRefreshFailed        = "document.url_refresh_failed"
)

// SourceReader identifies events emitted by the reader client.
const SourceReader = "reader"

// Event is a session telemetry event. It is serialized as JSON on the Kafka stream.
type Event struct {
	ID        string            `json:"id"`
	EventType string            `json:"eventType"`
	UserID    string            `json:"userId,omitempty"`
	DeviceID  string            `json:"deviceId,omitempty"`
	Source    string            `json:"source"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// NewEvent returns an event with a fresh id and the current time.
func NewEvent(eventType, userID, deviceID string, metadata map[string]string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		EventType: eventType,
		UserID:    userID,
		DeviceID:  deviceID,
		Source:    SourceReader,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
}
