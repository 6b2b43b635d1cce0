package realtime

import (
	"context"
	"encoding/json"
)

// Inbound events sent by clients.
const (
	EventUpdateLocation = "update-location"
	EventUpdateStatus   = "update-status"
	EventDriverArrived  = "driver-arrived"
	EventAcceptRide     = "accept-ride"
	EventEmergencySOS   = "emergency-sos"
)

// Outbound events pushed to clients.
const (
	EventNewRideRequest       = "new-ride-request"
	EventRideAccepted         = "ride-accepted"
	EventRideArrived          = "driver-arrived"
	EventRideStarted          = "ride-started"
	EventRideCompleted        = "ride-completed"
	EventRideCancelled        = "ride-cancelled"
	EventRideExpired          = "ride-expired"
	EventDriverLocationUpdate = "driver-location-update"
	EventEmergencyAlert       = "emergency-alert"
	EventPaymentUpdated       = "payment-updated"
	EventStatusUpdated        = "status-updated"
	EventError                = "error"
)

// AdminTopic receives emergency alerts.
const AdminTopic = "admin"

// UserTopic is joined by every authenticated connection of userID.
func UserTopic(userID string) string { return "user:" + userID }

// DriverTopic is joined by driver connections in addition to UserTopic.
func DriverTopic(driverID string) string { return "driver:" + driverID }

// Publisher delivers an event to every connection subscribed to topic.
type Publisher interface {
	Publish(ctx context.Context, topic, event string, payload any) error
}

// Envelope is the wire format of every message in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: event, Data: data})
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements Publisher.
func (NopPublisher) Publish(context.Context, string, string, any) error { return nil }
