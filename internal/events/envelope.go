package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	Exchange         = "healthcare_events"
	RoutingKeyPrefix = "healthcare."

	AppointmentCreated = "APPOINTMENT_CREATED"
)

// Envelope is the JSON body of every message on the healthcare exchange.
type Envelope struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// NewEnvelope marshals payload into a fresh envelope stamped with at.
func NewEnvelope(eventType string, at time.Time, payload any) (Envelope, error) {
	if eventType == "" {
		return Envelope{}, fmt.Errorf("event type is required")
	}

	var raw json.RawMessage
	switch p := payload.(type) {
	case json.RawMessage:
		raw = p
	case []byte:
		raw = json.RawMessage(p)
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
		}
		raw = data
	}

	return Envelope{
		Type:      eventType,
		Timestamp: at.UTC(),
		Payload:   raw,
	}, nil
}

// ParseEnvelope decodes a message body. A missing type is an error so a
// malformed body never reaches the unknown-type drop path.
func ParseEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}

// RoutingKey maps APPOINTMENT_CREATED to healthcare.appointment_created.
func RoutingKey(eventType string) string {
	return RoutingKeyPrefix + strings.ToLower(eventType)
}
