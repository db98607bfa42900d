package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/appointment-booking-saga/internal/events"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

var ErrEventNotFound = errors.New("outbox event not found")

// Event is a domain event written in the same transaction as the aggregate
// it describes. Its ID doubles as the AMQP message id.
type Event struct {
	ID          uuid.UUID
	AggregateID int64
	EventType   string
	Payload     json.RawMessage
	Status      Status
	Attempts    int
	CreatedAt   time.Time
	SentAt      *time.Time
}

func NewEvent(aggregateID int64, eventType string, payload any, now time.Time) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:          uuid.New(),
		AggregateID: aggregateID,
		EventType:   eventType,
		Payload:     data,
		Status:      StatusPending,
		CreatedAt:   now.UTC(),
	}, nil
}

// Envelope is stamped with the row's creation time, so every retry of the
// same event carries the same timestamp.
func (e Event) Envelope() (events.Envelope, error) {
	return events.NewEnvelope(e.EventType, e.CreatedAt, e.Payload)
}
