// Package events carries queue change notifications out of the request path:
// to websocket boards, to other instances through Redis, and to the
// notification service through SQS.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

const (
	TypeTokenIssued         = "token.issued"
	TypeTokenTransitioned   = "token.transitioned"
	TypeAvailabilityUpdated = "availability.updated"
)

type Event struct {
	Type       string          `json:"type"`
	Topic      string          `json:"topic"`
	DoctorID   string          `json:"doctor_id"`
	Date       string          `json:"date"`
	ResourceID string          `json:"resource_id,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// QueueTopic is the topic a doctor's board for one date subscribes to.
func QueueTopic(doctorID uuid.UUID, date civil.Date) string {
	return "queue/" + doctorID.String() + "/" + date.String()
}

// New builds an event for a doctor's day with payload encoded as Data.
func New(eventType string, doctorID uuid.UUID, date civil.Date, resourceID string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return Event{
		Type:       eventType,
		Topic:      QueueTopic(doctorID, date),
		DoctorID:   doctorID.String(),
		Date:       date.String(),
		ResourceID: resourceID,
		Timestamp:  time.Now().UTC(),
		Data:       data,
	}, nil
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Broadcaster delivers an event to local subscribers of a topic.
type Broadcaster interface {
	Broadcast(topic string, e Event)
}

// Fanout publishes to every member and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
