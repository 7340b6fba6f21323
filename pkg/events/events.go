// Package events defines the notifications emitted along the request lifecycle.
package events

import (
	"time"

	"github.com/dukex/querygate/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic is the bus topic carrying request events.
const Topic = "querygate.requests"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"
const EventTeamMetadataKey = "team"

const (
	RequestSubmitted EventType = "request.submitted"
	RequestExecuted  EventType = "request.executed"
	RequestFailed    EventType = "request.failed"
	RequestRejected  EventType = "request.rejected"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case RequestSubmitted, RequestExecuted, RequestFailed, RequestRejected:
		return true
	default:
		return false
	}
}

// RequestEvent describes a lifecycle change of a request.
type RequestEvent struct {
	ID           string               `json:"id"`
	Type         EventType            `json:"type"`
	Timestamp    time.Time            `json:"timestamp"`
	RequestID    string               `json:"request_id"`
	Team         string               `json:"team"`
	ActorID      string               `json:"actor_id"`
	InstanceName string               `json:"instance_name"`
	Status       models.RequestStatus `json:"status"`
	Reason       string               `json:"reason,omitempty"`
	Error        string               `json:"error,omitempty"`
}

func (e RequestEvent) GetType() EventType {
	return e.Type
}

// NewRequestEvent builds an event from the current state of request.
func NewRequestEvent(eventType EventType, request *models.Request, actorID string) RequestEvent {
	event := RequestEvent{
		ID:           uuid.NewString(),
		Type:         eventType,
		Timestamp:    time.Now().UTC(),
		RequestID:    request.ID,
		Team:         request.Team,
		ActorID:      actorID,
		InstanceName: request.InstanceName,
		Status:       request.Status,
	}

	if request.RejectionReason != nil {
		event.Reason = *request.RejectionReason
	}

	return event
}

// EventForStatus maps a final request status to the event announcing it.
func EventForStatus(status models.RequestStatus) (EventType, bool) {
	switch status {
	case models.RequestStatusPending:
		return RequestSubmitted, true
	case models.RequestStatusExecuted:
		return RequestExecuted, true
	case models.RequestStatusFailed:
		return RequestFailed, true
	case models.RequestStatusRejected:
		return RequestRejected, true
	default:
		return "", false
	}
}
