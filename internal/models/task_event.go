package models

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Event names exchanged on the task progress channel
const (
	EventProgress          = "progress"
	EventJoined            = "joined"
	EventTaskStatus        = "task_status"
	EventJoinTaskProgress  = "join_task_progress"
	EventLeaveTaskProgress = "leave_task_progress"
)

// Envelope is the JSON frame carried by the channel transport
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event is a decoded inbound message
type Event interface {
	EventName() string
	EventTaskID() string
}

// ProgressEvent reports a job's progress percentage
type ProgressEvent struct {
	TaskID   string  `json:"task_id" validate:"required"`
	Progress float64 `json:"progress" validate:"gte=0"`
}

func (e ProgressEvent) EventName() string   { return EventProgress }
func (e ProgressEvent) EventTaskID() string { return e.TaskID }

// JoinedEvent acknowledges a join_task_progress request
type JoinedEvent struct {
	TaskID string `json:"task_id" validate:"required"`
}

func (e JoinedEvent) EventName() string   { return EventJoined }
func (e JoinedEvent) EventTaskID() string { return e.TaskID }

// TaskStatusEvent reports a job state transition
type TaskStatusEvent struct {
	TaskID string    `json:"task_id" validate:"required"`
	State  TaskState `json:"state" validate:"required"`
	Status string    `json:"status"`
}

func (e TaskStatusEvent) EventName() string   { return EventTaskStatus }
func (e TaskStatusEvent) EventTaskID() string { return e.TaskID }

// RoomRequest is the payload of join_task_progress / leave_task_progress
type RoomRequest struct {
	TaskID string `json:"task_id" validate:"required"`
}

// RawEvent carries any event without a typed payload
type RawEvent struct {
	Name string
	Data json.RawMessage
}

func (e RawEvent) EventName() string { return e.Name }

// EventTaskID extracts task_id when the payload is an object carrying one
func (e RawEvent) EventTaskID() string {
	var probe struct {
		TaskID string `json:"task_id"`
	}
	if len(e.Data) == 0 || json.Unmarshal(e.Data, &probe) != nil {
		return ""
	}
	return probe.TaskID
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validator returns the shared struct validator
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// NewEnvelope marshals data into an envelope for the named event
func NewEnvelope(event string, data interface{}) (Envelope, error) {
	env := Envelope{Event: event}
	if data == nil {
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	env.Data = raw
	return env, nil
}

// DecodeEvent decodes and validates an inbound envelope.
// Known event names produce typed events; anything else yields a RawEvent.
func DecodeEvent(env Envelope) (Event, error) {
	switch env.Event {
	case EventProgress:
		var e ProgressEvent
		if err := decodeInto(env, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventJoined:
		var e JoinedEvent
		if err := decodeInto(env, &e); err != nil {
			return nil, err
		}
		return e, nil
	case EventTaskStatus:
		var e TaskStatusEvent
		if err := decodeInto(env, &e); err != nil {
			return nil, err
		}
		e.State = e.State.Normalize()
		return e, nil
	case EventJoinTaskProgress, EventLeaveTaskProgress:
		var e RoomRequest
		if err := decodeInto(env, &e); err != nil {
			return nil, err
		}
		return RawEvent{Name: env.Event, Data: env.Data}, nil
	case "":
		return nil, fmt.Errorf("envelope has no event name")
	default:
		return RawEvent{Name: env.Event, Data: env.Data}, nil
	}
}

// DecodeRoomRequest decodes and validates a join/leave payload
func DecodeRoomRequest(env Envelope) (RoomRequest, error) {
	var req RoomRequest
	if err := decodeInto(env, &req); err != nil {
		return RoomRequest{}, err
	}
	return req, nil
}

func decodeInto(env Envelope, target interface{}) error {
	if len(env.Data) == 0 {
		return fmt.Errorf("%s event has no payload", env.Event)
	}
	if err := json.Unmarshal(env.Data, target); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", env.Event, err)
	}
	if err := Validator().Struct(target); err != nil {
		return fmt.Errorf("invalid %s payload: %w", env.Event, err)
	}
	return nil
}
