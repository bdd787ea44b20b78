package model

// EventType categorizes a message pushed to a live subscriber.
type EventType string

const (
	// EventInitialState carries the full trace + step list, sent exactly
	// once to a newly connected subscriber (when the trace exists).
	EventInitialState EventType = "initial_state"

	// EventTraceUpdated carries the full trace + step list after a full
	// create/replace.
	EventTraceUpdated EventType = "trace_updated"

	// EventStepUpdated carries a single step record after an upsert.
	EventStepUpdated EventType = "step_updated"

	// EventPong is the liveness acknowledgment for an inbound client
	// message. Not used for application logic.
	EventPong EventType = "pong"
)

// StreamEvent is the wire shape for all subscriber-bound messages. Which
// fields are populated depends on Type:
//
//	initial_state:  Trace, Steps
//	trace_updated:  Trace, Steps
//	step_updated:   TraceID, Step
//	pong:           Data
type StreamEvent struct {
	Type    EventType    `json:"type"`
	Trace   *TraceDetail `json:"trace,omitempty"`
	Steps   []Step       `json:"steps,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
	Step    *Step        `json:"step,omitempty"`
	Data    string       `json:"data,omitempty"`
}

// InitialStateEvent builds the one-time snapshot event for a new subscriber.
func InitialStateEvent(detail TraceDetail) StreamEvent {
	return StreamEvent{Type: EventInitialState, Trace: &detail, Steps: detail.Steps}
}

// TraceUpdatedEvent builds the event broadcast after a full create/replace.
func TraceUpdatedEvent(detail TraceDetail) StreamEvent {
	return StreamEvent{Type: EventTraceUpdated, Trace: &detail, Steps: detail.Steps}
}

// StepUpdatedEvent builds the event broadcast after a step upsert.
func StepUpdatedEvent(traceID string, step Step) StreamEvent {
	return StreamEvent{Type: EventStepUpdated, TraceID: traceID, Step: &step}
}

// PongEvent echoes an inbound client message as a liveness acknowledgment.
func PongEvent(data string) StreamEvent {
	return StreamEvent{Type: EventPong, Data: data}
}
