package domain

import "time"

// EventType names a lifecycle event emitted for the audit/notification sink.
type EventType string

const (
	EventSessionStarted  EventType = "session_started"
	EventSessionFinished EventType = "session_finished"
)

// Event is a fire-and-forget notification about a session.
type Event struct {
	Type          EventType `json:"type"`
	QuizID        string    `json:"quizId"`
	SessionID     string    `json:"sessionId"`
	ParticipantID string    `json:"participantId"`
	// AutoFinished marks sessions closed because the time budget ran out.
	AutoFinished bool      `json:"autoFinished,omitempty"`
	Result       *Result   `json:"result,omitempty"`
	OccurredAt   time.Time `json:"occurredAt"`
}
