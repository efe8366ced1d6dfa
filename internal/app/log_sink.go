package app

import (
	"context"

	"school-quiz-service/internal/domain"
	"school-quiz-service/internal/logger"
)

// LogSink is the EventSink used when no broker is configured.
type LogSink struct {
	log *logger.Logger
}

func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Publish(_ context.Context, event domain.Event) error {
	kv := []interface{}{
		"type", event.Type,
		"quiz_id", event.QuizID,
		"session_id", event.SessionID,
		"participant_id", event.ParticipantID,
	}
	if event.Result != nil {
		kv = append(kv, "score", event.Result.Score, "max_score", event.Result.MaxScore, "auto", event.AutoFinished)
	}
	s.log.Info("session event", kv...)
	return nil
}
