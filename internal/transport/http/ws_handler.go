package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"school-quiz-service/internal/app"
	"school-quiz-service/internal/domain"
	"school-quiz-service/internal/logger"

	"github.com/gorilla/websocket"
)

const defaultPollInterval = time.Second

type WSHandler struct {
	service      *app.QuizService
	log          *logger.Logger
	pollInterval time.Duration
	upgrader     websocket.Upgrader
}

func NewWSHandler(service *app.QuizService, log *logger.Logger, pollInterval time.Duration) *WSHandler {
	if log == nil {
		log = logger.NewNop()
	}
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	return &WSHandler{
		service:      service,
		log:          log,
		pollInterval: pollInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string   `json:"questionId"`
	AnswerIDs  []string `json:"answerIds"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type tickPayload struct {
	SessionID            string `json:"sessionId"`
	TimeRemainingSeconds int    `json:"timeRemainingSeconds"`
}

// ServeWS upgrades the request and runs one quiz-taking session over the socket:
// start or resume on connect, then answer/finish/poll messages, with a ticker
// that closes the session once its time budget runs out.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	participant, quizID, err := participantFromQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	session, err := h.service.StartOrResume(ctx, participant, quizID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: toErrorPayload(err)})
		return
	}
	state, err := h.service.Poll(ctx, session.ID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: toErrorPayload(err)})
		return
	}
	log := h.log.With("quiz_id", quizID, "session_id", session.ID, "participant_id", participant.ID)

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	tickerDone := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("ws write error", "error", err)
				return
			}
		}
	}()

	push := func(msg outboundMessage[any]) bool {
		select {
		case send <- msg:
			return true
		case <-closeSignals:
			return false
		}
	}

	// The ticker owns auto-finish for an idle client; it stops after the result is sent.
	go func() {
		defer close(tickerDone)
		ticker := time.NewTicker(h.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				state, err := h.service.Poll(ctx, session.ID)
				if err != nil {
					log.Warn("session poll failed", "error", err)
					continue
				}
				if state.Result != nil {
					push(h.resultMessage(ctx, session.ID))
					return
				}
				if !push(outboundMessage[any]{Type: "tick", Payload: tickPayload{
					SessionID:            session.ID,
					TimeRemainingSeconds: int(state.TimeRemaining / time.Second),
				}}) {
					return
				}
			case <-finished:
				return
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "session", Payload: newSessionView(state)}

	finishOnce := func() {
		select {
		case <-finished:
		default:
			close(finished)
		}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMessage("bad_request", "invalid answer payload")
				continue
			}
			if err := h.service.Record(ctx, session.ID, payload.QuestionID, payload.AnswerIDs...); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: toErrorPayload(err)}
				if errors.Is(err, domain.ErrSessionClosed) {
					finishOnce()
					send <- h.resultMessage(ctx, session.ID)
				}
				continue
			}
			state, err := h.service.Poll(ctx, session.ID)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: toErrorPayload(err)}
				continue
			}
			send <- outboundMessage[any]{Type: "state", Payload: newSessionView(state)}
		case "finish":
			if _, err := h.service.Finish(ctx, session.ID); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: toErrorPayload(err)}
				continue
			}
			finishOnce()
			send <- h.resultMessage(ctx, session.ID)
		case "poll":
			state, err := h.service.Poll(ctx, session.ID)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: toErrorPayload(err)}
				continue
			}
			if state.Result != nil {
				finishOnce()
				send <- h.resultMessage(ctx, session.ID)
				continue
			}
			send <- outboundMessage[any]{Type: "state", Payload: newSessionView(state)}
		default:
			send <- errorMessage("bad_request", "unsupported message type")
		}
	}

	close(closeSignals)
	<-tickerDone
	close(send)
	<-writerDone
}

func (h *WSHandler) resultMessage(ctx context.Context, sessionID string) outboundMessage[any] {
	summary, err := h.service.Summary(ctx, sessionID)
	if err != nil {
		return outboundMessage[any]{Type: "error", Payload: toErrorPayload(err)}
	}
	return outboundMessage[any]{Type: "result", Payload: newResultView(summary)}
}

func participantFromQuery(r *http.Request) (domain.Participant, string, error) {
	q := r.URL.Query()
	quizID := q.Get("quizId")
	participantID := q.Get("participantId")
	if quizID == "" || participantID == "" {
		return domain.Participant{}, "", errors.New("missing quizId or participantId")
	}
	participant, err := participantFrom(q, participantID)
	if err != nil {
		return domain.Participant{}, "", err
	}
	return participant, quizID, nil
}

// participantFrom reads kind and role from q, defaulting to a student user.
func participantFrom(q url.Values, participantID string) (domain.Participant, error) {
	kind := domain.ParticipantKind(q.Get("kind"))
	switch kind {
	case "":
		kind = domain.ParticipantUser
	case domain.ParticipantUser, domain.ParticipantGroup:
	default:
		return domain.Participant{}, errors.New("kind must be user or group")
	}

	role := domain.Role(q.Get("role"))
	switch role {
	case "":
		role = domain.RoleStudent
	case domain.RoleAdmin, domain.RoleTeacher, domain.RoleStudent, domain.RoleGroupLeader:
	default:
		return domain.Participant{}, errors.New("unknown role")
	}

	return domain.Participant{ID: participantID, Kind: kind, Role: role}, nil
}

func errorMessage(code, message string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Code: code, Message: message}}
}

func toErrorPayload(err error) errorPayload {
	return errorPayload{Code: errorCode(err), Message: err.Error()}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotActive):
		return "not_active"
	case errors.Is(err, domain.ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, domain.ErrAttemptsExhausted):
		return "attempts_exhausted"
	case errors.Is(err, domain.ErrSessionClosed):
		return "session_closed"
	case errors.Is(err, domain.ErrQuestionMismatch):
		return "question_mismatch"
	case errors.Is(err, domain.ErrAnswerMismatch):
		return "answer_mismatch"
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrResultNotFound):
		return "not_found"
	default:
		return "internal"
	}
}
