package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"school-quiz-service/internal/app"
	"school-quiz-service/internal/domain"
	"school-quiz-service/internal/logger"
)

// ReportHandler serves the read-only quiz endpoints:
//
//	GET /quizzes?participantId=&kind=&role=&search=&subject=
//	GET /quizzes/{quizId}?participantId=&kind=&role=
//	GET /quizzes/{quizId}/timing
//	GET /quizzes/{quizId}/stats
//	GET /participants/{participantId}/history?kind=
//	GET /sessions/{sessionId}/result
type ReportHandler struct {
	service *app.QuizService
	log     *logger.Logger
}

func NewReportHandler(service *app.QuizService, log *logger.Logger) *ReportHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &ReportHandler{service: service, log: log}
}

// Register mounts the endpoints on mux.
func (h *ReportHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /quizzes", h.catalog)
	mux.HandleFunc("GET /quizzes/{quizId}", h.detail)
	mux.HandleFunc("GET /quizzes/{quizId}/timing", h.timing)
	mux.HandleFunc("GET /quizzes/{quizId}/stats", h.stats)
	mux.HandleFunc("GET /participants/{participantId}/history", h.history)
	mux.HandleFunc("GET /sessions/{sessionId}/result", h.result)
}

func (h *ReportHandler) catalog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	participantID := q.Get("participantId")
	if participantID == "" {
		h.badRequest(w, errors.New("missing participantId"))
		return
	}
	participant, err := participantFrom(q, participantID)
	if err != nil {
		h.badRequest(w, err)
		return
	}
	quizzes, err := h.service.ListQuizzes(r.Context(), participant, app.QuizFilter{
		Search:  q.Get("search"),
		Subject: q.Get("subject"),
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	views := make([]quizView, 0, len(quizzes))
	for _, entry := range quizzes {
		views = append(views, newQuizView(entry.Quiz, entry.Status))
	}
	h.write(w, views)
}

func (h *ReportHandler) detail(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	participantID := q.Get("participantId")
	if participantID == "" {
		h.badRequest(w, errors.New("missing participantId"))
		return
	}
	participant, err := participantFrom(q, participantID)
	if err != nil {
		h.badRequest(w, err)
		return
	}
	detail, err := h.service.Detail(r.Context(), participant, r.PathValue("quizId"))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.write(w, newDetailView(detail))
}

func (h *ReportHandler) timing(w http.ResponseWriter, r *http.Request) {
	timing, err := h.service.Timing(r.Context(), r.PathValue("quizId"))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.write(w, newTimingView(timing))
}

func (h *ReportHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context(), r.PathValue("quizId"))
	if err != nil {
		h.fail(w, err)
		return
	}
	top := stats.Top
	if top == nil {
		top = []domain.Result{}
	}
	h.write(w, statsView{
		Participants:      stats.Participants,
		AverageScore:      stats.AverageScore,
		MaxScore:          stats.MaxScore,
		MinScore:          stats.MinScore,
		AveragePercentage: stats.AveragePercentage,
		Passed:            stats.Passed,
		Failed:            stats.Failed,
		Top:               top,
	})
}

func (h *ReportHandler) history(w http.ResponseWriter, r *http.Request) {
	participant, err := participantFrom(r.URL.Query(), r.PathValue("participantId"))
	if err != nil {
		h.badRequest(w, err)
		return
	}
	history, err := h.service.History(r.Context(), participant)
	if err != nil {
		h.fail(w, err)
		return
	}
	h.write(w, newHistoryView(history))
}

func (h *ReportHandler) result(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context(), r.PathValue("sessionId"))
	if err != nil {
		h.fail(w, err)
		return
	}
	h.write(w, newResultView(summary))
}

func (h *ReportHandler) write(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn("write response failed", "error", err)
	}
}

func (h *ReportHandler) badRequest(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(errorPayload{Code: "bad_request", Message: err.Error()})
}

func (h *ReportHandler) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrResultNotFound):
		status = http.StatusNotFound
	default:
		h.log.Error("report request failed", "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(toErrorPayload(err))
}
