package domain

import "errors"

var (
	// ErrNotActive is returned when a quiz is outside its time window or finished.
	ErrNotActive = errors.New("quiz is not active")
	// ErrNotEligible is returned when a participant's level profile does not match the quiz.
	ErrNotEligible = errors.New("participant is not eligible for quiz")
	// ErrAttemptsExhausted is returned when the attempt cap has been reached.
	ErrAttemptsExhausted = errors.New("no attempts remaining")
	// ErrSessionClosed is returned when acting on a finished session.
	ErrSessionClosed = errors.New("quiz session is closed")
	// ErrAnswerMismatch indicates a submitted answer does not belong to the question.
	ErrAnswerMismatch = errors.New("answer does not belong to question")
	// ErrQuestionMismatch indicates a submitted question does not belong to the session's quiz.
	ErrQuestionMismatch = errors.New("question does not belong to quiz")
	// ErrResultNotFound is returned when a session has no result yet.
	ErrResultNotFound = errors.New("result not found")

	// ErrSessionNotFound is returned when a quiz session does not exist.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrInvalidQuiz wraps validation failures of quiz content.
	ErrInvalidQuiz = errors.New("invalid quiz")
	// ErrNoCorrectAnswer indicates a question without any answer marked correct.
	ErrNoCorrectAnswer = errors.New("question has no correct answer")
)
