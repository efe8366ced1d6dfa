package domain

import "time"

// DeriveStatus computes a quiz status from the stored status and the wall clock.
// A stored finished status is terminal; otherwise the window [start, end) decides.
func DeriveStatus(stored QuizStatus, now, start, end time.Time) QuizStatus {
	switch {
	case stored == StatusFinished:
		return StatusFinished
	case !now.Before(end):
		return StatusFinished
	case !now.Before(start):
		return StatusActive
	default:
		return StatusPublished
	}
}
