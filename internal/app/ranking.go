package app

import (
	"sort"

	"school-quiz-service/internal/domain"
)

// SortResults orders results by score desc, then earlier completion, then ID desc
// (the order Redis uses for equal sorted-set scores), so ties get distinct positions.
func SortResults(results []domain.Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].CompletedAt.Equal(results[j].CompletedAt) {
			return results[i].CompletedAt.Before(results[j].CompletedAt)
		}
		return results[i].ID > results[j].ID
	})
}

// RankOf returns the 1-based position of resultID among results.
func RankOf(results []domain.Result, resultID string) (int, bool) {
	sorted := make([]domain.Result, len(results))
	copy(sorted, results)
	SortResults(sorted)
	for i, r := range sorted {
		if r.ID == resultID {
			return i + 1, true
		}
	}
	return 0, false
}
