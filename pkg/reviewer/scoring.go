package reviewer

import "github.com/Joxtacy/auto-assign-reviewers/pkg/types"

// linesUnit is the number of changed lines that count as one unit of load.
const linesUnit = 100.0

// Score converts a workload snapshot into a comparable number. Lower is less busy.
func Score(s types.WorkloadSnapshot, w Weights) float64 {
	return float64(s.OpenPRCount)*w.OpenPR +
		(float64(s.TotalLines)/linesUnit)*w.LinesPer100 +
		float64(s.RecentReviewCount)*w.RecentReview
}
