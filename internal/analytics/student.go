package analytics

import (
	"quiz-analytics/internal/domain"
)

// StudentMetrics computes live figures for one student over the submissions that
// belong to them. It returns domain.ErrNoData when none of them is scored; the
// returned metrics then only carry QuizzesTaken and LatestSubmissionAt.
func (e *Engine) StudentMetrics(studentID string, subs []domain.Submission) (domain.StudentMetrics, error) {
	own := make([]domain.Submission, 0)
	for _, s := range e.cleaned(subs) {
		if s.StudentID == studentID {
			own = append(own, s)
		}
	}
	return studentMetrics(studentID, own)
}

// studentMetrics expects own to be filtered to studentID already.
func studentMetrics(studentID string, own []domain.Submission) (domain.StudentMetrics, error) {
	m := domain.StudentMetrics{StudentID: studentID, QuizzesTaken: len(own)}

	scores := make([]float64, 0, len(own))
	accuracies := make([]float64, 0, len(own))
	for _, s := range own {
		if s.StudentID != studentID {
			panic("analytics: submission " + s.ID + " does not belong to student " + studentID)
		}
		if m.LatestSubmissionAt == nil || s.SubmittedAt.After(*m.LatestSubmissionAt) {
			at := s.SubmittedAt
			m.LatestSubmissionAt = &at
		}
		if !s.Scored() {
			continue
		}
		scores = append(scores, *s.Score)
		accuracies = append(accuracies, s.Accuracy())
	}
	if len(scores) == 0 {
		return m, domain.ErrNoData
	}

	m.ScoredCount = len(scores)
	m.AverageScore = roundedMean(scores)
	m.AverageAccuracy = mean(accuracies)
	m.WorstScore, m.BestScore = minMax(scores)
	return m, nil
}
