package analytics

import (
	"quiz-analytics/internal/domain"
)

// QuizStatistics summarizes one quiz. baseline is the number of expected
// submitters; when it is not positive the counts and scores are still filled in,
// CompletionRate stays nil and a *domain.ConfigurationError is returned.
func (e *Engine) QuizStatistics(code string, subs []domain.Submission, baseline int) (domain.QuizStats, error) {
	return quizStatistics(code, e.cleaned(subs), baseline)
}

func quizStatistics(code string, subs []domain.Submission, baseline int) (domain.QuizStats, error) {
	stats := domain.QuizStats{QuizCode: code}
	submitters := make(map[string]struct{})
	scores := make([]float64, 0)
	for _, s := range subs {
		if s.QuizCode != code {
			continue
		}
		stats.SubmissionCount++
		submitters[s.StudentID] = struct{}{}
		if s.Scored() {
			scores = append(scores, *s.Score)
		}
	}
	stats.DistinctSubmitters = len(submitters)
	stats.ScoredCount = len(scores)
	if len(scores) > 0 {
		stats.AverageScore = roundedMean(scores)
		stats.LowestScore, stats.HighestScore = minMax(scores)
	}

	if baseline <= 0 {
		return stats, &domain.ConfigurationError{Field: "completion baseline for quiz " + code, Value: baseline}
	}
	rate := percent(stats.DistinctSubmitters, baseline)
	stats.CompletionRate = &rate
	return stats, nil
}

// Baseline resolves the completion baseline for a quiz under the configured mode.
// It returns 0 when no baseline is known.
func (e *Engine) Baseline(q domain.Quiz, rosterSize int) int {
	if q.TotalSubmissionsExpected > 0 {
		return q.TotalSubmissionsExpected
	}
	if e.opts.CompletionBaseline == BaselineRoster {
		return rosterSize
	}
	return 0
}
