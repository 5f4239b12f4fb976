package analytics

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"
	"quiz-analytics/internal/domain"
)

// Trend classifies a score sequence. Points are sorted by SubmittedAt before
// anything else; points sharing a timestamp keep their input order.
//
// The sequence is split into floor(n/2) older points and the remaining newer
// points. With ConventionLiteral the earlier half beating the later half by more
// than the threshold is "up"; ConventionChronological flips that.
func (e *Engine) Trend(points []domain.ScorePoint) domain.Trend {
	if len(points) < 2 {
		return domain.Trend{Direction: domain.TrendStable}
	}
	scores := chronologicalScores(points)

	half := len(scores) / 2
	firstAvg, _ := meanOf(scores[:half])
	secondAvg, _ := meanOf(scores[half:])

	first, last := scores[0], scores[len(scores)-1]
	return domain.Trend{
		Direction:              e.direction(firstAvg, secondAvg),
		Volatility:             populationStdDev(scores),
		ImprovementRatePercent: (last - first) / math.Max(first, 1) * 100,
	}
}

func (e *Engine) direction(firstAvg, secondAvg decimal.Decimal) domain.TrendDirection {
	threshold := decimal.NewFromFloat(e.opts.TrendThreshold)
	earlierAhead := firstAvg.GreaterThan(secondAvg.Add(threshold))
	laterAhead := secondAvg.GreaterThan(firstAvg.Add(threshold))
	chronological := e.opts.TrendConvention == ConventionChronological

	switch {
	case earlierAhead && chronological:
		return domain.TrendDown
	case earlierAhead:
		return domain.TrendUp
	case laterAhead && chronological:
		return domain.TrendUp
	case laterAhead:
		return domain.TrendDown
	}
	return domain.TrendStable
}

func chronologicalScores(points []domain.ScorePoint) []float64 {
	ordered := make([]domain.ScorePoint, len(points))
	copy(ordered, points)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SubmittedAt.Before(ordered[j].SubmittedAt)
	})
	scores := make([]float64, len(ordered))
	for i, p := range ordered {
		scores[i] = p.Score
	}
	return scores
}

// scorePoints keeps the scored submissions, ordered by (SubmittedAt, ID).
func scorePoints(subs []domain.Submission) []domain.ScorePoint {
	scored := make([]domain.Submission, 0, len(subs))
	for _, s := range subs {
		if s.Scored() {
			scored = append(scored, s)
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if !scored[i].SubmittedAt.Equal(scored[j].SubmittedAt) {
			return scored[i].SubmittedAt.Before(scored[j].SubmittedAt)
		}
		return scored[i].ID < scored[j].ID
	})
	points := make([]domain.ScorePoint, len(scored))
	for i, s := range scored {
		points[i] = domain.ScorePoint{Score: *s.Score, SubmittedAt: s.SubmittedAt}
	}
	return points
}

// recentPoints returns the newest window scored submissions, oldest first.
func recentPoints(subs []domain.Submission, window int) []domain.ScorePoint {
	points := scorePoints(subs)
	if len(points) > window {
		points = points[len(points)-window:]
	}
	return points
}

// improvingStreak counts consecutive non-decreasing steps ending at the newest score.
func improvingStreak(scores []float64) int {
	streak := 0
	for i := len(scores) - 1; i > 0 && scores[i-1] <= scores[i]; i-- {
		streak++
	}
	return streak
}
