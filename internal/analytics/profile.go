package analytics

import (
	"sort"

	"quiz-analytics/internal/domain"
)

// Time categories for average time spent per quiz.
const (
	TimeFast     = "Fast"
	TimeModerate = "Moderate"
	TimeSlow     = "Slow"
	TimeVerySlow = "Very Slow"
	TimeUnknown  = "Unknown"
)

// StudentProfile builds the detail view of one student. roster is used only for
// the student's rank within their section, department and the institution.
func (e *Engine) StudentProfile(st domain.Student, roster []domain.Student, subs []domain.Submission) domain.StudentProfile {
	byStudent := indexByStudent(e.cleaned(subs))
	return e.studentProfile(st, roster, byStudent)
}

func (e *Engine) studentProfile(st domain.Student, roster []domain.Student, byStudent map[string][]domain.Submission) domain.StudentProfile {
	own := byStudent[st.ID]
	profile := domain.StudentProfile{
		Student:      st,
		Subjects:     categoryScores(own, domain.Submission.SubjectOrUnknown),
		Difficulties: categoryScores(own, domain.Submission.DifficultyOrUnknown),
		Ranks:        make(map[string]int, 3),
		TimeCategory: TimeUnknown,
		Band:         ScoreBand(0),
	}

	points := scorePoints(own)
	profile.Trend = e.Trend(points)

	scores := make([]float64, len(points))
	for i, p := range points {
		scores[i] = p.Score
	}
	profile.ImprovingStreak = improvingStreak(scores)

	avgTime, timed := averageTime(own)
	if timed {
		profile.AverageTimeSeconds = avgTime
		profile.TimeCategory = TimeCategory(avgTime)
	}

	if m, err := studentMetrics(st.ID, own); err == nil {
		profile.Metrics = &m
		profile.Band = ScoreBand(m.AverageScore)
		if m.BestScore > 0 {
			profile.ConsistencyPercent = (m.BestScore - m.WorstScore) / m.BestScore * 100
		}
		profile.PerformanceIndex = float64(m.AverageScore) * m.AverageAccuracy / 100
		if timed && avgTime > 0 {
			profile.Efficiency = m.AverageAccuracy / float64(avgTime) * 1000
		}
	} else if st.Cached != nil {
		cached := *st.Cached
		profile.CachedMetrics = &cached
	}

	for _, level := range []domain.GroupLevel{domain.LevelSection, domain.LevelDepartment, domain.LevelInstitution} {
		members, err := ScopeRoster(ScopeFor(level, st), roster)
		if err != nil {
			continue
		}
		if rank := RankOf(buildLeaderboard(members, byStudent), st.ID); rank > 0 {
			profile.Ranks[string(level)] = rank
		}
	}
	return profile
}

// categoryScores averages scored submissions per category, best first.
func categoryScores(subs []domain.Submission, category func(domain.Submission) string) []domain.CategoryScore {
	grouped := make(map[string][]float64)
	for _, s := range subs {
		if !s.Scored() {
			continue
		}
		name := category(s)
		grouped[name] = append(grouped[name], *s.Score)
	}

	out := make([]domain.CategoryScore, 0, len(grouped))
	for name, scores := range grouped {
		out = append(out, domain.CategoryScore{Name: name, AverageScore: roundedMean(scores), Count: len(scores)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AverageScore != out[j].AverageScore {
			return out[i].AverageScore > out[j].AverageScore
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// averageTime ignores submissions without a recorded duration.
func averageTime(subs []domain.Submission) (int, bool) {
	times := make([]float64, 0, len(subs))
	for _, s := range subs {
		if s.TimeSpentSeconds > 0 {
			times = append(times, float64(s.TimeSpentSeconds))
		}
	}
	if len(times) == 0 {
		return 0, false
	}
	return roundedMean(times), true
}

// TimeCategory labels an average time spent in seconds.
func TimeCategory(seconds int) string {
	switch {
	case seconds <= 0:
		return TimeUnknown
	case seconds <= 300:
		return TimeFast
	case seconds <= 600:
		return TimeModerate
	case seconds <= 900:
		return TimeSlow
	default:
		return TimeVerySlow
	}
}

// ScoreBand labels an average score.
func ScoreBand(avg int) string {
	switch {
	case avg >= 90:
		return "Excellent"
	case avg >= 80:
		return "Very Good"
	case avg >= 70:
		return "Good"
	case avg >= 60:
		return "Average"
	default:
		return "Needs Improvement"
	}
}

// halfChangePercent compares the means of the chronological halves of scores.
// A zero first half yields 0.
func halfChangePercent(scores []float64) int {
	half := len(scores) / 2
	firstAvg, ok := meanOf(scores[:half])
	if !ok || firstAvg.IsZero() {
		return 0
	}
	secondAvg, _ := meanOf(scores[half:])
	change := secondAvg.Sub(firstAvg).Div(firstAvg).Mul(hundred)
	return int(change.Round(0).IntPart())
}
