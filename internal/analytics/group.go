package analytics

import (
	"fmt"
	"sort"

	"quiz-analytics/internal/domain"
)

// GroupAggregate rolls up one group. Members without scored submissions are left
// out of the score and accuracy means but still count toward participation. The
// second result is false for an empty group, which callers must not report.
func (e *Engine) GroupAggregate(level domain.GroupLevel, key string, members []domain.Student, subs []domain.Submission) (domain.GroupAggregate, bool) {
	if len(members) == 0 {
		return domain.GroupAggregate{}, false
	}
	return e.groupAggregate(level, key, members, indexByStudent(e.cleaned(subs))), true
}

// GroupAggregates partitions the roster at the given level and rolls up every
// non-empty group, best average first.
func (e *Engine) GroupAggregates(level domain.GroupLevel, roster []domain.Student, subs []domain.Submission) []domain.GroupAggregate {
	return e.groupAggregates(level, roster, indexByStudent(e.cleaned(subs)))
}

func (e *Engine) groupAggregates(level domain.GroupLevel, roster []domain.Student, byStudent map[string][]domain.Submission) []domain.GroupAggregate {
	groups := make(map[string][]domain.Student)
	for _, st := range roster {
		key := GroupKey(level, st)
		groups[key] = append(groups[key], st)
	}

	out := make([]domain.GroupAggregate, 0, len(groups))
	for key, members := range groups {
		out = append(out, e.groupAggregate(level, key, members, byStudent))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AverageScore != out[j].AverageScore {
			return out[i].AverageScore > out[j].AverageScore
		}
		return out[i].GroupKey < out[j].GroupKey
	})
	return out
}

func (e *Engine) groupAggregate(level domain.GroupLevel, key string, members []domain.Student, byStudent map[string][]domain.Submission) domain.GroupAggregate {
	agg := domain.GroupAggregate{Level: level, GroupKey: key, StudentCount: len(members)}

	var (
		averages   []float64
		accuracies []float64
		groupSubs  []domain.Submission
	)
	seen := make(map[string]struct{}, len(members))
	for _, st := range members {
		if _, dup := seen[st.ID]; dup {
			continue
		}
		seen[st.ID] = struct{}{}

		own := byStudent[st.ID]
		if len(own) > 0 {
			agg.ActiveStudents++
		}
		groupSubs = append(groupSubs, own...)

		m, err := studentMetrics(st.ID, own)
		if err != nil {
			continue
		}
		averages = append(averages, float64(m.AverageScore))
		accuracies = append(accuracies, m.AverageAccuracy)
	}

	agg.ScoredStudents = len(averages)
	agg.AverageScore = roundedMean(averages)
	agg.AverageAccuracy = roundedMean(accuracies)
	agg.ParticipationRate = percent(agg.ActiveStudents, agg.StudentCount)
	agg.SubmissionCount = len(groupSubs)
	agg.Trend = e.Trend(recentPoints(groupSubs, e.opts.TrendWindow))
	agg.Severity = Severity(agg.AverageScore)
	return agg
}

// GroupKey returns the key of the group st belongs to at level. An unknown
// level is a programming error.
func GroupKey(level domain.GroupLevel, st domain.Student) string {
	switch level {
	case domain.LevelSection:
		return st.SectionKey()
	case domain.LevelDepartment:
		return st.DepartmentKey()
	case domain.LevelInstitution:
		return domain.InstitutionKey
	}
	panic(fmt.Sprintf("analytics: unknown group level %q", level))
}

// Severity buckets a group average for presentation.
func Severity(avg int) string {
	switch {
	case avg >= 80:
		return domain.SeverityHigh
	case avg >= 70:
		return domain.SeverityMediumHigh
	case avg >= 60:
		return domain.SeverityMediumLow
	default:
		return domain.SeverityLow
	}
}
