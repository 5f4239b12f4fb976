package analytics

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"quiz-analytics/internal/domain"
)

const (
	insightWindow       = 30 * 24 * time.Hour
	lowPerformerCutoff  = 60
	engagementThreshold = 70
	minQuizCatalog      = 5
	minTrendResults     = 4
)

// BuildReport computes every dashboard view of one snapshot. Invalid records are
// dropped once, up front, and reported in the Diagnostics block.
func (e *Engine) BuildReport(snap domain.Snapshot) domain.Report {
	valid, diag := e.clean(snap.Submissions)
	byStudent := indexByStudent(valid)

	report := domain.Report{
		GeneratedAt:   snap.TakenAt,
		Overview:      e.overview(snap.Students, snap.Quizzes, valid),
		Insights:      insights(snap.Quizzes, valid, snap.TakenAt),
		Sections:      e.groupAggregates(domain.LevelSection, snap.Students, byStudent),
		Departments:   e.groupAggregates(domain.LevelDepartment, snap.Students, byStudent),
		Leaderboard:   buildLeaderboard(snap.Students, byStudent),
		SubjectTrends: subjectTrends(snap.Quizzes, valid),
	}
	if inst := e.groupAggregates(domain.LevelInstitution, snap.Students, byStudent); len(inst) == 1 {
		report.Institution = &inst[0]
	}

	report.Quizzes, diag.ConfigurationIssues = e.quizTable(snap.Quizzes, len(snap.Students), valid)
	report.Diagnostics = diag
	return report
}

// quizTable computes stats for every known quiz plus any code seen only in submissions.
func (e *Engine) quizTable(quizzes []domain.Quiz, rosterSize int, valid []domain.Submission) ([]domain.QuizStats, []string) {
	byQuiz := make(map[string][]domain.Submission)
	for _, s := range valid {
		byQuiz[s.QuizCode] = append(byQuiz[s.QuizCode], s)
	}
	known := make(map[string]domain.Quiz, len(quizzes))
	for _, q := range quizzes {
		known[q.Code] = q
	}
	for code := range byQuiz {
		if _, ok := known[code]; !ok {
			known[code] = domain.Quiz{Code: code}
		}
	}

	codes := make([]string, 0, len(known))
	for code := range known {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var issues []string
	stats := make([]domain.QuizStats, 0, len(codes))
	for _, code := range codes {
		st, err := quizStatistics(code, byQuiz[code], e.Baseline(known[code], rosterSize))
		var cfgErr *domain.ConfigurationError
		if errors.As(err, &cfgErr) {
			issues = append(issues, cfgErr.Error())
		}
		stats = append(stats, st)
	}
	return stats, issues
}

// Overview computes the headline block of the dashboard.
func (e *Engine) Overview(snap domain.Snapshot) domain.Overview {
	return e.overview(snap.Students, snap.Quizzes, e.cleaned(snap.Submissions))
}

func (e *Engine) overview(roster []domain.Student, quizzes []domain.Quiz, valid []domain.Submission) domain.Overview {
	ov := domain.Overview{
		TotalQuizzes:     len(quizzes),
		TotalSubmissions: len(valid),
		RosterSize:       len(roster),
	}

	scores := make([]float64, 0, len(valid))
	active := make(map[string]struct{})
	attempted := make(map[string]struct{})
	for _, s := range valid {
		active[s.StudentID] = struct{}{}
		attempted[s.QuizCode] = struct{}{}
		if s.Scored() {
			scores = append(scores, *s.Score)
		}
	}
	ov.ScoredSubmissions = len(scores)
	ov.AverageScore = roundedMean(scores)
	ov.ActiveStudents = len(active)
	ov.AverageTimeSeconds, _ = averageTime(valid)

	covered := 0
	for _, q := range quizzes {
		if _, ok := attempted[q.Code]; ok {
			covered++
		}
	}
	ov.QuizCoverageRate = percent(covered, len(quizzes))
	ov.RecentActivity = recentActivity(roster, valid, e.opts.RecentActivityLimit)
	return ov
}

func recentActivity(roster []domain.Student, valid []domain.Submission, limit int) []domain.Activity {
	names := make(map[string]string, len(roster))
	for _, st := range roster {
		names[st.ID] = st.DisplayName
	}

	ordered := make([]domain.Submission, len(valid))
	copy(ordered, valid)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].SubmittedAt.Equal(ordered[j].SubmittedAt) {
			return ordered[i].SubmittedAt.After(ordered[j].SubmittedAt)
		}
		return ordered[i].ID > ordered[j].ID
	})
	if len(ordered) > limit {
		ordered = ordered[:limit]
	}

	out := make([]domain.Activity, 0, len(ordered))
	for _, s := range ordered {
		out = append(out, domain.Activity{
			SubmissionID: s.ID,
			StudentID:    s.StudentID,
			StudentName:  activityName(names[s.StudentID], s.StudentID),
			QuizCode:     s.QuizCode,
			Score:        s.Score,
			SubmittedAt:  s.SubmittedAt,
		})
	}
	return out
}

func activityName(name, studentID string) string {
	if name != "" {
		return name
	}
	if len(studentID) > 8 {
		studentID = studentID[:8]
	}
	return "Student " + studentID
}

// Insights derives the dashboard hints from the 30 days before asOf.
func (e *Engine) Insights(snap domain.Snapshot, asOf time.Time) domain.Insights {
	return insights(snap.Quizzes, e.cleaned(snap.Submissions), asOf)
}

func insights(quizzes []domain.Quiz, valid []domain.Submission, asOf time.Time) domain.Insights {
	if len(valid) == 0 || len(quizzes) == 0 {
		return domain.Insights{
			PerformanceTrend: domain.Insight{Text: "Collecting data...", Subtitle: "Please wait for analysis"},
			EngagementAlert:  domain.Insight{Text: "Initializing insights...", Subtitle: "Loading student data"},
			Recommendation:   domain.Insight{Text: "Preparing recommendations...", Subtitle: "Based on current data"},
		}
	}

	since := asOf.Add(-insightWindow)
	var recent []domain.Submission
	everyone := make(map[string]struct{})
	for _, s := range valid {
		everyone[s.StudentID] = struct{}{}
		if !s.SubmittedAt.Before(since) {
			recent = append(recent, s)
		}
	}

	return domain.Insights{
		PerformanceTrend: performanceInsight(recent),
		EngagementAlert:  engagementInsight(recent, len(everyone)),
		Recommendation:   recommendationInsight(quizzes, recent),
	}
}

func performanceInsight(recent []domain.Submission) domain.Insight {
	scores := make([]float64, 0, len(recent))
	for _, s := range recent {
		if s.Scored() {
			scores = append(scores, *s.Score)
		}
	}
	avg, _ := meanOf(scores)
	shown := avg.StringFixed(1)

	switch {
	case avg.GreaterThanOrEqual(decimal.NewFromInt(80)):
		return domain.Insight{Text: fmt.Sprintf("Excellent performance with %s%% average", shown), Subtitle: "Students are excelling across subjects"}
	case avg.GreaterThanOrEqual(decimal.NewFromInt(65)):
		return domain.Insight{Text: fmt.Sprintf("Good progress with %s%% average", shown), Subtitle: "Steady improvement in quiz scores"}
	case avg.GreaterThanOrEqual(decimal.NewFromInt(50)):
		return domain.Insight{Text: fmt.Sprintf("Average performance at %s%%", shown), Subtitle: "Room for improvement identified"}
	default:
		return domain.Insight{Text: fmt.Sprintf("Performance needs attention (%s%%)", shown), Subtitle: "Consider additional support strategies"}
	}
}

// engagementInsight flags recent low performers first, then inactive students.
func engagementInsight(recent []domain.Submission, everyone int) domain.Insight {
	byStudent := indexByStudent(recent)
	low := 0
	for id, own := range byStudent {
		m, err := studentMetrics(id, own)
		if err == nil && m.AverageScore < lowPerformerCutoff {
			low++
		}
	}
	active := len(byStudent)
	participation := percent(active, everyone)

	switch {
	case low*10 > active*3:
		return domain.Insight{Text: fmt.Sprintf("%d students need support", low), Subtitle: "in foundational concepts"}
	case participation < engagementThreshold:
		return domain.Insight{Text: fmt.Sprintf("%d%% students less active", 100-participation), Subtitle: "Consider engagement strategies"}
	default:
		return domain.Insight{Text: fmt.Sprintf("High engagement: %d%% active", participation), Subtitle: "Students are well-engaged"}
	}
}

func recommendationInsight(quizzes []domain.Quiz, recent []domain.Submission) domain.Insight {
	subjectOf := quizSubjects(quizzes)
	perSubject := make(map[string][]float64)
	for _, q := range quizzes {
		perSubject[subjectOf[q.Code]] = nil
	}
	for _, s := range recent {
		subject, ok := subjectOf[s.QuizCode]
		if !ok || !s.Scored() {
			continue
		}
		perSubject[subject] = append(perSubject[subject], *s.Score)
	}
	if len(perSubject) == 0 {
		return domain.Insight{Text: "Start with diagnostic quizzes", Subtitle: "to assess baseline knowledge"}
	}

	weakest := ""
	var weakestAvg float64
	first := true
	for subject, scores := range perSubject {
		avg := mean(scores)
		if first || avg < weakestAvg || (avg == weakestAvg && subject < weakest) {
			weakest, weakestAvg, first = subject, avg, false
		}
	}

	switch {
	case weakestAvg < lowPerformerCutoff:
		return domain.Insight{Text: fmt.Sprintf("Focus on %s concepts", weakest), Subtitle: fmt.Sprintf("Average score: %.1f%%", weakestAvg)}
	case len(quizzes) < minQuizCatalog:
		return domain.Insight{Text: "Create more practice quizzes", Subtitle: "to build comprehensive assessment"}
	default:
		return domain.Insight{Text: "Consider advanced problem sets", Subtitle: "for high-performing students"}
	}
}

// SubjectTrends averages each subject's scored results and compares the
// chronological halves once a subject has at least four of them.
func (e *Engine) SubjectTrends(quizzes []domain.Quiz, subs []domain.Submission) []domain.SubjectTrend {
	return subjectTrends(quizzes, e.cleaned(subs))
}

func subjectTrends(quizzes []domain.Quiz, valid []domain.Submission) []domain.SubjectTrend {
	subjectOf := quizSubjects(quizzes)
	bySubject := make(map[string][]domain.Submission)
	for _, s := range valid {
		subject, ok := subjectOf[s.QuizCode]
		if !ok {
			subject = s.SubjectOrUnknown()
		}
		bySubject[subject] = append(bySubject[subject], s)
	}

	out := make([]domain.SubjectTrend, 0, len(bySubject))
	for subject, subs := range bySubject {
		points := scorePoints(subs)
		if len(points) == 0 {
			continue
		}
		scores := make([]float64, len(points))
		for i, p := range points {
			scores[i] = p.Score
		}
		trend := domain.SubjectTrend{Subject: subject, AverageScore: roundedMean(scores), Results: len(scores)}
		if len(scores) >= minTrendResults {
			trend.ChangePercent = halfChangePercent(scores)
		}
		out = append(out, trend)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subject < out[j].Subject })
	return out
}

func quizSubjects(quizzes []domain.Quiz) map[string]string {
	subjects := make(map[string]string, len(quizzes))
	for _, q := range quizzes {
		subject := q.Subject
		if subject == "" {
			subject = domain.UnknownCategory
		}
		subjects[q.Code] = subject
	}
	return subjects
}
