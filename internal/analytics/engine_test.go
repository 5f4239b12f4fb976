package analytics_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"quiz-analytics/internal/analytics"
	"quiz-analytics/internal/domain"
)

func day(n int) time.Time {
	return time.Date(2024, time.March, n, 9, 0, 0, 0, time.UTC)
}

func score(v float64) *float64 {
	return &v
}

func sub(id, student, quiz string, s *float64, at time.Time) domain.Submission {
	return domain.Submission{
		ID:             id,
		StudentID:      student,
		QuizCode:       quiz,
		Score:          s,
		CorrectAnswers: 8,
		TotalQuestions: 10,
		SubmittedAt:    at,
	}
}

func scenarioRoster() []domain.Student {
	return []domain.Student{
		{ID: "A", DisplayName: "Alice", Department: "CS", Section: "A1"},
		{ID: "B", DisplayName: "Bob", Department: "CS", Section: "A1"},
	}
}

func scenarioSubs() []domain.Submission {
	return []domain.Submission{
		sub("s1", "A", "Q1", score(60), day(1)),
		sub("s2", "A", "Q2", score(80), day(2)),
		sub("s3", "B", "Q1", score(90), day(1)),
	}
}

func TestScenarioMetricsLeaderboardAndGroup(t *testing.T) {
	engine := analytics.NewEngine(analytics.DefaultOptions())
	roster, subs := scenarioRoster(), scenarioSubs()

	m, err := engine.StudentMetrics("A", subs)
	require.NoError(t, err)
	assert.Equal(t, 70, m.AverageScore)
	assert.Equal(t, 2, m.QuizzesTaken)
	assert.Equal(t, 60.0, m.WorstScore)
	assert.Equal(t, 80.0, m.BestScore)
	require.NotNil(t, m.LatestSubmissionAt)
	assert.True(t, m.LatestSubmissionAt.Equal(day(2)))

	lb := engine.BuildLeaderboard(roster, subs)
	require.Len(t, lb, 2)
	assert.Equal(t, "B", lb[0].StudentID)
	assert.Equal(t, 90, lb[0].AverageScore)
	assert.Equal(t, 1, lb[0].Rank)
	assert.Equal(t, "A", lb[1].StudentID)
	assert.Equal(t, 70, lb[1].AverageScore)
	assert.Equal(t, 2, lb[1].Rank)

	agg, ok := engine.GroupAggregate(domain.LevelInstitution, domain.InstitutionKey, roster, subs)
	require.True(t, ok)
	assert.Equal(t, 80, agg.AverageScore)
	assert.Equal(t, 100, agg.ParticipationRate)
	assert.Equal(t, 3, agg.SubmissionCount)
	assert.Equal(t, domain.SeverityHigh, agg.Severity)
}

func TestMeanRoundsHalfUp(t *testing.T) {
	engine := analytics.NewEngine(analytics.Options{})
	subs := []domain.Submission{
		sub("s1", "A", "Q1", score(70), day(1)),
		sub("s2", "A", "Q2", score(71), day(2)),
	}

	m, err := engine.StudentMetrics("A", subs)
	require.NoError(t, err)
	assert.Equal(t, 71, m.AverageScore)

	subs = append(subs, sub("s3", "A", "Q3", score(70.1), day(3)))
	m, err = engine.StudentMetrics("A", subs)
	require.NoError(t, err)
	assert.Equal(t, 70, m.AverageScore)
}

func TestNoDataIsNotZero(t *testing.T) {
	engine := analytics.NewEngine(analytics.DefaultOptions())
	subs := []domain.Submission{sub("s1", "A", "Q1", nil, day(1))}

	m, err := engine.StudentMetrics("A", subs)
	assert.ErrorIs(t, err, domain.ErrNoData)
	assert.Equal(t, 1, m.QuizzesTaken)
	assert.Equal(t, 0, m.ScoredCount)

	_, err = engine.StudentMetrics("missing", scenarioSubs())
	assert.ErrorIs(t, err, domain.ErrNoData)
}

func TestAccuracyIsIndependentOfScore(t *testing.T) {
	engine := analytics.NewEngine(analytics.DefaultOptions())
	graded := sub("s1", "A", "Q1", score(90), day(1))
	graded.CorrectAnswers, graded.TotalQuestions = 3, 10

	m, err := engine.StudentMetrics("A", []domain.Submission{graded})
	require.NoError(t, err)
	assert.Equal(t, 90, m.AverageScore)
	assert.InDelta(t, 30.0, m.AverageAccuracy, 1e-9)

	// zero questions counts as one so nothing divides by zero
	empty := sub("s2", "A", "Q2", score(90), day(2))
	empty.CorrectAnswers, empty.TotalQuestions = 0, 0
	lucky := sub("s3", "A", "Q3", score(90), day(3))
	lucky.CorrectAnswers, lucky.TotalQuestions = 1, 0
	assert.Equal(t, 0.0, empty.Accuracy())
	assert.Equal(t, 100.0, lucky.Accuracy())

	m, err = engine.StudentMetrics("A", []domain.Submission{graded, empty, lucky})
	require.NoError(t, err)
	assert.Equal(t, 90, m.AverageScore)
	assert.InDelta(t, 130.0/3, m.AverageAccuracy, 1e-9)
}

func TestLeaderboardKeepsEveryRosterStudent(t *testing.T) {
	engine := analytics.NewEngine(analytics.DefaultOptions())
	roster := append(scenarioRoster(),
		domain.Student{ID: "C", DisplayName: "Carol", Department: "CS", Section: "A1"},
		domain.Student{ID: "D", DisplayName: "Dan", Department: "Math", Section: "B1"},
	)
	subs := append(scenarioSubs(), sub("s4", "D", "Q1", nil, day(3)))

	lb := engine.BuildLeaderboard(roster, subs)
	require.Len(t, lb, len(roster))

	for i, entry := range lb {
		assert.Equal(t, i+1, entry.Rank)
	}
	assert.Equal(t, "C", lb[2].StudentID)
	assert.False(t, lb[2].HasData)
	assert.Equal(t, 0, lb[2].AverageScore)
	assert.Equal(t, "D", lb[3].StudentID)
	assert.Equal(t, 1, lb[3].SubmissionsCount)
}

func TestNoDataStudentTiesWithScoredZero(t *testing.T) {
	engine := analytics.NewEngine(analytics.DefaultOptions())
	roster := []domain.Student{
		{ID: "z", DisplayName: "Zed"},
		{ID: "a", DisplayName: "Amy"},
		{ID: "p", DisplayName: "Pat"},
	}
	subs := []domain.Submission{
		sub("s1", "z", "Q1", score(0), day(1)),
		sub("s2", "p", "Q1", score(40), day(1)),
	}

	lb := engine.BuildLeaderboard(roster, subs)
	require.Len(t, lb, 3)
	assert.Equal(t, "p", lb[0].StudentID)
	assert.Equal(t, "a", lb[1].StudentID)
	assert.False(t, lb[1].HasData)
	assert.Equal(t, "z", lb[2].StudentID)
	assert.True(t, lb[2].HasData)
}

func TestLeaderboardTieBreaks(t *testing.T) {
	engine := analytics.NewEngine(analytics.DefaultOptions())
	roster := []domain.Student{
		{ID: "z", DisplayName: "Zed"},
		{ID: "b2", DisplayName: "Bea"},
		{ID: "b1", DisplayName: "Bea"},
		{ID: "a", DisplayName: "Ann"},
	}
	subs := []domain.Submission{
		sub("1", "z", "Q1", score(75), day(1)),
		sub("2", "b2", "Q1", score(75), day(1)),
		sub("3", "b1", "Q1", score(75), day(1)),
		sub("4", "a", "Q1", score(75), day(1)),
	}

	lb := engine.BuildLeaderboard(roster, subs)
	ids := make([]string, 0, len(lb))
	ranks := make([]int, 0, len(lb))
	for _, entry := range lb {
		ids = append(ids, entry.StudentID)
		ranks = append(ranks, entry.Rank)
	}
	assert.Equal(t, []string{"a", "b1", "b2", "z"}, ids)
	assert.Equal(t, []int{1, 2, 3, 4}, ranks)
}

func TestLeaderboardScopes(t *testing.T) {
	engine := analytics.NewEngine(analytics.DefaultOptions())
	roster := append(scenarioRoster(), domain.Student{ID: "D", DisplayName: "Dan", Department: "Math", Section: "A1"})

	lb, err := engine.Leaderboard(domain.Scope{Level: domain.LevelSection, Department: "CS", Section: "A1"}, roster, scenarioSubs())
	require.NoError(t, err)
	assert.Len(t, lb, 2)

	lb, err = engine.Leaderboard(domain.Scope{Level: domain.LevelDepartment, Department: "Math"}, roster, scenarioSubs())
	require.NoError(t, err)
	require.Len(t, lb, 1)
	assert.Equal(t, "D", lb[0].StudentID)

	_, err = engine.Leaderboard(domain.Scope{Level: domain.LevelSection, Section: "A1"}, roster, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidScope)

	_, err = engine.Leaderboard(domain.Scope{Level: "campus"}, roster, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidScope)
}

func TestGroupExcludesStudentsWithoutData(t *testing.T) {
	engine := analytics.NewEngine(analytics.DefaultOptions())
	members := []domain.Student{
		{ID: "A", DisplayName: "Alice", Department: "CS", Section: "A1"},
		{ID: "C", DisplayName: "Carol", Department: "CS", Section: "A1"},
	}
	subs := []domain.Submission{sub("s1", "A", "Q1", score(80), day(1))}

	agg, ok := engine.GroupAggregate(domain.LevelSection, "CS-A1", members, subs)
	require.True(t, ok)
	assert.Equal(t, 80, agg.AverageScore)
	assert.Equal(t, 2, agg.StudentCount)
	assert.Equal(t, 1, agg.ScoredStudents)
	assert.Equal(t, 1, agg.ActiveStudents)
	assert.Equal(t, 50, agg.ParticipationRate)
}

func TestGroupAggregatesPartitionRoster(t *testing.T) {
	engine := analytics.NewEngine(analytics.DefaultOptions())
	roster := []domain.Student{
		{ID: "A", DisplayName: "Alice", Department: "CS", Section: "A1"},
		{ID: "B", DisplayName: "Bob", Department: "CS", Section: "A2"},
		{ID: "C", DisplayName: "Carol", Department: "Math", Section: "A1"},
		{ID: "D", DisplayName: "Dan"},
	}
	subs := []domain.Submission{
		sub("1", "A", "Q1", score(65), day(1)),
		sub("2", "B", "Q1", score(85), day(1)),
		sub("3", "C", "Q1", score(72), day(1)),
	}

	sections := engine.GroupAggregates(domain.LevelSection, roster, subs)
	keys := make([]string, 0, len(sections))
	for _, g := range sections {
		keys = append(keys, g.GroupKey)
	}
	assert.Equal(t, []string{"CS-A2", "Math-A1", "CS-A1", "Unknown-Unknown"}, keys)
	assert.Equal(t, domain.SeverityLow, sections[3].Severity)
	assert.Equal(t, 0, sections[3].ParticipationRate)

	departments := engine.GroupAggregates(domain.LevelDepartment, roster, subs)
	require.Len(t, departments, 3)
	assert.Equal(t, "CS", departments[0].GroupKey)
	assert.Equal(t, 75, departments[0].AverageScore)

	_, ok := engine.GroupAggregate(domain.LevelSection, "empty", nil, subs)
	assert.False(t, ok)

	assert.Panics(t, func() { engine.GroupAggregates("campus", roster, subs) })
}

func TestGroupTrendUsesMostRecentWindow(t *testing.T) {
	engine := analytics.NewEngine(analytics.DefaultOptions())
	members := scenarioRoster()

	// Two old high scores ahead of a 40s-then-60s run. Over all twelve the
	// halves land within the threshold; over the newest ten the later half
	// leads by 20.
	subs := []domain.Submission{
		sub("old1", "A", "Q0", score(100), day(1)),
		sub("old2", "B", "Q0", score(100), day(2)),
	}
	for i := 0; i < 10; i++ {
		v := 40.0
		if i >= 5 {
			v = 60
		}
		student := "A"
		if i%2 == 1 {
			student = "B"
		}
		subs = append(subs, sub(fmt.Sprintf("w%02d", i), student, "Q1", score(v), day(3+i)))
	}

	agg, ok := engine.GroupAggregate(domain.LevelSection, "CS-A1", members, subs)
	require.True(t, ok)
	assert.Equal(t, 12, agg.SubmissionCount)
	assert.Equal(t, domain.TrendDown, agg.Trend.Direction)
	assert.InDelta(t, 10.0, agg.Trend.Volatility, 1e-9)
	assert.InDelta(t, 50.0, agg.Trend.ImprovementRatePercent, 1e-9)

	points := make([]domain.ScorePoint, 0, len(subs))
	for _, s := range subs {
		points = append(points, domain.ScorePoint{Score: *s.Score, SubmittedAt: s.SubmittedAt})
	}
	assert.Equal(t, domain.TrendStable, engine.Trend(points).Direction)
}

func TestTrendLiteralConvention(t *testing.T) {
	engine := analytics.NewEngine(analytics.DefaultOptions())
	points := []domain.ScorePoint{
		{Score: 90, SubmittedAt: day(4)},
		{Score: 50, SubmittedAt: day(1)},
		{Score: 90, SubmittedAt: day(3)},
		{Score: 50, SubmittedAt: day(2)},
	}

	trend := engine.Trend(points)
	assert.Equal(t, domain.TrendDown, trend.Direction)
	assert.InDelta(t, 20.0, trend.Volatility, 1e-9)
	assert.InDelta(t, 80.0, trend.ImprovementRatePercent, 1e-9)
	assert.Equal(t, 90.0, points[0].Score, "input order must not change")
}

func TestTrendChronologicalConvention(t *testing.T) {
	engine := analytics.NewEngine(analytics.Options{TrendConvention: analytics.ConventionChronological})
	points := []domain.ScorePoint{
		{Score: 50, SubmittedAt: day(1)},
		{Score: 50, SubmittedAt: day(2)},
		{Score: 90, SubmittedAt: day(3)},
		{Score: 90, SubmittedAt: day(4)},
	}
	assert.Equal(t, domain.TrendUp, engine.Trend(points).Direction)

	points = []domain.ScorePoint{
		{Score: 80, SubmittedAt: day(1)},
		{Score: 82, SubmittedAt: day(2)},
		{Score: 84, SubmittedAt: day(3)},
	}
	assert.Equal(t, domain.TrendStable, engine.Trend(points).Direction)
}

func TestTrendShortSequences(t *testing.T) {
	engine := analytics.NewEngine(analytics.DefaultOptions())

	assert.Equal(t, domain.Trend{Direction: domain.TrendStable}, engine.Trend(nil))
	assert.Equal(t, domain.Trend{Direction: domain.TrendStable}, engine.Trend([]domain.ScorePoint{{Score: 40, SubmittedAt: day(1)}}))

	trend := engine.Trend([]domain.ScorePoint{{Score: 0, SubmittedAt: day(1)}, {Score: 30, SubmittedAt: day(2)}})
	assert.InDelta(t, 3000.0, trend.ImprovementRatePercent, 1e-9)
}

func TestQuizStatistics(t *testing.T) {
	engine := analytics.NewEngine(analytics.DefaultOptions())
	subs := append(scenarioSubs(),
		sub("s4", "A", "Q1", nil, day(3)),
		sub("s5", "C", "Q1", score(150), day(3)),
	)

	stats, err := engine.QuizStatistics("Q1", subs, 4)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.SubmissionCount)
	assert.Equal(t, 2, stats.ScoredCount)
	assert.Equal(t, 2, stats.DistinctSubmitters)
	assert.Equal(t, 75, stats.AverageScore)
	assert.Equal(t, 60.0, stats.LowestScore)
	assert.Equal(t, 90.0, stats.HighestScore)
	require.NotNil(t, stats.CompletionRate)
	assert.Equal(t, 50, *stats.CompletionRate)
}

func TestQuizStatisticsRequiresBaseline(t *testing.T) {
	engine := analytics.NewEngine(analytics.DefaultOptions())

	stats, err := engine.QuizStatistics("Q1", scenarioSubs(), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMissingBaseline)

	var cfgErr *domain.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, 0, cfgErr.Value)

	assert.Nil(t, stats.CompletionRate)
	assert.Equal(t, 2, stats.SubmissionCount)
	assert.Equal(t, 75, stats.AverageScore)
}

func TestBaselineModes(t *testing.T) {
	expected := analytics.NewEngine(analytics.DefaultOptions())
	roster := analytics.NewEngine(analytics.Options{CompletionBaseline: analytics.BaselineRoster})

	assert.Equal(t, 30, expected.Baseline(domain.Quiz{Code: "Q1", TotalSubmissionsExpected: 30}, 12))
	assert.Equal(t, 0, expected.Baseline(domain.Quiz{Code: "Q1"}, 12))
	assert.Equal(t, 12, roster.Baseline(domain.Quiz{Code: "Q1"}, 12))
}

func TestInvalidRecordsAreSkippedAndReported(t *testing.T) {
	var reported []domain.Diagnostics
	engine := analytics.NewEngine(analytics.Options{OnSkip: func(d domain.Diagnostics) { reported = append(reported, d) }})
	subs := append(scenarioSubs(),
		sub("bad1", "A", "Q1", score(120), day(3)),
		sub("bad2", "", "Q1", score(10), day(3)),
		sub("bad3", "A", "Q1", score(10), time.Time{}),
	)

	m, err := engine.StudentMetrics("A", subs)
	require.NoError(t, err)
	assert.Equal(t, 70, m.AverageScore)
	require.Len(t, reported, 1)
	assert.Equal(t, 3, reported[0].SkippedRecords)

	diag := engine.Validate(subs)
	assert.Equal(t, 6, diag.TotalRecords)
	assert.Equal(t, map[string]int{"score:lte": 1, "studentId:required": 1, "submittedAt:required": 1}, diag.SkipReasons)

	negative := sub("neg1", "A", "Q1", score(50), day(4))
	negative.TotalQuestions = -1
	miscounted := sub("neg2", "A", "Q1", score(50), day(4))
	miscounted.CorrectAnswers = -2
	diag = engine.Validate([]domain.Submission{subs[0], negative, miscounted})
	assert.Equal(t, 2, diag.SkippedRecords)
	assert.Equal(t, map[string]int{"totalQuestions:gte": 1, "correctAnswers:gte": 1}, diag.SkipReasons)

	m, err = engine.StudentMetrics("A", []domain.Submission{subs[0], negative, miscounted})
	require.NoError(t, err)
	assert.Equal(t, 1, m.ScoredCount)
	assert.Equal(t, 60, m.AverageScore)

	err = engine.ValidateSubmission(subs[3])
	assert.ErrorIs(t, err, domain.ErrInvalidSubmission)
	assert.NoError(t, engine.ValidateSubmission(subs[0]))
}

func TestEmptyInputs(t *testing.T) {
	engine := analytics.NewEngine(analytics.DefaultOptions())
	roster := scenarioRoster()

	_, err := engine.StudentMetrics("A", nil)
	assert.ErrorIs(t, err, domain.ErrNoData)

	groups := engine.GroupAggregates(domain.LevelInstitution, roster, nil)
	require.Len(t, groups, 1)
	assert.Equal(t, 0, groups[0].AverageScore)
	assert.Equal(t, 0, groups[0].ParticipationRate)

	lb := engine.BuildLeaderboard(roster, nil)
	require.Len(t, lb, 2)
	assert.Equal(t, "A", lb[0].StudentID)

	stats, err := engine.QuizStatistics("Q1", nil, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, *stats.CompletionRate)

	assert.Empty(t, engine.GroupAggregates(domain.LevelSection, nil, nil))
	assert.Empty(t, engine.SubjectTrends(nil, nil))

	report := engine.BuildReport(domain.Snapshot{})
	assert.Nil(t, report.Institution)
	assert.Empty(t, report.Leaderboard)
	assert.Equal(t, "Collecting data...", report.Insights.PerformanceTrend.Text)
}

func TestOperationsAreIdempotent(t *testing.T) {
	engine := analytics.NewEngine(analytics.DefaultOptions())
	snap := domain.Snapshot{
		Students:    scenarioRoster(),
		Quizzes:     []domain.Quiz{{Code: "Q1", Subject: "Math", TotalSubmissionsExpected: 2}, {Code: "Q2", Subject: "Physics"}},
		Submissions: scenarioSubs(),
		TakenAt:     day(10),
	}

	first := engine.BuildReport(snap)
	second := engine.BuildReport(snap)
	assert.Equal(t, first, second)

	assert.Equal(t, engine.GroupAggregates(domain.LevelSection, snap.Students, snap.Submissions),
		engine.GroupAggregates(domain.LevelSection, snap.Students, snap.Submissions))
}
