package domain

import "time"

// UnknownCategory labels submissions whose subject or difficulty was not recorded.
const UnknownCategory = "Unknown"

// Submission is one attempt at a quiz by a student.
type Submission struct {
	ID               string    `json:"id"`
	StudentID        string    `json:"studentId" validate:"required"`
	QuizCode         string    `json:"quizCode" validate:"required"`
	Subject          string    `json:"subject,omitempty"`
	Difficulty       string    `json:"difficulty,omitempty"`
	Score            *float64  `json:"score" validate:"omitempty,gte=0,lte=100"` // nil until scored
	CorrectAnswers   int       `json:"correctAnswers" validate:"gte=0"`
	TotalQuestions   int       `json:"totalQuestions" validate:"gte=0"`
	TimeSpentSeconds int       `json:"timeSpentSeconds" validate:"gte=0"` // 0 means unknown
	SubmittedAt      time.Time `json:"submittedAt" validate:"required"`
}

// Scored reports whether the submission carries a score.
func (s Submission) Scored() bool {
	return s.Score != nil
}

// Accuracy is the raw correctness percentage, independent of Score.
func (s Submission) Accuracy() float64 {
	total := s.TotalQuestions
	if total < 1 {
		total = 1
	}
	return float64(s.CorrectAnswers) / float64(total) * 100
}

// SubjectOrUnknown returns the denormalized subject or UnknownCategory.
func (s Submission) SubjectOrUnknown() string {
	if s.Subject == "" {
		return UnknownCategory
	}
	return s.Subject
}

// DifficultyOrUnknown returns the denormalized difficulty or UnknownCategory.
func (s Submission) DifficultyOrUnknown() string {
	if s.Difficulty == "" {
		return UnknownCategory
	}
	return s.Difficulty
}

// Student is a roster entry.
type Student struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"displayName"`
	Section     string         `json:"section"`
	Department  string         `json:"department"`
	Cached      *CachedMetrics `json:"cached,omitempty"`
}

// SectionKey is the composite (department, section) group key.
func (s Student) SectionKey() string {
	return s.DepartmentKey() + "-" + s.SectionOrUnknown()
}

// DepartmentKey is the department group key.
func (s Student) DepartmentKey() string {
	if s.Department == "" {
		return UnknownCategory
	}
	return s.Department
}

// SectionOrUnknown returns the section name or UnknownCategory.
func (s Student) SectionOrUnknown() string {
	if s.Section == "" {
		return UnknownCategory
	}
	return s.Section
}

// CachedMetrics are stored figures used only when a student has no live submissions.
type CachedMetrics struct {
	AvgScore     float64 `json:"avgScore"`
	AccuracyRate float64 `json:"accuracyRate"`
}

// Quiz is externally owned quiz metadata.
type Quiz struct {
	Code                     string `json:"code"`
	Subject                  string `json:"subject"`
	CreatedBy                string `json:"createdBy"`
	TotalSubmissionsExpected int    `json:"totalSubmissionsExpected,omitempty"` // 0 when unknown
}

// Snapshot is a consistent read of the roster, quizzes and submissions.
type Snapshot struct {
	Students    []Student    `json:"students"`
	Quizzes     []Quiz       `json:"quizzes"`
	Submissions []Submission `json:"submissions"`
	TakenAt     time.Time    `json:"takenAt"`
}

// ScorePoint is one timestamped score fed to trend computation.
type ScorePoint struct {
	Score       float64
	SubmittedAt time.Time
}

// StudentMetrics are the live per-student figures.
type StudentMetrics struct {
	StudentID          string     `json:"studentId"`
	AverageScore       int        `json:"averageScore"`
	AverageAccuracy    float64    `json:"averageAccuracy"`
	BestScore          float64    `json:"bestScore"`
	WorstScore         float64    `json:"worstScore"`
	QuizzesTaken       int        `json:"quizzesTaken"`
	ScoredCount        int        `json:"scoredCount"`
	LatestSubmissionAt *time.Time `json:"latestSubmissionAt"`
}

// TrendDirection classifies a score sequence.
type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

// Trend summarizes a chronological score sequence.
type Trend struct {
	Direction              TrendDirection `json:"direction"`
	Volatility             float64        `json:"volatility"`
	ImprovementRatePercent float64        `json:"improvementRatePercent"`
}

// GroupLevel is a roster partition.
type GroupLevel string

const (
	LevelSection     GroupLevel = "section"
	LevelDepartment  GroupLevel = "department"
	LevelInstitution GroupLevel = "institution"
)

// InstitutionKey is the key of the single top-level group.
const InstitutionKey = "institution"

// Severity buckets for group averages.
const (
	SeverityHigh       = "high"
	SeverityMediumHigh = "medium-high"
	SeverityMediumLow  = "medium-low"
	SeverityLow        = "low"
)

// GroupAggregate is the rollup of one section, department or the institution.
type GroupAggregate struct {
	Level             GroupLevel `json:"level"`
	GroupKey          string     `json:"groupKey"`
	AverageScore      int        `json:"averageScore"`
	AverageAccuracy   int        `json:"averageAccuracy"`
	StudentCount      int        `json:"studentCount"`
	ScoredStudents    int        `json:"scoredStudents"`
	ActiveStudents    int        `json:"activeStudents"`
	ParticipationRate int        `json:"participationRate"`
	SubmissionCount   int        `json:"submissionCount"`
	Trend             Trend      `json:"trend"`
	Severity          string     `json:"severity"`
}

// Scope selects the roster slice a leaderboard is built from.
type Scope struct {
	Level      GroupLevel `json:"level"`
	Department string     `json:"department,omitempty"`
	Section    string     `json:"section,omitempty"`
}

// LeaderboardEntry is one ranked student within a scope.
type LeaderboardEntry struct {
	StudentID        string `json:"studentId"`
	DisplayName      string `json:"displayName"`
	AverageScore     int    `json:"averageScore"`
	SubmissionsCount int    `json:"submissionsCount"`
	HasData          bool   `json:"hasData"`
	Rank             int    `json:"rank"`
}

// QuizStats are per-quiz figures.
type QuizStats struct {
	QuizCode           string  `json:"quizCode"`
	SubmissionCount    int     `json:"submissionCount"`
	ScoredCount        int     `json:"scoredCount"`
	DistinctSubmitters int     `json:"distinctSubmitters"`
	AverageScore       int     `json:"averageScore"`
	HighestScore       float64 `json:"highestScore"`
	LowestScore        float64 `json:"lowestScore"`
	CompletionRate     *int    `json:"completionRate"` // nil when no baseline was supplied
}

// CategoryScore is the average score of one subject or difficulty.
type CategoryScore struct {
	Name         string `json:"name"`
	AverageScore int    `json:"averageScore"`
	Count        int    `json:"count"`
}

// SubjectTrend compares the chronological halves of a subject's results.
type SubjectTrend struct {
	Subject       string `json:"subject"`
	AverageScore  int    `json:"averageScore"`
	ChangePercent int    `json:"changePercent"`
	Results       int    `json:"results"`
}

// StudentProfile is the detail view of one student.
type StudentProfile struct {
	Student            Student         `json:"student"`
	Metrics            *StudentMetrics `json:"metrics"` // nil when the student has no scored submissions
	// CachedMetrics is the stored fallback, set only when Metrics is nil.
	CachedMetrics      *CachedMetrics  `json:"cachedMetrics,omitempty"`
	Trend              Trend           `json:"trend"`
	Subjects           []CategoryScore `json:"subjects"`
	Difficulties       []CategoryScore `json:"difficulties"`
	AverageTimeSeconds int             `json:"averageTimeSeconds"`
	TimeCategory       string          `json:"timeCategory"`
	ConsistencyPercent float64         `json:"consistencyPercent"`
	PerformanceIndex   float64         `json:"performanceIndex"`
	Efficiency         float64         `json:"efficiency"`
	ImprovingStreak    int             `json:"improvingStreak"`
	Band               string          `json:"band"`
	Ranks              map[string]int  `json:"ranks"`
}

// Activity is one recent submission in the overview feed.
type Activity struct {
	SubmissionID string    `json:"submissionId"`
	StudentID    string    `json:"studentId"`
	StudentName  string    `json:"studentName"`
	QuizCode     string    `json:"quizCode"`
	Score        *float64  `json:"score"`
	SubmittedAt  time.Time `json:"submittedAt"`
}

// Overview is the headline dashboard block.
type Overview struct {
	TotalQuizzes       int        `json:"totalQuizzes"`
	TotalSubmissions   int        `json:"totalSubmissions"`
	ScoredSubmissions  int        `json:"scoredSubmissions"`
	AverageScore       int        `json:"averageScore"`
	ActiveStudents     int        `json:"activeStudents"`
	RosterSize         int        `json:"rosterSize"`
	QuizCoverageRate   int        `json:"quizCoverageRate"`
	AverageTimeSeconds int        `json:"averageTimeSeconds"`
	RecentActivity     []Activity `json:"recentActivity"`
}

// Insight is a short headline with a supporting line.
type Insight struct {
	Text     string `json:"text"`
	Subtitle string `json:"subtitle"`
}

// Insights are the dashboard teaching-assistant hints.
type Insights struct {
	PerformanceTrend Insight `json:"performanceTrend"`
	EngagementAlert  Insight `json:"engagementAlert"`
	Recommendation   Insight `json:"recommendation"`
}

// Diagnostics report records the engine skipped and baselines it could not resolve.
type Diagnostics struct {
	TotalRecords        int            `json:"totalRecords"`
	SkippedRecords      int            `json:"skippedRecords"`
	SkipReasons         map[string]int `json:"skipReasons,omitempty"`
	ConfigurationIssues []string       `json:"configurationIssues,omitempty"`
}

// Report is the consolidated dashboard view of one snapshot.
type Report struct {
	GeneratedAt   time.Time          `json:"generatedAt"`
	Overview      Overview           `json:"overview"`
	Insights      Insights           `json:"insights"`
	Sections      []GroupAggregate   `json:"sections"`
	Departments   []GroupAggregate   `json:"departments"`
	Institution   *GroupAggregate    `json:"institution"`
	Leaderboard   []LeaderboardEntry `json:"leaderboard"`
	Quizzes       []QuizStats        `json:"quizzes"`
	SubjectTrends []SubjectTrend     `json:"subjectTrends"`
	Diagnostics   Diagnostics        `json:"diagnostics"`
}

// ChangeKind names what changed in the backing store.
type ChangeKind string

const (
	ChangeSubmission ChangeKind = "submission"
	ChangeRoster     ChangeKind = "roster"
	ChangeQuiz       ChangeKind = "quiz"
	ChangeRefresh    ChangeKind = "refresh"
)

// ChangeEvent is a notification from the persistence collaborator.
type ChangeEvent struct {
	Kind       ChangeKind `json:"kind"`
	ID         string     `json:"id,omitempty"`
	OccurredAt time.Time  `json:"occurredAt"`
}
