package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"quiz-analytics/internal/domain"
)

type studentRow struct {
	bun.BaseModel `bun:"table:students"`

	ID                 string   `bun:"id,pk"`
	DisplayName        string   `bun:"display_name"`
	Section            string   `bun:"section"`
	Department         string   `bun:"department"`
	CachedAvgScore     *float64 `bun:"cached_avg_score"`
	CachedAccuracyRate *float64 `bun:"cached_accuracy_rate"`
}

type quizRow struct {
	bun.BaseModel `bun:"table:quizzes"`

	Code                     string `bun:"code,pk"`
	Subject                  string `bun:"subject"`
	CreatedBy                string `bun:"created_by"`
	TotalSubmissionsExpected int    `bun:"total_submissions_expected"`
}

type submissionRow struct {
	bun.BaseModel `bun:"table:submissions"`

	ID               string    `bun:"id,pk"`
	StudentID        string    `bun:"student_id"`
	QuizCode         string    `bun:"quiz_code"`
	Subject          string    `bun:"subject"`
	Difficulty       string    `bun:"difficulty"`
	Score            *float64  `bun:"score"`
	CorrectAnswers   int       `bun:"correct_answers"`
	TotalQuestions   int       `bun:"total_questions"`
	TimeSpentSeconds int       `bun:"time_spent_seconds"`
	SubmittedAt      time.Time `bun:"submitted_at"`
}

// Writer persists submissions and roster data through bun.
type Writer struct {
	db *bun.DB
}

func NewWriter(db *bun.DB) *Writer {
	return &Writer{db: db}
}

// SaveSubmission inserts a submission; re-sending the same id is a no-op.
func (w *Writer) SaveSubmission(ctx context.Context, sub domain.Submission) error {
	row := submissionRow{
		ID:               sub.ID,
		StudentID:        sub.StudentID,
		QuizCode:         sub.QuizCode,
		Subject:          sub.Subject,
		Difficulty:       sub.Difficulty,
		Score:            sub.Score,
		CorrectAnswers:   sub.CorrectAnswers,
		TotalQuestions:   sub.TotalQuestions,
		TimeSpentSeconds: sub.TimeSpentSeconds,
		SubmittedAt:      sub.SubmittedAt,
	}
	if _, err := w.db.NewInsert().Model(&row).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// SaveStudent upserts a roster entry.
func (w *Writer) SaveStudent(ctx context.Context, st domain.Student) error {
	row := studentRow{ID: st.ID, DisplayName: st.DisplayName, Section: st.Section, Department: st.Department}
	if st.Cached != nil {
		row.CachedAvgScore = &st.Cached.AvgScore
		row.CachedAccuracyRate = &st.Cached.AccuracyRate
	}
	_, err := w.db.NewInsert().Model(&row).
		On("CONFLICT (id) DO UPDATE").
		Set("display_name = EXCLUDED.display_name").
		Set("section = EXCLUDED.section").
		Set("department = EXCLUDED.department").
		Set("cached_avg_score = EXCLUDED.cached_avg_score").
		Set("cached_accuracy_rate = EXCLUDED.cached_accuracy_rate").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert student %s: %w", st.ID, err)
	}
	return nil
}

// SaveQuiz upserts quiz metadata.
func (w *Writer) SaveQuiz(ctx context.Context, q domain.Quiz) error {
	row := quizRow{Code: q.Code, Subject: q.Subject, CreatedBy: q.CreatedBy, TotalSubmissionsExpected: q.TotalSubmissionsExpected}
	_, err := w.db.NewInsert().Model(&row).
		On("CONFLICT (code) DO UPDATE").
		Set("subject = EXCLUDED.subject").
		Set("created_by = EXCLUDED.created_by").
		Set("total_submissions_expected = EXCLUDED.total_submissions_expected").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert quiz %s: %w", q.Code, err)
	}
	return nil
}
