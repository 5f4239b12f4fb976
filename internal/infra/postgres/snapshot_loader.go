package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"quiz-analytics/internal/domain"
)

// SnapshotLoader reads roster, quiz metadata and submissions from Postgres.
type SnapshotLoader struct {
	pool *pgxpool.Pool
}

func NewSnapshotLoader(pool *pgxpool.Pool) *SnapshotLoader {
	return &SnapshotLoader{pool: pool}
}

type querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

// LoadSnapshot runs the three reads in one repeatable-read, read-only
// transaction so every submission's student and quiz rows come from the same
// point in time.
func (l *SnapshotLoader) LoadSnapshot(ctx context.Context) (domain.Snapshot, error) {
	tx, err := l.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var snap domain.Snapshot
	if snap.Students, err = loadStudents(ctx, tx); err != nil {
		return domain.Snapshot{}, err
	}
	if snap.Quizzes, err = loadQuizzes(ctx, tx); err != nil {
		return domain.Snapshot{}, err
	}
	if snap.Submissions, err = loadSubmissions(ctx, tx); err != nil {
		return domain.Snapshot{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Snapshot{}, fmt.Errorf("commit snapshot tx: %w", err)
	}
	return snap, nil
}

func loadStudents(ctx context.Context, q querier) ([]domain.Student, error) {
	rows, err := q.Query(ctx, `
		SELECT id, display_name, section, department, cached_avg_score, cached_accuracy_rate
		FROM students ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query students: %w", err)
	}
	defer rows.Close()

	var students []domain.Student
	for rows.Next() {
		var (
			st       domain.Student
			avg, acc *float64
		)
		if err := rows.Scan(&st.ID, &st.DisplayName, &st.Section, &st.Department, &avg, &acc); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		if avg != nil && acc != nil {
			st.Cached = &domain.CachedMetrics{AvgScore: *avg, AccuracyRate: *acc}
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

func loadQuizzes(ctx context.Context, q querier) ([]domain.Quiz, error) {
	rows, err := q.Query(ctx, `
		SELECT code, subject, created_by, total_submissions_expected
		FROM quizzes ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("query quizzes: %w", err)
	}
	defer rows.Close()

	var quizzes []domain.Quiz
	for rows.Next() {
		var quiz domain.Quiz
		if err := rows.Scan(&quiz.Code, &quiz.Subject, &quiz.CreatedBy, &quiz.TotalSubmissionsExpected); err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		quizzes = append(quizzes, quiz)
	}
	return quizzes, rows.Err()
}

func loadSubmissions(ctx context.Context, q querier) ([]domain.Submission, error) {
	rows, err := q.Query(ctx, `
		SELECT id, student_id, quiz_code, subject, difficulty, score,
		       correct_answers, total_questions, time_spent_seconds, submitted_at
		FROM submissions ORDER BY submitted_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query submissions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Submission
	for rows.Next() {
		var s domain.Submission
		if err := rows.Scan(&s.ID, &s.StudentID, &s.QuizCode, &s.Subject, &s.Difficulty, &s.Score,
			&s.CorrectAnswers, &s.TotalQuestions, &s.TimeSpentSeconds, &s.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		s.SubmittedAt = s.SubmittedAt.UTC()
		subs = append(subs, s)
	}
	return subs, rows.Err()
}
