package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"quiz-analytics/internal/domain"
)

// Store is a file-backed snapshot source and submission writer for local and
// offline use. It mirrors the Postgres schema.
type Store struct {
	db *sql.DB
}

func NewStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		path = "quiz-analytics.db"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	store := &Store{db: db}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS students (
			id TEXT PRIMARY KEY,
			display_name TEXT NOT NULL DEFAULT '',
			section TEXT NOT NULL DEFAULT '',
			department TEXT NOT NULL DEFAULT '',
			cached_avg_score REAL,
			cached_accuracy_rate REAL
		);`,
		`CREATE TABLE IF NOT EXISTS quizzes (
			code TEXT PRIMARY KEY,
			subject TEXT NOT NULL DEFAULT '',
			created_by TEXT NOT NULL DEFAULT '',
			total_submissions_expected INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS submissions (
			id TEXT PRIMARY KEY,
			student_id TEXT NOT NULL,
			quiz_code TEXT NOT NULL,
			subject TEXT NOT NULL DEFAULT '',
			difficulty TEXT NOT NULL DEFAULT '',
			-- NULL until the attempt is scored
			score REAL,
			correct_answers INTEGER NOT NULL DEFAULT 0,
			total_questions INTEGER NOT NULL DEFAULT 0,
			time_spent_seconds INTEGER NOT NULL DEFAULT 0,
			submitted_at_unix_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_student ON submissions(student_id);`,
		`CREATE INDEX IF NOT EXISTS idx_submissions_quiz ON submissions(quiz_code);`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveSubmission inserts a submission; re-sending the same id is a no-op.
func (s *Store) SaveSubmission(ctx context.Context, sub domain.Submission) error {
	var score sql.NullFloat64
	if sub.Score != nil {
		score = sql.NullFloat64{Float64: *sub.Score, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO submissions (id, student_id, quiz_code, subject, difficulty, score,
			correct_answers, total_questions, time_spent_seconds, submitted_at_unix_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		sub.ID, sub.StudentID, sub.QuizCode, sub.Subject, sub.Difficulty, score,
		sub.CorrectAnswers, sub.TotalQuestions, sub.TimeSpentSeconds, sub.SubmittedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// SaveStudent upserts a roster entry.
func (s *Store) SaveStudent(ctx context.Context, st domain.Student) error {
	var avg, acc sql.NullFloat64
	if st.Cached != nil {
		avg = sql.NullFloat64{Float64: st.Cached.AvgScore, Valid: true}
		acc = sql.NullFloat64{Float64: st.Cached.AccuracyRate, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO students (id, display_name, section, department, cached_avg_score, cached_accuracy_rate)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			display_name = excluded.display_name,
			section = excluded.section,
			department = excluded.department,
			cached_avg_score = excluded.cached_avg_score,
			cached_accuracy_rate = excluded.cached_accuracy_rate`,
		st.ID, st.DisplayName, st.Section, st.Department, avg, acc)
	if err != nil {
		return fmt.Errorf("upsert student %s: %w", st.ID, err)
	}
	return nil
}

// SaveQuiz upserts quiz metadata.
func (s *Store) SaveQuiz(ctx context.Context, q domain.Quiz) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quizzes (code, subject, created_by, total_submissions_expected)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			subject = excluded.subject,
			created_by = excluded.created_by,
			total_submissions_expected = excluded.total_submissions_expected`,
		q.Code, q.Subject, q.CreatedBy, q.TotalSubmissionsExpected)
	if err != nil {
		return fmt.Errorf("upsert quiz %s: %w", q.Code, err)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// LoadSnapshot reads all three tables inside one transaction.
func (s *Store) LoadSnapshot(ctx context.Context) (domain.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Snapshot{}, err
	}
	defer tx.Rollback()

	var snap domain.Snapshot
	if snap.Students, err = loadStudents(ctx, tx); err != nil {
		return domain.Snapshot{}, fmt.Errorf("load students: %w", err)
	}
	if snap.Quizzes, err = loadQuizzes(ctx, tx); err != nil {
		return domain.Snapshot{}, fmt.Errorf("load quizzes: %w", err)
	}
	if snap.Submissions, err = loadSubmissions(ctx, tx); err != nil {
		return domain.Snapshot{}, fmt.Errorf("load submissions: %w", err)
	}
	return snap, tx.Commit()
}

func (s *Store) LoadStudents(ctx context.Context) ([]domain.Student, error) {
	return loadStudents(ctx, s.db)
}

func (s *Store) LoadQuizzes(ctx context.Context) ([]domain.Quiz, error) {
	return loadQuizzes(ctx, s.db)
}

func (s *Store) LoadSubmissions(ctx context.Context) ([]domain.Submission, error) {
	return loadSubmissions(ctx, s.db)
}

func loadStudents(ctx context.Context, q queryer) ([]domain.Student, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, display_name, section, department, cached_avg_score, cached_accuracy_rate
		FROM students ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []domain.Student
	for rows.Next() {
		var (
			st       domain.Student
			avg, acc sql.NullFloat64
		)
		if err := rows.Scan(&st.ID, &st.DisplayName, &st.Section, &st.Department, &avg, &acc); err != nil {
			return nil, err
		}
		if avg.Valid && acc.Valid {
			st.Cached = &domain.CachedMetrics{AvgScore: avg.Float64, AccuracyRate: acc.Float64}
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

func loadQuizzes(ctx context.Context, q queryer) ([]domain.Quiz, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT code, subject, created_by, total_submissions_expected
		FROM quizzes ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var quizzes []domain.Quiz
	for rows.Next() {
		var quiz domain.Quiz
		if err := rows.Scan(&quiz.Code, &quiz.Subject, &quiz.CreatedBy, &quiz.TotalSubmissionsExpected); err != nil {
			return nil, err
		}
		quizzes = append(quizzes, quiz)
	}
	return quizzes, rows.Err()
}

func loadSubmissions(ctx context.Context, q queryer) ([]domain.Submission, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, student_id, quiz_code, subject, difficulty, score,
			correct_answers, total_questions, time_spent_seconds, submitted_at_unix_ms
		FROM submissions ORDER BY submitted_at_unix_ms, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []domain.Submission
	for rows.Next() {
		var (
			sub   domain.Submission
			score sql.NullFloat64
			atMS  int64
		)
		if err := rows.Scan(&sub.ID, &sub.StudentID, &sub.QuizCode, &sub.Subject, &sub.Difficulty, &score,
			&sub.CorrectAnswers, &sub.TotalQuestions, &sub.TimeSpentSeconds, &atMS); err != nil {
			return nil, err
		}
		if score.Valid {
			v := score.Float64
			sub.Score = &v
		}
		sub.SubmittedAt = time.UnixMilli(atMS).UTC()
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
