package memory

import (
	"fmt"
	"time"

	"quiz-analytics/internal/domain"
)

// NewSampleStore returns a store seeded with a small demo roster: two
// departments, three sections, one student without submissions and one
// unscored attempt. Submissions are spread over the three weeks before now.
func NewSampleStore(now time.Time) *Store {
	store := NewStore()

	students := []domain.Student{
		{ID: "stu-001", DisplayName: "Alice Tan", Department: "Computer Science", Section: "A"},
		{ID: "stu-002", DisplayName: "Bima Putra", Department: "Computer Science", Section: "A"},
		{ID: "stu-003", DisplayName: "Chen Wei", Department: "Computer Science", Section: "B"},
		{ID: "stu-004", DisplayName: "Dewi Lestari", Department: "Mathematics", Section: "A"},
		{ID: "stu-005", DisplayName: "Evan Ross", Department: "Mathematics", Section: "A"},
		{ID: "stu-006", DisplayName: "Farah Noor", Department: "Mathematics", Section: "A"},
	}
	for _, st := range students {
		store.PutStudent(st)
	}

	quizzes := []domain.Quiz{
		{Code: "ALG-101", Subject: "Algorithms", CreatedBy: "faculty-1", TotalSubmissionsExpected: 6},
		{Code: "CAL-201", Subject: "Calculus", CreatedBy: "faculty-2", TotalSubmissionsExpected: 6},
		{Code: "DB-110", Subject: "Databases", CreatedBy: "faculty-1"},
	}
	for _, q := range quizzes {
		store.PutQuiz(q)
	}

	type attempt struct {
		student, quiz, difficulty string
		score                     float64
		correct, seconds, daysAgo int
	}
	attempts := []attempt{
		{"stu-001", "ALG-101", "Medium", 92, 23, 420, 20},
		{"stu-001", "CAL-201", "Hard", 84, 21, 610, 12},
		{"stu-001", "DB-110", "Easy", 95, 19, 250, 3},
		{"stu-002", "ALG-101", "Medium", 58, 14, 700, 19},
		{"stu-002", "CAL-201", "Hard", 66, 16, 820, 9},
		{"stu-002", "DB-110", "Easy", 71, 14, 500, 2},
		{"stu-003", "ALG-101", "Medium", 77, 19, 380, 18},
		{"stu-003", "DB-110", "Easy", 81, 16, 290, 5},
		{"stu-004", "CAL-201", "Hard", 88, 22, 540, 11},
		{"stu-004", "ALG-101", "Medium", 69, 17, 910, 4},
		{"stu-005", "CAL-201", "Hard", 45, 11, 960, 10},
	}
	for i, a := range attempts {
		score := a.score
		quiz := quizzes[0]
		for _, q := range quizzes {
			if q.Code == a.quiz {
				quiz = q
			}
		}
		store.submissions = append(store.submissions, domain.Submission{
			ID:               fmt.Sprintf("sample-%03d", i+1),
			StudentID:        a.student,
			QuizCode:         a.quiz,
			Subject:          quiz.Subject,
			Difficulty:       a.difficulty,
			Score:            &score,
			CorrectAnswers:   a.correct,
			TotalQuestions:   25,
			TimeSpentSeconds: a.seconds,
			SubmittedAt:      now.Add(-time.Duration(a.daysAgo) * 24 * time.Hour),
		})
	}
	store.submissions = append(store.submissions, domain.Submission{
		ID:          "sample-pending",
		StudentID:   "stu-005",
		QuizCode:    "DB-110",
		Subject:     "Databases",
		SubmittedAt: now.Add(-time.Hour),
	})
	return store
}
