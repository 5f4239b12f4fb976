package memory

import (
	"context"
	"sort"
	"sync"

	"quiz-analytics/internal/domain"
)

// Store is an in-memory snapshot source and submission writer.
type Store struct {
	mu          sync.RWMutex
	students    map[string]domain.Student
	quizzes     map[string]domain.Quiz
	submissions []domain.Submission
}

func NewStore() *Store {
	return &Store{
		students: make(map[string]domain.Student),
		quizzes:  make(map[string]domain.Quiz),
	}
}

// PutStudent adds or replaces a roster entry.
func (s *Store) PutStudent(st domain.Student) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.students[st.ID] = st
}

// PutQuiz adds or replaces quiz metadata.
func (s *Store) PutQuiz(q domain.Quiz) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quizzes[q.Code] = q
}

func (s *Store) SaveSubmission(_ context.Context, sub domain.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions = append(s.submissions, sub)
	return nil
}

// LoadSnapshot copies all three collections under a single read lock.
func (s *Store) LoadSnapshot(context.Context) (domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.Snapshot{
		Students:    s.studentsLocked(),
		Quizzes:     s.quizzesLocked(),
		Submissions: s.submissionsLocked(),
	}, nil
}

func (s *Store) LoadStudents(context.Context) ([]domain.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.studentsLocked(), nil
}

func (s *Store) LoadQuizzes(context.Context) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quizzesLocked(), nil
}

func (s *Store) LoadSubmissions(context.Context) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.submissionsLocked(), nil
}

func (s *Store) studentsLocked() []domain.Student {
	out := make([]domain.Student, 0, len(s.students))
	for _, st := range s.students {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) quizzesLocked() []domain.Quiz {
	out := make([]domain.Quiz, 0, len(s.quizzes))
	for _, q := range s.quizzes {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (s *Store) submissionsLocked() []domain.Submission {
	out := make([]domain.Submission, len(s.submissions))
	copy(out, s.submissions)
	return out
}
