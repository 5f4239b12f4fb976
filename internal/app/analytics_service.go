package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"quiz-analytics/internal/analytics"
	"quiz-analytics/internal/domain"
)

// ReportRepository caches the last built report (in-memory, Redis, etc).
type ReportRepository interface {
	GetReport(ctx context.Context) (domain.Report, error)
	Invalidate(ctx context.Context) error
}

// SubmissionWriter persists ingested submissions.
type SubmissionWriter interface {
	SaveSubmission(ctx context.Context, sub domain.Submission) error
}

// ChangeNotifier carries change events between the store and the service.
type ChangeNotifier interface {
	Publish(ctx context.Context, event domain.ChangeEvent) error
	Subscribe(ctx context.Context) (<-chan domain.ChangeEvent, func(), error)
}

// ErrReadOnly is returned by RecordSubmission when no writer is configured.
var ErrReadOnly = errors.New("submission store is read-only")

// Deps bundles the collaborators of AnalyticsService. Writer and Notifier are optional.
type Deps struct {
	Engine   *analytics.Engine
	Builder  *ReportBuilder
	Reports  ReportRepository
	Writer   SubmissionWriter
	Notifier ChangeNotifier
	Feed     *Feed
	Logger   logrus.FieldLogger
	Debounce time.Duration
	Clock    func() time.Time
}

// AnalyticsService contains the dashboard use cases.
type AnalyticsService struct {
	engine   *analytics.Engine
	builder  *ReportBuilder
	reports  ReportRepository
	writer   SubmissionWriter
	notifier ChangeNotifier
	feed     *Feed
	log      logrus.FieldLogger
	debounce time.Duration
	now      func() time.Time
}

func NewAnalyticsService(d Deps) *AnalyticsService {
	if d.Feed == nil {
		d.Feed = NewFeed()
	}
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Debounce <= 0 {
		d.Debounce = 500 * time.Millisecond
	}
	return &AnalyticsService{
		engine:   d.Engine,
		builder:  d.Builder,
		reports:  d.Reports,
		writer:   d.Writer,
		notifier: d.Notifier,
		feed:     d.Feed,
		log:      d.Logger,
		debounce: d.Debounce,
		now:      d.Clock,
	}
}

// Report returns the cached consolidated report.
func (s *AnalyticsService) Report(ctx context.Context) (domain.Report, error) {
	return s.reports.GetReport(ctx)
}

// Overview returns the headline block of the cached report.
func (s *AnalyticsService) Overview(ctx context.Context) (domain.Overview, error) {
	report, err := s.reports.GetReport(ctx)
	if err != nil {
		return domain.Overview{}, err
	}
	return report.Overview, nil
}

// Diagnostics returns the skipped-record and configuration report.
func (s *AnalyticsService) Diagnostics(ctx context.Context) (domain.Diagnostics, error) {
	report, err := s.reports.GetReport(ctx)
	if err != nil {
		return domain.Diagnostics{}, err
	}
	return report.Diagnostics, nil
}

// Groups returns the aggregates of every non-empty group at level.
func (s *AnalyticsService) Groups(ctx context.Context, level domain.GroupLevel) ([]domain.GroupAggregate, error) {
	report, err := s.reports.GetReport(ctx)
	if err != nil {
		return nil, err
	}
	switch level {
	case domain.LevelSection:
		return report.Sections, nil
	case domain.LevelDepartment:
		return report.Departments, nil
	case domain.LevelInstitution:
		if report.Institution == nil {
			return []domain.GroupAggregate{}, nil
		}
		return []domain.GroupAggregate{*report.Institution}, nil
	}
	return nil, fmt.Errorf("%w: unknown level %q", domain.ErrInvalidScope, level)
}

// Leaderboard ranks the students of scope against a fresh snapshot.
func (s *AnalyticsService) Leaderboard(ctx context.Context, scope domain.Scope) ([]domain.LeaderboardEntry, error) {
	if scope.Level == domain.LevelInstitution {
		report, err := s.reports.GetReport(ctx)
		if err != nil {
			return nil, err
		}
		return report.Leaderboard, nil
	}
	snap, err := s.builder.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return s.engine.Leaderboard(scope, snap.Students, snap.Submissions)
}

// StudentProfile builds the detail view of one roster student.
func (s *AnalyticsService) StudentProfile(ctx context.Context, studentID string) (domain.StudentProfile, error) {
	snap, err := s.builder.Snapshot(ctx)
	if err != nil {
		return domain.StudentProfile{}, err
	}
	for _, st := range snap.Students {
		if st.ID == studentID {
			return s.engine.StudentProfile(st, snap.Students, snap.Submissions), nil
		}
	}
	return domain.StudentProfile{}, domain.ErrStudentNotFound
}

// StudentMetrics returns the live figures of one roster student, or
// domain.ErrNoData when the student has nothing scored yet.
func (s *AnalyticsService) StudentMetrics(ctx context.Context, studentID string) (domain.StudentMetrics, error) {
	snap, err := s.builder.Snapshot(ctx)
	if err != nil {
		return domain.StudentMetrics{}, err
	}
	for _, st := range snap.Students {
		if st.ID == studentID {
			return s.engine.StudentMetrics(studentID, snap.Submissions)
		}
	}
	return domain.StudentMetrics{}, domain.ErrStudentNotFound
}

// QuizStatistics computes one quiz's figures. A non-positive baseline is
// resolved from the quiz metadata; a *domain.ConfigurationError is returned
// together with the stats when that fails too.
func (s *AnalyticsService) QuizStatistics(ctx context.Context, code string, baseline int) (domain.QuizStats, error) {
	snap, err := s.builder.Snapshot(ctx)
	if err != nil {
		return domain.QuizStats{}, err
	}

	quiz, known := domain.Quiz{Code: code}, false
	for _, q := range snap.Quizzes {
		if q.Code == code {
			quiz, known = q, true
			break
		}
	}
	if !known && !referencesQuiz(snap.Submissions, code) {
		return domain.QuizStats{}, domain.ErrQuizNotFound
	}
	if baseline <= 0 {
		baseline = s.engine.Baseline(quiz, len(snap.Students))
	}
	return s.engine.QuizStatistics(code, snap.Submissions, baseline)
}

func referencesQuiz(subs []domain.Submission, code string) bool {
	for _, sub := range subs {
		if sub.QuizCode == code {
			return true
		}
	}
	return false
}

// RecordSubmission validates and stores a submission, then announces the change.
func (s *AnalyticsService) RecordSubmission(ctx context.Context, sub domain.Submission) (domain.Submission, error) {
	if s.writer == nil {
		return domain.Submission{}, ErrReadOnly
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = s.now().UTC()
	}
	if err := s.engine.ValidateSubmission(sub); err != nil {
		return domain.Submission{}, err
	}
	if err := s.writer.SaveSubmission(ctx, sub); err != nil {
		return domain.Submission{}, fmt.Errorf("save submission: %w", err)
	}

	log := s.log.WithFields(logrus.Fields{"submission_id": sub.ID, "student_id": sub.StudentID, "quiz_code": sub.QuizCode})
	if s.notifier == nil {
		if _, err := s.Refresh(ctx); err != nil {
			log.WithError(err).Warn("refresh after submission failed")
		}
		return sub, nil
	}
	event := domain.ChangeEvent{Kind: domain.ChangeSubmission, ID: sub.ID, OccurredAt: sub.SubmittedAt}
	if err := s.notifier.Publish(ctx, event); err != nil {
		log.WithError(err).Warn("publish change event failed")
	}
	log.Debug("submission recorded")
	return sub, nil
}

// Refresh drops the cached report, rebuilds it and pushes it to subscribers.
func (s *AnalyticsService) Refresh(ctx context.Context) (domain.Report, error) {
	if err := s.reports.Invalidate(ctx); err != nil {
		return domain.Report{}, fmt.Errorf("invalidate report: %w", err)
	}
	report, err := s.reports.GetReport(ctx)
	if err != nil {
		return domain.Report{}, err
	}
	s.feed.Publish(report)
	s.log.WithFields(logrus.Fields{
		"submissions": report.Overview.TotalSubmissions,
		"skipped":     report.Diagnostics.SkippedRecords,
	}).Info("report refreshed")
	return report, nil
}

// Subscribe returns a channel of recomputed reports, starting with the current one.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *AnalyticsService) Subscribe(ctx context.Context) (<-chan domain.Report, func(), error) {
	if s.feed.Subscribers() == 0 {
		report, err := s.reports.GetReport(ctx)
		if err != nil {
			return nil, nil, err
		}
		s.feed.Publish(report)
	}
	ch, cancel := s.feed.Subscribe()
	return ch, cancel, nil
}

// Run consumes the change feed until ctx is done. Bursts of events inside the
// debounce window collapse into a single refresh.
func (s *AnalyticsService) Run(ctx context.Context) error {
	if s.notifier == nil {
		<-ctx.Done()
		return nil
	}
	events, cancel, err := s.notifier.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe to changes: %w", err)
	}
	defer cancel()

	timer := time.NewTimer(s.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := 0
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			s.log.WithFields(logrus.Fields{"kind": event.Kind, "id": event.ID}).Debug("change received")
			if pending == 0 {
				timer.Reset(s.debounce)
			}
			pending++
		case <-timer.C:
			if _, err := s.Refresh(ctx); err != nil {
				s.log.WithError(err).WithField("events", pending).Error("refresh failed")
			}
			pending = 0
		}
	}
}
