package app

import (
	"context"
	"fmt"
	"time"

	"quiz-analytics/internal/analytics"
	"quiz-analytics/internal/domain"
)

// SnapshotSource reads the externally owned collections (Postgres, SQLite,
// memory) as one consistent view. TakenAt is set by the builder.
type SnapshotSource interface {
	LoadSnapshot(ctx context.Context) (domain.Snapshot, error)
}

// ReportBuilder turns a consistent snapshot into a report. It is the loader
// behind every ReportRepository.
type ReportBuilder struct {
	source SnapshotSource
	engine *analytics.Engine
	now    func() time.Time
}

func NewReportBuilder(source SnapshotSource, engine *analytics.Engine) *ReportBuilder {
	return NewReportBuilderWithClock(source, engine, time.Now)
}

// NewReportBuilderWithClock is test-only for deterministic report timestamps.
func NewReportBuilderWithClock(source SnapshotSource, engine *analytics.Engine, now func() time.Time) *ReportBuilder {
	return &ReportBuilder{source: source, engine: engine, now: now}
}

// Snapshot reads roster, quizzes and submissions in one consistent read. The
// snapshot is stamped before loading starts so it never claims to be newer than
// its data.
func (b *ReportBuilder) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	takenAt := b.now()
	snap, err := b.source.LoadSnapshot(ctx)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	snap.TakenAt = takenAt
	return snap, nil
}

// LoadReport builds a fresh report from the current snapshot.
func (b *ReportBuilder) LoadReport(ctx context.Context) (domain.Report, error) {
	snap, err := b.Snapshot(ctx)
	if err != nil {
		return domain.Report{}, err
	}
	return b.engine.BuildReport(snap), nil
}
