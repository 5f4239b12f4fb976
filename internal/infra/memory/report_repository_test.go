package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quiz-analytics/internal/domain"
)

func TestReportRepositoryCaches(t *testing.T) {
	loader := &countingLoader{}
	repo := NewReportRepository(loader, time.Minute)

	if _, err := repo.GetReport(context.Background()); err != nil {
		t.Fatalf("get report: %v", err)
	}
	if loader.count() != 1 {
		t.Fatalf("expected loader once, got %d", loader.count())
	}

	if _, err := repo.GetReport(context.Background()); err != nil {
		t.Fatalf("get report 2: %v", err)
	}
	if loader.count() != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.count())
	}
}

func TestReportRepositoryExpiresAndInvalidates(t *testing.T) {
	loader := &countingLoader{}
	repo := NewReportRepository(loader, time.Minute)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.clock = func() time.Time { return now }

	_, _ = repo.GetReport(context.Background())
	now = now.Add(2 * time.Minute)
	_, _ = repo.GetReport(context.Background())
	if loader.count() != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.count())
	}

	if err := repo.Invalidate(context.Background()); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	_, _ = repo.GetReport(context.Background())
	if loader.count() != 3 {
		t.Fatalf("expected reload after invalidate, loader calls %d", loader.count())
	}
}

func TestReportRepositoryDoesNotCacheErrors(t *testing.T) {
	loader := &countingLoader{err: errors.New("db down")}
	repo := NewReportRepository(loader, time.Minute)

	if _, err := repo.GetReport(context.Background()); err == nil {
		t.Fatalf("expected loader error")
	}
	loader.mu.Lock()
	loader.err = nil
	loader.mu.Unlock()

	if _, err := repo.GetReport(context.Background()); err != nil {
		t.Fatalf("get report after recovery: %v", err)
	}
	if loader.count() != 2 {
		t.Fatalf("expected two loads, got %d", loader.count())
	}
}

func TestReportRepositoryCoalescesConcurrentLoads(t *testing.T) {
	loader := &countingLoader{delay: 50 * time.Millisecond}
	repo := NewReportRepository(loader, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.GetReport(context.Background())
		}()
	}
	wg.Wait()

	if loader.count() != 1 {
		t.Fatalf("expected a single load, got %d", loader.count())
	}
}

type countingLoader struct {
	mu    sync.Mutex
	calls int
	err   error
	delay time.Duration
}

func (l *countingLoader) LoadReport(context.Context) (domain.Report, error) {
	l.mu.Lock()
	l.calls++
	calls, err, delay := l.calls, l.err, l.delay
	l.mu.Unlock()

	time.Sleep(delay)
	if err != nil {
		return domain.Report{}, err
	}
	return domain.Report{Overview: domain.Overview{TotalSubmissions: calls}}, nil
}

func (l *countingLoader) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func TestReportRepositoryInvalidateDoesNotJoinStaleLoad(t *testing.T) {
	loader := newGatedLoader()
	repo := NewReportRepository(loader, time.Minute)
	defer loader.release()

	stale := make(chan domain.Report, 1)
	go func() {
		report, _ := repo.GetReport(context.Background())
		stale <- report
	}()
	<-loader.entered

	if err := repo.Invalidate(context.Background()); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	fresh := make(chan domain.Report, 1)
	go func() {
		report, _ := repo.GetReport(context.Background())
		fresh <- report
	}()

	select {
	case report := <-fresh:
		if report.Overview.TotalSubmissions != 2 {
			t.Fatalf("expected a new load after invalidate, got load %d", report.Overview.TotalSubmissions)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("read after invalidate waited on the load that started before it")
	}

	loader.release()
	if report := <-stale; report.Overview.TotalSubmissions != 1 {
		t.Fatalf("expected the first caller to get its own load, got %d", report.Overview.TotalSubmissions)
	}
	cached, err := repo.GetReport(context.Background())
	if err != nil || cached.Overview.TotalSubmissions != 2 {
		t.Fatalf("expected the newer report to stay cached, got %d %v", cached.Overview.TotalSubmissions, err)
	}
}

// gatedLoader holds its first load open until release is called.
type gatedLoader struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func newGatedLoader() *gatedLoader {
	return &gatedLoader{entered: make(chan struct{}), gate: make(chan struct{})}
}

func (l *gatedLoader) LoadReport(context.Context) (domain.Report, error) {
	l.mu.Lock()
	l.calls++
	calls := l.calls
	l.mu.Unlock()

	if calls == 1 {
		close(l.entered)
		<-l.gate
	}
	return domain.Report{Overview: domain.Overview{TotalSubmissions: calls}}, nil
}

func (l *gatedLoader) release() {
	l.once.Do(func() { close(l.gate) })
}
