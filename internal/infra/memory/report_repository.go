package memory

import (
	"context"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"quiz-analytics/internal/domain"
)

// ReportLoader builds a report from the backing store.
type ReportLoader interface {
	LoadReport(ctx context.Context) (domain.Report, error)
}

// ReportRepository caches the last report with TTL to avoid rebuilding it on every read.
type ReportRepository struct {
	loader ReportLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	report    *domain.Report
	expiresAt time.Time
	gen       uint64
}

func NewReportRepository(loader ReportLoader, ttl time.Duration) *ReportRepository {
	return &ReportRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *ReportRepository) GetReport(ctx context.Context) (domain.Report, error) {
	if report, ok := r.cached(r.clock()); ok {
		return report, nil
	}

	r.mu.RLock()
	gen := r.gen
	r.mu.RUnlock()

	// Loads are shared per generation only; a caller arriving after Invalidate
	// must not join a load that began before it.
	result, err, _ := r.sf.Do("report:"+strconv.FormatUint(gen, 10), func() (interface{}, error) {
		now := r.clock()
		if report, ok := r.cached(now); ok {
			return report, nil
		}

		report, err := r.loader.LoadReport(ctx)
		if err != nil {
			return domain.Report{}, err
		}

		r.mu.Lock()
		// an Invalidate during the load means the report may already be stale
		if r.gen == gen {
			r.report = &report
			r.expiresAt = now.Add(r.ttlWithJitter())
		}
		r.mu.Unlock()
		return report, nil
	})
	if err != nil {
		return domain.Report{}, err
	}
	return result.(domain.Report), nil
}

// Invalidate drops the cached report.
func (r *ReportRepository) Invalidate(context.Context) error {
	r.mu.Lock()
	r.report = nil
	r.gen++
	r.mu.Unlock()
	return nil
}

func (r *ReportRepository) cached(now time.Time) (domain.Report, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.report != nil && r.expiresAt.After(now) {
		return *r.report, true
	}
	return domain.Report{}, false
}

func (r *ReportRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
