package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"quiz-analytics/internal/domain"
)

// ReportLoader builds a report from the backing store.
type ReportLoader interface {
	LoadReport(ctx context.Context) (domain.Report, error)
}

// ReportRepository caches the consolidated report in Redis as a JSON string and
// falls back to a loader on cache miss, so every instance serves the same report.
// Stored as: SET {prefix}:report <json> EX ttl, guarded by INCR {prefix}:report:gen.
type ReportRepository struct {
	client *redis.Client
	loader ReportLoader
	key    string
	genKey string
	ttl    time.Duration
	sf     singleflight.Group

	localGen atomic.Uint64

	mu  sync.Mutex
	rnd *rand.Rand
}

var errStaleGeneration = errors.New("report generation moved during load")

func NewReportRepository(client *redis.Client, loader ReportLoader, prefix string, ttl time.Duration) *ReportRepository {
	if prefix == "" {
		prefix = "quiz-analytics"
	}
	return &ReportRepository{
		client: client,
		loader: loader,
		key:    prefix + ":report",
		genKey: prefix + ":report:gen",
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *ReportRepository) GetReport(ctx context.Context) (domain.Report, error) {
	if report, ok := r.cached(ctx); ok {
		return report, nil
	}

	gen := r.generation(ctx)
	// Loads are shared per generation only; a caller arriving after Invalidate
	// must not join a load that began before it.
	sfKey := fmt.Sprintf("%s:%d:%d", r.key, r.localGen.Load(), gen)
	result, err, _ := r.sf.Do(sfKey, func() (interface{}, error) {
		if report, ok := r.cached(ctx); ok {
			return report, nil
		}

		report, err := r.loader.LoadReport(ctx)
		if err != nil {
			return domain.Report{}, err
		}

		if ttl := r.ttlWithJitter(); ttl > 0 {
			payload, err := json.Marshal(report)
			if err != nil {
				return domain.Report{}, fmt.Errorf("encode report: %w", err)
			}
			// best-effort: a failed write only costs a rebuild on the next read
			_ = r.storeIfCurrent(ctx, gen, payload, ttl)
		}
		return report, nil
	})
	if err != nil {
		return domain.Report{}, err
	}
	return result.(domain.Report), nil
}

// Invalidate bumps the shared generation and removes the cached report, so
// loads that started earlier will not write their result back.
func (r *ReportRepository) Invalidate(ctx context.Context) error {
	r.localGen.Add(1)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, r.genKey)
		pipe.Del(ctx, r.key)
		return nil
	})
	return err
}

// generation reads the shared counter; an unreachable Redis counts as 0.
func (r *ReportRepository) generation(ctx context.Context) int64 {
	gen, err := r.client.Get(ctx, r.genKey).Int64()
	if err != nil {
		return 0
	}
	return gen
}

// storeIfCurrent writes the report only while the generation still equals gen.
func (r *ReportRepository) storeIfCurrent(ctx context.Context, gen int64, payload []byte, ttl time.Duration) error {
	return r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, r.genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.key, payload, ttl)
			return nil
		})
		return err
	}, r.genKey)
}

func (r *ReportRepository) cached(ctx context.Context) (domain.Report, bool) {
	// redis.Nil and transport errors both count as a miss
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		return domain.Report{}, false
	}
	var report domain.Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return domain.Report{}, false
	}
	return report, true
}

func (r *ReportRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
