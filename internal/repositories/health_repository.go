package repositories

import (
	"context"
	"errors"
	"sync"
	"time"

	domain "github.com/trademate/api/internal/domain"
)

const defaultDependencyTimeout = 1500 * time.Millisecond

// DependencyCheck is one readiness probe.
type DependencyCheck struct {
	Name    string
	Timeout time.Duration
	Check   func(context.Context) error
}

type dependencyHealthRepository struct {
	checks []DependencyCheck
	now    func() time.Time
}

// NewDependencyHealthRepository runs checks concurrently on every Collect.
func NewDependencyHealthRepository(checks []DependencyCheck, clock func() time.Time) (HealthRepository, error) {
	if len(checks) == 0 {
		return nil, errors.New("health repository: at least one dependency check is required")
	}
	for _, check := range checks {
		if check.Name == "" || check.Check == nil {
			return nil, errors.New("health repository: checks need a name and a function")
		}
	}
	if clock == nil {
		clock = time.Now
	}
	return &dependencyHealthRepository{checks: append([]DependencyCheck(nil), checks...), now: clock}, nil
}

func (r *dependencyHealthRepository) Collect(ctx context.Context) (domain.HealthReport, error) {
	results := make(map[string]domain.HealthCheck, len(r.checks))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, check := range r.checks {
		wg.Add(1)
		go func(check DependencyCheck) {
			defer wg.Done()
			timeout := check.Timeout
			if timeout <= 0 {
				timeout = defaultDependencyTimeout
			}
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := r.now()
			err := check.Check(checkCtx)
			result := domain.HealthCheck{Status: domain.HealthStatusOK, Latency: r.now().Sub(start)}
			if err != nil {
				result.Status = domain.HealthStatusError
				result.Error = err.Error()
			}

			mu.Lock()
			results[check.Name] = result
			mu.Unlock()
		}(check)
	}
	wg.Wait()

	report := domain.HealthReport{Status: domain.HealthStatusOK, Checks: results, GeneratedAt: r.now()}
	for _, result := range results {
		if result.Status != domain.HealthStatusOK {
			report.Status = domain.HealthStatusError
			break
		}
	}
	return report, nil
}
