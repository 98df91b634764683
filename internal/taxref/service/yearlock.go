package service

import (
	"sync"
	"time"

	obsmetrics "github.com/smallbiznis/payrun/internal/observability/metrics"
)

// YearLocks serializes reference data writes for a tax year against payroll
// runs reading that year. Different years never contend.
type YearLocks struct {
	mu      sync.Mutex
	years   map[int]*sync.RWMutex
	metrics *obsmetrics.PayrollMetrics
}

func NewYearLocks(metrics *obsmetrics.PayrollMetrics) *YearLocks {
	return &YearLocks{
		years:   map[int]*sync.RWMutex{},
		metrics: metrics,
	}
}

func (l *YearLocks) get(year int) *sync.RWMutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.years[year]
	if !ok {
		lock = &sync.RWMutex{}
		l.years[year] = lock
	}
	return lock
}

// RLock holds year for reading until the returned func is called.
func (l *YearLocks) RLock(year int) func() {
	lock := l.get(year)
	start := time.Now()
	lock.RLock()
	l.metrics.ObserveYearLockWait(time.Since(start))

	var once sync.Once
	return func() { once.Do(lock.RUnlock) }
}

// Lock holds year exclusively until the returned func is called.
func (l *YearLocks) Lock(year int) func() {
	lock := l.get(year)
	start := time.Now()
	lock.Lock()
	l.metrics.ObserveYearLockWait(time.Since(start))

	var once sync.Once
	return func() { once.Do(lock.Unlock) }
}
