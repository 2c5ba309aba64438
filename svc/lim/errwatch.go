package lim

import (
	"sync"
	"time"

	"pbnj/metrics"
	"pbnj/svc/util"
)

const (
	watchBuckets     = 5
	watchMinRequests = 10
	watchErrorRate   = 5.0
)

// ErrorWatch keeps a rolling five-minute count of requests and 5xx
// responses. When the error rate crosses the threshold it calls trip.
type ErrorWatch struct {
	mu      sync.Mutex
	buckets [watchBuckets]bucket
	cur     int
	trip    func()
	done    chan struct{}
	once    sync.Once
}
type bucket struct {
	requests int64
	errors   int64
}

func NewErrorWatch(trip func()) *ErrorWatch {
	return &ErrorWatch{trip: trip, done: make(chan struct{})}
}
func (e *ErrorWatch) Start(every time.Duration) {
	ticker := time.NewTicker(every)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.Advance()
			case <-e.done:
				return
			}
		}
	}()
}
func (e *ErrorWatch) Stop() {
	e.once.Do(func() { close(e.done) })
}
func (e *ErrorWatch) Observe(status int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buckets[e.cur].requests++
	if status >= 500 {
		e.buckets[e.cur].errors++
	}
}

// Advance closes the current bucket, evaluates the window and starts a new
// bucket. It returns the error rate in percent.
func (e *ErrorWatch) Advance() float64 {
	e.mu.Lock()
	var reqs, errs int64
	for _, b := range e.buckets {
		reqs += b.requests
		errs += b.errors
	}
	e.cur = (e.cur + 1) % watchBuckets
	e.buckets[e.cur] = bucket{}
	e.mu.Unlock()

	var rate float64
	if reqs > 0 {
		rate = float64(errs) / float64(reqs) * 100
	}
	metrics.RecentErrorRatePercent.Set(rate)
	if reqs > watchMinRequests && rate > watchErrorRate {
		util.Warn().
			Float64("error_rate", rate).
			Int64("requests", reqs).
			Int64("errors", errs).
			Msg("high error rate, tightening rate limits")
		if e.trip != nil {
			e.trip()
		}
	}
	return rate
}
