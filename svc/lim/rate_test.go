package lim

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type fakeCounter struct {
	mu   sync.Mutex
	hits map[string]int
	err  error
}

func (f *fakeCounter) RateLimit(_ context.Context, key string, limit int, _ time.Duration) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hits[key] >= limit {
		return limit + 1, nil
	}
	f.hits[key]++
	return f.hits[key], nil
}

func newLimiter(t *testing.T, rpm, burst int, c Counter, proxies ...string) *Limiter {
	t.Helper()
	l, err := New(rpm, burst, c, proxies)
	if err != nil {
		t.Fatal(err)
	}
	return l
}

func TestNewRejectsBadProxies(t *testing.T) {
	for _, p := range []string{"10.0.0.0/33", "not-an-ip"} {
		if _, err := New(60, 10, nil, []string{p}); err == nil {
			t.Errorf("New accepted proxy %q", p)
		}
	}
	if _, err := New(0, 10, nil, nil); err == nil {
		t.Error("New accepted zero rpm")
	}
}

func TestLocalBurstThenReject(t *testing.T) {
	l := newLimiter(t, 60, 3, nil)
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }
	r := httptest.NewRequest("POST", "/api", nil)
	r.RemoteAddr = "203.0.113.7:4000"
	for i := 0; i < 3; i++ {
		if res := l.CheckLimit(r, "create"); !res.Allowed {
			t.Fatalf("request %d rejected inside burst", i)
		}
	}
	if res := l.CheckLimit(r, "create"); res.Allowed {
		t.Fatal("request past burst allowed")
	}
	// other endpoints and other clients have their own buckets
	if res := l.CheckLimit(r, "read"); !res.Allowed {
		t.Error("read bucket shared with create")
	}
	other := httptest.NewRequest("POST", "/api", nil)
	other.RemoteAddr = "198.51.100.1:4000"
	if res := l.CheckLimit(other, "create"); !res.Allowed {
		t.Error("second client throttled by first")
	}
	// one token refills per second at 60 rpm
	now = now.Add(time.Second)
	if res := l.CheckLimit(r, "create"); !res.Allowed {
		t.Error("token did not refill")
	}
}

func TestCounterSharedBudget(t *testing.T) {
	c := &fakeCounter{hits: map[string]int{}}
	l := newLimiter(t, 2, 10, c)
	r := httptest.NewRequest("GET", "/api", nil)
	r.RemoteAddr = "203.0.113.7:4000"
	for i := 0; i < 2; i++ {
		if res := l.CheckLimit(r, "read"); !res.Allowed {
			t.Fatalf("request %d rejected", i)
		}
	}
	res := l.CheckLimit(r, "read")
	if res.Allowed || res.Remaining != 0 {
		t.Errorf("third request = %+v, want rejected", res)
	}
	if c.hits["203.0.113.7:read"] != 2 {
		t.Errorf("counter key hits = %v", c.hits)
	}
}

func TestCounterFailureFallsBackLocal(t *testing.T) {
	c := &fakeCounter{err: errors.New("connection refused")}
	l := newLimiter(t, 60, 1, c)
	r := httptest.NewRequest("GET", "/api", nil)
	r.RemoteAddr = "203.0.113.7:4000"
	if res := l.CheckLimit(r, "read"); !res.Allowed {
		t.Fatal("first request rejected")
	}
	if res := l.CheckLimit(r, "read"); res.Allowed {
		t.Error("local fallback did not enforce burst")
	}
}

func TestAdaptiveModeHalvesBudget(t *testing.T) {
	l := newLimiter(t, 60, 4, nil)
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }
	l.TriggerAdaptiveMode()
	r := httptest.NewRequest("GET", "/api", nil)
	r.RemoteAddr = "203.0.113.7:4000"
	allowed := 0
	for i := 0; i < 4; i++ {
		if l.CheckLimit(r, "read").Allowed {
			allowed++
		}
	}
	if allowed != 2 {
		t.Errorf("allowed %d in adaptive mode, want 2", allowed)
	}
	now = now.Add(adaptiveFor + time.Second)
	if l.adaptive() {
		t.Error("adaptive mode did not expire")
	}
}

func TestErrorWatchTrips(t *testing.T) {
	tripped := 0
	w := NewErrorWatch(func() { tripped++ })
	for i := 0; i < 20; i++ {
		w.Observe(200)
	}
	if rate := w.Advance(); rate != 0 || tripped != 0 {
		t.Fatalf("rate=%v tripped=%d on healthy traffic", rate, tripped)
	}
	for i := 0; i < 5; i++ {
		w.Observe(500)
	}
	rate := w.Advance()
	if tripped != 1 {
		t.Errorf("watch did not trip at %.1f%%", rate)
	}
	// the oldest buckets roll off after a full window
	for i := 0; i < watchBuckets; i++ {
		w.Advance()
	}
	if rate := w.Advance(); rate != 0 {
		t.Errorf("rate after window rolled = %v", rate)
	}
}

func TestEvictStale(t *testing.T) {
	l := newLimiter(t, 60, 10, nil)
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }
	r := httptest.NewRequest("GET", "/api", nil)
	r.RemoteAddr = "203.0.113.7:4000"
	l.CheckLimit(r, "read")
	now = now.Add(limiterTTL + time.Minute)
	if n := l.evictStale(); n != 1 {
		t.Errorf("evicted %d, want 1", n)
	}
}

func TestGetRealIP(t *testing.T) {
	tests := []struct {
		name    string
		remote  string
		xff     string
		proxies []string
		want    string
	}{
		{"no proxies ignores header", "203.0.113.7:1", "1.2.3.4", nil, "203.0.113.7"},
		{"untrusted remote ignores header", "203.0.113.7:1", "1.2.3.4", []string{"10.0.0.1"}, "203.0.113.7"},
		{"trusted remote uses header", "10.0.0.1:1", "1.2.3.4", []string{"10.0.0.1"}, "1.2.3.4"},
		{"rightmost untrusted hop", "10.0.0.1:1", "6.6.6.6, 1.2.3.4, 10.0.0.2", []string{"10.0.0.0/8"}, "1.2.3.4"},
		{"garbage skipped", "10.0.0.1:1", "1.2.3.4, bogus", []string{"10.0.0.0/8"}, "1.2.3.4"},
		{"all trusted", "10.0.0.1:1", "10.0.0.3", []string{"10.0.0.0/8"}, "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := GetRealIP(r, tt.proxies); got != tt.want {
				t.Errorf("GetRealIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStopIdempotent(t *testing.T) {
	l := newLimiter(t, 60, 10, nil)
	l.Start()
	l.Stop()
	l.Stop()
}
