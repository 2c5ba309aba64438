// Package lim rate limits requests per client IP. A redis counter shares the
// budget across instances when configured; otherwise, or when redis fails,
// each instance keeps its own token buckets.
package lim

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pbnj/svc/util"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	maxLimiters     = 10000
	cleanupInterval = 5 * time.Minute
	limiterTTL      = 30 * time.Minute
	window          = time.Minute
	adaptiveFor     = 60 * time.Second
	redisDeadline   = 100 * time.Millisecond
)

// Counter is a fixed-window hit counter shared between instances.
type Counter interface {
	RateLimit(ctx context.Context, key string, limit int, window time.Duration) (int, error)
}

type Limiter struct {
	counter           Counter
	trustedProxies    []string
	rpm               int
	burst             int
	adaptiveModeUntil int64
	watch             *ErrorWatch
	mu                sync.Mutex
	local             map[string]*limiterEntry
	quit              chan struct{}
	stopOnce          sync.Once
	now               func() time.Time
}
type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// New validates trustedProxies and builds a limiter allowing rpm requests a
// minute per IP and endpoint. counter may be nil.
func New(rpm, burst int, counter Counter, trustedProxies []string) (*Limiter, error) {
	for _, proxy := range trustedProxies {
		if strings.Contains(proxy, "/") {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				return nil, errors.Wrapf(err, "invalid CIDR in trusted proxies: %s", proxy)
			}
		} else if net.ParseIP(proxy) == nil {
			return nil, errors.Errorf("invalid IP in trusted proxies: %s", proxy)
		}
	}
	if rpm <= 0 || burst <= 0 {
		return nil, errors.New("rpm and burst must be positive")
	}
	l := &Limiter{
		counter:        counter,
		trustedProxies: trustedProxies,
		rpm:            rpm,
		burst:          burst,
		local:          make(map[string]*limiterEntry),
		quit:           make(chan struct{}),
		now:            time.Now,
	}
	l.watch = NewErrorWatch(l.TriggerAdaptiveMode)
	return l, nil
}

// Start launches the stale-limiter sweep and the error watch.
func (l *Limiter) Start() {
	l.watch.Start(window)
	go l.cleanupLoop()
}
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.quit)
		l.watch.Stop()
	})
}
func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.evictStale()
		case <-l.quit:
			return
		}
	}
}
func (l *Limiter) evictStale() int {
	now := l.now()
	l.mu.Lock()
	evicted := 0
	for key, e := range l.local {
		if now.Sub(e.lastAccess) > limiterTTL {
			delete(l.local, key)
			evicted++
		}
	}
	remaining := len(l.local)
	l.mu.Unlock()
	if evicted > 0 {
		util.Debug().Int("evicted", evicted).Int("remaining", remaining).Msg("rate limiter cleanup")
	}
	return evicted
}

// Observe feeds a response status into the error watch.
func (l *Limiter) Observe(status int) {
	l.watch.Observe(status)
}
func (l *Limiter) TriggerAdaptiveMode() {
	atomic.StoreInt64(&l.adaptiveModeUntil, l.now().Add(adaptiveFor).Unix())
}
func (l *Limiter) adaptive() bool {
	return l.now().Unix() < atomic.LoadInt64(&l.adaptiveModeUntil)
}

// limits halves both budgets while adaptive mode is on.
func (l *Limiter) limits() (rpm, burst int) {
	rpm, burst = l.rpm, l.burst
	if l.adaptive() {
		rpm, burst = max(rpm/2, 1), max(burst/2, 1)
	}
	return rpm, burst
}

func (l *Limiter) CheckLimit(r *http.Request, endpoint string) Result {
	ip := GetRealIP(r, l.trustedProxies)
	key := ip + ":" + endpoint
	rpm, burst := l.limits()
	if l.counter != nil {
		ctx, cancel := context.WithTimeout(r.Context(), redisDeadline)
		defer cancel()
		usage, err := l.counter.RateLimit(ctx, key, rpm, window)
		if err == nil {
			return Result{
				Allowed:   usage <= rpm,
				Limit:     rpm,
				Remaining: max(rpm-usage, 0),
				Reset:     l.now().Add(window),
			}
		}
		util.Warn().Err(err).Msg("redis rate limit unavailable, using local limiter")
	}
	return l.checkLocal(key, rpm, burst)
}
func (l *Limiter) checkLocal(key string, rpm, burst int) Result {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.local[key]
	if !ok {
		if len(l.local) >= maxLimiters {
			util.Warn().Int("limiters", len(l.local)).Msg("rate limiter at capacity, rejecting request")
			return Result{Limit: rpm, Reset: now.Add(window)}
		}
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)}
		l.local[key] = e
	} else if e.limiter.Burst() != burst {
		e.limiter.SetBurstAt(now, burst)
		e.limiter.SetLimitAt(now, rate.Limit(float64(rpm)/60.0))
	}
	e.lastAccess = now
	allowed := e.limiter.AllowN(now, 1)
	return Result{
		Allowed:   allowed,
		Limit:     burst,
		Remaining: max(int(e.limiter.TokensAt(now)), 0),
		Reset:     now.Add(window),
	}
}

func GetRealIP(r *http.Request, trustedProxies []string) string {
	remoteIP := stripPort(r.RemoteAddr)
	if len(trustedProxies) == 0 || !isTrustedProxy(remoteIP, trustedProxies) {
		return remoteIP
	}
	xff := r.Header.Get("X-Forwarded-For")
	if xff == "" {
		return remoteIP
	}
	const maxIPsToParse = 100
	parsed := 0
	remaining := xff
	// walk right to left, the first untrusted hop is the client
	for len(remaining) > 0 && parsed < maxIPsToParse {
		var ipStr string
		if i := strings.LastIndexByte(remaining, ','); i == -1 {
			ipStr, remaining = strings.TrimSpace(remaining), ""
		} else {
			ipStr, remaining = strings.TrimSpace(remaining[i+1:]), remaining[:i]
		}
		if ipStr == "" {
			continue
		}
		parsed++
		if net.ParseIP(ipStr) == nil {
			util.Warn().Str("ip", util.RedactIP(ipStr)).Msg("invalid IP in X-Forwarded-For, skipping")
			continue
		}
		if !isTrustedProxy(ipStr, trustedProxies) {
			return ipStr
		}
	}
	if parsed >= maxIPsToParse {
		util.Warn().Int("parsed", parsed).Msg("X-Forwarded-For too long, truncated parsing")
	}
	return remoteIP
}
func isTrustedProxy(ip string, trustedProxies []string) bool {
	parsedIP := net.ParseIP(ip)
	for _, proxy := range trustedProxies {
		if ip == proxy {
			return true
		}
		if strings.Contains(proxy, "/") && parsedIP != nil {
			if _, subnet, err := net.ParseCIDR(proxy); err == nil && subnet.Contains(parsedIP) {
				return true
			}
		}
	}
	return false
}
func stripPort(ip string) string {
	if host, _, err := net.SplitHostPort(ip); err == nil {
		return host
	}
	return ip
}
