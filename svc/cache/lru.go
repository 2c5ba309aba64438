package cache

import (
	"context"
	"sync"
	"time"

	"pbnj/pkg/domain"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

const maxSize = 100000

// LRU is the in-process read cache in front of redis and sqlite. Pastes are
// immutable, so entries only leave on expiry, eviction or delete.
type LRU struct {
	c   *lru.Cache[string, entry]
	mu  sync.Mutex
	now func() time.Time
}
type entry struct {
	paste domain.Paste
	exp   time.Time
}

func NewLRU(size int) (*LRU, error) {
	if size <= 0 {
		return nil, errors.New("cache size must be positive")
	}
	if size > maxSize {
		return nil, errors.Errorf("cache size %d exceeds %d", size, maxSize)
	}
	c, err := lru.New[string, entry](size)
	if err != nil {
		return nil, errors.Wrap(err, "new lru")
	}
	return &LRU{c: c, now: time.Now}, nil
}

// Get returns a copy of the cached paste, or nil.
func (l *LRU) Get(ctx context.Context, id string) *domain.Paste {
	if ctx.Err() != nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.c.Get(id)
	if !ok {
		return nil
	}
	if l.now().After(e.exp) {
		l.c.Remove(id)
		return nil
	}
	p := e.paste
	return &p
}
func (l *LRU) Set(p *domain.Paste, ttl time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.c.Add(p.ID, entry{paste: *p, exp: l.now().Add(ttl)})
}
func (l *LRU) Delete(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.c.Remove(id)
}
func (l *LRU) Len() int {
	return l.c.Len()
}
