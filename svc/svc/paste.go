package svc

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"pbnj/metrics"
	"pbnj/pkg/domain"
	"pbnj/svc/auth"
	"pbnj/svc/cache"
	"pbnj/svc/hl"
	"pbnj/svc/lang"
	"pbnj/svc/util"

	"github.com/pkg/errors"
)

// maxIDAttempts bounds the collision retry loop in Create.
const maxIDAttempts = 3

var ErrShuttingDown = errors.New("service shutting down")

// Store is the persistence collaborator. Insert must report a duplicate id
// as domain.ErrIDCollision and never overwrite.
type Store interface {
	Insert(ctx context.Context, p *domain.Paste) error
	Get(ctx context.Context, id string) (*domain.Paste, error)
	Delete(ctx context.Context, id string) (int64, error)
	ListPublic(ctx context.Context, offset, limit int) ([]domain.ListItem, error)
}

// SharedCache is the cross-instance read cache. GetPaste returns nil, nil
// on a miss.
type SharedCache interface {
	CachePaste(ctx context.Context, p *domain.Paste, ttl time.Duration) error
	GetPaste(ctx context.Context, id string) (*domain.Paste, error)
	Delete(ctx context.Context, id string) error
}

type Options struct {
	// RenderAhead stores highlighted HTML with the paste. When false the
	// view path renders on read.
	RenderAhead bool
	CacheTTL    time.Duration
}

type Paste struct {
	store    Store
	lru      *cache.LRU
	shared   SharedCache
	ids      util.IDGenerator
	renderer *hl.Renderer
	opt      Options
	shutdown atomic.Bool
	opWg     sync.WaitGroup
}

// NewPaste wires the admission and access paths. lru and shared may be nil.
func NewPaste(store Store, lru *cache.LRU, shared SharedCache, ids util.IDGenerator, r *hl.Renderer, opt Options) *Paste {
	if store == nil || ids == nil || r == nil {
		panic("paste service: nil dependency (store, ids or renderer)")
	}
	if opt.CacheTTL <= 0 {
		opt.CacheTTL = time.Hour
	}
	return &Paste{
		store:    store,
		lru:      lru,
		shared:   shared,
		ids:      ids,
		renderer: r,
		opt:      opt,
	}
}

// Shutdown stops new operations and waits for in-flight ones.
func (p *Paste) Shutdown() {
	p.shutdown.Store(true)
	p.opWg.Wait()
	util.Debug().Msg("paste service shutdown complete")
}
func (p *Paste) begin() error {
	if p.shutdown.Load() {
		return ErrShuttingDown
	}
	p.opWg.Add(1)
	return nil
}

// Create admits a new paste. Authentication happens before this is called.
func (p *Paste) Create(ctx context.Context, params domain.CreateParams) (*domain.Paste, error) {
	if err := p.begin(); err != nil {
		return nil, err
	}
	defer p.opWg.Done()
	if params.Code == "" {
		return nil, domain.ErrContentRequired
	}

	paste := &domain.Paste{
		Code:      params.Code,
		Language:  lang.Resolve(params.Filename, params.Language),
		Filename:  params.Filename,
		IsPrivate: params.Private,
	}
	switch {
	case params.Key.Generate:
		key, err := util.NewSecretKey()
		if err != nil {
			return nil, errors.Wrap(err, "generate secret key")
		}
		paste.SecretKey = key
	case params.Key.Value != "":
		paste.SecretKey = params.Key.Value
	}
	if paste.HasKey() {
		paste.IsPrivate = true
	}
	if p.opt.RenderAhead {
		out := p.renderer.RenderPair(paste.Code, paste.Language)
		paste.HighlightedCode = out.Code
		paste.HighlightedPreview = out.Preview
	}

	for attempt := 1; attempt <= maxIDAttempts; attempt++ {
		id, err := p.ids.Generate()
		if err != nil {
			return nil, errors.Wrap(err, "generate id")
		}
		paste.ID = id
		paste.CreatedAt = domain.NowMillis()
		paste.UpdatedAt = paste.CreatedAt

		err = p.store.Insert(ctx, paste)
		if err == nil {
			p.cache(ctx, paste)
			metrics.PasteCreated.Inc()
			util.Info().
				Str("id", id).
				Str("language", paste.Language).
				Bool("private", paste.IsPrivate).
				Int("attempt", attempt).
				Msg("paste created")
			return paste, nil
		}
		if !errors.Is(err, domain.ErrIDCollision) {
			util.Error().Err(err).
				Str("id", id).
				Str("language", paste.Language).
				Str("op", "create").
				Msg("insert failed")
			return nil, errors.Wrap(err, "insert paste")
		}
		metrics.IDCollisions.Inc()
		util.Warn().Str("id", id).Int("attempt", attempt).Msg("id collision, retrying")
	}
	util.Error().
		Str("id", paste.ID).
		Str("language", paste.Language).
		Str("op", "create").
		Int("attempts", maxIDAttempts).
		Msg("id space exhausted")
	return nil, domain.ErrIDExhausted
}

// Get fetches a paste by id. The privacy flag does not matter here, but a
// paste carrying a secret key is only returned when key matches it.
func (p *Paste) Get(ctx context.Context, id, key string) (*domain.Paste, error) {
	if err := p.begin(); err != nil {
		return nil, err
	}
	defer p.opWg.Done()
	paste, err := p.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if paste.HasKey() && !auth.EqualSecret(key, paste.SecretKey) {
		util.Debug().Str("id", id).Str("key", util.RedactToken(key)).Msg("secret key mismatch")
		return nil, domain.ErrForbidden
	}
	metrics.PasteRetrieved.Inc()
	return paste, nil
}

func (p *Paste) lookup(ctx context.Context, id string) (*domain.Paste, error) {
	if p.lru != nil {
		if paste := p.lru.Get(ctx, id); paste != nil {
			metrics.CacheHits.WithLabelValues("lru").Inc()
			return paste, nil
		}
	}
	if p.shared != nil {
		paste, err := p.shared.GetPaste(ctx, id)
		if err != nil {
			util.Warn().Err(err).Str("id", id).Msg("shared cache read failed")
		} else if paste != nil {
			metrics.CacheHits.WithLabelValues("redis").Inc()
			if p.lru != nil {
				p.lru.Set(paste, p.opt.CacheTTL)
			}
			return paste, nil
		}
	}
	metrics.CacheMisses.Inc()
	paste, err := p.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrPasteNotFound) {
			return nil, domain.ErrPasteNotFound
		}
		util.Error().Err(err).Str("id", id).Str("op", "get").Msg("store read failed")
		return nil, errors.Wrap(err, "get paste")
	}
	p.cache(ctx, paste)
	return paste, nil
}

func (p *Paste) cache(ctx context.Context, paste *domain.Paste) {
	if p.lru != nil {
		p.lru.Set(paste, p.opt.CacheTTL)
	}
	if p.shared != nil {
		if err := p.shared.CachePaste(ctx, paste, p.opt.CacheTTL); err != nil {
			util.Warn().Err(err).Str("id", paste.ID).Msg("failed to cache in redis")
		}
	}
}

// Highlighted returns the full HTML render of paste, from the stored render
// when there is one.
func (p *Paste) Highlighted(paste *domain.Paste) string {
	if paste.Rendered() {
		return paste.HighlightedCode
	}
	return p.renderer.Render(paste.Code, paste.Language)
}

func (p *Paste) Theme() hl.Theme {
	return p.renderer.Theme()
}

// List returns one page of public pastes starting at offset cursor.
func (p *Paste) List(ctx context.Context, cursor int) (*domain.ListPage, error) {
	if err := p.begin(); err != nil {
		return nil, err
	}
	defer p.opWg.Done()
	if cursor < 0 {
		return nil, domain.ErrInvalidRequest
	}
	items, err := p.store.ListPublic(ctx, cursor, domain.PageSize)
	if err != nil {
		util.Error().Err(err).Int("cursor", cursor).Str("op", "list").Msg("store list failed")
		return nil, errors.Wrap(err, "list pastes")
	}
	page := &domain.ListPage{Pastes: items}
	if page.Pastes == nil {
		page.Pastes = []domain.ListItem{}
	}
	if len(items) == domain.PageSize {
		next := cursor + domain.PageSize
		page.NextCursor = &next
	}
	return page, nil
}

// Delete hard-deletes a paste. Authentication happens before this is called.
func (p *Paste) Delete(ctx context.Context, id string) error {
	if err := p.begin(); err != nil {
		return err
	}
	defer p.opWg.Done()
	n, err := p.store.Delete(ctx, id)
	if err != nil {
		util.Error().Err(err).Str("id", id).Str("op", "delete").Msg("store delete failed")
		return errors.Wrap(err, "delete paste")
	}
	if p.lru != nil {
		p.lru.Delete(id)
	}
	if p.shared != nil {
		if err := p.shared.Delete(ctx, id); err != nil {
			util.Warn().Err(err).Str("id", id).Msg("failed to evict from redis")
		}
	}
	if n == 0 {
		return domain.ErrPasteNotFound
	}
	metrics.PasteDeleted.Inc()
	util.Info().Str("id", id).Msg("paste deleted")
	return nil
}
