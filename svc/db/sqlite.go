package db

import (
	"context"
	"database/sql"
	"strings"
	"sync/atomic"
	"time"

	"pbnj/metrics"
	"pbnj/pkg/domain"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

var ErrCircuitOpen = errors.New("database circuit breaker open")

const (
	circuitClosed   = 0
	circuitOpen     = 1
	circuitHalfOpen = 2
	maxFailures     = 5
	cooldownSeconds = 30
)

const (
	defaultMaxOpenConns = 25
	defaultMaxIdleConns = 10
	defaultQueryTimeout = 5 * time.Second
)

type SQLite struct {
	db            *sql.DB
	failures      int32
	circuitState  int32
	circuitOpened int64
	queryTimeout  time.Duration
}

func (s *SQLite) DB() *sql.DB {
	return s.db
}
// sqlOpen is swapped in tests to observe the handle.
var sqlOpen = sql.Open

func NewSQLite(path string) (*SQLite, error) {
	return NewSQLiteWithConfig(path, defaultMaxOpenConns, defaultMaxIdleConns, defaultQueryTimeout)
}

func NewSQLiteWithConfig(path string, maxOpenConns, maxIdleConns int, queryTimeout time.Duration) (*SQLite, error) {
	db, err := sqlOpen("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open db")
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping db")
	}
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	s := &SQLite{
		db:           db,
		queryTimeout: queryTimeout,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migration failed")
	}
	return s, nil
}
func (s *SQLite) checkCircuit() error {
	state := atomic.LoadInt32(&s.circuitState)
	switch state {
	case circuitClosed:
		return nil
	case circuitOpen:
		opened := atomic.LoadInt64(&s.circuitOpened)
		if time.Now().Unix()-opened >= cooldownSeconds {
			if atomic.CompareAndSwapInt32(&s.circuitState, circuitOpen, circuitHalfOpen) {
				return nil
			}
		}
		return ErrCircuitOpen
	case circuitHalfOpen:
		return nil
	default:
		return nil
	}
}

// recordError feeds the circuit breaker. Lookups that find nothing, cancelled
// requests and uniqueness violations say nothing about database health.
func (s *SQLite) recordError(err error) {
	if err == nil {
		atomic.StoreInt32(&s.failures, 0)
		if atomic.SwapInt32(&s.circuitState, circuitClosed) != circuitClosed {
			metrics.CircuitOpen.Set(0)
		}
		return
	}
	if errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		isUniqueViolation(err) {
		return
	}
	failures := atomic.AddInt32(&s.failures, 1)
	if atomic.LoadInt32(&s.circuitState) == circuitHalfOpen {
		s.openCircuit()
		atomic.StoreInt32(&s.failures, 0)
		return
	}
	if failures >= maxFailures && atomic.LoadInt32(&s.circuitState) == circuitClosed {
		s.openCircuit()
	}
}
func (s *SQLite) openCircuit() {
	atomic.StoreInt32(&s.circuitState, circuitOpen)
	atomic.StoreInt64(&s.circuitOpened, time.Now().Unix())
	metrics.CircuitOpen.Set(1)
}

// isUniqueViolation reports whether err is sqlite refusing a duplicate key.
func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *SQLite) migrate() error {
	_, err := s.db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		return errors.Wrap(err, "enable WAL mode")
	}
	_, err = s.db.Exec("PRAGMA busy_timeout = 5000")
	if err != nil {
		return errors.Wrap(err, "set busy timeout")
	}
	_, err = s.db.Exec("PRAGMA synchronous=FULL")
	if err != nil {
		return errors.Wrap(err, "set synchronous mode")
	}
	query := `
	CREATE TABLE IF NOT EXISTS pastes (
		id TEXT PRIMARY KEY,
		code TEXT NOT NULL,
		language TEXT NOT NULL DEFAULT 'plaintext',
		filename TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		is_private INTEGER NOT NULL DEFAULT 0,
		secret_key TEXT,
		highlighted_code TEXT,
		highlighted_preview TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_public_updated ON pastes(is_private, updated_at DESC);
	`
	_, err = s.db.Exec(query)
	return err
}

// Insert writes the whole record in one statement. A duplicate id comes back
// as domain.ErrIDCollision so the caller can retry with a fresh one.
func (s *SQLite) Insert(ctx context.Context, p *domain.Paste) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	INSERT INTO pastes (id, code, language, filename, created_at, updated_at, is_private, secret_key, highlighted_code, highlighted_preview)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(queryCtx, q,
		p.ID, p.Code, p.Language, nullable(p.Filename), p.CreatedAt, p.UpdatedAt, p.IsPrivate,
		nullable(p.SecretKey), nullable(p.HighlightedCode), nullable(p.HighlightedPreview),
	)
	s.recordError(err)
	if err != nil && isUniqueViolation(err) {
		return errors.Wrapf(domain.ErrIDCollision, "id %q", p.ID)
	}
	return errors.Wrap(err, "db insert")
}
func (s *SQLite) Get(ctx context.Context, id string) (*domain.Paste, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	SELECT id, code, language, COALESCE(filename, ''), created_at, updated_at, is_private,
		COALESCE(secret_key, ''), COALESCE(highlighted_code, ''), COALESCE(highlighted_preview, '')
	FROM pastes WHERE id = ?
	`
	var p domain.Paste
	err := s.db.QueryRowContext(queryCtx, q, id).Scan(
		&p.ID, &p.Code, &p.Language, &p.Filename, &p.CreatedAt, &p.UpdatedAt, &p.IsPrivate,
		&p.SecretKey, &p.HighlightedCode, &p.HighlightedPreview,
	)
	if err == sql.ErrNoRows {
		return nil, domain.ErrPasteNotFound
	}
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "db get")
	}
	return &p, nil
}

// Delete removes the paste and reports how many rows went with it.
func (s *SQLite) Delete(ctx context.Context, id string) (int64, error) {
	if err := s.checkCircuit(); err != nil {
		return 0, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	res, err := s.db.ExecContext(queryCtx, `DELETE FROM pastes WHERE id = ?`, id)
	s.recordError(err)
	if err != nil {
		return 0, errors.Wrap(err, "delete paste")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "rows affected")
	}
	return n, nil
}

// ListPublic returns non-private pastes, newest first, skipping offset rows.
func (s *SQLite) ListPublic(ctx context.Context, offset, limit int) ([]domain.ListItem, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	SELECT id, language, updated_at, COALESCE(filename, ''), SUBSTR(code, 1, ?)
	FROM pastes
	WHERE is_private = 0
	ORDER BY updated_at DESC, rowid DESC
	LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(queryCtx, q, domain.ListPreviewLength, limit, offset)
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "list pastes")
	}
	defer rows.Close()
	items := make([]domain.ListItem, 0, limit)
	for rows.Next() {
		var it domain.ListItem
		if err := rows.Scan(&it.ID, &it.Language, &it.Updated, &it.Filename, &it.Preview); err != nil {
			return nil, errors.Wrap(err, "scan list row")
		}
		items = append(items, it)
	}
	return items, errors.Wrap(rows.Err(), "list rows")
}
func (s *SQLite) Close() error {
	return s.db.Close()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
