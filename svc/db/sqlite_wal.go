package db

import (
	"context"
	"time"

	"pbnj/svc/util"

	"github.com/pkg/errors"
)

// pages left in the WAL after a passive checkpoint before we truncate
const walTruncatePages = 1000

// RunWALMaintenance checkpoints the WAL every interval until ctx is done,
// then runs one last checkpoint.
func (s *SQLite) RunWALMaintenance(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.Checkpoint(ctx); err != nil {
				util.Error().Err(err).Msg("WAL checkpoint failed")
			}
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := s.Checkpoint(final); err != nil {
				util.Error().Err(err).Msg("final WAL checkpoint failed")
			}
			cancel()
			return
		}
	}
}

// Checkpoint runs a passive checkpoint and escalates to TRUNCATE when the
// log is long or readers held pages back.
func (s *SQLite) Checkpoint(ctx context.Context) error {
	start := time.Now()
	busy, logPages, done, err := s.checkpoint(ctx, "PASSIVE")
	if err != nil {
		return err
	}
	util.Debug().Int("busy", busy).Int("log", logPages).Int("checkpointed", done).Msg("PASSIVE checkpoint")
	if logPages > walTruncatePages || busy > 0 {
		busy, logPages, done, err = s.checkpoint(ctx, "TRUNCATE")
		if err != nil {
			return err
		}
		util.Info().Int("busy", busy).Int("log", logPages).Int("checkpointed", done).Msg("TRUNCATE checkpoint")
	}
	if err := s.verifyIntegrity(ctx); err != nil {
		util.Error().Err(err).Msg("database integrity check failed after checkpoint")
		return err
	}
	util.Debug().Dur("duration", time.Since(start)).Msg("WAL checkpoint completed")
	return nil
}

func (s *SQLite) checkpoint(ctx context.Context, mode string) (busy, logPages, done int, err error) {
	q := "PRAGMA wal_checkpoint(" + mode + ")"
	err = s.db.QueryRowContext(ctx, q).Scan(&busy, &logPages, &done)
	return busy, logPages, done, errors.Wrapf(err, "%s checkpoint", mode)
}

func (s *SQLite) verifyIntegrity(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	var result string
	if err := s.db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return errors.Wrap(err, "quick_check query")
	}
	if result != "ok" {
		return errors.Errorf("quick_check returned: %s", result)
	}
	return nil
}
