// Package store is the optional attendance archive: one sqlite row per
// eligible member per closed poll. It feeds the stats command and survives
// restarts, unlike the channel-history scans the scheduler itself relies on.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	_ "modernc.org/sqlite"

	"rosterbot/internal/config"
	"rosterbot/internal/roster"
	"rosterbot/internal/schedule"
	"rosterbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const (
	statusYes  = "yes"
	statusNo   = "no"
	statusNone = "none"

	defaultRetentionDays = 90
)

// Store archives closed-poll tallies. A nil *Store is a valid disabled
// archive: every method is a no-op.
type Store struct {
	db  *sql.DB
	log logx.Logger

	retentionDays int
	pruner        *cron.Cron
}

// Open creates (or opens) the sqlite archive. Returns (nil, nil) when the
// store block is absent or disabled, so callers can wire the result straight
// through without a separate enabled check.
func Open(cfg *config.StoreConfig, log logx.Logger) (*Store, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("store: path is required when enabled")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA busy_timeout = 5000")

	retention := cfg.RetentionDays
	if retention <= 0 {
		retention = defaultRetentionDays
	}
	s := &Store{db: db, log: log, retentionDays: retention}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

// Close stops the retention pruner and closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if s.pruner != nil {
		<-s.pruner.Stop().Done()
	}
	return s.db.Close()
}

// RecordTally replaces the archived rows for (guild, day) with the given
// tally. Re-closing the same day (manual run after the scheduled one)
// overwrites rather than double-counts.
func (s *Store) RecordTally(ctx context.Context, guildID, day string, t schedule.Tally) error {
	if s == nil || s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM attendance WHERE guild_id = ? AND day = ?`, guildID, day); err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	insert := func(members []roster.Member, status string) error {
		for _, m := range members {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO attendance(guild_id, day, member_id, status, recorded_at)
				 VALUES(?,?,?,?,?)`,
				guildID, day, m.ID, status, now); err != nil {
				return err
			}
		}
		return nil
	}
	if err := insert(t.Affirmative, statusYes); err != nil {
		return err
	}
	if err := insert(t.Negative, statusNo); err != nil {
		return err
	}
	if err := insert(t.NonResponding, statusNone); err != nil {
		return err
	}
	return tx.Commit()
}

// Stats is the archive summary behind the stats command.
type Stats struct {
	Days   int
	Misses []schedule.MemberMisses
}

// MissTotals aggregates per-member no-response counts for days >= sinceDay,
// most misses first (member ID breaks ties deterministically).
func (s *Store) MissTotals(ctx context.Context, guildID, sinceDay string) (Stats, error) {
	if s == nil || s.db == nil {
		return Stats{}, nil
	}
	var st Stats
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT day) FROM attendance WHERE guild_id = ? AND day >= ?`,
		guildID, sinceDay).Scan(&st.Days); err != nil {
		return Stats{}, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT member_id, COUNT(*) AS misses
		   FROM attendance
		  WHERE guild_id = ? AND day >= ? AND status = 'none'
		  GROUP BY member_id
		  ORDER BY misses DESC, member_id ASC`,
		guildID, sinceDay)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var mm schedule.MemberMisses
		if err := rows.Scan(&mm.MemberID, &mm.Misses); err != nil {
			return Stats{}, err
		}
		st.Misses = append(st.Misses, mm)
	}
	return st, rows.Err()
}

// StartPruner deletes rows older than the retention window once a day.
func (s *Store) StartPruner(ctx context.Context) {
	if s == nil || s.db == nil {
		return
	}
	c := cron.New()
	_, err := c.AddFunc("@daily", func() {
		pctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := s.Prune(pctx); err != nil {
			s.log.Warn("attendance prune failed", logx.Err(err))
		}
	})
	if err != nil {
		s.log.Warn("could not schedule attendance pruner", logx.Err(err))
		return
	}
	c.Start()
	s.pruner = c
	s.log.Info("attendance pruner scheduled", logx.Int("retention_days", s.retentionDays))
}

// Prune removes rows older than the retention window.
func (s *Store) Prune(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays).Format(time.DateOnly)
	res, err := s.db.ExecContext(ctx, `DELETE FROM attendance WHERE day < ?`, cutoff)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.log.Info("pruned archived attendance", logx.Int64("rows", n), logx.String("cutoff", cutoff))
	}
	return nil
}
