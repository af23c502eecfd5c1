// Package store keeps the durable engine state, the playback position slot
// and the usage counters, in a SQLite file.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dgnsrekt/versecast/internal/position"
	"github.com/dgnsrekt/versecast/internal/quota"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLite implements position.Store and quota.Store.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path and applies migrations.
func Open(ctx context.Context, dbPath string) (*SQLite, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, errors.New("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLite{db: db, now: time.Now}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		content, err := migrationFiles.ReadFile(path.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from "001_init.sql".
func migrationVersion(name string) int {
	end := strings.IndexFunc(name, func(r rune) bool { return r < '0' || r > '9' })
	if end == 0 {
		return 0
	}
	if end < 0 {
		end = len(name)
	}
	n, _ := strconv.Atoi(name[:end])
	return n
}

// SavePosition overwrites the position slot.
func (s *SQLite) SavePosition(ctx context.Context, p position.Position) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO playback_position (
			slot, translation_id, book_id, book_name, chapter, unit_index, total_units, voice_kind, saved_at
		) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			translation_id=excluded.translation_id,
			book_id=excluded.book_id,
			book_name=excluded.book_name,
			chapter=excluded.chapter,
			unit_index=excluded.unit_index,
			total_units=excluded.total_units,
			voice_kind=excluded.voice_kind,
			saved_at=excluded.saved_at`,
		p.TranslationID,
		p.BookID,
		p.BookName,
		p.Chapter,
		p.UnitIndex,
		p.TotalUnits,
		p.VoiceKind,
		p.Timestamp.UnixNano(),
	)
	return err
}

// LoadPosition reads the position slot.
func (s *SQLite) LoadPosition(ctx context.Context) (position.Position, bool, error) {
	var p position.Position
	var savedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT translation_id, book_id, book_name, chapter, unit_index, total_units, voice_kind, saved_at
		 FROM playback_position WHERE slot = 1`,
	).Scan(&p.TranslationID, &p.BookID, &p.BookName, &p.Chapter, &p.UnitIndex, &p.TotalUnits, &p.VoiceKind, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return position.Position{}, false, nil
	}
	if err != nil {
		return position.Position{}, false, err
	}
	p.Timestamp = time.Unix(0, savedAt)
	return p, true, nil
}

// ClearPosition empties the position slot.
func (s *SQLite) ClearPosition(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM playback_position WHERE slot = 1`)
	return err
}

// SaveUsage overwrites the usage counters.
func (s *SQLite) SaveUsage(ctx context.Context, c quota.Counters) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_counters (
			slot, daily_chars, monthly_chars, daily_reset_at, monthly_reset_at, updated_at
		) VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			daily_chars=excluded.daily_chars,
			monthly_chars=excluded.monthly_chars,
			daily_reset_at=excluded.daily_reset_at,
			monthly_reset_at=excluded.monthly_reset_at,
			updated_at=excluded.updated_at`,
		c.Daily,
		c.Monthly,
		c.DailyResetDate.UnixNano(),
		c.MonthlyResetDate.UnixNano(),
		s.now().UnixNano(),
	)
	return err
}

// LoadUsage reads the usage counters.
func (s *SQLite) LoadUsage(ctx context.Context) (quota.Counters, bool, error) {
	var c quota.Counters
	var daily, monthly int64
	err := s.db.QueryRowContext(ctx,
		`SELECT daily_chars, monthly_chars, daily_reset_at, monthly_reset_at
		 FROM usage_counters WHERE slot = 1`,
	).Scan(&c.Daily, &c.Monthly, &daily, &monthly)
	if errors.Is(err, sql.ErrNoRows) {
		return quota.Counters{}, false, nil
	}
	if err != nil {
		return quota.Counters{}, false, err
	}
	c.DailyResetDate = time.Unix(0, daily)
	c.MonthlyResetDate = time.Unix(0, monthly)
	return c, true, nil
}

// Flush checkpoints the write-ahead log into the main database file.
func (s *SQLite) Flush(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(FULL);"); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

var (
	_ position.Store = (*SQLite)(nil)
	_ quota.Store    = (*SQLite)(nil)
)
