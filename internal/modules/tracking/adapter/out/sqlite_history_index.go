package out

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/hashicorp/go-hclog"

	"jogtrack/internal/modules/tracking/domain"
	trackingout "jogtrack/internal/modules/tracking/port/out"

	_ "modernc.org/sqlite"
)

// fixed-width UTC timestamps sort correctly as text
const timeLayout = "2006-01-02T15:04:05.000000000Z"

//go:embed migrations/*.sql
var migrationsFS embed.FS

type SQLiteHistoryIndex struct {
	db *sql.DB
}

func NewSQLiteHistoryIndex(dbPath string, logger hclog.Logger) (*SQLiteHistoryIndex, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := migrateUp(db, logger); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteHistoryIndex{db: db}, nil
}

func migrateUp(db *sql.DB, logger hclog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	// m.Close would close db as well; the index keeps using it.
	m.Log = migrateLogger{logger: logger}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate history index: %w", err)
	}
	return nil
}

type migrateLogger struct {
	logger hclog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	if l.logger != nil {
		l.logger.Debug(fmt.Sprintf("migrate: "+format, v...))
	}
}

func (l migrateLogger) Verbose() bool { return false }

func (s *SQLiteHistoryIndex) Upsert(ctx context.Context, summary domain.Summary) error {
	const stmt = `
INSERT INTO sessions (id, started_at, stopped_at, total_steps, total_distance_meters, duration_seconds, active_seconds, average_speed_mps)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  started_at=excluded.started_at,
  stopped_at=excluded.stopped_at,
  total_steps=excluded.total_steps,
  total_distance_meters=excluded.total_distance_meters,
  duration_seconds=excluded.duration_seconds,
  active_seconds=excluded.active_seconds,
  average_speed_mps=excluded.average_speed_mps;
`
	_, err := s.db.ExecContext(ctx, stmt,
		summary.SessionID,
		summary.StartedAt.UTC().Format(timeLayout),
		summary.StoppedAt.UTC().Format(timeLayout),
		summary.TotalSteps,
		summary.TotalDistanceMeters,
		summary.DurationSeconds,
		summary.ActiveSeconds,
		summary.AverageSpeedMPS,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// List returns the most recently stopped sessions first. limit <= 0 returns all.
func (s *SQLiteHistoryIndex) List(ctx context.Context, limit int) ([]domain.Summary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, started_at, stopped_at, total_steps, total_distance_meters, duration_seconds, active_seconds, average_speed_mps
FROM sessions
ORDER BY stopped_at DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	out := []domain.Summary{}
	for rows.Next() {
		var (
			summary            domain.Summary
			startedAt, stopped string
		)
		if err := rows.Scan(&summary.SessionID, &startedAt, &stopped, &summary.TotalSteps, &summary.TotalDistanceMeters, &summary.DurationSeconds, &summary.ActiveSeconds, &summary.AverageSpeedMPS); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		if summary.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if summary.StoppedAt, err = time.Parse(timeLayout, stopped); err != nil {
			return nil, fmt.Errorf("parse stopped_at: %w", err)
		}
		out = append(out, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

func (s *SQLiteHistoryIndex) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions`); err != nil {
		return fmt.Errorf("reset sessions: %w", err)
	}
	return nil
}

func (s *SQLiteHistoryIndex) Close() error {
	return s.db.Close()
}

var _ trackingout.HistoryIndex = (*SQLiteHistoryIndex)(nil)
