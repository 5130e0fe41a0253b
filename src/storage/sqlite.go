package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"market-feed/src/logger"
	"market-feed/src/models"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// -----------------------------------------------------------------------------

// SQLiteArchive appends every tick's commodity quotes to a local SQLite file.
// Each process run gets its own run_id so tick numbers never collide.
type SQLiteArchive struct {
	Path   string
	RunID  string
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewSQLiteArchive(path string, log *logger.Logger) *SQLiteArchive {
	return &SQLiteArchive{
		Path:   path,
		RunID:  uuid.NewString(),
		Logger: log,
	}
}

// -----------------------------------------------------------------------------

func (d *SQLiteArchive) Name() string {
	return "sqlite"
}

// -----------------------------------------------------------------------------

func (d *SQLiteArchive) Initialize(ctx context.Context) error {
	if d.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(d.Path), 0o755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", d.Path)
	if err != nil {
		return err
	}
	// single writer; WAL allows concurrent readers
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return err
	}

	d.DB = db

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	return d.createTables(ctx)
}

// -----------------------------------------------------------------------------

func (d *SQLiteArchive) createTables(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS commodity_ticks (
			run_id TEXT,
			tick INTEGER,
			ts INTEGER,
			name TEXT,
			price REAL,
			change REAL,
			trend TEXT,
			PRIMARY KEY (run_id, tick, name)
		);
	`
	if _, err := d.DB.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create commodity_ticks: %w", err)
	}

	if _, err := d.DB.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_commodity_ticks_name_ts ON commodity_ticks (name, ts)`); err != nil {
		return fmt.Errorf("failed to create commodity_ticks index: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *SQLiteArchive) Record(ctx context.Context, record models.MTickRecord) error {
	if len(record.Commodities) == 0 {
		return nil
	}

	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO commodity_ticks (run_id, tick, ts, name, price, change, trend)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	ts := record.Timestamp.UTC().UnixMilli()
	for _, c := range record.Commodities {
		if _, err := stmt.ExecContext(ctx, d.RunID, record.Tick, ts, c.Name, c.Price, c.Change, c.Trend); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

// Recent returns up to limit archived quotes for one commodity, newest first.
func (d *SQLiteArchive) Recent(ctx context.Context, name string, limit int) ([]models.MCommodity, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT name, price, change, trend FROM commodity_ticks
		WHERE name = ? ORDER BY ts DESC, tick DESC LIMIT ?
	`, name, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.MCommodity
	for rows.Next() {
		var c models.MCommodity
		if err := rows.Scan(&c.Name, &c.Price, &c.Change, &c.Trend); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

func (d *SQLiteArchive) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
