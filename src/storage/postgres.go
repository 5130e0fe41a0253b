package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"market-feed/src/helpers"
	"market-feed/src/logger"
	"market-feed/src/models"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// -----------------------------------------------------------------------------

// PostgresArchive is the shared-database variant of SQLiteArchive.
type PostgresArchive struct {
	DSN    string
	Schema string
	RunID  string
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPostgresArchive(dsn string, schema string, log *logger.Logger) *PostgresArchive {
	if schema == "" {
		schema = "market_feed"
	}
	return &PostgresArchive{
		DSN:    dsn,
		Schema: schema,
		RunID:  uuid.NewString(),
		Logger: log,
	}
}

// -----------------------------------------------------------------------------

func (d *PostgresArchive) Name() string {
	return "postgres"
}

// -----------------------------------------------------------------------------

func (d *PostgresArchive) Initialize(ctx context.Context) error {
	db, err := sql.Open("postgres", d.DSN)
	if err != nil {
		return err
	}

	// The database may still be starting next to us
	err = helpers.RetryWithBackoff("postgres ping", 3, 500*time.Millisecond, d.Logger, func() error {
		return db.PingContext(ctx)
	})
	if err != nil {
		db.Close()
		return err
	}

	d.DB = db

	if _, err := d.DB.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, d.Schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", d.Schema, err)
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s".commodity_ticks (
			run_id UUID,
			tick BIGINT,
			ts TIMESTAMPTZ,
			name TEXT,
			price DOUBLE PRECISION,
			change DOUBLE PRECISION,
			trend TEXT,
			PRIMARY KEY (run_id, tick, name)
		);
	`, d.Schema)
	if _, err := d.DB.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create commodity_ticks: %w", err)
	}

	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresArchive) Record(ctx context.Context, record models.MTickRecord) error {
	if len(record.Commodities) == 0 {
		return nil
	}

	tx, err := d.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO "%s".commodity_ticks (run_id, tick, ts, name, price, change, trend)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id, tick, name) DO NOTHING
	`, d.Schema))
	if err != nil {
		return err
	}
	defer stmt.Close()

	ts := record.Timestamp.UTC()
	for _, c := range record.Commodities {
		if _, err := stmt.ExecContext(ctx, d.RunID, record.Tick, ts, c.Name, c.Price, c.Change, c.Trend); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// -----------------------------------------------------------------------------

func (d *PostgresArchive) Close() error {
	if d.DB != nil {
		return d.DB.Close()
	}
	return nil
}
