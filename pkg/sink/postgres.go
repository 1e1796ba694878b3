package sink

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/lalafo-feed/pkg/listing"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createTableSQL = `CREATE TABLE IF NOT EXISTS %s (
	run_id       text        NOT NULL,
	page         integer     NOT NULL,
	position     integer     NOT NULL,
	id           text        NOT NULL,
	title        text        NOT NULL DEFAULT '',
	price        text        NOT NULL DEFAULT '',
	currency     text        NOT NULL DEFAULT '',
	city         text        NOT NULL DEFAULT '',
	views        text        NOT NULL DEFAULT '',
	is_vip       boolean     NOT NULL DEFAULT false,
	is_premium   boolean     NOT NULL DEFAULT false,
	url          text        NOT NULL DEFAULT '',
	created_time text        NOT NULL DEFAULT '',
	updated_time text        NOT NULL DEFAULT '',
	category_id  text        NOT NULL DEFAULT '',
	user_id      text        NOT NULL DEFAULT '',
	images_count integer     NOT NULL DEFAULT 0,
	description  text        NOT NULL DEFAULT '',
	inserted_at  timestamptz NOT NULL DEFAULT now()
)`

var postgresColumns = append([]string{"run_id", "page", "position"}, listing.Columns...)

// PostgresConfig configures the Postgres output.
type PostgresConfig struct {
	DSN string
	// Table may be schema-qualified ("feeds.listings")
	Table    string
	RunID    string
	MaxConns int
}

// PostgresOutput copies each page into a table inside its own transaction.
// Rows are tagged with the run id and page; there is no uniqueness constraint.
type PostgresOutput struct {
	pool     *pgxpool.Pool
	table    pgx.Identifier
	runID    string
	location string
}

// NewPostgresOutput opens a connection pool for cfg.DSN.
func NewPostgresOutput(ctx context.Context, cfg PostgresConfig) (*PostgresOutput, error) {
	if cfg.Table == "" {
		return nil, fmt.Errorf("postgres table is required")
	}
	if cfg.RunID == "" {
		return nil, fmt.Errorf("run id is required")
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = 2
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	return &PostgresOutput{
		pool:  pool,
		table: pgx.Identifier(strings.Split(cfg.Table, ".")),
		runID: cfg.RunID,
		location: fmt.Sprintf("postgres://%s:%d/%s (%s)",
			poolCfg.ConnConfig.Host, poolCfg.ConnConfig.Port, poolCfg.ConnConfig.Database, cfg.Table),
	}, nil
}

// Begin checks connectivity and creates the table if it does not exist.
func (o *PostgresOutput) Begin(ctx context.Context) error {
	if err := o.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := o.pool.Exec(ctx, fmt.Sprintf(createTableSQL, o.table.Sanitize())); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// Append copies the page's rows and commits; the commit is the durable flush.
func (o *PostgresOutput) Append(ctx context.Context, page int, rows []listing.Listing) error {
	if len(rows) == 0 {
		return nil
	}

	start := time.Now()
	tx, err := o.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin page %d: %w", page, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	n, err := tx.CopyFrom(ctx, o.table, postgresColumns, pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		r := rows[i]
		return []any{
			o.runID, page, i,
			r.ID, r.Title, r.Price, r.Currency, r.City, r.Views,
			r.IsVIP, r.IsPremium, r.URL, r.CreatedTime, r.UpdatedTime,
			r.CategoryID, r.UserID, r.ImagesCount, r.Description,
		}, nil
	}))
	if err != nil {
		return fmt.Errorf("copy page %d: %w", page, err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("copy page %d: wrote %d of %d rows", page, n, len(rows))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit page %d: %w", page, err)
	}

	commitDuration.WithLabelValues("postgres").Observe(time.Since(start).Seconds())
	rowsWrittenTotal.WithLabelValues("postgres").Add(float64(len(rows)))
	return nil
}

// Location describes the target table.
func (o *PostgresOutput) Location() string {
	return o.location
}

// Close releases the pool.
func (o *PostgresOutput) Close() error {
	o.pool.Close()
	return nil
}
