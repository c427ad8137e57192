package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"github.com/deusflow/aurore/internal/news"
)

const processedTable = "processed_articles"

// PostgresStore keeps processed records in PostgreSQL.
type PostgresStore struct {
	db  *sql.DB
	sb  sq.StatementBuilderType
	log *slog.Logger
}

// NewPostgresStore connects and makes sure the table exists.
func NewPostgresStore(ctx context.Context, connectionString string, log *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	ps := newPostgresStore(db, log)
	if err := ps.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	log.Info("postgres store connected")
	return ps, nil
}

func newPostgresStore(db *sql.DB, log *slog.Logger) *PostgresStore {
	return &PostgresStore{
		db:  db,
		sb:  sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		log: log,
	}
}

func (ps *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS processed_articles (
		fingerprint VARCHAR(64) PRIMARY KEY,
		processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		published_at TIMESTAMPTZ,
		title TEXT,
		source_url TEXT,
		page_url TEXT,
		pull_request TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_processed_articles_processed_at ON processed_articles(processed_at);
	`
	_, err := ps.db.ExecContext(ctx, schema)
	return err
}

func (ps *PostgresStore) hasQuery(fp news.Fingerprint) (string, []any, error) {
	return ps.sb.Select("1").
		From(processedTable).
		Where(sq.Eq{"fingerprint": string(fp)}).
		Limit(1).
		ToSql()
}

func (ps *PostgresStore) markQuery(rec Record) (string, []any, error) {
	var published any
	if !rec.PublishedAt.IsZero() {
		published = rec.PublishedAt
	}
	return ps.sb.Insert(processedTable).
		Columns("fingerprint", "processed_at", "published_at", "title", "source_url", "page_url", "pull_request").
		Values(string(rec.Fingerprint), rec.ProcessedAt, published, rec.Title, rec.SourceURL, rec.PageURL, rec.PullRequest).
		Suffix("ON CONFLICT (fingerprint) DO NOTHING").
		ToSql()
}

func (ps *PostgresStore) Has(ctx context.Context, fp news.Fingerprint) (bool, error) {
	query, args, err := ps.hasQuery(fp)
	if err != nil {
		return false, err
	}
	var one int
	err = ps.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("postgres has %s: %w", fp, err)
	}
	return true, nil
}

func (ps *PostgresStore) Mark(ctx context.Context, rec Record) error {
	query, args, err := ps.markQuery(rec)
	if err != nil {
		return err
	}
	if _, err := ps.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("postgres mark %s: %w", rec.Fingerprint, err)
	}
	return nil
}

func (ps *PostgresStore) Close() error {
	if ps.db != nil {
		return ps.db.Close()
	}
	return nil
}
