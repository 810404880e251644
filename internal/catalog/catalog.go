// Package catalog keeps the relational record of ingested resources.
// It is written best-effort by the ingestion pipeline and read by
// operational tooling.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	// Drivers registered for the supported catalog backends.
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/singularity-ai/knowledge-core/internal/kgerrors"
)

// DB is the subset of *sql.DB the catalog uses.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Record is one ingested resource.
type Record struct {
	ID              uuid.UUID
	ResourceID      string
	ResourcePointID int64
	ParserType      string
	FragmentCount   int
	SegmentCount    int
	PayloadSHA256   string
	SingularityID   *int64
	CreatedAt       time.Time
}

// Catalog stores ingestion records on database/sql. Both the sqlite3 and
// the postgres driver understand the $N placeholders used here.
type Catalog struct {
	db DB
}

// Open connects via the named driver ("sqlite3" or "postgres") and runs
// the schema migration.
func Open(ctx context.Context, driver, dsn string) (*Catalog, *sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open catalog db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping catalog db: %w", err)
	}
	c := New(db)
	if err := c.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return c, db, nil
}

// New wraps an existing connection without migrating.
func New(db DB) *Catalog {
	return &Catalog{db: db}
}

// Migrate creates the resources table if it is missing.
func (c *Catalog) Migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS resources (
			id TEXT PRIMARY KEY,
			resource_id TEXT NOT NULL UNIQUE,
			resource_point_id BIGINT NOT NULL,
			parser_type TEXT NOT NULL,
			fragment_count INTEGER NOT NULL,
			segment_count INTEGER NOT NULL,
			payload_sha256 TEXT NOT NULL,
			singularity_id BIGINT,
			created_at TIMESTAMP NOT NULL
		)
	`
	if _, err := c.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("migrate catalog: %w", err)
	}
	return nil
}

// RecordIngestion inserts the record for a completed ingestion.
// Re-ingesting the same resource id replaces the previous record.
func (c *Catalog) RecordIngestion(ctx context.Context, rec Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	// Delete-then-insert keeps the statement portable across both drivers.
	if _, err := c.db.ExecContext(ctx, `DELETE FROM resources WHERE resource_id = $1`, rec.ResourceID); err != nil {
		return fmt.Errorf("replace catalog record: %w", err)
	}
	query := `
		INSERT INTO resources (id, resource_id, resource_point_id, parser_type,
			fragment_count, segment_count, payload_sha256, singularity_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := c.db.ExecContext(ctx, query,
		rec.ID.String(), rec.ResourceID, rec.ResourcePointID, rec.ParserType,
		rec.FragmentCount, rec.SegmentCount, rec.PayloadSHA256, rec.SingularityID, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert catalog record: %w", err)
	}
	return nil
}

// GetResource loads the record for a resource id.
func (c *Catalog) GetResource(ctx context.Context, resourceID string) (Record, error) {
	query := `
		SELECT id, resource_id, resource_point_id, parser_type,
			fragment_count, segment_count, payload_sha256, singularity_id, created_at
		FROM resources WHERE resource_id = $1
	`
	var rec Record
	var id string
	err := c.db.QueryRowContext(ctx, query, resourceID).Scan(
		&id, &rec.ResourceID, &rec.ResourcePointID, &rec.ParserType,
		&rec.FragmentCount, &rec.SegmentCount, &rec.PayloadSHA256, &rec.SingularityID, &rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, kgerrors.NotFound("resource", resourceID)
	}
	if err != nil {
		return Record{}, fmt.Errorf("load catalog record: %w", err)
	}
	rec.ID, err = uuid.Parse(id)
	if err != nil {
		return Record{}, fmt.Errorf("parse catalog record id: %w", err)
	}
	return rec, nil
}

// CountResources returns the number of catalog records.
func (c *Catalog) CountResources(ctx context.Context) (int64, error) {
	var count int64
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM resources`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count catalog records: %w", err)
	}
	return count, nil
}

// ListResources returns the most recent records, newest first.
func (c *Catalog) ListResources(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, resource_id, resource_point_id, parser_type,
			fragment_count, segment_count, payload_sha256, singularity_id, created_at
		FROM resources ORDER BY created_at DESC LIMIT $1
	`
	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list catalog records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var id string
		if err := rows.Scan(
			&id, &rec.ResourceID, &rec.ResourcePointID, &rec.ParserType,
			&rec.FragmentCount, &rec.SegmentCount, &rec.PayloadSHA256, &rec.SingularityID, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan catalog record: %w", err)
		}
		rec.ID, err = uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse catalog record id: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
