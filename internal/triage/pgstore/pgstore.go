// Package pgstore provides a PostgreSQL implementation of triage.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/sift/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/sift/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// Store persists triage outcomes in PostgreSQL, one row per source key.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store. The caller owns the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const outcomeColumns = `source_key, run_id, state, stage, error_kind, error, priority, sentiment,
	negative_score, archive_key, destination, attempts, first_seen_at, updated_at`

// Get retrieves the outcome recorded for sourceKey.
func (s *Store) Get(ctx context.Context, sourceKey string) (*triage.Outcome, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + outcomeColumns + ` FROM triage_outcomes WHERE source_key = $1`
	o, err := scanOutcome(s.pool.QueryRow(ctx, query, sourceKey))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	if o == nil {
		return nil, false, nil
	}
	return o, true, nil
}

// Record inserts or replaces the outcome for o.SourceKey and returns the
// stored row. attempts is incremented and first_seen_at kept by the upsert
// itself, so concurrent attempts on one key are all counted.
func (s *Store) Record(ctx context.Context, o *triage.Outcome) (*triage.Outcome, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Record", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	query := `INSERT INTO triage_outcomes (` + outcomeColumns + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,1,$12,$13)
	ON CONFLICT (source_key) DO UPDATE SET
		run_id         = EXCLUDED.run_id,
		state          = EXCLUDED.state,
		stage          = EXCLUDED.stage,
		error_kind     = EXCLUDED.error_kind,
		error          = EXCLUDED.error,
		priority       = EXCLUDED.priority,
		sentiment      = EXCLUDED.sentiment,
		negative_score = EXCLUDED.negative_score,
		archive_key    = EXCLUDED.archive_key,
		destination    = EXCLUDED.destination,
		attempts       = triage_outcomes.attempts + 1,
		updated_at     = EXCLUDED.updated_at
	RETURNING ` + outcomeColumns

	stored, err := scanOutcome(s.pool.QueryRow(ctx, query,
		o.SourceKey, o.RunID, string(o.State), string(o.Stage), string(o.ErrorKind), o.Error,
		string(o.Priority), o.Sentiment, o.NegativeScore, o.ArchiveKey, o.Destination,
		o.FirstSeenAt, o.UpdatedAt,
	))
	if err == nil && stored == nil {
		err = errors.New("upsert returned no row")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("upsert outcome: %w", err)
	}
	span.SetAttributes(attribute.Int("sift.attempts", stored.Attempts))
	return stored, nil
}

// scanOutcome scans a single row. Returns (nil, nil) when no row is found.
func scanOutcome(row pgx.Row) (*triage.Outcome, error) {
	var (
		o                            triage.Outcome
		state, stage, kind, priority string
	)
	err := row.Scan(
		&o.SourceKey, &o.RunID, &state, &stage, &kind, &o.Error, &priority, &o.Sentiment,
		&o.NegativeScore, &o.ArchiveKey, &o.Destination, &o.Attempts, &o.FirstSeenAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan: %w", err)
	}
	o.State = triage.State(state)
	o.Stage = triage.Stage(stage)
	o.ErrorKind = triage.Kind(kind)
	o.Priority = triage.Tier(priority)
	o.FirstSeenAt = o.FirstSeenAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &o, nil
}
