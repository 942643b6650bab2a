package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"workshops.nibm.studio/internal/config"
	dbpgx "workshops.nibm.studio/internal/database/pgx"
	"workshops.nibm.studio/internal/workshop"
)

type Database struct {
	pg *pgxpool.Pool
}

// NewForConfig constructs a Database using the provided config.
func NewForConfig(cfg *config.Config) (*Database, error) {
	pg, err := dbpgx.NewClientForConfig(cfg)
	if err != nil {
		return nil, err
	}
	return NewClient(pg), nil
}

// NewClient constructs a Database using the provided pgx pool.
func NewClient(pg *pgxpool.Pool) *Database { return &Database{pg: pg} }

// Pool returns the underlying pgx pool.
func (db *Database) Pool() *pgxpool.Pool { return db.pg }

// Ping verifies the provided database connection is available
func (db *Database) Ping(ctx context.Context) error {
	tracer := otel.Tracer("workshops/database")
	ctx, span := tracer.Start(ctx, "Database.Ping")
	defer span.End()
	if db.pg == nil {
		return fmt.Errorf("database connection not available")
	}
	return db.pg.Ping(ctx)
}

func (db *Database) Close() error {
	if db.pg == nil {
		return nil
	}
	db.pg.Close()
	return nil
}

// SaveSnapshot archives one assembly: the snapshot row, one row per
// workshop and the raw READMEs, in a single transaction.
func (db *Database) SaveSnapshot(ctx context.Context, args SaveSnapshotArgs) (uint64, error) {
	tracer := otel.Tracer("workshops/database")
	ctx, span := tracer.Start(ctx, "Database.SaveSnapshot")
	span.SetAttributes(
		attribute.Int("workshops_len", len(args.Workshops)),
		attribute.Int("readmes_len", len(args.Readmes)),
	)
	defer span.End()
	if db.pg == nil {
		return 0, fmt.Errorf("database connection not available")
	}

	tx, err := db.pg.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin snapshot transaction failed: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	repos := args.Repos
	if repos == nil {
		repos = []string{}
	}
	var id int64
	if err := tx.QueryRow(ctx, InsertSnapshotQuery, args.Organization, args.AssembledAt, repos).Scan(&id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("insert snapshot failed: %w", err)
	}

	b := &pgx.Batch{}
	for i, w := range args.Workshops {
		payload, err := json.Marshal(w)
		if err != nil {
			return 0, fmt.Errorf("encode workshop %s failed: %w", w.ID, err)
		}
		var date *time.Time
		if w.HasDate() {
			date = &w.Date
		}
		b.Queue(InsertWorkshopQuery, id, i, w.ID, string(w.Status), string(w.Topic), date, string(payload))
	}
	for repo, body := range args.Readmes {
		b.Queue(InsertReadmeQuery, id, repo, body)
	}
	slog.DebugContext(ctx, "save snapshot queued", "snapshot_id", id, "count", b.Len())
	if err := tx.SendBatch(ctx, b).Close(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("insert snapshot rows failed: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit snapshot failed: %w", err)
	}
	return uint64(id), nil
}

// LatestSnapshot returns the most recently assembled snapshot, or nil when
// none was stored yet.
func (db *Database) LatestSnapshot(ctx context.Context) (*StoredSnapshot, error) {
	tracer := otel.Tracer("workshops/database")
	ctx, span := tracer.Start(ctx, "Database.LatestSnapshot")
	defer span.End()
	if db.pg == nil {
		return nil, fmt.Errorf("database connection not available")
	}

	var s StoredSnapshot
	err := db.pg.QueryRow(ctx, LatestSnapshotQuery).Scan(&s.ID, &s.Organization, &s.AssembledAt, &s.Repos)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("load latest snapshot failed: %w", err)
	}
	s.Workshops, err = db.ListWorkshops(ctx, ListWorkshopsArgs{SnapshotID: s.ID})
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "latest snapshot loaded", "snapshot_id", s.ID, "workshops", len(s.Workshops))
	return &s, nil
}

// ListWorkshops returns the workshops of a snapshot in stored order.
func (db *Database) ListWorkshops(ctx context.Context, args ListWorkshopsArgs) ([]*workshop.Workshop, error) {
	tracer := otel.Tracer("workshops/database")
	ctx, span := tracer.Start(ctx, "Database.ListWorkshops")
	span.SetAttributes(attribute.Int64("snapshot_id", int64(args.SnapshotID)))
	defer span.End()
	if db.pg == nil {
		return nil, fmt.Errorf("database connection not available")
	}
	query, qargs, err := RenderListWorkshopsQuery(args)
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "list workshops query", "sql", query, "args_len", len(qargs))
	rows, err := db.pg.Query(ctx, query, qargs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("list workshops query failed: %w", err)
	}
	payloads, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	out := make([]*workshop.Workshop, 0, len(payloads))
	for _, p := range payloads {
		var w workshop.Workshop
		if err := json.Unmarshal(p, &w); err != nil {
			return nil, fmt.Errorf("decode workshop failed: %w", err)
		}
		out = append(out, &w)
	}
	return out, nil
}

// GetReadme returns the archived README of repo in a snapshot, or "" when
// it was not stored.
func (db *Database) GetReadme(ctx context.Context, snapshotID uint64, repo string) (string, error) {
	if db.pg == nil {
		return "", fmt.Errorf("database connection not available")
	}
	var body string
	if err := db.pg.QueryRow(ctx, ReadmeQuery, snapshotID, repo).Scan(&body); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("load readme failed: %w", err)
	}
	return body, nil
}

// ListSnapshots returns summaries of the most recent snapshots.
func (db *Database) ListSnapshots(ctx context.Context, limit int) ([]SnapshotSummary, error) {
	tracer := otel.Tracer("workshops/database")
	ctx, span := tracer.Start(ctx, "Database.ListSnapshots")
	span.SetAttributes(attribute.Int("limit", limit))
	defer span.End()
	if db.pg == nil {
		return nil, fmt.Errorf("database connection not available")
	}
	rows, err := db.pg.Query(ctx, ListSnapshotsQuery, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("list snapshots query failed: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[SnapshotSummary])
}
