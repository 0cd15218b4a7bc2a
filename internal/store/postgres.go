package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/saleready-cli/internal/db"
	"github.com/sells-group/saleready-cli/internal/lineage"
	"github.com/sells-group/saleready-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"insert_run":        `INSERT INTO runs (id, deal, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
	"update_run_status": `UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
	"get_run":           `SELECT id, deal, status, bundle, error, created_at, updated_at FROM runs WHERE id = $1`,
	"get_lineage":       `SELECT payload FROM lineage_records WHERE run_id = $1 ORDER BY position`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool exposes the underlying pool for subsystems needing direct access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	deal       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	bundle     JSONB,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS lineage_records (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	metric_name TEXT NOT NULL,
	position    INTEGER NOT NULL,
	payload     JSONB NOT NULL,
	PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_deal ON runs(deal);
CREATE INDEX IF NOT EXISTS idx_lineage_records_run_id ON lineage_records(run_id);
CREATE INDEX IF NOT EXISTS idx_lineage_records_metric ON lineage_records(metric_name);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, deal string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, deal, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, deal, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &model.Run{
		ID:        id,
		Deal:      deal,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

// FinishRun stores the bundle and bulk-upserts the lineage export, keyed by
// (run_id, position) so a recompute overwrites the earlier record set while
// a metric re-derived within one run keeps both of its sealed records.
func (s *PostgresStore) FinishRun(ctx context.Context, runID string, bundle *model.MetricsBundle, export *lineage.Export) error {
	bundleJSON, err := json.Marshal(bundle)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal bundle")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET bundle = $1, status = $2, error = NULL, updated_at = $3 WHERE id = $4`,
		bundleJSON, string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}

	if export == nil || len(export.Records) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(export.Records))
	for i, rec := range export.Records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal lineage record %s", rec.MetricName)
		}
		rows = append(rows, []any{runID, rec.MetricName, i, payload})
	}

	_, err = db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "lineage_records",
		Columns:      []string{"run_id", "metric_name", "position", "payload"},
		ConflictKeys: []string{"run_id", "position"},
	}, rows)
	if err != nil {
		return eris.Wrapf(err, "postgres: store lineage for run %s", runID)
	}

	// A recompute with fewer records would leave stale rows past the new set.
	_, err = s.pool.Exec(ctx,
		`DELETE FROM lineage_records WHERE run_id = $1 AND position >= $2`,
		runID, len(export.Records),
	)
	return eris.Wrapf(err, "postgres: trim lineage for run %s", runID)
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(model.RunStatusFailed), msg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, deal, status, bundle, error, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	)

	var (
		r          model.Run
		status     string
		bundleJSON []byte
		errMsg     *string
	)
	err := row.Scan(&r.ID, &r.Deal, &status, &bundleJSON, &errMsg, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(err, "postgres: get run %s: not found", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}

	r.Status = model.RunStatus(status)
	if len(bundleJSON) > 0 {
		r.Bundle = &model.MetricsBundle{}
		if err := json.Unmarshal(bundleJSON, r.Bundle); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal bundle")
		}
	}
	if errMsg != nil {
		r.Error = *errMsg
	}
	return &r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, deal, status, bundle, error, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	if filter.Deal != "" {
		args = append(args, filter.Deal)
		query += fmt.Sprintf(` AND deal = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(` LIMIT $%d`, len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var (
			r          model.Run
			status     string
			bundleJSON []byte
			errMsg     *string
		)
		if err := rows.Scan(&r.ID, &r.Deal, &status, &bundleJSON, &errMsg, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Status = model.RunStatus(status)
		if len(bundleJSON) > 0 {
			r.Bundle = &model.MetricsBundle{}
			if err := json.Unmarshal(bundleJSON, r.Bundle); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal bundle")
			}
		}
		if errMsg != nil {
			r.Error = *errMsg
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) GetLineage(ctx context.Context, runID string) (*lineage.Export, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM lineage_records WHERE run_id = $1 ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get lineage %s", runID)
	}
	defer rows.Close()

	var records []lineage.ExportRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan lineage record")
		}
		var rec lineage.ExportRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal lineage record")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: lineage iterate")
	}

	return &lineage.Export{Records: records, Summary: lineage.SummaryOf(records)}, nil
}
