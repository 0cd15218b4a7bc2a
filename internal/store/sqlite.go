package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/saleready-cli/internal/lineage"
	"github.com/sells-group/saleready-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	deal       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	bundle     TEXT,
	error      TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS lineage_records (
	run_id      TEXT NOT NULL REFERENCES runs(id),
	metric_name TEXT NOT NULL,
	position    INTEGER NOT NULL,
	payload     TEXT NOT NULL,
	PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_deal ON runs(deal);
CREATE INDEX IF NOT EXISTS idx_lineage_records_run_id ON lineage_records(run_id);
CREATE INDEX IF NOT EXISTS idx_lineage_records_metric ON lineage_records(metric_name);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, deal string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, deal, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, deal, string(model.RunStatusQueued), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Deal:      deal,
		Status:    model.RunStatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

// FinishRun stores the bundle and the full lineage export, marking the run
// complete, in one transaction.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, bundle *model.MetricsBundle, export *lineage.Export) error {
	bundleJSON, err := json.Marshal(bundle)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal bundle")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE runs SET bundle = ?, status = ?, error = NULL, updated_at = ? WHERE id = ?`,
		string(bundleJSON), string(model.RunStatusComplete), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	if err := checkRowsAffected(res, "run", runID); err != nil {
		return err
	}

	// Recomputed runs replace their earlier lineage wholesale.
	if _, err := tx.ExecContext(ctx, `DELETE FROM lineage_records WHERE run_id = ?`, runID); err != nil {
		return eris.Wrapf(err, "sqlite: clear lineage for run %s", runID)
	}
	if export != nil {
		for i, rec := range export.Records {
			payload, err := json.Marshal(rec)
			if err != nil {
				return eris.Wrapf(err, "sqlite: marshal lineage record %s", rec.MetricName)
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO lineage_records (run_id, metric_name, position, payload) VALUES (?, ?, ?, ?)`,
				runID, rec.MetricName, i, string(payload),
			)
			if err != nil {
				return eris.Wrapf(err, "sqlite: insert lineage record %s", rec.MetricName)
			}
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit finish run")
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), msg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, deal, status, bundle, error, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, deal, status, bundle, error, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Deal != "" {
		query += ` AND deal = ?`
		args = append(args, filter.Deal)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) GetLineage(ctx context.Context, runID string) (*lineage.Export, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM lineage_records WHERE run_id = ? ORDER BY position`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get lineage %s", runID)
	}
	defer rows.Close()

	var records []lineage.ExportRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan lineage record")
		}
		var rec lineage.ExportRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal lineage record")
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: lineage iterate")
	}

	return &lineage.Export{Records: records, Summary: lineage.SummaryOf(records)}, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var r model.Run
	var bundleJSON, errMsg sql.NullString

	err := row.Scan(&r.ID, &r.Deal, &r.Status, &bundleJSON, &errMsg, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: scan run")
	}

	if bundleJSON.Valid && bundleJSON.String != "" {
		r.Bundle = &model.MetricsBundle{}
		if err := json.Unmarshal([]byte(bundleJSON.String), r.Bundle); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal bundle")
		}
	}
	if errMsg.Valid {
		r.Error = errMsg.String
	}
	return &r, nil
}
