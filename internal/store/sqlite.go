package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/signal-service/internal/model"
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
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS signals (
	id         TEXT PRIMARY KEY,
	doc        TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS signal_contents (
	value        TEXT NOT NULL,
	content_type TEXT NOT NULL,
	signal_id    TEXT NOT NULL REFERENCES signals(id) ON DELETE CASCADE,
	PRIMARY KEY (value, signal_id)
);

CREATE INDEX IF NOT EXISTS idx_signal_contents_value ON signal_contents(value);
CREATE INDEX IF NOT EXISTS idx_signal_contents_signal_id ON signal_contents(signal_id);
CREATE INDEX IF NOT EXISTS idx_signal_contents_type ON signal_contents(content_type);

CREATE TABLE IF NOT EXISTS cases (
	id                 TEXT PRIMARY KEY,
	doc                TEXT NOT NULL,
	state              TEXT NOT NULL DEFAULT 'ACTIVE',
	target_id          TEXT,
	priority           INTEGER NOT NULL DEFAULT -1,
	created_at         DATETIME NOT NULL DEFAULT (datetime('now')),
	review_update_time DATETIME
);

CREATE INDEX IF NOT EXISTS idx_cases_priority_id ON cases(priority DESC, id ASC);
CREATE INDEX IF NOT EXISTS idx_cases_state ON cases(state);
CREATE INDEX IF NOT EXISTS idx_cases_target_id ON cases(target_id);

CREATE TABLE IF NOT EXISTS targets (
	id         TEXT PRIMARY KEY,
	doc        TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS jobs (
	id                                 TEXT PRIMARY KEY,
	status                             TEXT NOT NULL DEFAULT 'IN_PROGRESS',
	type                               TEXT NOT NULL,
	source                             TEXT NOT NULL,
	start_time                         DATETIME NOT NULL DEFAULT (datetime('now')),
	import_size                        INTEGER NOT NULL DEFAULT 0,
	update_size                        INTEGER NOT NULL DEFAULT 0,
	delete_size                        INTEGER NOT NULL DEFAULT 0,
	continuation_token                 TEXT NOT NULL DEFAULT '',
	last_successful_continuation_token TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_jobs_source_status ON jobs(source, status, start_time DESC);

CREATE TABLE IF NOT EXISTS importer_configs (
	type       TEXT PRIMARY KEY,
	doc        TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS index_snapshots (
	name       TEXT PRIMARY KEY,
	blob       BLOB NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS locks (
	name       TEXT PRIMARY KEY,
	holder     TEXT NOT NULL,
	expires_at DATETIME NOT NULL
);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Signals

func (s *SQLiteStore) CreateSignal(ctx context.Context, sig model.Signal) (*model.Signal, error) {
	if sig.ID == "" {
		sig.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	doc, err := json.Marshal(sig)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal signal")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO signals (id, doc, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		sig.ID, string(doc), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert signal")
	}

	if err := s.replaceSignalContents(ctx, sig); err != nil {
		return nil, err
	}
	return &sig, nil
}

func (s *SQLiteStore) UpdateSignal(ctx context.Context, sig model.Signal) error {
	if sig.ID == "" {
		return eris.New("sqlite: update signal without id")
	}

	doc, err := json.Marshal(sig)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal signal")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE signals SET doc = ?, updated_at = ? WHERE id = ?`,
		string(doc), time.Now().UTC(), sig.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update signal %s", sig.ID)
	}
	if err := checkRowsAffected(res, "signal", sig.ID); err != nil {
		return err
	}
	return s.replaceSignalContents(ctx, sig)
}

func (s *SQLiteStore) replaceSignalContents(ctx context.Context, sig model.Signal) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM signal_contents WHERE signal_id = ?`, sig.ID); err != nil {
		return eris.Wrapf(err, "sqlite: clear signal contents %s", sig.ID)
	}

	for _, c := range sig.Content {
		if c.Value == "" || c.Value == model.RedactedValue {
			continue
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO signal_contents (value, content_type, signal_id) VALUES (?, ?, ?)`,
			c.Value, string(c.ContentType), sig.ID,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: write signal content %s", sig.ID)
		}
	}
	return nil
}

func (s *SQLiteStore) GetSignal(ctx context.Context, id string) (*model.Signal, error) {
	row := s.db.QueryRowContext(ctx, `SELECT doc FROM signals WHERE id = ?`, id)
	return scanSignalDoc(row)
}

func (s *SQLiteStore) GetSignalByContent(ctx context.Context, value string) (*model.Signal, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT s.doc FROM signals s JOIN signal_contents c ON c.signal_id = s.id WHERE c.value = ? LIMIT 1`,
		value,
	)
	return scanSignalDoc(row)
}

func (s *SQLiteStore) GetSignalsByIDs(ctx context.Context, ids []string) ([]model.Signal, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT doc FROM signals WHERE id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get signals by ids")
	}
	defer rows.Close()

	return scanSignalDocs(rows)
}

func (s *SQLiteStore) ListSignals(ctx context.Context, filter SignalFilter) ([]model.Signal, error) {
	query := `SELECT s.doc FROM signals s WHERE 1=1`
	var args []any

	if filter.ContentType != "" && filter.ContentType != model.ContentTypeUnknown {
		query += ` AND EXISTS (SELECT 1 FROM signal_contents c WHERE c.signal_id = s.id AND c.content_type = ?)`
		args = append(args, string(filter.ContentType))
	}
	query += ` ORDER BY s.created_at ASC, s.id ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list signals")
	}
	defer rows.Close()

	return scanSignalDocs(rows)
}

// Cases

func (s *SQLiteStore) CreateCase(ctx context.Context, c model.Case) (*model.Case, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreateTime.IsZero() {
		c.CreateTime = time.Now().UTC()
	}

	doc, err := json.Marshal(c)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal case")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cases (id, doc, state, target_id, priority, created_at, review_update_time) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, string(doc), string(c.State), nullString(c.TargetID), c.CachedPriority, c.CreateTime, latestReviewTime(&c),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert case")
	}
	return &c, nil
}

func (s *SQLiteStore) UpdateCase(ctx context.Context, c model.Case) error {
	if c.ID == "" {
		return eris.New("sqlite: update case without id")
	}

	doc, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal case")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE cases SET doc = ?, state = ?, target_id = ?, priority = ?, review_update_time = ? WHERE id = ?`,
		string(doc), string(c.State), nullString(c.TargetID), c.CachedPriority, latestReviewTime(&c), c.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update case %s", c.ID)
	}
	return checkRowsAffected(res, "case", c.ID)
}

func (s *SQLiteStore) GetCase(ctx context.Context, id string) (*model.Case, error) {
	row := s.db.QueryRowContext(ctx, `SELECT doc FROM cases WHERE id = ?`, id)
	return scanCaseDoc(row)
}

func (s *SQLiteStore) ListCases(ctx context.Context, q CaseQuery) ([]model.Case, error) {
	query := `SELECT doc FROM cases WHERE 1=1`
	var args []any

	if q.State != "" {
		query += ` AND state = ?`
		args = append(args, string(q.State))
	}
	if q.SignalID != "" {
		query += ` AND EXISTS (SELECT 1 FROM json_each(doc, '$.signal_ids') je WHERE je.value = ?)`
		args = append(args, q.SignalID)
	}

	if q.Boundary != nil {
		if q.Backward {
			query += ` AND (priority > ? OR (priority = ? AND id < ?))`
		} else {
			query += ` AND (priority < ? OR (priority = ? AND id > ?))`
		}
		args = append(args, q.Boundary.Priority, q.Boundary.Priority, q.Boundary.ID)
	}

	if q.Backward {
		query += ` ORDER BY priority ASC, id DESC`
	} else {
		query += ` ORDER BY priority DESC, id ASC`
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list cases")
	}
	defer rows.Close()

	cases, err := scanCaseDocs(rows)
	if err != nil {
		return nil, err
	}
	if q.Backward {
		reverseCases(cases)
	}
	return cases, nil
}

func (s *SQLiteStore) ActiveCaseForTarget(ctx context.Context, targetID string) (*model.Case, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT doc FROM cases WHERE target_id = ? AND state = ? ORDER BY created_at ASC LIMIT 1`,
		targetID, string(model.CaseStateActive),
	)
	return scanCaseDoc(row)
}

func (s *SQLiteStore) CasesReviewedBetween(ctx context.Context, start, end time.Time) ([]model.Case, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM cases WHERE review_update_time >= ? AND review_update_time < ? ORDER BY review_update_time ASC`,
		start.UTC(), end.UTC(),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: cases reviewed between")
	}
	defer rows.Close()
	return scanCaseDocs(rows)
}

// Targets

func (s *SQLiteStore) CreateTarget(ctx context.Context, tgt model.Target) (*model.Target, error) {
	if tgt.ID == "" {
		tgt.ID = uuid.New().String()
	}
	if tgt.CreateTime.IsZero() {
		tgt.CreateTime = time.Now().UTC()
	}

	doc, err := json.Marshal(tgt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal target")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO targets (id, doc, created_at) VALUES (?, ?, ?)`,
		tgt.ID, string(doc), tgt.CreateTime,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert target")
	}
	return &tgt, nil
}

func (s *SQLiteStore) UpdateTarget(ctx context.Context, tgt model.Target) error {
	doc, err := json.Marshal(tgt)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal target")
	}

	res, err := s.db.ExecContext(ctx, `UPDATE targets SET doc = ? WHERE id = ?`, string(doc), tgt.ID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update target %s", tgt.ID)
	}
	return checkRowsAffected(res, "target", tgt.ID)
}

func (s *SQLiteStore) GetTarget(ctx context.Context, id string) (*model.Target, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM targets WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get target %s", id)
	}

	var tgt model.Target
	if err := json.Unmarshal([]byte(doc), &tgt); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal target")
	}
	return &tgt, nil
}

// Jobs

func (s *SQLiteStore) CreateJob(ctx context.Context, job model.Job) (*model.Job, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.StartTime.IsZero() {
		job.StartTime = time.Now().UTC()
	}
	if job.Status == "" {
		job.Status = model.JobInProgress
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, status, type, source, start_time, import_size, update_size, delete_size, continuation_token, last_successful_continuation_token)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Status), string(job.Type), string(job.Source), job.StartTime,
		job.ImportSize, job.UpdateSize, job.DeleteSize,
		job.ContinuationToken, job.LastSuccessfulContinuationToken,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
	}
	return &job, nil
}

func (s *SQLiteStore) UpdateJob(ctx context.Context, job model.Job) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, import_size = ?, update_size = ?, delete_size = ?, continuation_token = ?, last_successful_continuation_token = ? WHERE id = ?`,
		string(job.Status), job.ImportSize, job.UpdateSize, job.DeleteSize,
		job.ContinuationToken, job.LastSuccessfulContinuationToken, job.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update job %s", job.ID)
	}
	return checkRowsAffected(res, "job", job.ID)
}

func (s *SQLiteStore) LatestSuccessfulToken(ctx context.Context, source model.SourceType) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx,
		`SELECT last_successful_continuation_token FROM jobs WHERE source = ? AND status = ? ORDER BY start_time DESC LIMIT 1`,
		string(source), string(model.JobSuccess),
	).Scan(&token)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: latest successful token for %s", source)
	}
	return token, nil
}

func (s *SQLiteStore) MarkOrphanedJobs(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ? WHERE status = ?`,
		string(model.JobUnknown), string(model.JobInProgress),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: mark orphaned jobs")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// Importer configs

func (s *SQLiteStore) UpsertImporterConfigs(ctx context.Context, configs []model.ImporterConfig) error {
	now := time.Now().UTC()
	for _, cfg := range configs {
		doc, err := json.Marshal(cfg)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal importer config")
		}
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO importer_configs (type, doc, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT (type) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
			string(cfg.Type), string(doc), now,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: upsert importer config %s", cfg.Type)
		}
	}
	return nil
}

func (s *SQLiteStore) GetImporterConfig(ctx context.Context, source model.SourceType) (*model.ImporterConfig, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM importer_configs WHERE type = ?`, string(source)).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get importer config %s", source)
	}

	var cfg model.ImporterConfig
	if err := json.Unmarshal([]byte(doc), &cfg); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal importer config")
	}
	return &cfg, nil
}

func (s *SQLiteStore) ListImporterConfigs(ctx context.Context) ([]model.ImporterConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM importer_configs ORDER BY type ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list importer configs")
	}
	defer rows.Close()

	var configs []model.ImporterConfig
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan importer config")
		}
		var cfg model.ImporterConfig
		if err := json.Unmarshal([]byte(doc), &cfg); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal importer config")
		}
		configs = append(configs, cfg)
	}
	return configs, eris.Wrap(rows.Err(), "sqlite: iterate importer configs")
}

// Index snapshots

func (s *SQLiteStore) SaveIndexSnapshot(ctx context.Context, name string, blob []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO index_snapshots (name, blob, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET blob = excluded.blob, updated_at = excluded.updated_at`,
		name, blob, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save index snapshot %s", name)
}

func (s *SQLiteStore) LoadIndexSnapshot(ctx context.Context, name string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT blob FROM index_snapshots WHERE name = ?`, name).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load index snapshot %s", name)
	}
	return blob, nil
}

// Locks

func (s *SQLiteStore) AcquireLock(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO locks (name, holder, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET holder = excluded.holder, expires_at = excluded.expires_at
		 WHERE locks.expires_at <= ?`,
		name, holder, now.Add(ttl), now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: acquire lock %s", name)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n == 1, nil
}

func (s *SQLiteStore) ReleaseLock(ctx context.Context, name, holder string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM locks WHERE name = ? AND holder = ?`, name, holder)
	return eris.Wrapf(err, "sqlite: release lock %s", name)
}

func (s *SQLiteStore) ClearExpiredLocks(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM locks WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: clear expired locks")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSignalDoc(row scannable) (*model.Signal, error) {
	var doc string
	err := row.Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan signal")
	}

	var sig model.Signal
	if err := json.Unmarshal([]byte(doc), &sig); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal signal")
	}
	return &sig, nil
}

func scanSignalDocs(rows *sql.Rows) ([]model.Signal, error) {
	var signals []model.Signal
	for rows.Next() {
		sig, err := scanSignalDoc(rows)
		if err != nil {
			return nil, err
		}
		signals = append(signals, *sig)
	}
	return signals, eris.Wrap(rows.Err(), "sqlite: iterate signals")
}

func scanCaseDoc(row scannable) (*model.Case, error) {
	var doc string
	err := row.Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan case")
	}

	var c model.Case
	if err := json.Unmarshal([]byte(doc), &c); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal case")
	}
	return &c, nil
}

func scanCaseDocs(rows *sql.Rows) ([]model.Case, error) {
	var cases []model.Case
	for rows.Next() {
		c, err := scanCaseDoc(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, *c)
	}
	return cases, eris.Wrap(rows.Err(), "sqlite: iterate cases")
}
