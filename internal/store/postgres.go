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

	"github.com/sells-group/signal-service/internal/db"
	"github.com/sells-group/signal-service/internal/model"
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
// faster execution of the most frequently used store operations. Signal
// lookup by content value runs once per imported row, so it leads.
var preparedStatements = map[string]string{
	"get_signal":            `SELECT doc FROM signals WHERE id = $1`,
	"get_signal_by_content": `SELECT s.doc FROM signals s JOIN signal_contents c ON c.signal_id = s.id WHERE c.value = $1 LIMIT 1`,
	"insert_signal":         `INSERT INTO signals (id, doc, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
	"update_signal":         `UPDATE signals SET doc = $1, updated_at = $2 WHERE id = $3`,
	"get_case":              `SELECT doc FROM cases WHERE id = $1`,
	"insert_job":            `INSERT INTO jobs (id, status, type, source, start_time, import_size, update_size, delete_size, continuation_token, last_successful_continuation_token) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
	"update_job":            `UPDATE jobs SET status = $1, import_size = $2, update_size = $3, delete_size = $4, continuation_token = $5, last_successful_continuation_token = $6 WHERE id = $7`,
	"save_index_snapshot":   `INSERT INTO index_snapshots (name, blob, updated_at) VALUES ($1, $2, $3) ON CONFLICT (name) DO UPDATE SET blob = $2, updated_at = $3`,
	"load_index_snapshot":   `SELECT blob FROM index_snapshots WHERE name = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
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

	// Prepare frequently-used statements on each new connection.
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

// NewPostgresFromPool wraps an existing pool, used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS signals (
	id         TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
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
	doc                JSONB NOT NULL,
	state              TEXT NOT NULL DEFAULT 'ACTIVE',
	target_id          TEXT,
	priority           INTEGER NOT NULL DEFAULT -1,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	review_update_time TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_cases_priority_id ON cases(priority DESC, id ASC);
CREATE INDEX IF NOT EXISTS idx_cases_state ON cases(state);
CREATE INDEX IF NOT EXISTS idx_cases_target_id ON cases(target_id);
CREATE INDEX IF NOT EXISTS idx_cases_review_update ON cases(review_update_time);

CREATE TABLE IF NOT EXISTS targets (
	id         TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS jobs (
	id                                 TEXT PRIMARY KEY,
	status                             TEXT NOT NULL DEFAULT 'IN_PROGRESS',
	type                               TEXT NOT NULL,
	source                             TEXT NOT NULL,
	start_time                         TIMESTAMPTZ NOT NULL DEFAULT now(),
	import_size                        INTEGER NOT NULL DEFAULT 0,
	update_size                        INTEGER NOT NULL DEFAULT 0,
	delete_size                        INTEGER NOT NULL DEFAULT 0,
	continuation_token                 TEXT NOT NULL DEFAULT '',
	last_successful_continuation_token TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_jobs_source_status ON jobs(source, status, start_time DESC);

CREATE TABLE IF NOT EXISTS importer_configs (
	type       TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS index_snapshots (
	name       TEXT PRIMARY KEY,
	blob       BYTEA NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS locks (
	name       TEXT PRIMARY KEY,
	holder     TEXT NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_locks_expires_at ON locks(expires_at);
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

// Signals

func (s *PostgresStore) CreateSignal(ctx context.Context, sig model.Signal) (*model.Signal, error) {
	if sig.ID == "" {
		sig.ID = uuid.New().String()
	}
	now := time.Now().UTC()

	doc, err := json.Marshal(sig)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal signal")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO signals (id, doc, created_at, updated_at) VALUES ($1, $2, $3, $4)`,
		sig.ID, doc, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert signal")
	}

	if err := s.replaceSignalContents(ctx, sig); err != nil {
		return nil, err
	}
	return &sig, nil
}

func (s *PostgresStore) UpdateSignal(ctx context.Context, sig model.Signal) error {
	if sig.ID == "" {
		return eris.New("postgres: update signal without id")
	}

	doc, err := json.Marshal(sig)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal signal")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE signals SET doc = $1, updated_at = $2 WHERE id = $3`,
		doc, time.Now().UTC(), sig.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update signal %s", sig.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: signal %s", sig.ID)
	}

	return s.replaceSignalContents(ctx, sig)
}

// replaceSignalContents rewrites the content lookup rows for one signal.
// Redacted placeholders are excluded: a fully redacted signal must not be
// findable by content value.
func (s *PostgresStore) replaceSignalContents(ctx context.Context, sig model.Signal) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM signal_contents WHERE signal_id = $1`, sig.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: clear signal contents %s", sig.ID)
	}

	var rows [][]any
	for _, c := range sig.Content {
		if c.Value == "" || c.Value == model.RedactedValue {
			continue
		}
		rows = append(rows, []any{c.Value, string(c.ContentType), sig.ID})
	}

	_, err = db.CopyFrom(ctx, s.pool, "signal_contents", []string{"value", "content_type", "signal_id"}, rows)
	if err != nil {
		return eris.Wrapf(err, "postgres: write signal contents %s", sig.ID)
	}
	return nil
}

func (s *PostgresStore) GetSignal(ctx context.Context, id string) (*model.Signal, error) {
	return s.scanSignalRow(s.pool.QueryRow(ctx, `SELECT doc FROM signals WHERE id = $1`, id))
}

func (s *PostgresStore) GetSignalByContent(ctx context.Context, value string) (*model.Signal, error) {
	return s.scanSignalRow(s.pool.QueryRow(ctx,
		`SELECT s.doc FROM signals s JOIN signal_contents c ON c.signal_id = s.id WHERE c.value = $1 LIMIT 1`,
		value,
	))
}

func (s *PostgresStore) scanSignalRow(row pgx.Row) (*model.Signal, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrap(err, "postgres: scan signal")
	}

	var sig model.Signal
	if err := json.Unmarshal(doc, &sig); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal signal")
	}
	return &sig, nil
}

func (s *PostgresStore) GetSignalsByIDs(ctx context.Context, ids []string) ([]model.Signal, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `SELECT doc FROM signals WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get signals by ids")
	}
	defer rows.Close()

	return scanSignals(rows)
}

func (s *PostgresStore) ListSignals(ctx context.Context, filter SignalFilter) ([]model.Signal, error) {
	query := `SELECT s.doc FROM signals s WHERE true`
	args := []any{}
	argIdx := 1

	if filter.ContentType != "" && filter.ContentType != model.ContentTypeUnknown {
		query += fmt.Sprintf(` AND EXISTS (SELECT 1 FROM signal_contents c WHERE c.signal_id = s.id AND c.content_type = $%d)`, argIdx)
		args = append(args, string(filter.ContentType))
		argIdx++
	}
	query += ` ORDER BY s.created_at ASC, s.id ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list signals")
	}
	defer rows.Close()

	return scanSignals(rows)
}

func scanSignals(rows pgx.Rows) ([]model.Signal, error) {
	var signals []model.Signal
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "postgres: scan signal")
		}
		var sig model.Signal
		if err := json.Unmarshal(doc, &sig); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal signal")
		}
		signals = append(signals, sig)
	}
	return signals, eris.Wrap(rows.Err(), "postgres: iterate signals")
}

// Cases

func (s *PostgresStore) CreateCase(ctx context.Context, c model.Case) (*model.Case, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreateTime.IsZero() {
		c.CreateTime = time.Now().UTC()
	}

	doc, err := json.Marshal(c)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal case")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO cases (id, doc, state, target_id, priority, created_at, review_update_time) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, doc, string(c.State), nullString(c.TargetID), c.CachedPriority, c.CreateTime, latestReviewTime(&c),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert case")
	}
	return &c, nil
}

func (s *PostgresStore) UpdateCase(ctx context.Context, c model.Case) error {
	if c.ID == "" {
		return eris.New("postgres: update case without id")
	}

	doc, err := json.Marshal(c)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal case")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE cases SET doc = $1, state = $2, target_id = $3, priority = $4, review_update_time = $5 WHERE id = $6`,
		doc, string(c.State), nullString(c.TargetID), c.CachedPriority, latestReviewTime(&c), c.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update case %s", c.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: case %s", c.ID)
	}
	return nil
}

func (s *PostgresStore) GetCase(ctx context.Context, id string) (*model.Case, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM cases WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get case %s", id)
	}

	var c model.Case
	if err := json.Unmarshal(doc, &c); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal case")
	}
	return &c, nil
}

func (s *PostgresStore) ListCases(ctx context.Context, q CaseQuery) ([]model.Case, error) {
	query := `SELECT doc FROM cases WHERE true`
	args := []any{}
	argIdx := 1

	if q.State != "" {
		query += fmt.Sprintf(` AND state = $%d`, argIdx)
		args = append(args, string(q.State))
		argIdx++
	}
	if q.SignalID != "" {
		query += fmt.Sprintf(` AND doc->'signal_ids' @> to_jsonb($%d::text)`, argIdx)
		args = append(args, q.SignalID)
		argIdx++
	}

	if q.Boundary != nil {
		if q.Backward {
			query += fmt.Sprintf(` AND (priority > $%d OR (priority = $%d AND id < $%d))`, argIdx, argIdx, argIdx+1)
		} else {
			query += fmt.Sprintf(` AND (priority < $%d OR (priority = $%d AND id > $%d))`, argIdx, argIdx, argIdx+1)
		}
		args = append(args, q.Boundary.Priority, q.Boundary.ID)
		argIdx += 2
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
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list cases")
	}
	defer rows.Close()

	cases, err := scanCases(rows)
	if err != nil {
		return nil, err
	}
	if q.Backward {
		reverseCases(cases)
	}
	return cases, nil
}

func (s *PostgresStore) ActiveCaseForTarget(ctx context.Context, targetID string) (*model.Case, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM cases WHERE target_id = $1 AND state = $2 ORDER BY created_at ASC LIMIT 1`,
		targetID, string(model.CaseStateActive),
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: active case for target %s", targetID)
	}

	var c model.Case
	if err := json.Unmarshal(doc, &c); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal case")
	}
	return &c, nil
}

func (s *PostgresStore) CasesReviewedBetween(ctx context.Context, start, end time.Time) ([]model.Case, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM cases WHERE review_update_time >= $1 AND review_update_time < $2 ORDER BY review_update_time ASC`,
		start, end,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: cases reviewed between")
	}
	defer rows.Close()
	return scanCases(rows)
}

func scanCases(rows pgx.Rows) ([]model.Case, error) {
	var cases []model.Case
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "postgres: scan case")
		}
		var c model.Case
		if err := json.Unmarshal(doc, &c); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal case")
		}
		cases = append(cases, c)
	}
	return cases, eris.Wrap(rows.Err(), "postgres: iterate cases")
}

// Targets

func (s *PostgresStore) CreateTarget(ctx context.Context, tgt model.Target) (*model.Target, error) {
	if tgt.ID == "" {
		tgt.ID = uuid.New().String()
	}
	if tgt.CreateTime.IsZero() {
		tgt.CreateTime = time.Now().UTC()
	}

	doc, err := json.Marshal(tgt)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal target")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO targets (id, doc, created_at) VALUES ($1, $2, $3)`,
		tgt.ID, doc, tgt.CreateTime,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert target")
	}
	return &tgt, nil
}

func (s *PostgresStore) UpdateTarget(ctx context.Context, tgt model.Target) error {
	doc, err := json.Marshal(tgt)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal target")
	}

	tag, err := s.pool.Exec(ctx, `UPDATE targets SET doc = $1 WHERE id = $2`, doc, tgt.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update target %s", tgt.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: target %s", tgt.ID)
	}
	return nil
}

func (s *PostgresStore) GetTarget(ctx context.Context, id string) (*model.Target, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM targets WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get target %s", id)
	}

	var tgt model.Target
	if err := json.Unmarshal(doc, &tgt); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal target")
	}
	return &tgt, nil
}

// Jobs

func (s *PostgresStore) CreateJob(ctx context.Context, job model.Job) (*model.Job, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.StartTime.IsZero() {
		job.StartTime = time.Now().UTC()
	}
	if job.Status == "" {
		job.Status = model.JobInProgress
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, status, type, source, start_time, import_size, update_size, delete_size, continuation_token, last_successful_continuation_token) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		job.ID, string(job.Status), string(job.Type), string(job.Source), job.StartTime,
		job.ImportSize, job.UpdateSize, job.DeleteSize,
		job.ContinuationToken, job.LastSuccessfulContinuationToken,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}
	return &job, nil
}

func (s *PostgresStore) UpdateJob(ctx context.Context, job model.Job) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, import_size = $2, update_size = $3, delete_size = $4, continuation_token = $5, last_successful_continuation_token = $6 WHERE id = $7`,
		string(job.Status), job.ImportSize, job.UpdateSize, job.DeleteSize,
		job.ContinuationToken, job.LastSuccessfulContinuationToken, job.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update job %s", job.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: job %s", job.ID)
	}
	return nil
}

func (s *PostgresStore) LatestSuccessfulToken(ctx context.Context, source model.SourceType) (string, error) {
	var token string
	err := s.pool.QueryRow(ctx,
		`SELECT last_successful_continuation_token FROM jobs WHERE source = $1 AND status = $2 ORDER BY start_time DESC LIMIT 1`,
		string(source), string(model.JobSuccess),
	).Scan(&token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", eris.Wrapf(err, "postgres: latest successful token for %s", source)
	}
	return token, nil
}

func (s *PostgresStore) MarkOrphanedJobs(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1 WHERE status = $2`,
		string(model.JobUnknown), string(model.JobInProgress),
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: mark orphaned jobs")
	}
	return int(tag.RowsAffected()), nil
}

// Importer configs

func (s *PostgresStore) UpsertImporterConfigs(ctx context.Context, configs []model.ImporterConfig) error {
	if len(configs) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([][]any, 0, len(configs))
	for _, cfg := range configs {
		doc, err := json.Marshal(cfg)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal importer config")
		}
		rows = append(rows, []any{string(cfg.Type), doc, now})
	}

	_, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "importer_configs",
		Columns:      []string{"type", "doc", "updated_at"},
		ConflictKeys: []string{"type"},
	}, rows)
	return eris.Wrap(err, "postgres: upsert importer configs")
}

func (s *PostgresStore) GetImporterConfig(ctx context.Context, source model.SourceType) (*model.ImporterConfig, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM importer_configs WHERE type = $1`, string(source)).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get importer config %s", source)
	}

	var cfg model.ImporterConfig
	if err := json.Unmarshal(doc, &cfg); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal importer config")
	}
	return &cfg, nil
}

func (s *PostgresStore) ListImporterConfigs(ctx context.Context) ([]model.ImporterConfig, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM importer_configs ORDER BY type ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list importer configs")
	}
	defer rows.Close()

	var configs []model.ImporterConfig
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "postgres: scan importer config")
		}
		var cfg model.ImporterConfig
		if err := json.Unmarshal(doc, &cfg); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal importer config")
		}
		configs = append(configs, cfg)
	}
	return configs, eris.Wrap(rows.Err(), "postgres: iterate importer configs")
}

// Index snapshots

func (s *PostgresStore) SaveIndexSnapshot(ctx context.Context, name string, blob []byte) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO index_snapshots (name, blob, updated_at) VALUES ($1, $2, $3) ON CONFLICT (name) DO UPDATE SET blob = $2, updated_at = $3`,
		name, blob, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save index snapshot %s", name)
}

func (s *PostgresStore) LoadIndexSnapshot(ctx context.Context, name string) ([]byte, error) {
	var blob []byte
	err := s.pool.QueryRow(ctx, `SELECT blob FROM index_snapshots WHERE name = $1`, name).Scan(&blob)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: load index snapshot %s", name)
	}
	return blob, nil
}

// Locks

func (s *PostgresStore) AcquireLock(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO locks (name, holder, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET holder = EXCLUDED.holder, expires_at = EXCLUDED.expires_at
		 WHERE locks.expires_at <= $4`,
		name, holder, now.Add(ttl), now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: acquire lock %s", name)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ReleaseLock(ctx context.Context, name, holder string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM locks WHERE name = $1 AND holder = $2`, name, holder)
	return eris.Wrapf(err, "postgres: release lock %s", name)
}

func (s *PostgresStore) ClearExpiredLocks(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM locks WHERE expires_at <= $1`, time.Now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "postgres: clear expired locks")
	}
	return int(tag.RowsAffected()), nil
}

// helpers

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func latestReviewTime(c *model.Case) any {
	latest := c.LatestReview()
	if latest == nil {
		return nil
	}
	return latest.UpdateTime.UTC()
}

func reverseCases(cases []model.Case) {
	for i, j := 0, len(cases)-1; i < j; i, j = i+1, j-1 {
		cases[i], cases[j] = cases[j], cases[i]
	}
}
