// Package store persists proof runs to a local SQLite ledger.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"deonticprover/internal/logging"
	"deonticprover/internal/prover"
)

// maxStoredOutput caps the backend stdout kept per run.
const maxStoredOutput = 64 * 1024

// ProofRun is one persisted proof result.
type ProofRun struct {
	ID           int64
	RequestID    string
	FormulaID    string
	Formula      string
	Backend      string
	Status       prover.Status
	RuleSet      string
	Kind         string
	Verdict      string
	Elapsed      time.Duration
	Errors       []string
	Warnings     []string
	ArtifactPath string
	Output       string
	CreatedAt    time.Time
}

// ProofStats summarizes the ledger.
type ProofStats struct {
	TotalRuns  int
	ByStatus   map[prover.Status]int
	ByBackend  map[string]int
	AvgElapsed time.Duration
	OldestRun  time.Time
	NewestRun  time.Time
}

// ProofStore records every terminal proof result. It satisfies prover.Recorder.
type ProofStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	now    func() time.Time
}

var _ prover.Recorder = (*ProofStore)(nil)

// NewProofStore opens (or creates) the ledger at dbPath. ":memory:" is accepted.
func NewProofStore(dbPath string) (*ProofStore, error) {
	logging.StoreDebug("Initializing ProofStore at path: %s", dbPath)

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	s := &ProofStore{db: db, dbPath: dbPath, now: time.Now}
	if err := s.initialize(); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to initialize ProofStore schema: %v", err)
		db.Close()
		return nil, err
	}

	logging.Store("ProofStore initialized at %s", dbPath)
	return s, nil
}

func (s *ProofStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS proof_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL UNIQUE,
		formula_id TEXT NOT NULL,
		formula TEXT NOT NULL,
		backend TEXT NOT NULL,
		status TEXT NOT NULL,
		rule_set TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL DEFAULT 'formula',
		verdict TEXT NOT NULL DEFAULT '',
		elapsed_ms INTEGER NOT NULL,
		errors TEXT NOT NULL DEFAULT '[]',
		warnings TEXT NOT NULL DEFAULT '[]',
		artifact_path TEXT NOT NULL DEFAULT '',
		output TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_proof_runs_formula ON proof_runs(formula_id);
	CREATE INDEX IF NOT EXISTS idx_proof_runs_backend ON proof_runs(backend);
	CREATE INDEX IF NOT EXISTS idx_proof_runs_status ON proof_runs(status);
	CREATE INDEX IF NOT EXISTS idx_proof_runs_created ON proof_runs(created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.ensureColumn("kind", `TEXT NOT NULL DEFAULT 'formula'`)
}

// ensureColumn adds a column missing from a ledger created by an older build.
func (s *ProofStore) ensureColumn(name, decl string) error {
	rows, err := s.db.Query(`SELECT name FROM pragma_table_info('proof_runs')`)
	if err != nil {
		return fmt.Errorf("failed to inspect proof_runs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return err
		}
		if col == name {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	logging.Store("Migrating proof_runs: adding column %s", name)
	_, err = s.db.Exec(`ALTER TABLE proof_runs ADD COLUMN ` + name + ` ` + decl)
	return err
}

// Record appends a proof result. Results without a request id get a fresh one.
func (s *ProofStore) Record(ctx context.Context, r prover.ProofResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	requestID := r.Metadata[prover.MetaRequestID]
	if requestID == "" {
		requestID = uuid.NewString()
	}

	errs, err := json.Marshal(orEmpty(r.Errors))
	if err != nil {
		return fmt.Errorf("failed to encode errors: %w", err)
	}
	warns, err := json.Marshal(orEmpty(r.Warnings))
	if err != nil {
		return fmt.Errorf("failed to encode warnings: %w", err)
	}

	output := prover.TruncateUTF8(r.Output, maxStoredOutput)
	kind := r.Metadata[prover.MetaKind]
	if kind == "" {
		kind = prover.KindFormula
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO proof_runs
			(request_id, formula_id, formula, backend, status, rule_set, kind, verdict,
			 elapsed_ms, errors, warnings, artifact_path, output, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		requestID, r.FormulaID, r.Formula, r.Backend.String(), string(r.Status),
		r.Metadata[prover.MetaRuleSet], kind, r.Metadata[prover.MetaVerdict],
		r.Elapsed.Milliseconds(), string(errs), string(warns),
		r.ArtifactPath(), output, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record proof run: %w", err)
	}

	logging.StoreDebug("Recorded proof run %s: %s on %s -> %s", requestID, r.FormulaID, r.Backend, r.Status)
	return nil
}

const selectRuns = `
	SELECT id, request_id, formula_id, formula, backend, status, rule_set, kind, verdict,
	       elapsed_ms, errors, warnings, artifact_path, output, created_at
	FROM proof_runs`

// Recent returns the newest runs first.
func (s *ProofStore) Recent(ctx context.Context, limit int) ([]ProofRun, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, selectRuns+` ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

// ByFormula returns every run of one formula, newest first.
func (s *ProofStore) ByFormula(ctx context.Context, formulaID string) ([]ProofRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, selectRuns+` WHERE formula_id = ? ORDER BY id DESC`, formulaID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs for %s: %w", formulaID, err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

// Latest returns the most recent formula run for every (formula, backend)
// pair, ordered by formula then backend. Consistency runs are left out.
func (s *ProofStore) Latest(ctx context.Context) ([]ProofRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, selectRuns+`
		WHERE id IN (
			SELECT MAX(id) FROM proof_runs WHERE kind = ? GROUP BY formula_id, backend)
		ORDER BY formula_id, backend`, prover.KindFormula)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest runs: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}

// Stats aggregates counts by status and backend.
func (s *ProofStore) Stats(ctx context.Context) (*ProofStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &ProofStats{
		ByStatus:  make(map[prover.Status]int),
		ByBackend: make(map[string]int),
	}

	var avgMs sql.NullFloat64
	var oldest, newest sql.NullInt64
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), AVG(elapsed_ms), MIN(created_at), MAX(created_at) FROM proof_runs`)
	if err := row.Scan(&stats.TotalRuns, &avgMs, &oldest, &newest); err != nil {
		return nil, fmt.Errorf("failed to query totals: %w", err)
	}
	if avgMs.Valid {
		stats.AvgElapsed = time.Duration(avgMs.Float64 * float64(time.Millisecond))
	}
	if oldest.Valid {
		stats.OldestRun = time.UnixMilli(oldest.Int64)
	}
	if newest.Valid {
		stats.NewestRun = time.UnixMilli(newest.Int64)
	}

	if err := s.countBy(ctx, "status", func(k string, n int) { stats.ByStatus[prover.Status(k)] = n }); err != nil {
		return nil, err
	}
	if err := s.countBy(ctx, "backend", func(k string, n int) { stats.ByBackend[k] = n }); err != nil {
		return nil, err
	}
	return stats, nil
}

// countBy runs a GROUP BY over a fixed column name.
func (s *ProofStore) countBy(ctx context.Context, column string, add func(string, int)) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+column+`, COUNT(*) FROM proof_runs GROUP BY `+column)
	if err != nil {
		return fmt.Errorf("failed to count by %s: %w", column, err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		add(key, n)
	}
	return rows.Err()
}

// Prune deletes all but the newest keep runs and returns the number removed.
func (s *ProofStore) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM proof_runs
		WHERE id NOT IN (SELECT id FROM proof_runs ORDER BY id DESC LIMIT ?)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune proof runs: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		logging.Store("Pruned %d proof runs (kept %d)", n, keep)
	}
	return n, nil
}

// Path returns the database path.
func (s *ProofStore) Path() string {
	return s.dbPath
}

// Close closes the database.
func (s *ProofStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func scanRuns(rows *sql.Rows) ([]ProofRun, error) {
	var runs []ProofRun
	for rows.Next() {
		var r ProofRun
		var status, errs, warns string
		var elapsedMs, createdMs int64
		if err := rows.Scan(&r.ID, &r.RequestID, &r.FormulaID, &r.Formula, &r.Backend, &status,
			&r.RuleSet, &r.Kind, &r.Verdict, &elapsedMs, &errs, &warns, &r.ArtifactPath, &r.Output, &createdMs); err != nil {
			return nil, fmt.Errorf("failed to scan proof run: %w", err)
		}
		r.Status = prover.Status(status)
		r.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		r.CreatedAt = time.UnixMilli(createdMs)
		if err := json.Unmarshal([]byte(errs), &r.Errors); err != nil {
			return nil, fmt.Errorf("corrupt errors for run %d: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(warns), &r.Warnings); err != nil {
			return nil, fmt.Errorf("corrupt warnings for run %d: %w", r.ID, err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// ElapsedLabel formats the elapsed time with millisecond precision.
func (r ProofRun) ElapsedLabel() string {
	return strconv.FormatFloat(r.Elapsed.Seconds(), 'f', 3, 64) + "s"
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
