// Package history keeps past run summaries in a local sqlite file so
// consecutive audits can be compared without any external service.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/restartcheck/restartcheck/internal/audit"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	total INTEGER NOT NULL,
	succeeded INTEGER NOT NULL,
	failed INTEGER NOT NULL,
	pending_restart INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS results (
	run_id INTEGER NOT NULL REFERENCES runs(id),
	cluster_name TEXT NOT NULL,
	computer_name TEXT NOT NULL,
	node_state TEXT NOT NULL,
	pending_restart INTEGER,
	msi_in_progress INTEGER,
	reasons TEXT NOT NULL,
	check_succeeded INTEGER NOT NULL,
	diagnostic TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_run ON results(run_id);
`

// Store is a handle to the history database. The database is strictly an
// aid for operators; run reporting never depends on it.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("preparing history schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores one finished run with all its rows.
func (s *Store) Record(startedAt, finishedAt time.Time, summary audit.RunSummary, results []audit.CheckResult) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO runs (started_at, finished_at, total, succeeded, failed, pending_restart) VALUES (?, ?, ?, ?, ?, ?)`,
		startedAt.Unix(), finishedAt.Unix(), summary.Total, summary.Succeeded, summary.Failed, summary.PendingRestart)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	stmt, err := tx.Prepare(
		`INSERT INTO results (run_id, cluster_name, computer_name, node_state, pending_restart, msi_in_progress, reasons, check_succeeded, diagnostic) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	defer stmt.Close()
	for _, r := range results {
		if _, err := stmt.Exec(runID, r.ClusterName, r.ComputerName, r.NodeState,
			r.PendingRestart, r.MsiInstallationInProgress,
			strings.Join(r.Reasons, "; "), r.CheckSucceeded, r.Diagnostic); err != nil {
			return fmt.Errorf("recording result for %s: %w", r.ComputerName, err)
		}
	}
	return tx.Commit()
}

// LastSummary returns the most recent recorded run, with ok false when the
// database holds no runs yet.
func (s *Store) LastSummary() (summary audit.RunSummary, finishedAt time.Time, ok bool, err error) {
	var finished int64
	row := s.db.QueryRow(
		`SELECT finished_at, total, succeeded, failed, pending_restart FROM runs ORDER BY id DESC LIMIT 1`)
	err = row.Scan(&finished, &summary.Total, &summary.Succeeded, &summary.Failed, &summary.PendingRestart)
	if errors.Is(err, sql.ErrNoRows) {
		return audit.RunSummary{}, time.Time{}, false, nil
	}
	if err != nil {
		return audit.RunSummary{}, time.Time{}, false, fmt.Errorf("reading last run: %w", err)
	}
	return summary, time.Unix(finished, 0), true, nil
}
