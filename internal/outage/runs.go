package outage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Ingest run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Run is one ingest invocation.
type Run struct {
	ID            string
	Mode          string
	InputSHA256   string
	OutagesFile   string
	DiscoveryFile string
	StartedAt     time.Time
}

// CompletedRunFor returns the id of a completed run over the same input.
func (t *Tx) CompletedRunFor(ctx context.Context, sha string) (string, bool, error) {
	var id string
	err := t.tx.QueryRowContext(ctx,
		"SELECT run_id FROM ingest_runs WHERE input_sha256 = ? AND status = ? ORDER BY started_at DESC LIMIT 1",
		sha, RunCompleted).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup run by hash: %w", err)
	}
	return id, true, nil
}

// StartRun logs a run as running.
func (t *Tx) StartRun(ctx context.Context, r Run) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO ingest_runs (run_id, mode, input_sha256, outages_file, discovery_file, started_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Mode, r.InputSHA256, r.OutagesFile, r.DiscoveryFile, Stamp(r.StartedAt), RunRunning)
	if err != nil {
		return fmt.Errorf("start run %s: %w", r.ID, err)
	}
	return nil
}

// FinishRun records the outcome of a run. A run whose first checkpoint never
// committed has no row and is left unrecorded.
func (s *Store) FinishRun(ctx context.Context, id, status string, at time.Time, added, rejected int, runErr error) error {
	var msg sql.NullString
	if runErr != nil {
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	_, err := s.DB().ExecContext(ctx, `
		UPDATE ingest_runs SET status = ?, finished_at = ?, outages_added = ?, rows_rejected = ?, error = ?
		WHERE run_id = ?`, status, Stamp(at), added, rejected, msg, id)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	return nil
}

// RunRecord is a logged run as read back from the store.
type RunRecord struct {
	ID            string `json:"run_id"`
	Mode          string `json:"mode"`
	InputSHA256   string `json:"input_sha256"`
	OutagesFile   string `json:"outages_file,omitempty"`
	DiscoveryFile string `json:"discovery_file,omitempty"`
	StartedAt     string `json:"started_at"`
	FinishedAt    string `json:"finished_at,omitempty"`
	Status        string `json:"status"`
	OutagesAdded  int    `json:"outages_added"`
	RowsRejected  int    `json:"rows_rejected"`
	Error         string `json:"error,omitempty"`
}

// RecentRuns lists up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB().QueryContext(ctx, `
		SELECT run_id, mode, input_sha256, outages_file, discovery_file, started_at,
		       COALESCE(finished_at, ''), status, outages_added, rows_rejected, COALESCE(error, '')
		FROM ingest_runs ORDER BY started_at DESC, run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.Mode, &r.InputSHA256, &r.OutagesFile, &r.DiscoveryFile, &r.StartedAt,
			&r.FinishedAt, &r.Status, &r.OutagesAdded, &r.RowsRejected, &r.Error); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
