package outage

import (
	"context"
	"fmt"
	"time"
)

// Observation is one outage as reported by the vendor feed. End is nil while
// the network is still down.
type Observation struct {
	NetworkID int64
	Start     time.Time
	End       *time.Time
	Reason    string
}

// NetworkExists reports whether id is a stored network.
func (t *Tx) NetworkExists(ctx context.Context, id int64) (bool, error) {
	var n int
	if err := t.tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM networks WHERE network_id = ?", id).Scan(&n); err != nil {
		return false, fmt.Errorf("lookup network %d: %w", id, err)
	}
	return n > 0, nil
}

// ObserveOpen records that (network, start) is still down. A new key opens
// a row; a known key only has last_checked bumped, and a row previously
// closed by a poll is reopened. created reports the absent -> open transition.
func (t *Tx) ObserveOpen(ctx context.Context, o Observation, at time.Time) (created bool, err error) {
	start, now := Stamp(o.Start), Stamp(at)

	var n int
	err = t.tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM ongoing_outages WHERE network_id = ? AND wan_down_start = ?",
		o.NetworkID, start).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup ongoing %d@%s: %w", o.NetworkID, start, err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO ongoing_outages (network_id, wan_down_start, reason, first_detected, last_checked)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(network_id, wan_down_start) DO UPDATE SET
			wan_down_end = NULL,
			resolved_by = NULL,
			reason = COALESCE(excluded.reason, reason),
			last_checked = excluded.last_checked`,
		o.NetworkID, start, nullString(o.Reason), now, now)
	if err != nil {
		return false, fmt.Errorf("upsert ongoing %d@%s: %w", o.NetworkID, start, err)
	}
	return n == 0, nil
}

// ObserveClosed drops the tracked row for an outage the feed now reports
// with an end time. It reports whether a row existed.
func (t *Tx) ObserveClosed(ctx context.Context, networkID int64, start time.Time) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		"DELETE FROM ongoing_outages WHERE network_id = ? AND wan_down_start = ?",
		networkID, Stamp(start))
	if err != nil {
		return false, fmt.Errorf("resolve ongoing %d: %w", networkID, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// OpenOngoing lists open rows, all of them when networkID is zero.
func (t *Tx) OpenOngoing(ctx context.Context, networkID int64) ([]Ongoing, error) {
	query := `SELECT ongoing_outage_id, network_id, wan_down_start, COALESCE(reason, ''),
		first_detected, last_checked
		FROM ongoing_outages WHERE wan_down_end IS NULL`
	var args []any
	if networkID != 0 {
		query += " AND network_id = ?"
		args = append(args, networkID)
	}
	query += " ORDER BY ongoing_outage_id"

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list open ongoing: %w", err)
	}
	defer rows.Close()

	var out []Ongoing
	for rows.Next() {
		var o Ongoing
		if err := rows.Scan(&o.ID, &o.NetworkID, &o.Start, &o.Reason, &o.FirstDetected, &o.LastChecked); err != nil {
			return nil, fmt.Errorf("scan ongoing: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// CloseByPoll stamps an open row resolved at the given time. The row stays
// as an audit record until batch reconciliation or retention removes it.
func (t *Tx) CloseByPoll(ctx context.Context, id int64, at time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE ongoing_outages SET wan_down_end = ?, resolved_by = ?, last_checked = ?
		WHERE ongoing_outage_id = ? AND wan_down_end IS NULL`,
		Stamp(at), ResolvedByPoll, Stamp(at), id)
	if err != nil {
		return fmt.Errorf("close ongoing %d: %w", id, err)
	}
	return nil
}

// CorrectOutageEnd rewrites the end time and duration of a historical outage.
func (t *Tx) CorrectOutageEnd(ctx context.Context, o Outage, end time.Time) error {
	start, err := ParseStamp(o.Start)
	if err != nil {
		return err
	}
	if end.Before(start) {
		return fmt.Errorf("outage %d: corrected end %s precedes start %s", o.ID, Stamp(end), o.Start)
	}
	end = end.UTC().Truncate(time.Second)
	_, err = t.tx.ExecContext(ctx,
		"UPDATE outages SET wan_down_end = ?, duration = ? WHERE outage_id = ?",
		Stamp(end), end.Sub(start).Hours(), o.ID)
	if err != nil {
		return fmt.Errorf("correct outage %d: %w", o.ID, err)
	}
	return nil
}
