package data

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stockscan/internal/detection"
)

// ScanEvent is one confirmed detection line.
type ScanEvent struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	ItemName   string    `json:"item_name"`
	Quantity   int       `json:"quantity"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
}

// DayCount is the number of units confirmed on one UTC day (YYYY-MM-DD).
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// RecordScan stores every result of one confirmed scan in a single transaction.
func (h *History) RecordScan(ctx context.Context, sessionID string, results []detection.Result, at time.Time) error {
	if len(results) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin scan transaction: %w", err)
	}
	defer tx.Rollback()

	const stmt = `INSERT INTO scan_events (id, session_id, item_name, quantity, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`
	for _, r := range results {
		if _, err := tx.ExecContext(ctx, stmt, uuid.NewString(), sessionID, r.Name, r.Quantity, r.Confidence, formatTime(at)); err != nil {
			return fmt.Errorf("insert scan event %q: %w", r.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit scan transaction: %w", err)
	}
	return nil
}

// RecentEvents returns the newest events first.
func (h *History) RecentEvents(ctx context.Context, limit int) ([]ScanEvent, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := h.db.QueryContext(ctx, `
		SELECT id, session_id, item_name, quantity, confidence, created_at
		FROM scan_events ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent scan events: %w", err)
	}
	defer rows.Close()

	var events []ScanEvent
	for rows.Next() {
		var e ScanEvent
		var created string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.ItemName, &e.Quantity, &e.Confidence, &created); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// DailyActivity sums confirmed units per UTC day since the given time.
// Days without scans are absent; callers zero-fill.
func (h *History) DailyActivity(ctx context.Context, since time.Time) ([]DayCount, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := h.db.QueryContext(ctx, `
		SELECT substr(created_at, 1, 10) AS day, SUM(quantity)
		FROM scan_events WHERE created_at >= ?
		GROUP BY day ORDER BY day`, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("query daily activity: %w", err)
	}
	defer rows.Close()

	var days []DayCount
	for rows.Next() {
		var d DayCount
		if err := rows.Scan(&d.Date, &d.Count); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// PruneBefore deletes at most limit events older than cutoff.
func (h *History) PruneBefore(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	const stmt = `
		DELETE FROM scan_events
		WHERE id IN (
			SELECT id FROM scan_events
			WHERE created_at < ?
			LIMIT ?
		)`

	result, err := h.exec(ctx, stmt, formatTime(cutoff), limit)
	if err != nil {
		return 0, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rowsAffected), nil
}
