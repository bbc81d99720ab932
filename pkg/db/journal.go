package db

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Insert statements used by the asynchronous journal writer.
const (
	InsertReconcileReport = `INSERT INTO reconcile_reports
		(account, mode, positions, orders, added, removed, duration_ms) VALUES (?, ?, ?, ?, ?, ?, ?)`
	InsertConditionalTransition = `INSERT INTO conditional_transitions
		(account, order_id, symbol, category, from_status, to_status) VALUES (?, ?, ?, ?, ?, ?)`
	InsertTrailingConversion = `INSERT INTO trailing_conversions
		(account, symbol, position_side, old_order_id, new_order_id, callback_rate, activation_price, cancel_error, testnet)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	InsertBatchResult = `INSERT INTO batch_results
		(account, operation, succeeded, failed, items) VALUES (?, ?, ?, ?, ?)`
)

// ReconcileRow is one journaled reconciliation cycle.
type ReconcileRow struct {
	ID        int64
	Account   string
	Mode      string
	Positions int
	Orders    int
	Added     string
	Removed   string
	CreatedAt time.Time
}

// TrailingRow is one journaled trailing conversion.
type TrailingRow struct {
	ID              int64
	Account         string
	Symbol          string
	PositionSide    string
	OldOrderID      int64
	NewOrderID      int64
	CallbackRate    float64
	ActivationPrice float64
	CancelError     string
	CreatedAt       time.Time
}

// Counts summarises how many rows each journal table holds.
type Counts struct {
	Reports     int
	Transitions int
	Trailing    int
	Batches     int
}

// RecentReports returns the latest reconciliation rows for an account.
func (d *Database) RecentReports(ctx context.Context, account string, limit int) ([]ReconcileRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, account, mode, positions, orders, COALESCE(added, ''), COALESCE(removed, ''), created_at
		FROM reconcile_reports
		WHERE account = ?
		ORDER BY id DESC
		LIMIT ?
	`, account, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query reconcile reports")
	}
	defer rows.Close()

	var out []ReconcileRow
	for rows.Next() {
		var r ReconcileRow
		if err := rows.Scan(&r.ID, &r.Account, &r.Mode, &r.Positions, &r.Orders, &r.Added, &r.Removed, &r.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan reconcile report")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// TrailingConversions returns journaled conversions for an account, newest first.
func (d *Database) TrailingConversions(ctx context.Context, account string) ([]TrailingRow, error) {
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, account, symbol, position_side, old_order_id, new_order_id,
		       callback_rate, activation_price, COALESCE(cancel_error, ''), created_at
		FROM trailing_conversions
		WHERE account = ?
		ORDER BY id DESC
	`, account)
	if err != nil {
		return nil, errors.Wrap(err, "query trailing conversions")
	}
	defer rows.Close()

	var out []TrailingRow
	for rows.Next() {
		var r TrailingRow
		if err := rows.Scan(&r.ID, &r.Account, &r.Symbol, &r.PositionSide, &r.OldOrderID, &r.NewOrderID,
			&r.CallbackRate, &r.ActivationPrice, &r.CancelError, &r.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan trailing conversion")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// JournalCounts returns row counts per journal table.
func (d *Database) JournalCounts(ctx context.Context) (Counts, error) {
	var c Counts
	for _, q := range []struct {
		table string
		dst   *int
	}{
		{"reconcile_reports", &c.Reports},
		{"conditional_transitions", &c.Transitions},
		{"trailing_conversions", &c.Trailing},
		{"batch_results", &c.Batches},
	} {
		if err := d.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+q.table).Scan(q.dst); err != nil {
			return c, errors.Wrapf(err, "count %s", q.table)
		}
	}
	return c, nil
}
