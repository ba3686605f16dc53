package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
)

// Row maps column names to values.
type Row map[string]Value

// ErrDuplicateColumn is returned by Query when two result columns share a
// name, since a Row cannot hold both.
var ErrDuplicateColumn = errors.New("duplicate column name in result")

// querier is satisfied by both *sqlx.Conn and *sqlx.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error)
}

// totalChanges returns the number of rows changed on the connection so far.
func totalChanges(ctx context.Context, q querier) (int64, error) {
	v, err := scalar(ctx, q, Statement{Expression: "SELECT total_changes()"})
	if err != nil {
		return 0, fmt.Errorf("total changes: %w", err)
	}
	n, _ := v.AsInt()
	return n, nil
}

// exec runs st and returns the rows it changed. The engine's change count is
// left over from the last INSERT, UPDATE or DELETE, so a statement that does
// not move total_changes() (DDL, SELECT) reports 0.
func exec(ctx context.Context, q querier, st Statement) (int64, error) {
	if st.Empty() {
		return 0, nil
	}
	before, err := totalChanges(ctx, q)
	if err != nil {
		return 0, err
	}
	res, err := q.ExecContext(ctx, st.Expression, st.Args()...)
	if err != nil {
		return 0, err
	}
	after, err := totalChanges(ctx, q)
	if err != nil {
		return 0, err
	}
	var n int64
	if after != before {
		if n, err = res.RowsAffected(); err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
	}
	log.WithFields(log.Fields{
		"sql":      st.Expression,
		"params":   len(st.Params),
		"affected": n,
	}).Debug("executed statement")
	return n, nil
}

// scalar returns the first column of the first row, or NULL when there are
// no rows.
func scalar(ctx context.Context, q querier, st Statement) (Value, error) {
	if st.Empty() {
		return Null(), nil
	}
	rows, err := q.QueryxContext(ctx, st.Expression, st.Args()...)
	if err != nil {
		return Null(), err
	}
	defer rows.Close() //nolint:errcheck

	if !rows.Next() {
		return Null(), rows.Err()
	}
	cols, err := rows.SliceScan()
	if err != nil {
		return Null(), fmt.Errorf("scan: %w", err)
	}
	if len(cols) == 0 {
		return Null(), nil
	}
	return ValueOf(cols[0])
}

func query(ctx context.Context, q querier, st Statement) ([]Row, error) {
	out := []Row{}
	if st.Empty() {
		return out, nil
	}
	rows, err := q.QueryxContext(ctx, st.Expression, st.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		if seen[c] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateColumn, c)
		}
		seen[c] = true
	}

	for rows.Next() {
		raw := make(map[string]any, len(cols))
		if err := rows.MapScan(raw); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(Row, len(raw))
		for col, v := range raw {
			val, err := ValueOf(v)
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", col, err)
			}
			row[col] = val
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"sql":    st.Expression,
		"params": len(st.Params),
		"rows":   len(out),
	}).Debug("executed query")
	return out, nil
}

// inTx runs fn inside a transaction on c. If fn fails the transaction is
// rolled back and fn's error is returned as is.
func inTx(ctx context.Context, c *sqlx.Conn, fn func(tx *sqlx.Tx) error) error {
	tx, err := c.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.WithField("err", rbErr).Warn("rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ExecuteScalar runs t and returns the first column of the first row. A
// query yielding no rows returns NULL.
func (d *DB) ExecuteScalar(t Template) (Value, error) {
	st, err := Translate(t)
	if err != nil {
		return Null(), err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var v Value
	err = d.withConn(func(ctx context.Context, c *sqlx.Conn) error {
		v, err = scalar(ctx, c, st)
		return err
	})
	if err != nil {
		return Null(), fmt.Errorf("execute scalar: %w", err)
	}
	return v, nil
}

// ExecuteNonQuery runs t and returns the number of rows it changed.
func (d *DB) ExecuteNonQuery(t Template) (int64, error) {
	st, err := Translate(t)
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var n int64
	err = d.withConn(func(ctx context.Context, c *sqlx.Conn) error {
		n, err = exec(ctx, c, st)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("execute: %w", err)
	}
	return n, nil
}

// ExecuteBatch runs every template in one transaction and returns the total
// number of rows changed. Either all statements take effect or, on the first
// failure, none do. Blank templates are skipped.
func (d *DB) ExecuteBatch(templates []Template) (int64, error) {
	stmts, err := translateAll(templates)
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	return d.batchLocked(stmts)
}

// batchLocked requires d.mu.
func (d *DB) batchLocked(stmts []Statement) (int64, error) {
	if len(stmts) == 0 {
		if d.closed {
			return 0, ErrClosed
		}
		return 0, nil
	}

	var total int64
	err := d.withConn(func(ctx context.Context, c *sqlx.Conn) error {
		return inTx(ctx, c, func(tx *sqlx.Tx) error {
			for i, st := range stmts {
				n, err := exec(ctx, tx, st)
				if err != nil {
					log.WithFields(log.Fields{
						"statement": i,
						"of":        len(stmts),
						"err":       err,
					}).Warn("batch failed, rolling back")
					return fmt.Errorf("statement %d: %w", i, err)
				}
				total += n
			}
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("execute batch: %w", err)
	}
	return total, nil
}

// Query runs t and returns every result row. The result is never nil.
func (d *DB) Query(t Template) ([]Row, error) {
	st, err := Translate(t)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var rows []Row
	err = d.withConn(func(ctx context.Context, c *sqlx.Conn) error {
		rows, err = query(ctx, c, st)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	return rows, nil
}

// QueryJSON runs t and returns the rows as a JSON array of objects keyed by
// column name.
func (d *DB) QueryJSON(t Template) (string, error) {
	rows, err := d.Query(t)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("encode rows: %w", err)
	}
	return string(data), nil
}
