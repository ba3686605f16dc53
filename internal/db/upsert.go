package db

import (
	"fmt"
	"strings"
)

// UpsertSpec names a table and the columns written by Upsert, in order.
type UpsertSpec struct {
	Table   string   `json:"tableName"`
	Columns []string `json:"columnNames"`
}

func (s UpsertSpec) validate() error {
	if err := checkTable(s.Table); err != nil {
		return err
	}
	if len(s.Columns) == 0 {
		return fmt.Errorf("upsert into %s: no columns", s.Table)
	}
	for _, c := range s.Columns {
		if err := checkIdent(c); err != nil {
			return err
		}
	}
	return nil
}

// expression is "INSERT OR REPLACE INTO t(a, b) VALUES(?, ?)".
func (s UpsertSpec) expression() string {
	holes := strings.TrimSuffix(strings.Repeat("?, ", len(s.Columns)), ", ")
	return fmt.Sprintf("INSERT OR REPLACE INTO %s(%s) VALUES(%s)", s.Table, strings.Join(s.Columns, ", "), holes)
}

// Templates returns one insert-or-replace template per row. Columns missing
// from a row are written as NULL.
func (s UpsertSpec) Templates(rows []Row) ([]Template, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	expr := s.expression()
	out := make([]Template, len(rows))
	for i, row := range rows {
		params := make([]Value, len(s.Columns))
		for j, col := range s.Columns {
			params[j] = row[col]
		}
		out[i] = Template{Expression: expr, Params: params}
	}
	return out, nil
}

// Upsert inserts each row, replacing any existing row with the same primary
// or unique key, in a single transaction. The target table must have such a
// key for replacement to happen; that is not checked here.
func (d *DB) Upsert(spec UpsertSpec, rows []Row) (int64, error) {
	templates, err := spec.Templates(rows)
	if err != nil {
		return 0, err
	}
	stmts, err := translateAll(templates)
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := d.batchLocked(stmts)
	if err != nil {
		return 0, fmt.Errorf("upsert into %s: %w", spec.Table, err)
	}
	return n, nil
}
