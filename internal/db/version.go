package db

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
)

// VersionTable is the reserved table holding one version per managed table.
const VersionTable = "table_version"

// ErrInvalidIdentifier is returned for column names that are not plain
// SQLite identifiers and for table names that are not schema.table or table.
var ErrInvalidIdentifier = errors.New("invalid identifier")

var (
	identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	tableRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*\.)?[A-Za-z_][A-Za-z0-9_]*$`)
)

// checkIdent accepts a plain column name.
func checkIdent(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}

// checkTable accepts a table name with an optional "schema." prefix.
func checkTable(name string) error {
	if !tableRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return nil
}

// TableSpec describes the DDL for a table and the version it represents.
type TableSpec struct {
	Name    string `json:"tableName"`
	Version int    `json:"version"`
	DDL     string `json:"createSql"`
}

func getVersion(ctx context.Context, q querier, table string) (int, error) {
	v, err := scalar(ctx, q, Statement{
		Expression: `SELECT version FROM ` + VersionTable + ` WHERE table_name = @p0`,
		Params:     []Param{{Name: ParamName(0), Value: Text(table)}},
	})
	if err != nil {
		return 0, err
	}
	n, _ := v.AsInt()
	return int(n), nil
}

func setVersion(ctx context.Context, q querier, table string, version int) (int64, error) {
	return exec(ctx, q, Statement{
		Expression: `INSERT OR REPLACE INTO ` + VersionTable + ` (table_name, version) VALUES (@p0, @p1)`,
		Params: []Param{
			{Name: ParamName(0), Value: Text(table)},
			{Name: ParamName(1), Value: Int(int64(version))},
		},
	})
}

// GetTableVersion returns the stored version of table, or 0 if none was
// ever recorded.
func (d *DB) GetTableVersion(table string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.initLocked(); err != nil {
		return 0, err
	}

	var version int
	err := d.withConn(func(ctx context.Context, c *sqlx.Conn) (err error) {
		version, err = getVersion(ctx, c, table)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("get table version %q: %w", table, err)
	}
	return version, nil
}

// SetTableVersion records version for table, replacing any earlier value.
func (d *DB) SetTableVersion(table string, version int) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.initLocked(); err != nil {
		return 0, err
	}

	var n int64
	err := d.withConn(func(ctx context.Context, c *sqlx.Conn) error {
		return inTx(ctx, c, func(tx *sqlx.Tx) (err error) {
			n, err = setVersion(ctx, tx, table, version)
			return err
		})
	})
	if err != nil {
		return 0, fmt.Errorf("set table version %q: %w", table, err)
	}
	return n, nil
}

// EnsureTable (re)creates spec.Name when spec.Version is newer than the
// stored version: the table is dropped, spec.DDL is run and the version is
// recorded, all in one transaction. Existing rows are lost. It returns the
// summed rows affected, or 0 when the stored version is already current.
func (d *DB) EnsureTable(spec TableSpec) (int64, error) {
	if err := checkTable(spec.Name); err != nil {
		return 0, err
	}
	if strings.TrimSpace(spec.DDL) == "" {
		return 0, fmt.Errorf("ensure table %q: create statement is required", spec.Name)
	}
	ddl := Statement{Expression: spec.DDL}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.initLocked(); err != nil {
		return 0, err
	}

	var total int64
	err := d.withConn(func(ctx context.Context, c *sqlx.Conn) error {
		current, err := getVersion(ctx, c, spec.Name)
		if err != nil {
			return fmt.Errorf("read version: %w", err)
		}
		if spec.Version <= current {
			return nil
		}

		return inTx(ctx, c, func(tx *sqlx.Tx) error {
			n, err := exec(ctx, tx, Statement{Expression: `DROP TABLE IF EXISTS ` + spec.Name})
			if err != nil {
				return fmt.Errorf("drop: %w", err)
			}
			total += n

			if n, err = exec(ctx, tx, ddl); err != nil {
				return fmt.Errorf("create: %w", err)
			}
			total += n

			if n, err = setVersion(ctx, tx, spec.Name, spec.Version); err != nil {
				return fmt.Errorf("record version: %w", err)
			}
			total += n

			log.WithFields(log.Fields{
				"table": spec.Name,
				"from":  current,
				"to":    spec.Version,
			}).Info("recreated table")
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("ensure table %q: %w", spec.Name, err)
	}
	return total, nil
}
