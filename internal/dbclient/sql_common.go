package dbclient

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// sqlConnector is the shared implementation for MySQL, Postgres, and SQLite.
type sqlConnector struct {
	driverName string
	db         *sql.DB
}

// newSQLConnector creates a generic SQL connector.
func newSQLConnector(driverName, dsn string) (*sqlConnector, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)

	return &sqlConnector{driverName: driverName, db: db}, nil
}

func (c *sqlConnector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.db.PingContext(ctx)
}

func (c *sqlConnector) Close() error {
	return c.db.Close()
}

// ReplaceTable rebuilds the table inside one transaction. On sqlite and
// postgres a failed insert rolls back to the previous contents. MySQL
// commits DROP and CREATE TABLE implicitly, so there a failure can leave
// the table empty or partially filled.
func (c *sqlConnector) ReplaceTable(ctx context.Context, table string, columns []ColumnInfo, rows [][]any) (int, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("no columns for table %s", table)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+c.quote(table)); err != nil {
		return 0, fmt.Errorf("drop table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, c.createTableSQL(table, columns)); err != nil {
		return 0, fmt.Errorf("create table: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, c.insertSQL(table, columns))
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	written := 0
	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("row %d: expected %d values, got %d", i, len(columns), len(row))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, fmt.Errorf("insert row %d: %w", i, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return written, nil
}

func (c *sqlConnector) createTableSQL(table string, columns []ColumnInfo) string {
	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = c.quote(col.Name) + " " + c.columnType(col.Type)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", c.quote(table), strings.Join(defs, ", "))
}

func (c *sqlConnector) insertSQL(table string, columns []ColumnInfo) string {
	names := make([]string, len(columns))
	for i, col := range columns {
		names[i] = c.quote(col.Name)
	}
	var ph string
	if c.driverName == "postgres" {
		ph = postgresPlaceholders(len(columns))
	} else {
		ph = strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", c.quote(table), strings.Join(names, ", "), ph)
}

func (c *sqlConnector) columnType(typ string) string {
	if typ != TypeNumber {
		return "TEXT"
	}
	if c.driverName == "sqlite" {
		return "REAL"
	}
	return "DOUBLE PRECISION"
}

// quote quotes an identifier for the connector's dialect.
func (c *sqlConnector) quote(name string) string {
	if c.driverName == "mysql" {
		return quoteMySQL(name)
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
