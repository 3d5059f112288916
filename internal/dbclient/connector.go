package dbclient

import (
	"context"
	"fmt"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverMongoDB  = "mongo"
)

// Column types understood by ReplaceTable.
const (
	TypeText   = "text"
	TypeNumber = "number"
)

// ColumnInfo describes a column/field.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"` // "text" | "number"
}

// Connection identifies an external database.
type Connection struct {
	Driver   string
	DSN      string // DSN, file path (sqlite) or URI (mongo)
	Database string // mongo only; falls back to the URI path
}

// Connector abstracts writing a dataset into an external database.
type Connector interface {
	// TestConnection verifies connectivity.
	TestConnection(ctx context.Context) error

	// ReplaceTable drops the target table/collection, recreates it with the
	// given columns and inserts every row. Row values follow column order;
	// nil is stored as NULL.
	ReplaceTable(ctx context.Context, table string, columns []ColumnInfo, rows [][]any) (int, error)

	// Close closes the connection.
	Close() error
}

// NewConnector creates a Connector for the given connection.
func NewConnector(conn Connection) (Connector, error) {
	if conn.DSN == "" {
		return nil, fmt.Errorf("%s: dsn is required", conn.Driver)
	}
	switch conn.Driver {
	case DriverSQLite:
		return newSQLiteConnector(conn.DSN)
	case DriverMySQL:
		return newSQLConnector("mysql", conn.DSN)
	case DriverPostgres:
		return newSQLConnector("postgres", conn.DSN)
	case DriverMongoDB:
		return newMongoConnector(conn.DSN, conn.Database)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", conn.Driver)
	}
}
