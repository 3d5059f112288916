package dbclient

import (
	_ "modernc.org/sqlite"
)

// newSQLiteConnector creates a connector for an SQLite file.
// Opens in WAL mode with busy timeout for concurrent access.
func newSQLiteConnector(path string) (*sqlConnector, error) {
	c, err := newSQLConnector("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	// SQLite only supports one writer.
	c.db.SetMaxOpenConns(1)
	return c, nil
}
