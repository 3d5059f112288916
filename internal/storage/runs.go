package storage

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"carprep/internal/etl"
)

// RunStore implements persistence for pipeline run logs.
type RunStore struct {
	db *DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

// CreateRunLog inserts a run log. An empty ID is filled with a new UUID.
func (s *RunStore) CreateRunLog(log *etl.RunLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}
	_, err := s.db.conn.Exec(
		`INSERT INTO pipeline_runs (id, started_at, finished_at, status, source_count,
		 rows_read, duplicates_removed, rows_written, output_path, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.StartedAt, log.FinishedAt, log.Status, log.SourceCount,
		log.RowsRead, log.DuplicatesRemoved, log.RowsWritten, log.OutputPath, log.Error,
	)
	return err
}

const runLogColumns = `id, started_at, finished_at, status, source_count,
	rows_read, duplicates_removed, rows_written, output_path, error`

func (s *RunStore) GetRunLog(id string) (*etl.RunLog, error) {
	row := s.db.conn.QueryRow(`SELECT `+runLogColumns+` FROM pipeline_runs WHERE id = ?`, id)
	l, err := scanRunLog(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("pipeline run not found: %s", id)
	}
	return l, err
}

// ListRunLogs returns the most recent runs first.
func (s *RunStore) ListRunLogs(limit int) ([]etl.RunLog, error) {
	rows, err := s.db.conn.Query(
		`SELECT `+runLogColumns+` FROM pipeline_runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []etl.RunLog
	for rows.Next() {
		l, err := scanRunLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, *l)
	}
	return logs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRunLog(sc scanner) (*etl.RunLog, error) {
	var l etl.RunLog
	err := sc.Scan(
		&l.ID, &l.StartedAt, &l.FinishedAt, &l.Status, &l.SourceCount,
		&l.RowsRead, &l.DuplicatesRemoved, &l.RowsWritten, &l.OutputPath, &l.Error,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}
