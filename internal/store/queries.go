package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// timeLayout sorts lexicographically in chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// Operation history

// InsertOperation stores op, assigning an ID when it has none.
func (s *Store) InsertOperation(op *Operation) error {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}

	query := `
		INSERT INTO operations (id, tag, kind, success, message, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.Exec(query,
		op.ID,
		op.Tag,
		op.Kind,
		op.Success,
		op.Message,
		formatTime(op.StartedAt),
		formatTime(op.FinishedAt),
	)
	if err != nil {
		return wrap(err, "failed to insert operation for %s", op.Tag)
	}
	return nil
}

// ListOperations returns the most recent operations first. A limit of zero
// or less returns all of them.
func (s *Store) ListOperations(limit int) ([]*Operation, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `
		SELECT id, tag, kind, success, message, started_at, finished_at
		FROM operations
		ORDER BY finished_at DESC, rowid DESC
		LIMIT ?
	`
	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, wrap(err, "failed to list operations")
	}
	defer rows.Close()

	var ops []*Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operations: %w", err)
	}
	return ops, nil
}

// LastOperation returns the most recent operation on tag, or nil if none.
func (s *Store) LastOperation(tag string) (*Operation, error) {
	query := `
		SELECT id, tag, kind, success, message, started_at, finished_at
		FROM operations
		WHERE tag = ?
		ORDER BY finished_at DESC, rowid DESC
		LIMIT 1
	`
	op, err := scanOperation(s.db.QueryRow(query, tag))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrap(err, "failed to get last operation for %s", tag)
	}
	return op, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOperation(row rowScanner) (*Operation, error) {
	var op Operation
	var message sql.NullString
	var started, finished string
	if err := row.Scan(&op.ID, &op.Tag, &op.Kind, &op.Success, &message, &started, &finished); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan operation row: %w", err)
	}
	op.Message = message.String

	var err error
	if op.StartedAt, err = parseTime(started); err != nil {
		return nil, fmt.Errorf("failed to parse started_at for %s: %w", op.ID, err)
	}
	if op.FinishedAt, err = parseTime(finished); err != nil {
		return nil, fmt.Errorf("failed to parse finished_at for %s: %w", op.ID, err)
	}
	return &op, nil
}

// Launch history

// InsertLaunch records a launch, assigning an ID when it has none.
func (s *Store) InsertLaunch(l *Launch) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	query := `
		INSERT INTO launches (id, prefix, exe, runtime, launched_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.Exec(query, l.ID, l.Prefix, l.Exe, l.Runtime, formatTime(l.LaunchedAt)); err != nil {
		return wrap(err, "failed to insert launch of %s", l.Exe)
	}
	return nil
}

// LastLaunch returns when exe was last launched in prefix, or nil if never.
func (s *Store) LastLaunch(prefix, exe string) (*time.Time, error) {
	query := `
		SELECT launched_at
		FROM launches
		WHERE prefix = ? AND exe = ?
		ORDER BY launched_at DESC
		LIMIT 1
	`
	var ts string
	err := s.db.QueryRow(query, prefix, exe).Scan(&ts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrap(err, "failed to get last launch of %s", exe)
	}
	t, err := parseTime(ts)
	if err != nil {
		return nil, fmt.Errorf("failed to parse launched_at: %w", err)
	}
	return &t, nil
}

// LaunchCount returns how often exe was launched in prefix.
func (s *Store) LaunchCount(prefix, exe string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM launches WHERE prefix = ? AND exe = ?`, prefix, exe).Scan(&n)
	if err != nil {
		return 0, wrap(err, "failed to count launches of %s", exe)
	}
	return n, nil
}
