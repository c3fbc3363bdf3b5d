package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	defaultTable = "warden_patterns"
	seededKey    = "seeded"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLAdapter is a generic SQL pattern source. Patterns are returned in insertion order.
type SQLAdapter struct {
	db    *sql.DB
	table string
}

// NewSQLAdapter creates an adapter over *sql.DB.
func NewSQLAdapter(db *sql.DB, table string) (*SQLAdapter, error) {
	if db == nil {
		return nil, errors.New("storage: db is nil")
	}
	table = strings.TrimSpace(table)
	if table == "" {
		table = defaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("storage: invalid table name %q", table)
	}
	return &SQLAdapter{db: db, table: table}, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLAdapter) metaTable() string {
	return s.table + "_meta"
}

// EnsureSchema creates the pattern and meta tables if missing.
func (s *SQLAdapter) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (position INTEGER PRIMARY KEY, pattern TEXT NOT NULL UNIQUE)`, s.table),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (key TEXT PRIMARY KEY, value TEXT NOT NULL)`, s.metaTable()),
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

// Seed inserts patterns into an empty table once per database and reports
// whether it did. A table emptied later on stays empty.
func (s *SQLAdapter) Seed(ctx context.Context, patterns []string) (seeded bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var marks int
	q := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE key = ?`, s.metaTable())
	if err = tx.QueryRowContext(ctx, q, seededKey).Scan(&marks); err != nil {
		return false, err
	}
	if marks > 0 {
		return false, tx.Commit()
	}

	var n int
	q = fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)
	if err = tx.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return false, err
	}
	if n == 0 {
		for _, p := range patterns {
			if err = s.insert(ctx, tx, p); err != nil {
				return false, err
			}
		}
		seeded = len(patterns) > 0
	}

	q = fmt.Sprintf(`INSERT INTO %s (key, value) VALUES (?, ?)`, s.metaTable())
	if _, err = tx.ExecContext(ctx, q, seededKey, time.Now().UTC().Format(time.RFC3339)); err != nil {
		return false, err
	}
	if err = tx.Commit(); err != nil {
		return false, err
	}
	return seeded, nil
}

func (s *SQLAdapter) AddPattern(ctx context.Context, pattern string) error {
	return s.insert(ctx, s.db, pattern)
}

func (s *SQLAdapter) insert(ctx context.Context, ex execer, pattern string) error {
	q := fmt.Sprintf(`INSERT INTO %s (pattern) VALUES (?)`, s.table)
	_, err := ex.ExecContext(ctx, q, pattern)
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "duplicate") || strings.Contains(strings.ToLower(err.Error()), "unique") {
		return nil
	}
	return err
}

func (s *SQLAdapter) RemovePattern(ctx context.Context, pattern string) error {
	q := fmt.Sprintf(`DELETE FROM %s WHERE pattern = ?`, s.table)
	_, err := s.db.ExecContext(ctx, q, pattern)
	return err
}

func (s *SQLAdapter) GetPatterns(ctx context.Context) ([]string, error) {
	q := fmt.Sprintf(`SELECT pattern FROM %s ORDER BY position`, s.table)
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0, 8)
	for rows.Next() {
		var p string
		if scanErr := rows.Scan(&p); scanErr != nil {
			return nil, scanErr
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
