package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// :memory: databases are per connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Initialize() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS options (
            name TEXT PRIMARY KEY,
            value TEXT NOT NULL,
            created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        )`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}

	return nil
}

func (s *SQLiteStore) GetOption(ctx context.Context, name string) ([]byte, bool, error) {
	query := `SELECT value FROM options WHERE name = ?`

	var value string
	err := s.db.QueryRowContext(ctx, query, name).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return []byte(value), true, nil
}

func (s *SQLiteStore) AddOption(ctx context.Context, name string, value []byte) (bool, error) {
	query := `
        INSERT INTO options (name, value)
        VALUES (?, ?)
        ON CONFLICT(name) DO NOTHING
    `

	res, err := s.db.ExecContext(ctx, query, name, string(value))
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) UpdateOption(ctx context.Context, name string, value []byte) error {
	query := `
        INSERT INTO options (name, value)
        VALUES (?, ?)
        ON CONFLICT(name) DO UPDATE SET
            value = excluded.value,
            updated_at = CURRENT_TIMESTAMP
    `

	_, err := s.db.ExecContext(ctx, query, name, string(value))
	return err
}

func (s *SQLiteStore) DeleteOption(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM options WHERE name = ?`, name)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
