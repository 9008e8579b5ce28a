package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(connStr string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Initialize() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS options (
            name VARCHAR(191) PRIMARY KEY,
            value JSONB NOT NULL,
            created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
        )`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}

	return nil
}

func (s *PostgresStore) GetOption(ctx context.Context, name string) ([]byte, bool, error) {
	query := `SELECT value FROM options WHERE name = $1`

	var value []byte
	err := s.db.QueryRowContext(ctx, query, name).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	return value, true, nil
}

func (s *PostgresStore) AddOption(ctx context.Context, name string, value []byte) (bool, error) {
	query := `
        INSERT INTO options (name, value)
        VALUES ($1, $2)
        ON CONFLICT (name) DO NOTHING
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

func (s *PostgresStore) UpdateOption(ctx context.Context, name string, value []byte) error {
	query := `
        INSERT INTO options (name, value)
        VALUES ($1, $2)
        ON CONFLICT (name) DO UPDATE SET
            value = EXCLUDED.value,
            updated_at = CURRENT_TIMESTAMP
    `

	_, err := s.db.ExecContext(ctx, query, name, string(value))
	return err
}

func (s *PostgresStore) DeleteOption(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM options WHERE name = $1`, name)
	return err
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
