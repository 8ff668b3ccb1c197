package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteBackend stores documents as rows of a single table.
type SQLiteBackend struct {
	db *sql.DB
}

func NewSQLiteBackend(dataSourceName string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Writes are whole-document replacements; one connection keeps them serial.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	backend := &SQLiteBackend{db: db}
	if err = backend.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return backend, nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

func (b *SQLiteBackend) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS documents (
        name TEXT PRIMARY KEY,
        body TEXT NOT NULL,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    `
	_, err := b.db.Exec(schema)
	return err
}

func (b *SQLiteBackend) Read(ctx context.Context, name string) ([]byte, error) {
	var body string
	err := b.db.QueryRowContext(ctx, "SELECT body FROM documents WHERE name = ?", name).Scan(&body)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query document: %w", err)
	}
	return []byte(body), nil
}

func (b *SQLiteBackend) Write(ctx context.Context, name string, data []byte) error {
	stmt, err := b.db.PrepareContext(ctx, `
        INSERT INTO documents (name, body, updated_at) VALUES (?, ?, ?)
        ON CONFLICT(name) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
    `)
	if err != nil {
		return fmt.Errorf("failed to prepare document upsert: %w", err)
	}
	defer stmt.Close()

	if _, err = stmt.ExecContext(ctx, name, string(data), time.Now()); err != nil {
		return fmt.Errorf("failed to execute document upsert: %w", err)
	}
	return nil
}
