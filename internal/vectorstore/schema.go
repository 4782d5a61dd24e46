// Package vectorstore provides a SQLite-backed vector index of document chunks.
package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
	path        TEXT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	checksum    TEXT NOT NULL DEFAULT '',
	chunk_count INTEGER NOT NULL DEFAULT 0,
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chunks (
	id            TEXT PRIMARY KEY,
	document_path TEXT NOT NULL,
	seq           INTEGER NOT NULL DEFAULT 0,
	text          TEXT NOT NULL,
	embedding     BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_path);
`

const metaEmbeddingModel = "embedding_model"

// Embedder computes the vectors stored alongside chunk text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// DB wraps a sql.DB holding documents, chunks and their embeddings.
type DB struct {
	conn     *sql.DB
	embedder Embedder
}

// Open opens (or creates) the SQLite database and applies the schema.
//
// The embedding model is recorded on first use. When a different model is
// configured later, every stored chunk is dropped so the next sync re-embeds
// the vault in the new vector space.
func Open(dsn string, embedder Embedder) (*DB, error) {
	if embedder == nil {
		return nil, errors.New("vectorstore: embedder is required")
	}
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("vectorstore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("vectorstore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("vectorstore: apply schema: %w", err)
	}
	db := &DB{conn: conn, embedder: embedder}
	if err := db.ensureModel(embedder.Model()); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) ensureModel(model string) error {
	var current string
	err := db.conn.QueryRow(`SELECT value FROM meta WHERE key = ?`, metaEmbeddingModel).Scan(&current)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("vectorstore: read model: %w", err)
	case current == model:
		return nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("vectorstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM chunks`); err != nil {
		return fmt.Errorf("vectorstore: reset chunks: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM documents`); err != nil {
		return fmt.Errorf("vectorstore: reset documents: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, metaEmbeddingModel, model); err != nil {
		return fmt.Errorf("vectorstore: write model: %w", err)
	}
	return tx.Commit()
}
