package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Metadata is the source information attached to every chunk.
type Metadata struct {
	DocumentPath string `json:"documentPath"`
	Title        string `json:"title,omitempty"`
}

// Entry is a chunk ready to be stored. Its embedding is computed on write.
type Entry struct {
	ID       string
	Seq      int
	Text     string
	Metadata Metadata
}

// DocumentRecord describes the indexed version of a document.
type DocumentRecord struct {
	Path      string
	Title     string
	Checksum  string
	UpdatedAt time.Time
}

// ChunkID returns the identifier of the seq-th chunk of the document at path.
func ChunkID(path string, seq int) string {
	return fmt.Sprintf("%s_%d", path, seq)
}

type embedded struct {
	Entry
	blob []byte
}

func (db *DB) embedAll(ctx context.Context, entries []Entry) ([]embedded, error) {
	out := make([]embedded, len(entries))
	for i, e := range entries {
		vec, err := db.embedder.Embed(ctx, e.Text)
		if err != nil {
			return nil, fmt.Errorf("vectorstore: embed %s: %w", e.ID, err)
		}
		out[i] = embedded{Entry: e, blob: encodeVector(normalize(vec))}
	}
	return out, nil
}

// Upsert inserts or replaces entries keyed by ID.
// Entries of a document that are not part of the call are left untouched.
func (db *DB) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	rows, err := db.embedAll(ctx, entries)
	if err != nil {
		return err
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("vectorstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := insertChunks(ctx, tx, rows); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceDocument swaps every chunk of doc.Path for entries in one transaction,
// so a shorter new version never leaves stale trailing chunks behind.
func (db *DB) ReplaceDocument(ctx context.Context, doc DocumentRecord, entries []Entry) error {
	rows, err := db.embedAll(ctx, entries)
	if err != nil {
		return err
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = time.Now()
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("vectorstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_path = ?`, doc.Path); err != nil {
		return fmt.Errorf("vectorstore: clear chunks: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO documents (path, title, checksum, chunk_count, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title       = excluded.title,
			checksum    = excluded.checksum,
			chunk_count = excluded.chunk_count,
			updated_at  = excluded.updated_at
	`, doc.Path, doc.Title, doc.Checksum, len(entries), doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("vectorstore: upsert document: %w", err)
	}
	if err := insertChunks(ctx, tx, rows); err != nil {
		return err
	}
	return tx.Commit()
}

func insertChunks(ctx context.Context, tx *sql.Tx, rows []embedded) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, document_path, seq, text, embedding)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			document_path = excluded.document_path,
			seq           = excluded.seq,
			text          = excluded.text,
			embedding     = excluded.embedding
	`)
	if err != nil {
		return fmt.Errorf("vectorstore: prepare chunk insert: %w", err)
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.ID, r.Metadata.DocumentPath, r.Seq, r.Text, r.blob); err != nil {
			return fmt.Errorf("vectorstore: insert chunk %s: %w", r.ID, err)
		}
	}
	return nil
}

// DeleteDocument removes every chunk whose document path equals path,
// together with the document record. It returns the number of chunks removed.
func (db *DB) DeleteDocument(ctx context.Context, path string) (int64, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("vectorstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_path = ?`, path)
	if err != nil {
		return 0, fmt.Errorf("vectorstore: delete chunks: %w", err)
	}
	n, _ := res.RowsAffected()
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, path); err != nil {
		return 0, fmt.Errorf("vectorstore: delete document: %w", err)
	}
	return n, tx.Commit()
}

// Documents returns the checksum of every indexed document keyed by path.
func (db *DB) Documents(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT path, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: list documents: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// Count returns the number of stored chunks.
func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM chunks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("vectorstore: count: %w", err)
	}
	return n, nil
}
