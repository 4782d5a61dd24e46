// Package index keeps the vector store in step with the vault.
package index

import (
	"context"

	"github.com/starford/ansuz/internal/storage"
	"github.com/starford/ansuz/internal/vectorstore"
)

// Store is the vector store surface the synchronizer writes to.
// Consumers should depend on this interface rather than *vectorstore.DB
// to facilitate testing with fakes.
type Store interface {
	ReplaceDocument(ctx context.Context, doc vectorstore.DocumentRecord, entries []vectorstore.Entry) error
	DeleteDocument(ctx context.Context, path string) (int64, error)
	Documents(ctx context.Context) (map[string]string, error)
}

// Verify the concrete types satisfy the consumer interfaces at compile time.
var (
	_ Store            = (*vectorstore.DB)(nil)
	_ storage.Provider = (*storage.FS)(nil)
)
