// Package storage defines the vault file-system abstraction.
package storage

import "github.com/starford/ansuz/internal/models"

// Provider is the interface for vault file operations.
type Provider interface {
	// List returns metadata for every qualifying document under dir (relative to vault root).
	List(dir string) ([]models.DocumentMeta, error)
	// Read returns the raw bytes of the file at path (relative to vault root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path (relative to vault root).
	Write(path string, content []byte) error
	// Rel converts an absolute path under the root into a vault-relative slash path.
	Rel(abs string) (string, error)
	// Qualifies reports whether a relative path names a document that should be indexed.
	Qualifies(rel string) bool
}
