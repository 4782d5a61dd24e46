// Package models defines the domain types shared across Ansuz packages.
package models

import "time"

// DocumentMeta is the lightweight view of a vault document returned by list operations.
type DocumentMeta struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Document is a vault file split into frontmatter and body.
type Document struct {
	Path        string                 `json:"path"`
	Title       string                 `json:"title,omitempty"`
	Body        string                 `json:"body"`
	Frontmatter map[string]interface{} `json:"frontmatter,omitempty"`
	Checksum    string                 `json:"checksum"`
}
