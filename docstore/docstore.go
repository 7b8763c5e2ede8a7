// Package docstore abstracts the document repository that knowledge base
// content is loaded from. The production backend is an S3 bucket holding
// policy and procedure documents; an in-memory store backs tests and local
// development.
package docstore

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"
)

// ErrNotFound indicates the requested document does not exist in the store.
var ErrNotFound = errors.New("document not found")

// Document is the metadata of a stored document.
type Document struct {
	// Name is the store key, e.g. "corporate-card-policy.md".
	Name string `json:"name"`

	// Size is the document size in bytes.
	Size int64 `json:"size"`

	// LastModified is the store's modification timestamp.
	LastModified time.Time `json:"last_modified"`

	// ContentType is the MIME type inferred from the file extension.
	ContentType string `json:"content_type"`
}

// Store provides read access to the document repository.
type Store interface {
	// List returns metadata for all documents in the store.
	List(ctx context.Context) ([]Document, error)

	// Get returns a document's raw content and metadata.
	// Returns ErrNotFound if the document does not exist.
	Get(ctx context.Context, name string) ([]byte, *Document, error)
}

// ContentTypeFor maps a document name to its MIME type by extension.
func ContentTypeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		return "application/pdf"
	case ".md":
		return "text/markdown"
	case ".html", ".htm":
		return "text/html"
	case ".json":
		return "application/json"
	case ".csv":
		return "text/csv"
	case ".txt", "":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
