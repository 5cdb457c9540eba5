package repository

import (
	"time"

	"github.com/fyrsmithlabs/ragindex/internal/indexer"
)

// IndexOptions configures directory indexing.
type IndexOptions struct {
	// TenantID owns every indexed file. Required.
	TenantID string

	// ProjectID is stamped on every chunk so searches can filter by it.
	ProjectID string

	// IncludePatterns are doublestar globs (e.g. "**/*.md"). A pattern
	// without a slash also matches the base name. Empty includes everything.
	IncludePatterns []string

	// ExcludePatterns use gitignore syntax and add to the ignore files.
	ExcludePatterns []string

	// MaxFileSize is the maximum file size in bytes. Zero uses the
	// configured default.
	MaxFileSize int64
}

// IndexResult summarizes one directory indexing run.
type IndexResult struct {
	Path         string `json:"path"`
	FilesIndexed int    `json:"filesIndexed"`
	// FilesSkipped counts excluded, oversized and binary files.
	FilesSkipped int `json:"filesSkipped"`

	Chunks   int `json:"chunks"`
	Reused   int `json:"reused"`
	Embedded int `json:"embedded"`
	Deleted  int `json:"deleted"`
	Redacted int `json:"redacted,omitempty"`

	IndexedAt time.Time `json:"indexedAt"`
}

func (r *IndexResult) add(res indexer.Result) {
	r.FilesIndexed++
	r.Chunks += res.Chunks
	r.Reused += res.Reused
	r.Embedded += res.Embedded
	r.Deleted += res.Deleted
	r.Redacted += res.Redacted
}
