// Package repository indexes a directory tree as document entities.
//
// Each regular UTF-8 file becomes one document whose id is its
// slash-separated path relative to the root, so re-indexing a tree only
// re-embeds the chunks of files that changed. Files are filtered by the
// root's ignore files (.gitignore and .ragignore by default), by explicit
// include and exclude patterns, and by size.
//
//	svc := repository.NewService(engine, cfg.Repository, logger)
//	res, err := svc.IndexRepository(ctx, "./docs", repository.IndexOptions{
//	    TenantID:        "acme",
//	    IncludePatterns: []string{"**/*.md"},
//	})
//
// Watch keeps the index current: it re-indexes files as they are written and
// deletes the entities of removed files.
package repository
