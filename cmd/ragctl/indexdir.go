package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ragindex/internal/repository"
)

func newIndexDirCmd(opts *globalOptions) *cobra.Command {
	var (
		indexOpts repository.IndexOptions
		watch     bool
	)
	cmd := &cobra.Command{
		Use:   "index-dir <path>",
		Short: "Index every file of a directory as a document",
		Long: `Index-dir walks a directory and indexes each UTF-8 file as a document
whose id is its path relative to the directory. Files matched by .gitignore
or .ragignore at the root are skipped. Re-running only embeds the chunks of
files that changed.

With --watch, ragctl keeps running after the initial pass and re-indexes
files as they are written, deleting the documents of removed files.

Examples:
  ragctl index-dir -t acme ./docs
  ragctl index-dir -t acme --include "**/*.md" --exclude "drafts/" --watch .`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			indexOpts.TenantID = opts.tenant
			return opts.run(cmd, func(ctx context.Context, s *session) error {
				svc := repository.NewService(s.Engine, s.config.Repository, s.logger)
				res, err := svc.IndexRepository(ctx, args[0], indexOpts)
				if err != nil {
					return err
				}
				if err := printJSON(cmd, res); err != nil {
					return err
				}
				if !watch {
					return nil
				}
				return svc.Watch(ctx, args[0], indexOpts)
			})
		},
	}
	cmd.Flags().StringVar(&indexOpts.ProjectID, "project", "", "project id stamped on every chunk")
	cmd.Flags().StringSliceVar(&indexOpts.IncludePatterns, "include", nil, "only index files matching these globs")
	cmd.Flags().StringSliceVar(&indexOpts.ExcludePatterns, "exclude", nil, "skip paths matching these gitignore patterns")
	cmd.Flags().Int64Var(&indexOpts.MaxFileSize, "max-file-size", 0, "skip files larger than this many bytes (default from config)")
	cmd.Flags().BoolVar(&watch, "watch", false, "keep re-indexing files as they change")
	return cmd
}
