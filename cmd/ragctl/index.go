package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newIndexCmd(opts *globalOptions) *cobra.Command {
	var (
		entity entityFlags
		url    string
		meta   map[string]string
	)
	cmd := &cobra.Command{
		Use:   "index [file]",
		Short: "Index a file, stdin or a crawled URL as an entity",
		Long: `Index converges the stored points of an entity to the given text.
Unchanged chunks keep their vectors; only new chunk texts are embedded.

Examples:
  # Index a markdown file as a document
  ragctl index -t acme --id handbook docs/handbook.md

  # Index from stdin
  cat notes.txt | ragctl index -t acme --id notes -

  # Crawl a page and index it as a resource
  ragctl index -t acme --type resource --id pricing --url https://example.com/pricing`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := entity.ref(opts.tenant)
			if err != nil {
				return err
			}
			if url != "" && len(args) > 0 {
				return errors.New("pass either a file or --url, not both")
			}

			var text string
			if url == "" {
				if text, err = readInput(cmd, args); err != nil {
					return err
				}
			}
			return opts.run(cmd, func(ctx context.Context, s *session) error {
				if url != "" {
					res, err := s.IndexURL(ctx, ref, url, toPayload(meta))
					if err != nil {
						return err
					}
					return printJSON(cmd, res)
				}
				res, err := s.IndexEntity(ctx, ref, text, toPayload(meta))
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
	entity.bind(cmd, "", "target")
	cmd.Flags().StringVar(&url, "url", "", "crawl this URL instead of reading a file")
	cmd.Flags().StringToStringVar(&meta, "meta", nil, "extra payload fields, key=value")
	return cmd
}

// readInput reads the named file, or stdin when no file or "-" is given.
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		return string(b), nil
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", args[0], err)
	}
	return string(b), nil
}
