package main

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ragindex/internal/retrieval"
	"github.com/fyrsmithlabs/ragindex/internal/vectorstore"
)

func newSearchCmd(opts *globalOptions) *cobra.Command {
	var (
		limit    int
		noRerank bool
		types    []string
		filter   retrieval.Filter
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Retrieve and rerank the chunks most relevant to a query",
		Long: `Search embeds the query, retrieves the most similar chunks of the tenant
and reranks them with the configured relevance model. Use --no-rerank to
print the raw similarity order.

Examples:
  ragctl search -t acme "how do I rotate keys"
  ragctl search -t acme --type resource --url https://example.com/pricing "enterprise plan"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, t := range types {
				filter.NodeTypes = append(filter.NodeTypes, vectorstore.NodeType(t))
			}
			q := retrieval.Query{
				TenantID: opts.tenant,
				Text:     strings.Join(args, " "),
				Filter:   filter,
				Limit:    limit,
			}
			return opts.run(cmd, func(ctx context.Context, s *session) error {
				if noRerank {
					hits, err := s.Retrieve(ctx, q)
					if err != nil {
						return err
					}
					return printJSON(cmd, hits)
				}
				scored, err := s.Search(ctx, q)
				if err != nil {
					return err
				}
				return printJSON(cmd, scored)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", retrieval.DefaultLimit, "number of chunks to retrieve")
	cmd.Flags().BoolVar(&noRerank, "no-rerank", false, "skip reranking")
	cmd.Flags().StringSliceVar(&types, "type", nil, "restrict to entity types")
	cmd.Flags().StringSliceVar(&filter.URLs, "url", nil, "restrict to source URLs")
	cmd.Flags().StringSliceVar(&filter.DocIDs, "doc-id", nil, "restrict to document ids")
	cmd.Flags().StringSliceVar(&filter.ResourceIDs, "resource-id", nil, "restrict to resource ids")
	cmd.Flags().StringSliceVar(&filter.ProjectIDs, "project-id", nil, "restrict to project ids")
	return cmd
}
