package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ragindex/internal/vectorstore"
)

func newDeleteCmd(opts *globalOptions) *cobra.Command {
	var entity entityFlags
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete every point of an entity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ref, err := entity.ref(opts.tenant)
			if err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, s *session) error {
				if err := s.DeletePointsForEntity(ctx, ref); err != nil {
					return err
				}
				cmd.Printf("deleted points of %s\n", ref)
				return nil
			})
		},
	}
	entity.bind(cmd, "", "target")
	return cmd
}

func newDuplicateCmd(opts *globalOptions) *cobra.Command {
	var (
		src, dst entityFlags
		toTenant string
	)
	cmd := &cobra.Command{
		Use:   "duplicate",
		Short: "Copy the points of an entity into another entity",
		Long: `Duplicate copies every point of the source entity, vectors included, into
the target entity. The target may belong to another tenant; nothing is
re-embedded.

Examples:
  ragctl duplicate -t acme --id handbook --to-tenant globex --to-id handbook`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, err := src.ref(opts.tenant)
			if err != nil {
				return err
			}
			if toTenant == "" {
				toTenant = opts.tenant
			}
			to, err := dst.ref(toTenant)
			if err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, s *session) error {
				res, err := s.DuplicateEntity(ctx, from, to)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
	src.bind(cmd, "", "source")
	dst.bind(cmd, "to-", "target")
	cmd.Flags().StringVar(&toTenant, "to-tenant", "", "target tenant (defaults to --tenant)")
	return cmd
}

func newUpdatePayloadCmd(opts *globalOptions) *cobra.Command {
	var (
		nodeType string
		ids      []string
		set      map[string]string
	)
	cmd := &cobra.Command{
		Use:   "update-payload",
		Short: "Merge fields into the payload of entity points",
		Long: `Update-payload merges the given fields into every point of the listed
entities. Fields owned by the indexer (tenant, entity ids, seq, content)
cannot be changed.

Examples:
  ragctl update-payload -t acme --type resource --ids pricing,faq --set projectId=p-42`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(set) == 0 {
				return errors.New("at least one --set field is required")
			}
			return opts.run(cmd, func(ctx context.Context, s *session) error {
				return s.UpdatePayload(ctx, opts.tenant, vectorstore.NodeType(nodeType), ids, toPayload(set))
			})
		},
	}
	cmd.Flags().StringVar(&nodeType, "type", string(vectorstore.NodeDocument), "entity type: document or resource")
	cmd.Flags().StringSliceVar(&ids, "ids", nil, "entity ids")
	cmd.Flags().StringToStringVar(&set, "set", nil, "payload fields to set, key=value")
	_ = cmd.MarkFlagRequired("ids")
	return cmd
}

func newModelsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the embedding models of the configured backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.run(cmd, func(ctx context.Context, s *session) error {
				models, err := s.Models(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, models)
			})
		},
	}
}
