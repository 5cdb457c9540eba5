package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newExportCmd(opts *globalOptions) *cobra.Command {
	var (
		entity entityFlags
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Serialize the points of an entity to the bucket or a file",
		Long: `Export writes the points of an entity as an Avro container. Without --out
the blob is stored in the configured bucket under
vectors/<tenant>/<type>/<id>.avro and the key is printed.

Examples:
  ragctl export -t acme --id handbook
  ragctl export -t acme --id handbook --out handbook.avro`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ref, err := entity.ref(opts.tenant)
			if err != nil {
				return err
			}
			return opts.run(cmd, func(ctx context.Context, s *session) error {
				if out == "" {
					key, err := s.Export(ctx, ref)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(cmd.OutOrStdout(), key)
					return err
				}
				blob, err := s.Serialize(ctx, ref)
				if err != nil {
					return err
				}
				if err := os.WriteFile(out, blob, 0o600); err != nil {
					return fmt.Errorf("failed to write %s: %w", out, err)
				}
				cmd.Printf("wrote %d bytes to %s\n", len(blob), out)
				return nil
			})
		},
	}
	entity.bind(cmd, "", "source")
	cmd.Flags().StringVarP(&out, "out", "o", "", "write to this file instead of the bucket")
	return cmd
}

func newImportCmd(opts *globalOptions) *cobra.Command {
	var (
		entity entityFlags
		key    string
		in     string
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load serialized points into an entity",
		Long: `Import reads an Avro container produced by export, from the bucket (--key)
or a file (--in), and writes its points into the target entity. Point ids
and tenant fields are rewritten for the target.

Examples:
  ragctl import -t globex --id handbook --key vectors/acme/document/handbook.avro
  ragctl import -t globex --id handbook --in handbook.avro`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ref, err := entity.ref(opts.tenant)
			if err != nil {
				return err
			}
			if (key == "") == (in == "") {
				return errors.New("pass exactly one of --key or --in")
			}

			var blob []byte
			if in != "" {
				if blob, err = os.ReadFile(in); err != nil {
					return fmt.Errorf("failed to read file %s: %w", in, err)
				}
			}
			return opts.run(cmd, func(ctx context.Context, s *session) error {
				if key != "" {
					res, err := s.Import(ctx, key, ref)
					if err != nil {
						return err
					}
					return printJSON(cmd, res)
				}
				res, err := s.Deserialize(ctx, ref, blob)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
	entity.bind(cmd, "", "target")
	cmd.Flags().StringVar(&key, "key", "", "bucket object key")
	cmd.Flags().StringVar(&in, "in", "", "read from this file")
	return cmd
}
