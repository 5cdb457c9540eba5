//go:build cgo

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ragindex/internal/embeddings"
)

func addPlatformCommands(root *cobra.Command) {
	root.AddCommand(newONNXCmd())
}

func newONNXCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "onnx",
		Short: "Manage the ONNX runtime used by the fastembed provider",
	}
	install := &cobra.Command{
		Use:   "install",
		Short: "Download the ONNX runtime library",
		Long: `Install downloads the ONNX runtime library required for local embeddings
with the fastembed provider. If ONNX_PATH is set, that path takes precedence.

Examples:
  ragctl onnx install
  ragctl onnx install --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force {
				path, err := embeddings.EnsureONNXRuntime(cmd.Context(), func(msg string) { cmd.Println(msg) })
				if err != nil {
					return err
				}
				cmd.Printf("ONNX runtime available at: %s\n", path)
				return nil
			}

			cmd.Printf("Downloading ONNX runtime v%s...\n", embeddings.DefaultONNXRuntimeVersion)
			if err := embeddings.DownloadONNXRuntime(cmd.Context(), ""); err != nil {
				return fmt.Errorf("failed to download ONNX runtime: %w", err)
			}
			path := embeddings.GetONNXLibraryPath()
			if path == "" {
				return fmt.Errorf("download completed but library not found")
			}
			cmd.Printf("Successfully installed ONNX runtime to: %s\n", path)
			return nil
		},
	}
	install.Flags().BoolVarP(&force, "force", "f", false, "re-download even if the runtime exists")
	cmd.AddCommand(install)
	return cmd
}
