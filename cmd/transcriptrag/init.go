package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/transcriptrag/internal/embeddings"
)

func newInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Download the ONNX runtime for local embeddings",
		Long: `Download the ONNX runtime library required by the fastembed embedding
provider. The library is installed to ~/.config/transcriptrag/lib/ unless
ONNX_PATH points at an existing installation.

Examples:
  transcriptrag init
  transcriptrag init --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force {
				if path := embeddings.RuntimeLibraryPath(); path != "" {
					cmd.Printf("ONNX runtime already installed at: %s\n", path)
					cmd.Println("Use --force to re-download.")
					return nil
				}
			}

			cmd.Printf("Downloading ONNX runtime v%s...\n", embeddings.DefaultONNXRuntimeVersion)
			path, err := embeddings.InstallRuntime(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to install ONNX runtime: %w", err)
			}
			cmd.Printf("Installed ONNX runtime to: %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "re-download even if the ONNX runtime exists")
	return cmd
}
