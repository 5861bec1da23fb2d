// Package main implements the transcriptrag CLI: ingest transcripts and web
// pages into a vector store and answer questions over them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags.
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	logLevel   string
	// transcriptDir overrides sources.transcript_dir when set by a command.
	transcriptDir string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "transcriptrag",
		Short: "Ingest transcripts and answer questions over them",
		Long: `transcriptrag fetches video transcripts and web pages, splits them into
overlapping chunks, embeds them and stores them in a vector store. Questions
are answered from the nearest chunks.

Configuration is read from ~/.config/transcriptrag/config.yaml, a .env file
and TRANSCRIPTRAG_* environment variables.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default ~/.config/transcriptrag/config.yaml)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")

	root.AddCommand(
		newInitCmd(),
		newIngestCmd(flags),
		newIngestDirCmd(flags),
		newQueryCmd(flags),
		newAskCmd(flags),
		newCollectionsCmd(flags),
		newServeCmd(flags),
		newWatchCmd(flags),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "transcriptrag by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}
