package main

import (
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/transcriptrag/internal/retrieval"
)

func newIngestCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ingest <url>...",
		Short: "Fetch and ingest YouTube videos or web pages",
		Long: `Fetch each URL, save its text and metadata under the transcripts
directory and index both in the vector store. YouTube URLs (watch, youtu.be,
shorts, embed) are fetched with the YouTube Data API; anything else is read
as a web page.

Examples:
  transcriptrag ingest https://www.youtube.com/watch?v=dQw4w9WgXcQ
  transcriptrag ingest https://example.com/article https://youtu.be/dQw4w9WgXcQ`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), flags, needs{service: true, fetcher: true}, func(a *app) error {
				batch, err := a.svc.IngestIdentifiers(cmd.Context(), args)
				if err != nil {
					return err
				}
				return report(cmd, batch, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the batch report as JSON")
	return cmd
}

func newIngestDirCmd(flags *globalFlags) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ingest-dir [dir]",
		Short: "Index side files already on disk",
		Long: `Index every <title>.txt / META_<title>.json pair in the transcripts
directory (or dir). Previously indexed sources are replaced.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				flags.transcriptDir = args[0]
			}
			return withApp(cmd.Context(), flags, needs{service: true}, func(a *app) error {
				batch, err := a.svc.IngestDir(cmd.Context())
				if err != nil {
					return err
				}
				return report(cmd, batch, asJSON)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the batch report as JSON")
	return cmd
}

func report(cmd *cobra.Command, batch retrieval.BatchReport, asJSON bool) error {
	if asJSON {
		if err := printJSON(cmd.OutOrStdout(), batchJSON(batch)); err != nil {
			return err
		}
		if batch.Failed > 0 {
			return errPartialFailure
		}
		return nil
	}
	return printBatch(cmd.OutOrStdout(), batch)
}
