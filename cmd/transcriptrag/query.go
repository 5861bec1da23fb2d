package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newQueryCmd(flags *globalFlags) *cobra.Command {
	var (
		k           int
		maxDistance float64
		metadata    bool
		filterExpr  string
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Find the transcript passages nearest to a query",
		Long: `Embed the query and print the nearest chunks, read back from their
side files. With --metadata the source metadata collection is searched
instead, optionally narrowed by --filter.

Examples:
  transcriptrag query "how are apples harvested" -k 3
  transcriptrag query apples --metadata --filter 'view_count > 1000'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			out := cmd.OutOrStdout()
			return withApp(cmd.Context(), flags, needs{service: true}, func(a *app) error {
				if metadata {
					hits, err := a.svc.SearchMetadata(cmd.Context(), text, k, filterExpr)
					if err != nil {
						return err
					}
					if asJSON {
						return printJSON(out, hits)
					}
					for i, h := range hits {
						fmt.Fprintf(out, "[%d] %.4f  %s  %s\n", i+1, h.Distance, h.Item.Title, h.Item.URI)
					}
					return nil
				}

				snippets, err := a.svc.AnswerQuery(cmd.Context(), text, k, maxDistance)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(out, snippets)
				}
				for i, s := range snippets {
					fmt.Fprintf(out, "[%d] %.4f  %s  [%d,%d)\n%s\n\n", i+1, s.Distance, s.SourceID, s.Start, s.End, s.Text)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of results (default from config)")
	cmd.Flags().Float64Var(&maxDistance, "max-distance", 0, "drop results farther than this (default from config)")
	cmd.Flags().BoolVar(&metadata, "metadata", false, "search source metadata instead of transcript chunks")
	cmd.Flags().StringVar(&filterExpr, "filter", "", "filter expression for --metadata, e.g. 'view_count > 1000'")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

func newAskCmd(flags *globalFlags) *cobra.Command {
	var (
		k      int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the ingested transcripts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.Join(args, " ")
			out := cmd.OutOrStdout()
			return withApp(cmd.Context(), flags, needs{service: true, llm: "required"}, func(a *app) error {
				answer, err := a.svc.Ask(cmd.Context(), question, k)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(out, answer)
				}
				fmt.Fprintln(out, answer.Text)
				if len(answer.Snippets) > 0 {
					fmt.Fprintln(out, "\nSources:")
					for i, s := range answer.Snippets {
						fmt.Fprintf(out, "  [%d] %s\n", i+1, s.SourceID)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 0, "number of passages to retrieve (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the answer as JSON")
	return cmd
}
