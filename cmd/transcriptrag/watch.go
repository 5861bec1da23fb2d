package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/transcriptrag/internal/watcher"
)

func newWatchCmd(flags *globalFlags) *cobra.Command {
	var initial bool
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Index side files as they are written",
		Long: `Watch the transcripts directory (or dir) and index each side-file pair
once both files are written. With --initial the existing pairs are indexed
first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if len(args) == 1 {
				flags.transcriptDir = args[0]
			}
			return withApp(ctx, flags, needs{service: true, watch: true}, func(a *app) error {
				if initial {
					batch, err := a.svc.IngestDir(ctx)
					if err != nil {
						return err
					}
					_ = printBatch(cmd.OutOrStdout(), batch)
				}

				w, err := watcher.New(a.side, a.svc, a.cfg.Watch.Debounce.Duration(), a.logger.Underlying().Named("watcher"))
				if err != nil {
					return err
				}
				go func() {
					for r := range w.Reports() {
						status := "ok  "
						if !r.OK() {
							status = "FAIL"
						}
						fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %d chunks\n", status, r.SourceID, r.ChunksWritten)
					}
				}()
				return w.Run(ctx)
			})
		},
	}
	cmd.Flags().BoolVar(&initial, "initial", false, "index existing side files before watching")
	return cmd
}
