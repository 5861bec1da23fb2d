package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fyrsmithlabs/transcriptrag/internal/retrieval"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printBatch writes one line per source and returns an error when any
// source failed, so the exit status reflects partial failure.
func printBatch(w io.Writer, batch retrieval.BatchReport) error {
	for _, r := range batch.Reports {
		if r.OK() {
			fmt.Fprintf(w, "ok    %s  %d chunks  %s\n", r.SourceID, r.ChunksWritten, r.TextPath)
			continue
		}
		fmt.Fprintf(w, "FAIL  %s\n", r.SourceID)
		for _, e := range r.ErrorStrings() {
			fmt.Fprintf(w, "      %s\n", e)
		}
	}
	fmt.Fprintf(w, "%d succeeded, %d failed in %s (run %s)\n", batch.Succeeded, batch.Failed, batch.Duration.Round(time.Millisecond), batch.RunID)
	if batch.Failed > 0 {
		return fmt.Errorf("%d of %d sources failed", batch.Failed, len(batch.Reports))
	}
	return nil
}

var errPartialFailure = errors.New("some sources failed")

type reportJSON struct {
	retrieval.IngestReport
	Errors []string `json:"errors,omitempty"`
}

type batchReportJSON struct {
	RunID     string        `json:"run_id"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
	Reports   []reportJSON  `json:"reports"`
}

// batchJSON keeps the per-source error messages, which IngestReport does
// not serialise.
func batchJSON(b retrieval.BatchReport) batchReportJSON {
	out := batchReportJSON{RunID: b.RunID, Succeeded: b.Succeeded, Failed: b.Failed, Duration: b.Duration}
	for _, r := range b.Reports {
		out.Reports = append(out.Reports, reportJSON{IngestReport: r, Errors: r.ErrorStrings()})
	}
	return out
}
