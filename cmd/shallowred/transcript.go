package main

import (
	"fmt"

	"github.com/shallowred/shallowred/pkg/transcript"
	"github.com/spf13/cobra"
)

var (
	transcriptViewPath    string
	transcriptViewSummary bool
)

var transcriptCmd = &cobra.Command{
	Use:   "transcript",
	Short: "View session transcripts",
}

var transcriptViewCmd = &cobra.Command{
	Use:   "view",
	Short: "View a session transcript in a readable format",
	Long: `View a transcript written with --transcript.

Received lines are prefixed with ">", emitted lines with "<" and search
events with "*".

Examples:
  shallowred transcript view --path ./session.ndjson
  shallowred transcript view --path ./session.ndjson --summary`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if transcriptViewPath == "" {
			return fmt.Errorf("--path is required")
		}
		records, err := transcript.Read(transcriptViewPath)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if transcriptViewSummary {
			s := transcript.Summarize(records)
			fmt.Fprintf(out, "received: %d\n", s.Received)
			fmt.Fprintf(out, "emitted: %d\n", s.Emitted)
			fmt.Fprintf(out, "searches: %d (stopped %d, failed %d)\n", s.Searches, s.Stopped, s.Failures)
			fmt.Fprintf(out, "nodes: %d\n", s.Nodes)
			fmt.Fprintf(out, "search time: %s\n", s.Elapsed)
			return nil
		}
		for _, rec := range records {
			fmt.Fprintln(out, transcript.Format(rec))
		}
		return nil
	},
}

func init() {
	transcriptViewCmd.Flags().StringVarP(&transcriptViewPath, "path", "p", "", "Path to the transcript file")
	transcriptViewCmd.Flags().BoolVar(&transcriptViewSummary, "summary", false, "Print totals instead of every record")
	transcriptCmd.AddCommand(transcriptViewCmd)
	rootCmd.AddCommand(transcriptCmd)
}
