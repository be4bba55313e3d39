package sessioncmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/annotator/internal/history"
)

// NewHistoryCmd creates the history command
func NewHistoryCmd() *cobra.Command {
	var limit int
	var format string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List completed annotation runs",
		Long: `List the runs recorded in the history database when sessions finished,
newest first, with their delivery status.`,
		Example: `  # Last 20 runs
  annotator history

  # Everything, as YAML
  annotator history --limit 0 --format yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := Open(cmd)
			if err != nil {
				return err
			}
			defer env.Close()
			if err := env.requireHistory(); err != nil {
				return err
			}
			return executeHistory(cmd.Context(), cmd.OutOrStdout(), env.History, limit, format)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to show (0 for all)")
	cmd.Flags().StringVar(&format, "format", "text", "Output format (text, json, yaml)")
	return cmd
}

func executeHistory(ctx context.Context, w io.Writer, store *history.Store, limit int, format string) error {
	entries, err := store.List(ctx, limit)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		return writeJSON(w, entries)
	case "yaml":
		return yaml.NewEncoder(w).Encode(entries)
	case "text":
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}

	if len(entries) == 0 {
		fmt.Fprintln(w, "No completed runs recorded")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FINISHED\tANNOTATOR\tANNOTATED\tIGNORED\tTOTAL\tDELIVERED\tREPORT")
	for _, e := range entries {
		delivered := "yes"
		if !e.Delivered {
			delivered = "no: " + e.DeliveryError
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n", e.FinishedAt.Format("2006-01-02 15:04"),
			e.Annotator, e.Annotated, e.Ignored, e.Total, delivered, e.ReportName)
	}
	return tw.Flush()
}
