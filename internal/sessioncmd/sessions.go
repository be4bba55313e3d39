package sessioncmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/annotator/internal/models"
	"github.com/lehigh-university-libraries/annotator/internal/report"
	"github.com/lehigh-university-libraries/annotator/internal/session"
	"github.com/lehigh-university-libraries/annotator/internal/storage"
)

// NewListCmd creates the list command
func NewListCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved sessions",
		Long: `List every saved session in the sessions directory, most recent first.

Unreadable session files are skipped with a warning.`,
		Example: `  # Table of saved sessions
  annotator sessions list

  # Machine readable
  annotator sessions list --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := Open(cmd)
			if err != nil {
				return err
			}
			defer env.Close()
			return executeList(cmd.OutOrStdout(), env.Store, format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "Output format (text, json, yaml)")
	return cmd
}

func executeList(w io.Writer, store *storage.FileStore, format string) error {
	summaries, err := store.List()
	if err != nil {
		return err
	}

	switch format {
	case "json":
		return writeJSON(w, summaries)
	case "yaml":
		return yaml.NewEncoder(w).Encode(summaries)
	case "text":
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}

	if len(summaries) == 0 {
		fmt.Fprintf(w, "No saved sessions in %s\n", store.Dir())
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ANNOTATOR\tPROGRESS\tSAVED\tROOT")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%s\t%d/%d (%.0f%%)\t%s\t%s\n", s.Annotator, s.CurrentIndex, s.TotalImages,
			s.Percent(), s.Timestamp.Format("2006-01-02 15:04"), s.RootDirectory)
	}
	return tw.Flush()
}

// NewShowCmd creates the show command
func NewShowCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show <name>",
		Short: "Show one saved session",
		Long: `Print the header and status counts of a saved session without rescanning
its image tree.`,
		Example: `  annotator sessions show "Ana Li"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := Open(cmd)
			if err != nil {
				return err
			}
			defer env.Close()
			return executeShow(cmd.OutOrStdout(), env.Store, args[0], format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "Output format (text, json)")
	return cmd
}

func executeShow(w io.Writer, store *storage.FileStore, name, format string) error {
	s, err := store.Load(name)
	if err != nil {
		return fmt.Errorf("failed to load session for %s: %w", name, err)
	}
	if format == "json" {
		return writeJSON(w, s)
	}
	if format != "text" {
		return fmt.Errorf("unsupported format: %s", format)
	}

	counts := make(map[models.Status]int)
	labels := make(map[string]int)
	for i := 0; i < s.TotalImages; i++ {
		r := s.Responses[i]
		counts[r.Status]++
		if r.Annotated() {
			labels[r.Label]++
		}
	}

	fmt.Fprintf(w, "Annotator: %s\n", s.Annotator)
	fmt.Fprintf(w, "Root:      %s\n", s.RootDirectory)
	fmt.Fprintf(w, "Position:  %d/%d\n", s.CurrentIndex, s.TotalImages)
	fmt.Fprintf(w, "Saved:     %s (format %s)\n", s.Timestamp.Format(time.RFC3339), s.Version)
	fmt.Fprintf(w, "Annotated: %d\n", counts[models.StatusAnnotated])
	fmt.Fprintf(w, "Ignored:   %d\n", counts[models.StatusIgnored])
	fmt.Fprintf(w, "Pending:   %d\n", counts[models.StatusPending])

	names := make([]string, 0, len(labels))
	for label := range labels {
		names = append(names, label)
	}
	slices.Sort(names)
	for _, label := range names {
		fmt.Fprintf(w, "  %-16s %d\n", label, labels[label])
	}
	if s.Complete() {
		fmt.Fprintln(w, "Complete; the report was not delivered. Send it with 'annotator sessions notify'.")
	}
	return nil
}

// NewDeleteCmd creates the delete command
func NewDeleteCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a saved session",
		Long: `Delete the saved session document of an annotator. All answers in it are lost.

Names that normalize to the same key ("Ana Li", "Ana_Li") share one document.`,
		Example: `  annotator sessions delete "Ana Li" --force`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return fmt.Errorf("refusing to delete without --force")
			}
			env, err := Open(cmd)
			if err != nil {
				return err
			}
			defer env.Close()
			return executeDelete(cmd.OutOrStdout(), env.Store, args[0])
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Confirm deletion")
	return cmd
}

func executeDelete(w io.Writer, store *storage.FileStore, name string) error {
	exists, err := store.Exists(name)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w for %s", storage.ErrNotFound, name)
	}
	path, _ := store.Path(name)
	if err := store.Delete(name); err != nil {
		return err
	}
	fmt.Fprintf(w, "Deleted %s\n", path)
	return nil
}

// NewExportCmd creates the export command
func NewExportCmd() *cobra.Command {
	var format string
	var output string

	cmd := &cobra.Command{
		Use:   "export <name>",
		Short: "Export the annotations of a saved session",
		Long: `Rescan the session's image tree, reconcile it with the saved answers and
write the annotations as CSV, Parquet or YAML. The saved session is not modified.`,
		Example: `  # CSV into the reports directory
  annotator sessions export "Ana Li"

  # Parquet to a chosen file
  annotator sessions export "Ana Li" --format parquet --output ana.parquet

  # YAML on stdout
  annotator sessions export "Ana Li" --format yaml --output -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := Open(cmd)
			if err != nil {
				return err
			}
			defer env.Close()
			return executeExport(cmd.OutOrStdout(), env, args[0], format, output)
		},
	}

	cmd.Flags().StringVar(&format, "format", "csv", "Export format ("+strings.Join(report.Formats, ", ")+")")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file, - for stdout (default: reports directory)")
	return cmd
}

func executeExport(w io.Writer, env *Env, name, format, output string) error {
	if !slices.Contains(report.Formats, format) {
		return fmt.Errorf("unsupported format: %s", format)
	}

	deps := env.Deps()
	deps.AutoSave = false
	runner, err := session.Resume(deps, name)
	if err != nil {
		return fmt.Errorf("failed to open session for %s: %w", name, err)
	}
	defer runner.Home(false)

	data, err := runner.Export(format)
	if err != nil {
		return err
	}

	if output == "-" {
		_, err := w.Write(data)
		return err
	}
	if output == "" {
		output = filepath.Join(env.Config.ReportsDir, report.FileName(runner.Session().Annotator, time.Now(), format))
	}
	if err := writeFile(output, data); err != nil {
		return err
	}
	fmt.Fprintf(w, "Wrote %s\n", output)
	return nil
}

// NewNotifyCmd creates the notify command
func NewNotifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notify <name>",
		Short: "Send the report of a completed session",
		Long: `Run the completion step for a saved session whose cursor already passed every
target, usually because delivery failed when it finished. On successful delivery
the saved session is deleted.`,
		Example: `  annotator sessions notify "Ana Li"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := Open(cmd)
			if err != nil {
				return err
			}
			defer env.Close()
			return executeNotify(cmd.Context(), cmd.OutOrStdout(), env, args[0])
		},
	}
	return cmd
}

func executeNotify(ctx context.Context, w io.Writer, env *Env, name string) error {
	runner, err := session.Resume(env.Deps(), name)
	if err != nil {
		return fmt.Errorf("failed to open session for %s: %w", name, err)
	}
	defer runner.Home(false)

	if !runner.Complete() {
		p := runner.Progress()
		return fmt.Errorf("%w: %d of %d targets passed", session.ErrNotComplete, p.Position, p.Total)
	}

	outcome, err := runner.Finish(ctx)
	if err != nil {
		return err
	}

	path := filepath.Join(env.Config.ReportsDir, outcome.ReportName)
	if err := writeFile(path, outcome.Report); err != nil {
		return err
	}
	fmt.Fprintf(w, "Report written to %s\n", path)

	if !outcome.Delivered {
		return fmt.Errorf("report not delivered, session kept: %w", outcome.DeliveryErr)
	}
	fmt.Fprintf(w, "Report sent for %s; saved session removed\n", runner.Session().Annotator)
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
