package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/annotator/internal/session"
	"github.com/lehigh-university-libraries/annotator/internal/sessioncmd"
	"github.com/lehigh-university-libraries/annotator/internal/tui"
)

func newAnnotateCmd() *cobra.Command {
	var name string
	var root string
	var resume bool

	cmd := &cobra.Command{
		Use:   "annotate",
		Short: "Annotate image pairs in the terminal",
		Long: `Starts or resumes an annotation session in a full-screen terminal interface.

Keys: 1-9 choose a class, i toggles ignore, c edits the comment, enter or →
moves on, ← goes back, z shows image details, s saves, q saves and leaves,
ctrl+c leaves without saving.

Logs are written to annotator.log in the sessions directory while the
interface is open.`,
		Example: `  # New session
  annotator annotate --name "Ana Li" --root ./dataset

  # Continue where Ana left off (the saved root is rescanned)
  annotator annotate --name "Ana Li" --resume`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			if !resume && root == "" {
				return fmt.Errorf("--root is required for a new session")
			}

			env, err := sessioncmd.Open(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			var runner *session.Runner
			if resume {
				runner, err = session.Resume(env.Deps(), name)
			} else {
				runner, err = session.Start(env.Deps(), name, root)
				if errors.Is(err, session.ErrSessionExists) {
					return fmt.Errorf("%w (annotator annotate --name %q --resume)", err, name)
				}
			}
			if err != nil {
				return err
			}
			if d := runner.Delta(); resume && d.Changed() {
				fmt.Fprintf(cmd.ErrOrStderr(), "Image tree changed since last save: %d added, %d no longer present, %d moved\n",
					d.Added, d.Removed, len(d.Misaligned))
			}

			restore, err := logToFile(filepath.Join(env.Config.SessionsDir, "annotator.log"))
			if err != nil {
				return err
			}
			err = tui.Run(cmd.Context(), runner, env.Config.ReportsDir)
			restore()
			if err != nil {
				return fmt.Errorf("terminal interface failed: %w", err)
			}

			p := runner.Progress()
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d/%d passed, %d annotated, %d ignored\n",
				runner.Session().Annotator, p.Position, p.Total, p.Annotated, p.Ignored)
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Annotator name (required)")
	cmd.Flags().StringVarP(&root, "root", "r", "", "Root directory of the labeled image folders")
	cmd.Flags().BoolVar(&resume, "resume", false, "Resume the saved session for --name")

	_ = cmd.MarkFlagRequired("name")
	return cmd
}

// logToFile sends slog output to path while the full-screen interface owns
// the terminal. The returned func restores the previous logger.
func logToFile(path string) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	previous := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})))
	return func() {
		slog.SetDefault(previous)
		_ = f.Close()
	}, nil
}
