package cmd

import (
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/annotator/internal/sessioncmd"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage saved annotation sessions",
		Long: `Inspect, export, deliver or delete the session documents kept in the
sessions directory, one per annotator.`,
	}

	cmd.AddCommand(sessioncmd.NewListCmd())
	cmd.AddCommand(sessioncmd.NewShowCmd())
	cmd.AddCommand(sessioncmd.NewExportCmd())
	cmd.AddCommand(sessioncmd.NewNotifyCmd())
	cmd.AddCommand(sessioncmd.NewDeleteCmd())

	return cmd
}

func newHistoryCmd() *cobra.Command {
	return sessioncmd.NewHistoryCmd()
}
