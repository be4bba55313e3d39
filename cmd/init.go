package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/annotator/internal/config"
)

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Writes a commented configuration file at the --config path. An existing file
is left untouched.`,
		Example: `  annotator init
  annotator init --config /etc/annotator.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			written, err := config.WriteDefault(path)
			if err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}
			if !written {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", path)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	return cmd
}
