package config

import (
	"github.com/spf13/cobra"
)

// FromCommand loads the configuration named by the persistent --config flag
func FromCommand(cmd *cobra.Command) (*Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return Load(path)
}
