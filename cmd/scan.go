package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/annotator/internal/config"
	"github.com/lehigh-university-libraries/annotator/internal/scanner"
)

func newScanCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "scan <root>",
		Short: "List the bbox/crop pairs found under a directory",
		Long: `Scans the immediate subfolders of root for *_bbox / *_crop image pairs and
prints how many complete pairs each folder holds, with the label that will be
suggested for it. Nothing is saved.`,
		Example: `  annotator scan ./dataset
  annotator scan ./dataset --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromCommand(cmd)
			if err != nil {
				return err
			}

			targets, err := scanner.Scan(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(targets)
			case "yaml":
				return yaml.NewEncoder(out).Encode(targets)
			case "text":
			default:
				return fmt.Errorf("unsupported format: %s", format)
			}

			classes := cfg.ClassList()
			var folders []string
			counts := make(map[string]int)
			for _, t := range targets {
				if counts[t.Folder] == 0 {
					folders = append(folders, t.Folder)
				}
				counts[t.Folder]++
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FOLDER\tPAIRS\tSUGGESTED")
			for _, folder := range folders {
				fmt.Fprintf(tw, "%s\t%d\t%s\n", folder, counts[folder], classes.Suggest(folder))
			}
			fmt.Fprintf(tw, "total\t%d\t\n", len(targets))
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "Output format (text, json, yaml)")
	return cmd
}
