package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective memory options",
	Long: `The config command prints the options after merging defaults, the
--config file and command line flags. The output can be used as a
--config file.

Example:
  vmctl config
  vmctl config --config vmalloc.yaml --vmalloc.assert=anon`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfig()
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig() error {
	if jsonOut {
		return printJSON(map[string]interface{}{
			"assert":       opts.Assert.String(),
			"segment_size": opts.SegSize.String(),
			"max_span":     opts.MaxSpan.String(),
			"base_address": opts.Base,
		})
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(&opts); err != nil {
		return fmt.Errorf("failed to encode options: %w", err)
	}
	return enc.Close()
}
