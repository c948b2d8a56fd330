package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/joshuapare/vmheap/memory"
)

var (
	// Global flags
	verbose     bool
	quiet       bool
	jsonOut     bool
	showMetrics bool
	configFile  string

	opts = memory.DefaultOptions()

	// gatherer is what --metrics prints; commands point it at the registry
	// their System records into.
	gatherer prometheus.Gatherer = prometheus.DefaultGatherer
)

var rootCmd = &cobra.Command{
	Use:   "vmctl",
	Short: "Inspect how raw memory is obtained for allocator regions",
	Long: `vmctl exercises the memory acquisition backends and the process heap
region. It probes which backends work on this host, runs allocation
workloads against the heap and prints the effective configuration.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd.Flags())
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if !showMetrics {
			return nil
		}
		return writeMetrics(os.Stdout, gatherer)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&showMetrics, "metrics", false, "Print collected metrics after the command")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML file with memory options")

	goFlags := flag.NewFlagSet("vmalloc", flag.ContinueOnError)
	opts.RegisterFlags(goFlags)
	rootCmd.PersistentFlags().AddGoFlagSet(goFlags)
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig merges the config file into opts. Flags given on the command
// line win over the file.
func loadConfig(fs *pflag.FlagSet) error {
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
		file := memory.DefaultOptions()
		if err := yaml.Unmarshal(data, &file); err != nil {
			return fmt.Errorf("failed to parse config %s: %w", configFile, err)
		}
		if !fs.Changed("vmalloc.assert") {
			opts.Assert = file.Assert
		}
		if !fs.Changed("vmalloc.segment-size") {
			opts.SegSize = file.SegSize
		}
		if !fs.Changed("vmalloc.max-span") {
			opts.MaxSpan = file.MaxSpan
		}
		if !fs.Changed("vmalloc.base-address") {
			opts.Base = file.Base
		}
	}
	return opts.Validate()
}

// newLogger returns the diagnostics logger; debug output needs --verbose.
func newLogger() log.Logger {
	l := memory.NewStderrLogger()
	if verbose {
		return level.NewFilter(l, level.AllowDebug())
	}
	return level.NewFilter(l, level.AllowWarn())
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
