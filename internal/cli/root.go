// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bodaay/KaggleDatasetFetcher/internal/tui"
	"github.com/bodaay/KaggleDatasetFetcher/pkg/kagglefetcher"
)

// RootOpts holds global CLI options.
type RootOpts struct {
	Username      string
	Key           string
	Token         string
	JSONOut       bool
	Quiet         bool
	Verbose       bool
	Config        string
	EnvFile       string
	EnableLogging bool
	LogDir        string
	LogFile       string
	LogLevel      string
	MetricsFile   string
}

// Execute runs the CLI with the given version string.
func Execute(version string) error {
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	root := newRootCmd(version)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		return err
	}
	return nil
}

func newRootCmd(version string) *cobra.Command {
	ro := &RootOpts{}

	root := &cobra.Command{
		Use:           "kagglefetcher [HANDLE]",
		Short:         "Download Kaggle datasets into a working directory",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnvFiles(ro.EnvFile)
		},
	}

	// Global flags
	pf := root.PersistentFlags()
	pf.StringVar(&ro.Username, "username", "", "Kaggle username (also reads KAGGLE_USERNAME env)")
	pf.StringVar(&ro.Key, "key", "", "Kaggle API key (also reads KAGGLE_KEY env)")
	pf.StringVar(&ro.Token, "token", "", "Kaggle API token (also reads KAGGLE_API_TOKEN env)")
	pf.BoolVar(&ro.JSONOut, "json", false, "Emit machine-readable JSON progress events")
	pf.BoolVarP(&ro.Quiet, "quiet", "q", false, "Quiet mode (plain status lines, warnings only)")
	pf.BoolVarP(&ro.Verbose, "verbose", "v", false, "Verbose logs (debug details)")
	pf.StringVar(&ro.Config, "config", "", "Path to config file (JSON or YAML)")
	pf.StringVar(&ro.EnvFile, "env-file", "", "Load environment variables from this file instead of .env")
	pf.BoolVar(&ro.EnableLogging, "enable-logging", false, "Also write logs to a file")
	pf.StringVar(&ro.LogDir, "log-dir", kagglefetcher.DefaultLogDir, "Directory for the log file")
	pf.StringVar(&ro.LogFile, "log-file", kagglefetcher.DefaultLogFile, "Log file name inside --log-dir")
	pf.StringVar(&ro.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&ro.MetricsFile, "metrics-file", "", "Write Prometheus metrics to this file when done")

	fetchCmd := newFetchCmd(ro)
	root.AddCommand(fetchCmd)
	root.AddCommand(newDownloadCmd(ro))
	root.AddCommand(newCleanupCmd(ro))
	root.AddCommand(newVersionCmd(version))
	root.AddCommand(newConfigCmd())

	// Make fetch the default command when no subcommand is given
	root.Args = fetchCmd.Args
	root.Flags().AddFlagSet(fetchCmd.Flags())
	root.PreRunE = fetchCmd.PreRunE
	root.RunE = fetchCmd.RunE
	root.SetHelpCommand(&cobra.Command{Use: "help", Hidden: true})

	return root
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(ch)
	}()
	return ctx, cancel
}

// buildLogger returns the console logger for the chosen verbosity.
func buildLogger(ro *RootOpts) (*zap.Logger, error) {
	level := ro.LogLevel
	switch {
	case ro.Verbose:
		level = "debug"
	case ro.Quiet || ro.JSONOut:
		level = "warn"
	}
	return kagglefetcher.NewConsoleLogger(level)
}

// metricsSink collects metrics for --metrics-file. A zero sink records
// nothing.
type metricsSink struct {
	path string
	reg  *prometheus.Registry
	m    *kagglefetcher.Metrics
}

func newMetricsSink(path string) (*metricsSink, error) {
	if path == "" {
		return &metricsSink{}, nil
	}
	reg := prometheus.NewRegistry()
	m, err := kagglefetcher.NewMetrics(reg)
	if err != nil {
		return nil, err
	}
	return &metricsSink{path: path, reg: reg, m: m}, nil
}

func (s *metricsSink) flush() error {
	if s.path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(s.path, s.reg)
}

func selectProgress(ro *RootOpts, w io.Writer, handle string) (kagglefetcher.ProgressFunc, func()) {
	switch {
	case ro.JSONOut:
		return jsonProgress(w), func() {}
	case ro.Quiet:
		return cliProgress(w, handle), func() {}
	default:
		ui := tui.NewLiveRenderer(handle)
		return ui.Handler(), ui.Close
	}
}

// cliProgress returns a simple text-based progress handler.
func cliProgress(w io.Writer, handle string) kagglefetcher.ProgressFunc {
	warn := color.New(color.FgYellow).SprintFunc()
	bad := color.New(color.FgRed).SprintFunc()
	return func(ev kagglefetcher.ProgressEvent) {
		switch ev.Event {
		case "resolve":
			fmt.Fprintf(w, "Resolving %s ...\n", handle)
		case "cache_hit":
			fmt.Fprintf(w, "cached: %s\n", ev.Path)
		case "download_start":
			fmt.Fprintf(w, "downloading: %s (%d bytes)\n", ev.Path, ev.Total)
		case "retry":
			fmt.Fprintf(w, "%s %s (attempt %d): %s\n", warn("retry"), ev.Path, ev.Attempt, ev.Message)
		case "download_done":
			fmt.Fprintf(w, "downloaded: %s\n", ev.Path)
		case "error":
			fmt.Fprintf(w, "%s %s\n", bad("error:"), ev.Message)
		case "done":
			fmt.Fprintln(w, ev.Message)
		}
	}
}

// jsonProgress returns a JSON-lines progress handler.
func jsonProgress(w io.Writer) kagglefetcher.ProgressFunc {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	var mu sync.Mutex
	return func(ev kagglefetcher.ProgressEvent) {
		mu.Lock()
		_ = enc.Encode(ev)
		mu.Unlock()
	}
}

func okMark() string {
	return color.GreenString("✓")
}
