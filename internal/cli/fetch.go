// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bodaay/KaggleDatasetFetcher/pkg/kagglefetcher"
)

// fetchOpts holds per-command options shared by fetch, download and cleanup.
type fetchOpts struct {
	Dataset   string
	Output    string
	Dest      string
	KeepCache bool
	Settings  kagglefetcher.Settings
}

func addSettingsFlags(cmd *cobra.Command, fo *fetchOpts) {
	cmd.Flags().StringVarP(&fo.Dataset, "dataset", "d", "", "Dataset handle (owner/name[/versions/N]). If omitted, positional HANDLE is used")
	cmd.Flags().StringVar(&fo.Settings.CacheDir, "cache-dir", "", "Download cache root (default $KAGGLEHUB_CACHE or ~/.cache/kagglehub)")
	cmd.Flags().StringVar(&fo.Settings.Endpoint, "endpoint", "", "Kaggle base URL (default $KAGGLE_API_ENDPOINT or https://www.kaggle.com)")
	cmd.Flags().IntVar(&fo.Settings.Retries, "retries", 3, "Max retry attempts per HTTP request")
	cmd.Flags().StringVar(&fo.Settings.BackoffInitial, "backoff-initial", "400ms", "Initial retry backoff duration")
	cmd.Flags().StringVar(&fo.Settings.BackoffMax, "backoff-max", "10s", "Maximum retry backoff duration")
	cmd.Flags().BoolVar(&fo.Settings.ForceDownload, "force", false, "Re-download even if a complete cached copy exists")
}

func newFetchCmd(ro *RootOpts) *cobra.Command {
	fo := &fetchOpts{}

	cmd := &cobra.Command{
		Use:   "fetch [HANDLE]",
		Short: "Download a dataset, move it into the output directory and clear the cache",
		Example: `  kagglefetcher zynicide/wine-reviews
  kagglefetcher fetch zynicide/wine-reviews/versions/4 -o ./data --keep-cache
  kagglefetcher fetch owner/name --dest ./inputs/wine --json`,
		Args: cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return applySettingsDefaults(cmd, ro, fo)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newSession(cmd, ro, fo, args)
			if err != nil {
				return err
			}
			defer rt.close()

			final, err := rt.fetcher.FetchTo(cmd.Context(), fo.KeepCache, fo.Dest)
			if err := rt.finish(); err != nil {
				rt.log.Warn("could not write metrics", zap.Error(err))
			}
			if err != nil {
				return err
			}
			rt.log.Debug("fetch complete", zap.String("path", final))
			return nil
		},
	}

	addSettingsFlags(cmd, fo)
	cmd.Flags().StringVarP(&fo.Output, "output", "o", "kaggle/input", "Destination base directory; the dataset lands in <output>/<name>")
	cmd.Flags().StringVar(&fo.Dest, "dest", "", "Explicit destination path (overrides --output)")
	cmd.Flags().BoolVar(&fo.KeepCache, "keep-cache", false, "Copy instead of move and keep the cached copy")

	return cmd
}

func newDownloadCmd(ro *RootOpts) *cobra.Command {
	fo := &fetchOpts{}

	cmd := &cobra.Command{
		Use:   "download [HANDLE]",
		Short: "Download a dataset into the cache and print its path",
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return applySettingsDefaults(cmd, ro, fo)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newSession(cmd, ro, fo, args)
			if err != nil {
				return err
			}
			defer rt.close()

			path, err := rt.fetcher.Download(cmd.Context())
			if err := rt.finish(); err != nil {
				rt.log.Warn("could not write metrics", zap.Error(err))
			}
			if err != nil {
				return err
			}
			if !ro.JSONOut {
				fmt.Fprintln(cmd.OutOrStdout(), path)
			}
			return nil
		},
	}

	addSettingsFlags(cmd, fo)
	return cmd
}

func newCleanupCmd(ro *RootOpts) *cobra.Command {
	fo := &fetchOpts{}

	cmd := &cobra.Command{
		Use:   "cleanup [HANDLE]",
		Short: "Remove cached copies of a dataset",
		Long: `Removes the cached copy of HANDLE. A versioned handle removes only that
version; an unversioned handle removes every cached version.`,
		Args: cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return applySettingsDefaults(cmd, ro, fo)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// nothing to draw a progress bar for
			ro.Quiet = true
			rt, err := newSession(cmd, ro, fo, args)
			if err != nil {
				return err
			}
			defer rt.close()

			client := kagglefetcher.NewClient(rt.settings)
			h := rt.fetcher.Handle()
			var paths []string
			if h.IsVersioned() {
				p, err := client.VersionPath(h)
				if err != nil {
					return err
				}
				paths = append(paths, p)
			} else if paths, err = client.CachedVersions(h); err != nil {
				return err
			}

			removed := 0
			var firstErr error
			for _, p := range paths {
				ok, err := rt.fetcher.Cleanup(p)
				if err != nil && firstErr == nil {
					firstErr = err
				}
				if ok {
					removed++
					if !ro.JSONOut {
						fmt.Fprintf(cmd.OutOrStdout(), "removed: %s\n", p)
					}
				}
			}
			if err := rt.finish(); err != nil {
				rt.log.Warn("could not write metrics", zap.Error(err))
			}
			if firstErr != nil {
				return firstErr
			}
			if removed == 0 && !ro.JSONOut {
				fmt.Fprintf(cmd.OutOrStdout(), "nothing cached for %s under %s\n", h, client.CacheRoot())
			}
			return nil
		},
	}

	addSettingsFlags(cmd, fo)
	return cmd
}

// session bundles what a command needs to drive a Fetcher.
type session struct {
	fetcher  *kagglefetcher.Fetcher
	settings kagglefetcher.Settings
	log      *zap.Logger
	metrics  *metricsSink
	stopUI   func()
}

func newSession(cmd *cobra.Command, ro *RootOpts, fo *fetchOpts, args []string) (*session, error) {
	handle, err := finalize(fo, args)
	if err != nil {
		return nil, err
	}

	logger, err := buildLogger(ro)
	if err != nil {
		return nil, err
	}
	sink, err := newMetricsSink(ro.MetricsFile)
	if err != nil {
		return nil, err
	}

	cfg := fo.Settings
	cfg.Username = strings.TrimSpace(ro.Username)
	cfg.Key = strings.TrimSpace(ro.Key)
	cfg.Token = strings.TrimSpace(ro.Token)

	progress, stopUI := selectProgress(ro, cmd.OutOrStdout(), handle)
	f, err := kagglefetcher.New(handle, kagglefetcher.Options{
		DestBaseDir:   fo.Output,
		EnableLogging: ro.EnableLogging,
		LogDir:        ro.LogDir,
		LogFile:       ro.LogFile,
		Logger:        logger,
		Settings:      cfg,
		Metrics:       sink.m,
		Progress:      progress,
	})
	if err != nil {
		stopUI()
		return nil, err
	}

	return &session{
		fetcher:  f,
		settings: cfg,
		log:      logger,
		metrics:  sink,
		stopUI:   stopUI,
	}, nil
}

func (rt *session) finish() error {
	return rt.metrics.flush()
}

func (rt *session) close() {
	rt.stopUI()
	_ = rt.fetcher.Close()
	_ = rt.log.Sync()
}

// finalize picks the dataset handle from --dataset or the positional arg.
func finalize(fo *fetchOpts, args []string) (string, error) {
	handle := strings.TrimSpace(fo.Dataset)
	if handle == "" && len(args) > 0 {
		handle = strings.TrimSpace(args[0])
	}
	if handle == "" {
		return "", fmt.Errorf("missing HANDLE (owner/name). Pass as positional arg or --dataset")
	}
	if !kagglefetcher.IsValidDatasetName(handle) {
		return "", fmt.Errorf("invalid dataset handle %q (expected owner/name or owner/name/versions/N)", handle)
	}
	return handle, nil
}
