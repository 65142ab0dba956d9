// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

/*
Package kagglefetcher downloads Kaggle datasets into the local kagglehub cache
and moves them to a directory of your choosing.

# Features

  - One-call fetch: download, move into place, and drop the cached copy
  - Cache compatible with kagglehub: ~/.cache/kagglehub/datasets/<owner>/<name>/versions/<n>
  - Versioned handles: "owner/name" resolves the latest version, "owner/name/versions/3" pins one
  - Archive handling: zip payloads are extracted, single files are stored as-is
  - Structured logging of every step via zap, optionally to a log file
  - Optional Prometheus metrics
  - Context cancellation for network calls

# Quick Start

	path, err := kagglefetcher.FetchDataset(ctx, "zynicide/wine-reviews", "./data")
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("dataset at", path)

# Step by step

The Fetcher exposes each step so callers can interleave their own work:

	f, err := kagglefetcher.New("zynicide/wine-reviews", kagglefetcher.Options{
		DestBaseDir:   "./data",
		EnableLogging: true,
		LogDir:        "./logs",
	})
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	cachePath, err := f.Download(ctx)
	if err != nil {
		log.Fatal(err)
	}
	dest, err := f.Move(cachePath, "")
	if err != nil {
		log.Fatal(err)
	}
	_, _ = f.Cleanup(cachePath)

# Authentication

Credentials are looked up in this order:

  - Settings.Username and Settings.Key (or Settings.Token)
  - KAGGLE_USERNAME and KAGGLE_KEY environment variables
  - KAGGLE_API_TOKEN environment variable
  - kaggle.json in $KAGGLE_CONFIG_DIR or ~/.kaggle

Public datasets can be fetched without credentials.

# Errors

Each step fails with its own error type so callers can tell them apart:

  - *DownloadError: the dataset could not be downloaded (wraps *APIError for HTTP failures)
  - *MoveError: the cached copy could not be moved to the destination
  - *CleanupError: the cached copy could not be removed

A cache path that is already gone is not an error for Cleanup.
*/
package kagglefetcher
