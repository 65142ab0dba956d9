// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package kagglefetcher

import (
	"time"

	"go.uber.org/zap"
)

// Settings configures the hub client that downloads datasets into the cache.
//
// All fields are optional. Empty values fall back to environment variables
// and then to built-in defaults.
//
// Example:
//
//	cfg := kagglefetcher.Settings{
//	    CacheDir: "/mnt/scratch/kagglehub",
//	    Retries:  5,
//	}
type Settings struct {
	// Endpoint is the Kaggle base URL.
	// If empty, $KAGGLE_API_ENDPOINT is used, then "https://www.kaggle.com".
	Endpoint string

	// CacheDir is the cache root.
	// If empty, $KAGGLEHUB_CACHE is used, then ~/.cache/kagglehub.
	CacheDir string

	// Username and Key are Kaggle API credentials (HTTP basic auth).
	Username string
	Key      string

	// Token is a Kaggle API token sent as a bearer token.
	// Ignored when Username and Key are set.
	Token string

	// ForceDownload re-downloads even when a complete cached copy exists.
	ForceDownload bool

	// Retries is the maximum number of retry attempts per HTTP request.
	// Each retry uses exponential backoff with jitter.
	// Negative disables retries; zero means the default of 3.
	Retries int

	// BackoffInitial is the initial delay before the first retry ("400ms").
	BackoffInitial string

	// BackoffMax caps the delay between retries ("10s").
	BackoffMax string
}

// DefaultSettings returns Settings with defaults filled in. Endpoint stays
// empty so KAGGLE_API_ENDPOINT still applies.
func DefaultSettings() Settings {
	return Settings{
		Retries:        3,
		BackoffInitial: "400ms",
		BackoffMax:     "10s",
	}
}

// Options configures a Fetcher.
type Options struct {
	// DestBaseDir is the directory datasets are moved into.
	// The final path is <DestBaseDir>/<dataset name>.
	// If empty, defaults to ./kaggle/input.
	DestBaseDir string

	// EnableLogging writes a log file in LogDir.
	EnableLogging bool

	// LogDir is the directory for the log file. Defaults to "logs".
	LogDir string

	// LogFile is the log file name. Defaults to "kaggle_fetcher.log".
	LogFile string

	// Logger receives step logs. It is combined with the file logger when
	// EnableLogging is set. When nil, EnableLogging writes to the file and
	// stderr; without EnableLogging nothing is logged.
	Logger *zap.Logger

	// Downloader materializes datasets into the cache.
	// Nil uses a Client built from Settings.
	Downloader Downloader

	// Settings configures the default Client. Ignored when Downloader is set.
	Settings Settings

	// Metrics records step counters and durations. Optional.
	Metrics *Metrics

	// Progress receives download progress events. Optional.
	Progress ProgressFunc
}

// LogConfig configures NewLogger.
type LogConfig struct {
	// Enabled turns logging on; when false NewLogger returns a no-op logger.
	Enabled bool
	// Dir is the directory holding the log file.
	Dir string
	// File is the log file name inside Dir.
	File string
	// Name is the logger name attached to every entry.
	Name string
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string
	// Console also writes to stderr.
	Console bool
}

// ProgressEvent represents a progress update during a fetch.
//
// The Event field indicates the type of event:
//   - "resolve": the latest version is being looked up
//   - "cache_hit": a complete cached copy was found
//   - "download_start": the archive download has started
//   - "download_progress": periodic byte counts
//   - "retry": a retry attempt is being made
//   - "extract": the archive is being unpacked
//   - "download_done": the dataset is in the cache
//   - "move", "copy", "cleanup": facade steps
//   - "error": an error occurred
//   - "done": the fetch is complete
type ProgressEvent struct {
	Time       time.Time `json:"time"`
	Level      string    `json:"level,omitempty"`
	Event      string    `json:"event"`
	Handle     string    `json:"handle,omitempty"`
	Path       string    `json:"path,omitempty"`
	Total      int64     `json:"total,omitempty"`
	Downloaded int64     `json:"downloaded,omitempty"`
	Attempt    int       `json:"attempt,omitempty"`
	Message    string    `json:"message,omitempty"`
}

// ProgressFunc is a callback for receiving progress events.
type ProgressFunc func(ProgressEvent)
