// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package kagglefetcher

import (
	"errors"
	"fmt"
)

// Common errors returned by the library.
var (
	// ErrInvalidHandle is returned when the dataset identifier is not
	// "owner/name" or "owner/name/versions/N".
	ErrInvalidHandle = errors.New("invalid dataset handle: expected owner/name or owner/name/versions/N")

	// ErrMissingHandle is returned when no dataset is specified.
	ErrMissingHandle = errors.New("missing dataset handle")

	// ErrUnauthorized is returned when authentication is required but not provided.
	ErrUnauthorized = errors.New("unauthorized: check your Kaggle credentials")

	// ErrNotFound is returned when the dataset or version does not exist.
	ErrNotFound = errors.New("dataset or version not found")

	// ErrRateLimited is returned when the API rate limit is exceeded.
	ErrRateLimited = errors.New("rate limited: too many requests")
)

// DownloadError is returned when a dataset could not be downloaded.
type DownloadError struct {
	Handle string
	Err    error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s: %v", e.Handle, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// MoveError is returned when a downloaded dataset could not be relocated.
type MoveError struct {
	Src string
	Dst string
	Err error
}

func (e *MoveError) Error() string {
	return fmt.Sprintf("move %s -> %s: %v", e.Src, e.Dst, e.Err)
}

func (e *MoveError) Unwrap() error {
	return e.Err
}

// CleanupError is returned when a cached dataset could not be removed.
type CleanupError struct {
	Path string
	Err  error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("cleanup %s: %v", e.Path, e.Err)
}

func (e *CleanupError) Unwrap() error {
	return e.Err
}

// APIError represents an error from the Kaggle API.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
	URL        string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Status)
}

// IsRetryable returns true if the error might succeed on retry.
func (e *APIError) IsRetryable() bool {
	switch e.StatusCode {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// Is implements errors.Is for common error comparisons.
func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case 401, 403:
		return target == ErrUnauthorized
	case 404:
		return target == ErrNotFound
	case 429:
		return target == ErrRateLimited
	default:
		return false
	}
}
