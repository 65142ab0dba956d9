// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package kagglefetcher

import (
	"fmt"
	"strconv"
	"strings"
)

// Handle identifies a dataset on Kaggle.
//
// The string form is "owner/name" or "owner/name/versions/N". A zero Version
// means the latest version is resolved at download time.
type Handle struct {
	Owner   string
	Dataset string
	Version int
}

// ParseHandle parses a dataset identifier.
func ParseHandle(s string) (Handle, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Handle{}, ErrMissingHandle
	}
	parts := strings.Split(strings.Trim(s, "/"), "/")
	for _, p := range parts {
		if !validComponent(p) {
			return Handle{}, fmt.Errorf("%w: %q", ErrInvalidHandle, s)
		}
	}

	switch len(parts) {
	case 2:
		return Handle{Owner: parts[0], Dataset: parts[1]}, nil
	case 4:
		if parts[2] != "versions" {
			return Handle{}, fmt.Errorf("%w: %q", ErrInvalidHandle, s)
		}
		v, err := strconv.Atoi(parts[3])
		if err != nil || v <= 0 {
			return Handle{}, fmt.Errorf("%w: bad version in %q", ErrInvalidHandle, s)
		}
		return Handle{Owner: parts[0], Dataset: parts[1], Version: v}, nil
	default:
		return Handle{}, fmt.Errorf("%w: %q", ErrInvalidHandle, s)
	}
}

// validComponent rejects segments that would not stay a single path element
// once joined under a destination or cache directory.
func validComponent(p string) bool {
	switch p {
	case "", ".", "..":
		return false
	}
	return !strings.ContainsAny(p, "\\\x00")
}

// IsValidDatasetName reports whether s is a well-formed dataset identifier.
func IsValidDatasetName(s string) bool {
	_, err := ParseHandle(s)
	return err == nil
}

// String returns the canonical identifier.
func (h Handle) String() string {
	if h.Version > 0 {
		return fmt.Sprintf("%s/%s/versions/%d", h.Owner, h.Dataset, h.Version)
	}
	return h.Owner + "/" + h.Dataset
}

// WithVersion returns a copy of h pinned to version v.
func (h Handle) WithVersion(v int) Handle {
	h.Version = v
	return h
}

// IsVersioned reports whether a specific version was requested.
func (h Handle) IsVersioned() bool {
	return h.Version > 0
}
