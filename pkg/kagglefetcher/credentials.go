// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package kagglefetcher

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Credentials holds whatever authentication was found for the Kaggle API.
type Credentials struct {
	Username string `json:"username"`
	Key      string `json:"key"`
	Token    string `json:"-"`
}

// IsZero reports whether no credentials are set.
func (c Credentials) IsZero() bool {
	return c.Token == "" && (c.Username == "" || c.Key == "")
}

// ResolveCredentials finds credentials from settings, the environment, or
// kaggle.json. A missing kaggle.json is not an error; a malformed one is.
func ResolveCredentials(cfg Settings) (Credentials, error) {
	if cfg.Username != "" && cfg.Key != "" {
		return Credentials{Username: cfg.Username, Key: cfg.Key}, nil
	}
	if cfg.Token != "" {
		return Credentials{Token: cfg.Token}, nil
	}

	user := strings.TrimSpace(os.Getenv("KAGGLE_USERNAME"))
	key := strings.TrimSpace(os.Getenv("KAGGLE_KEY"))
	if user != "" && key != "" {
		return Credentials{Username: user, Key: key}, nil
	}
	if tok := strings.TrimSpace(os.Getenv("KAGGLE_API_TOKEN")); tok != "" {
		return Credentials{Token: tok}, nil
	}

	path := kaggleJSONPath()
	if path == "" {
		return Credentials{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Credentials{}, nil
		}
		return Credentials{}, err
	}
	var c Credentials
	if err := json.Unmarshal(b, &c); err != nil {
		return Credentials{}, fmt.Errorf("invalid %s: %w", path, err)
	}
	return c, nil
}

// kaggleJSONPath returns the location of kaggle.json.
func kaggleJSONPath() string {
	if dir := os.Getenv("KAGGLE_CONFIG_DIR"); dir != "" {
		return filepath.Join(dir, "kaggle.json")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".kaggle", "kaggle.json")
}
