// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/bodaay/KaggleDatasetFetcher/pkg/kagglefetcher"
)

// EnvPrefix prefixes environment overrides, e.g. KAGGLEFETCHER_OUTPUT.
const EnvPrefix = "KAGGLEFETCHER"

// DefaultConfig returns the default configuration.
func DefaultConfig() map[string]any {
	return map[string]any{
		"output":          "kaggle/input",
		"keep-cache":      false,
		"cache-dir":       "",
		"endpoint":        "",
		"retries":         3,
		"backoff-initial": "400ms",
		"backoff-max":     "10s",
		"enable-logging":  false,
		"log-dir":         kagglefetcher.DefaultLogDir,
		"log-file":        kagglefetcher.DefaultLogFile,
		"log-level":       "info",
		"username":        "",
		"key":             "",
	}
}

// configCandidates lists the config files looked up when --config is not set.
func configCandidates() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	dir := filepath.Join(home, ".config")
	return []string{
		filepath.Join(dir, "kagglefetcher.json"),
		filepath.Join(dir, "kagglefetcher.yaml"),
		filepath.Join(dir, "kagglefetcher.yml"),
	}
}

// findConfig returns the first existing default config file, or "".
func findConfig() string {
	for _, p := range configCandidates() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// loadConfig reads the config file at path (or the default location) and
// layers KAGGLEFETCHER_* environment variables on top.
func loadConfig(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = findConfig()
	}
	if path == "" {
		return v, nil
	}

	v.SetConfigFile(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		v.SetConfigType("yaml")
	default:
		v.SetConfigType("json")
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return v, nil
}

// loadEnvFiles loads .env files in order of precedence. Variables already
// present in the process environment win over .env; .env.local wins over both.
func loadEnvFiles(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		return nil
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("failed to load .env: %w", err)
		}
	}
	if _, err := os.Stat(".env.local"); err == nil {
		if err := godotenv.Overload(".env.local"); err != nil {
			return fmt.Errorf("failed to load .env.local: %w", err)
		}
	}
	return nil
}

// applySettingsDefaults fills flags the user did not set from the config
// file and environment. Explicit flags always win.
func applySettingsDefaults(cmd *cobra.Command, ro *RootOpts, fo *fetchOpts) error {
	v, err := loadConfig(ro.Config)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	setStr := func(name string, set func(string)) {
		if flags.Lookup(name) == nil || flags.Changed(name) || !v.IsSet(name) {
			return
		}
		set(v.GetString(name))
	}
	setInt := func(name string, set func(int)) {
		if flags.Lookup(name) == nil || flags.Changed(name) || !v.IsSet(name) {
			return
		}
		set(v.GetInt(name))
	}
	setBool := func(name string, set func(bool)) {
		if flags.Lookup(name) == nil || flags.Changed(name) || !v.IsSet(name) {
			return
		}
		set(v.GetBool(name))
	}

	// global
	setStr("username", func(s string) { ro.Username = s })
	setStr("key", func(s string) { ro.Key = s })
	setStr("log-dir", func(s string) { ro.LogDir = s })
	setStr("log-file", func(s string) { ro.LogFile = s })
	setStr("log-level", func(s string) { ro.LogLevel = s })
	setBool("enable-logging", func(b bool) { ro.EnableLogging = b })
	setStr("metrics-file", func(s string) { ro.MetricsFile = s })

	// per command
	if fo != nil {
		setStr("output", func(s string) { fo.Output = s })
		setBool("keep-cache", func(b bool) { fo.KeepCache = b })
		setStr("cache-dir", func(s string) { fo.Settings.CacheDir = s })
		setStr("endpoint", func(s string) { fo.Settings.Endpoint = s })
		setInt("retries", func(n int) { fo.Settings.Retries = n })
		setStr("backoff-initial", func(s string) { fo.Settings.BackoffInitial = s })
		setStr("backoff-max", func(s string) { fo.Settings.BackoffMax = s })
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var (
		force   bool
		useYAML bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a default configuration file",
		Long: `Creates a default configuration file at ~/.config/kagglefetcher.json (or .yaml)

The configuration file sets default values for command flags.
KAGGLEFETCHER_* environment variables override the file, and CLI flags
override both.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return fmt.Errorf("could not find home directory: %w", err)
			}

			configDir := filepath.Join(home, ".config")
			ext := ".json"
			if useYAML {
				ext = ".yaml"
			}
			configPath := filepath.Join(configDir, "kagglefetcher"+ext)

			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("config file already exists: %s\nUse --force to overwrite", configPath)
			}
			if _, err := kagglefetcher.EnsureDir(configDir); err != nil {
				return fmt.Errorf("could not create config directory: %w", err)
			}

			cfg := DefaultConfig()
			var data []byte
			if useYAML {
				data, err = yaml.Marshal(cfg)
			} else {
				data, err = json.MarshalIndent(cfg, "", "  ")
			}
			if err != nil {
				return err
			}

			if err := os.WriteFile(configPath, data, 0o600); err != nil {
				return fmt.Errorf("could not write config file: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s Created config file: %s\n", okMark(), configPath)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Edit this file to set your defaults. For example:")
			fmt.Fprintln(out, "  - Set your Kaggle username and key")
			fmt.Fprintln(out, "  - Change the default output directory")
			fmt.Fprintln(out, "  - Point cache-dir at a larger disk")

			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing config file")
	cmd.Flags().BoolVar(&useYAML, "yaml", false, "Create YAML config instead of JSON")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			configPath := findConfig()
			if configPath == "" {
				fmt.Fprintln(out, "No config file found.")
				if c := configCandidates(); len(c) > 0 {
					fmt.Fprintf(out, "Run 'kagglefetcher config init' to create one at:\n  %s\n", c[0])
				}
				return nil
			}

			data, err := os.ReadFile(configPath)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Config file: %s\n\n", configPath)
			fmt.Fprintln(out, string(data))

			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		Run: func(cmd *cobra.Command, args []string) {
			p := findConfig()
			if p == "" {
				if c := configCandidates(); len(c) > 0 {
					p = c[0]
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), p)
		},
	}
}
