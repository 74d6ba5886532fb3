// Package config provides configuration for the client and the stub server,
// merged from defaults, an optional JSON config file, a .env file and
// environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Options holds the configuration values.
type Options struct {
	// ServerURL is the base URL of the ShelfScan API.
	ServerURL string `json:"server_url"`

	// StatePath is the file the session store persists to.
	StatePath string `json:"state_path"`

	// LogLevel is the zap level name.
	LogLevel string `json:"log_level"`

	// ListenAddr is the stub server's listen address.
	ListenAddr string `json:"listen_addr"`
}

// defaults returns the built-in configuration.
func defaults() Options {
	statePath := "shelfscan.json"
	if home, err := os.UserHomeDir(); err == nil {
		statePath = filepath.Join(home, ".shelfscan", "state.json")
	}
	return Options{
		ServerURL:  "http://localhost:8080",
		StatePath:  statePath,
		LogLevel:   "warn",
		ListenAddr: "localhost:8080",
	}
}

// Load merges defaults, the JSON config file at path (when it exists), a
// .env file in the working directory, and environment variables, in that
// order of increasing precedence.
func Load(path string) (Options, error) {
	opts := defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return opts, fmt.Errorf("read config file: %w", err)
			}
			if err := json.Unmarshal(data, &opts); err != nil {
				return opts, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	// .env values become environment variables without overriding ones
	// already set.
	_ = godotenv.Load()

	if v := os.Getenv("SHELFSCAN_SERVER_URL"); v != "" {
		opts.ServerURL = v
	}
	if v := os.Getenv("SHELFSCAN_STATE_PATH"); v != "" {
		opts.StatePath = v
	}
	if v := os.Getenv("SHELFSCAN_LOG_LEVEL"); v != "" {
		opts.LogLevel = v
	}
	if v := os.Getenv("SHELFSCAN_LISTEN_ADDR"); v != "" {
		opts.ListenAddr = v
	}
	return opts, nil
}
