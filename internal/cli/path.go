package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// GetStorePath returns the default configuration file.
func GetStorePath() string {
	if xdgHome, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && xdgHome != "" {
		return filepath.Join(xdgHome, cmdName, "config.yaml")
	}

	usrHome, err := os.UserHomeDir()
	if err == nil && usrHome != "" {
		return filepath.Join(usrHome, ".config", cmdName, "config.yaml")
	}

	tmpConfig := filepath.Join(os.TempDir(), cmdName, "config.yaml")

	slog.Warn("could not determine user config directory, using temp path for config",
		slog.String("path", tmpConfig),
		slog.Any("error", fmt.Errorf("$XDG_CONFIG_HOME is unset, fall back to home directory: %w", err)),
	)

	return tmpConfig
}
