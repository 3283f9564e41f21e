package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/leowmjw/xlaude/internal/constants"
)

// StateDir returns the directory holding xlaude's state, config and log
// files: $XLAUDE_CONFIG_DIR/xlaude when the variable is set, otherwise
// the user config directory (e.g. ~/.config/xlaude).
func StateDir() (string, error) {
	base := os.Getenv(constants.EnvConfigDir)
	if base == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("locating user config directory: %w", err)
		}
		base = dir
	}
	return filepath.Join(base, constants.DirApp), nil
}

// StatePath returns the path of the persisted workspace registry.
func StatePath() (string, error) {
	return inStateDir(constants.FileState)
}

// SettingsPath returns the path of the optional TOML config file.
func SettingsPath() (string, error) {
	return inStateDir(constants.FileConfig)
}

// LogPath returns the path of the log file used while the dashboard owns
// the terminal.
func LogPath() (string, error) {
	return inStateDir(constants.FileLog)
}

func inStateDir(name string) (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}
