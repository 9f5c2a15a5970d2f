// Package settings loads the optional per-user tool settings file.
// Command-line flags and environment variables always win over settings.
package settings

import (
	"fmt"
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// Settings holds user defaults for the config tool.
type Settings struct {
	Editor       string `toml:"editor"`
	Config       string `toml:"config"`
	Environments string `toml:"environments"`
}

// DefaultPath returns the settings file location under the user config
// directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating user config directory: %w", err)
	}
	return filepath.Join(dir, "fleece", "settings.toml"), nil
}

// Load reads the settings file at path. A missing file is not an error
// and yields zero-value settings.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Settings{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading settings %s: %w", path, err)
	}

	var s Settings
	if err := toml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing settings %s: %w", path, err)
	}
	return &s, nil
}
