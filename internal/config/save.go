package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// UserConfig names the user config file as a -save-config target.
const UserConfig = "user"

// Save writes the config to the user's config directory.
func (c *Config) Save() error {
	return c.SaveTo(filepath.Join(ConfigDir(), "config.yaml"))
}

// SaveTo writes the config to a specific path, creating parent directories.
func (c *Config) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// SaveFlagged writes the config where -save-config points and returns the
// path written, or "" when the flag was not given.
func (c *Config) SaveFlagged(f *Flags) (string, error) {
	switch f.SaveConfig {
	case "":
		return "", nil
	case UserConfig:
		return filepath.Join(ConfigDir(), "config.yaml"), c.Save()
	default:
		return f.SaveConfig, c.SaveTo(f.SaveConfig)
	}
}
