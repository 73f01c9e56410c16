package config

import (
	"os"
	"path/filepath"

	appconfig "github.com/inferloop/tsforecast/internal/config"
)

// DefaultFileName is looked up in the home directory when no --config is given
const DefaultFileName = ".tsforecast.yaml"

// LoadConfig loads the service configuration for CLI use. An explicit path
// must exist; the default path is used only when present.
func LoadConfig(cfgFile string) (*appconfig.Config, error) {
	return appconfig.Load(ResolvePath(cfgFile))
}

// ResolvePath returns cfgFile, or the default config path when cfgFile is
// empty and that file exists, or "" for defaults plus environment only
func ResolvePath(cfgFile string) string {
	if cfgFile != "" {
		return cfgFile
	}

	path := GetDefaultConfigPath()
	if path == "" {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func GetDefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, DefaultFileName)
}
