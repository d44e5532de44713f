package config

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/spf13/afero"
)

// Initialize creates a configuration directory at dir holding the default
// configuration. Existing files are left alone.
func Initialize(dir string, logger *log.Logger) (*Configuration, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return initializeFs(afero.NewOsFs(), abs, logger)
}

func initializeFs(base afero.Fs, dir string, logger *log.Logger) (*Configuration, error) {
	logger.Printf("Initializing configuration in %q\n", dir)
	if err := base.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("couldn't create config dir: %w", err)
	}

	configPath := filepath.Join(dir, ConfigurationName)
	switch exists, err := afero.Exists(base, configPath); {
	case err != nil:
		return nil, err
	case exists:
		logger.Printf("- %s already exists, skipping\n", ConfigurationName)
	default:
		logger.Printf("- writing %s\n", ConfigurationName)
		if err := afero.WriteFile(base, configPath, defaultConfigData, 0600); err != nil {
			return nil, fmt.Errorf("couldn't write %s: %w", ConfigurationName, err)
		}
	}

	return LoadFs(base, dir)
}
