package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

// Load loads the configuration from the directory.
func Load(path string) (*Configuration, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return LoadFs(afero.NewOsFs(), abs)
}

// LoadFs loads the configuration from a directory of base. All files the
// configuration opens afterwards are resolved inside that directory, so path
// must be absolute.
func LoadFs(base afero.Fs, path string) (*Configuration, error) {
	// If given the path to a config.yaml file, move back up a level.
	if filepath.Base(path) == ConfigurationName {
		path = filepath.Dir(path)
	}

	configFs := afero.NewBasePathFs(base, path)
	configContents, err := afero.ReadFile(configFs, ConfigurationName)
	if err != nil {
		return nil, err
	}

	var out Configuration
	if err := yaml.UnmarshalStrict(configContents, &out); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ConfigurationName, err)
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", ConfigurationName, err)
	}
	out.configFs = configFs
	return &out, nil
}

// LoadOrDefault loads the configuration from path, falling back to the
// defaults if the directory has never been initialized. The defaults still
// keep their files in path when it exists.
func LoadOrDefault(path string) (*Configuration, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return loadOrDefault(afero.NewOsFs(), abs)
}

func loadOrDefault(base afero.Fs, path string) (*Configuration, error) {
	cfg, err := LoadFs(base, path)
	switch {
	case err == nil:
		return cfg, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, err
	}

	cfg = Default()
	if ok, _ := afero.DirExists(base, path); ok {
		cfg.configFs = afero.NewBasePathFs(base, path)
	}
	return cfg, nil
}
