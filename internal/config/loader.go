package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where Load looks when no --config flag is given.
const DefaultPath = ".eksup.yaml"

// Load reads and parses the configuration file at path. When path is empty
// it tries DefaultPath; a missing file at the default location is not an
// error and yields a nil config (all defaults). A missing file at an
// explicit path is an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}

	for _, ov := range cfg.Checks.K8S002.Overrides {
		if ov.MinReplicas < 0 {
			return nil, fmt.Errorf("config %q: override %s/%s has negative min_replicas", path, ov.Namespace, ov.Name)
		}
	}
	for _, raw := range []string{cfg.Timeouts.PerCall, cfg.Timeouts.Run} {
		if raw == "" {
			continue
		}
		if _, err := time.ParseDuration(raw); err != nil {
			return nil, fmt.Errorf("config %q: bad timeout %q: %w", path, raw, err)
		}
	}

	return &cfg, nil
}
