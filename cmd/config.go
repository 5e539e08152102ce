// cmd/config.go
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// fileConfig holds the optional YAML configuration. Flags the user set
// explicitly always win over file values.
type fileConfig struct {
	API                 string `yaml:"api"`
	ResultsDir          string `yaml:"results_dir"`
	LogDir              string `yaml:"log_dir"`
	BatchSize           int    `yaml:"batch_size"`
	MaxConcurrent       int    `yaml:"max_concurrent"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	JobTimeoutSeconds   int    `yaml:"job_timeout_seconds"`
	BatchPauseSeconds   int    `yaml:"batch_pause_seconds"`
}

// loadFileConfig reads the config file named by --config, or the default
// $HOME/.baktarun.yaml. A missing default file yields an empty config; a
// missing explicit file is an error.
func loadFileConfig() (*fileConfig, error) {
	path := cfgFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return &fileConfig{}, nil
		}
		path = filepath.Join(home, ".baktarun.yaml")
		if _, err := os.Stat(path); err != nil {
			return &fileConfig{}, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return &cfg, nil
}
