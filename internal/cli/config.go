package cli

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// configFileName is looked up in the working directory when --config is
// not given.
const configFileName = "provtrace.toml"

// fileConfig holds defaults read from a provtrace.toml file. Pointer
// fields distinguish "absent" from zero values so that explicit flags
// always win.
type fileConfig struct {
	Capture captureConfig `toml:"capture"`
	Cache   cacheConfig   `toml:"cache"`
	Archive archiveConfig `toml:"archive"`
}

type captureConfig struct {
	OutputDir         *string `toml:"output_dir"`
	Protect           *bool   `toml:"protect"`
	SnapshotKB        *int    `toml:"snapshot_kb"`
	FirstLoop         *int    `toml:"first_loop"`
	MaxLoops          *int    `toml:"max_loops"`
	AnnotateFunctions *bool   `toml:"annotate_functions"`
	HashAlgorithm     *string `toml:"hash_algorithm"`
	Debug             *bool   `toml:"debug"`
}

type cacheConfig struct {
	Disabled *bool   `toml:"disabled"`
	Redis    *string `toml:"redis"`
}

type archiveConfig struct {
	URI        *string `toml:"uri"`
	Database   *string `toml:"database"`
	Collection *string `toml:"collection"`
}

// loadConfig reads a TOML config file. When path is empty the default
// file name is tried in the working directory; a missing default file is
// not an error.
func loadConfig(path string) (*fileConfig, error) {
	explicit := path != ""
	if path == "" {
		path = configFileName
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return &fileConfig{}, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}
