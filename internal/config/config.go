/*
Package config loads the server's YAML configuration file. Every field has
a compiled default, so the server runs correctly with no config file
present at all.
*/
package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dimatd/kvstore/protocol"
)

// Config is the full set of server-tunable knobs. YAML tags are lowercase
// to match the rest of the pack's config files.
type Config struct {
	ListenAddr   string `yaml:"listen_addr"`
	SnapshotPath string `yaml:"snapshot_path"`

	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
	StatsInterval    time.Duration `yaml:"stats_interval"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`

	ReadBufferSize int    `yaml:"read_buffer_size"`
	MaxMessageSize uint32 `yaml:"max_message_size"`

	Workers int `yaml:"workers"`
}

// Default returns the compiled defaults for every config field.
func Default() Config {
	return Config{
		ListenAddr:       ":9000",
		SnapshotPath:     "config.dat",
		SnapshotInterval: 10 * time.Second,
		StatsInterval:    5 * time.Second,
		IdleTimeout:      30 * time.Second,
		ReadBufferSize:   protocol.ReadBufferSize,
		MaxMessageSize:   protocol.MaxMessageSize,
		Workers:          runtime.NumCPU(),
	}
}

// Load reads path as YAML and overlays it onto Default(). A path of ""
// returns the defaults untouched; a path that does not exist is a fatal
// error (unlike the snapshot file, an explicitly requested config file that
// is missing means misconfiguration, not a fresh install).
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %q: %w", path, err)
	}
	return cfg, nil
}
