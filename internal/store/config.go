package store

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// CollectionConfig declares one document collection.
type CollectionConfig struct {
	// Name is the collection name, used as the table file name.
	Name string `yaml:"name"`
	// Owner names the collection whose documents own this one's. Deleting an
	// owner document cascades into its owned documents. Empty means unowned.
	Owner string `yaml:"owner,omitempty"`
	// Watched enables change-feed notifications for this collection.
	Watched bool `yaml:"watched,omitempty"`
}

// Config declares the data layout of a registry.
type Config struct {
	// DataDir is the root directory: table files live at its top level, blobs
	// under blobs/.
	DataDir string `yaml:"data_dir"`
	// Collections lists the document collections to open.
	Collections []CollectionConfig `yaml:"collections"`
}

// DefaultConfig returns the standard experiment-tracking layout.
func DefaultConfig(dataDir string) *Config {
	return &Config{
		DataDir: dataDir,
		Collections: []CollectionConfig{
			{Name: "observations", Watched: true},
			{Name: "experiments", Watched: true},
			{Name: "artifacts", Owner: "experiments", Watched: true},
			{Name: "deliveries", Watched: true},
		},
	}
}

// LoadConfig reads a YAML config file. The data directory defaults to the
// given dataDir when the file does not set one.
func LoadConfig(path, dataDir string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if cfg.DataDir == "" {
		cfg.DataDir = dataDir
	}
	if len(cfg.Collections) == 0 {
		cfg.Collections = DefaultConfig(dataDir).Collections
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	names := make([]string, 0, len(cfg.Collections))
	for _, cc := range cfg.Collections {
		if cc.Name == "" {
			return fmt.Errorf("collection with empty name")
		}
		if slices.Contains(names, cc.Name) {
			return fmt.Errorf("duplicate collection %q", cc.Name)
		}
		names = append(names, cc.Name)
	}
	for _, cc := range cfg.Collections {
		if cc.Owner != "" && !slices.Contains(names, cc.Owner) {
			return fmt.Errorf("collection %q owned by unknown collection %q", cc.Name, cc.Owner)
		}
	}
	return nil
}
