package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = "nbprep.yaml"

// Config holds all nbprep configuration.
type Config struct {
	// Notebook tree layout
	Notebooks NotebooksConfig `yaml:"notebooks"`

	// Preprocessing behaviour
	Preprocess PreprocessConfig `yaml:"preprocess"`

	// Execution-result cache
	Cache CacheConfig `yaml:"cache"`

	// Watch mode
	Watch WatchConfig `yaml:"watch"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// NotebooksConfig describes where notebooks live.
type NotebooksConfig struct {
	Dir      string `yaml:"dir"`       // notebook root below the repo root
	TOC      string `yaml:"toc"`       // table of contents file in Dir
	DevDir   string `yaml:"dev_dir"`   // extra directory of work-in-progress sources
	BookConf string `yaml:"book_conf"` // Jupyter Book config file in Dir
	BuildDir string `yaml:"build_dir"` // Jupyter Book output directory in Dir
	BookCmd  string `yaml:"book_cmd"`  // documentation site generator executable
}

// PreprocessConfig tunes variant generation.
type PreprocessConfig struct {
	RewriteLinks bool `yaml:"rewrite_links"`
	Jobs         int  `yaml:"jobs"`
}

// CacheConfig configures the execution cache.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"` // relative paths are resolved against the notebook root
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	Debounce string `yaml:"debounce"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
	File   string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Notebooks: NotebooksConfig{
			Dir:      "notebooks",
			TOC:      "_toc.yml",
			DevDir:   "_dev",
			BookConf: "_config.yml",
			BuildDir: "_build",
			BookCmd:  "jupyter-book",
		},
		Preprocess: PreprocessConfig{
			RewriteLinks: false,
			Jobs:         1,
		},
		Cache: CacheConfig{
			Enabled: true,
			Path:    ".nbprep/exec_cache.db",
		},
		Watch: WatchConfig{
			Debounce: "500ms",
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Defaults if the config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("NBPREP_NOTEBOOKS_DIR"); dir != "" {
		c.Notebooks.Dir = dir
	}
	if path := os.Getenv("NBPREP_CACHE_DB"); path != "" {
		c.Cache.Path = path
	}
	if lvl := os.Getenv("NBPREP_LOG_LEVEL"); lvl != "" {
		c.Logging.Level = lvl
	}
	if jobs := os.Getenv("NBPREP_JOBS"); jobs != "" {
		if n, err := strconv.Atoi(jobs); err == nil {
			c.Preprocess.Jobs = n
		}
	}
}

// GetDebounce returns the watch debounce as a duration.
func (c *Config) GetDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// ValidLogFormats lists the supported log encodings.
var ValidLogFormats = []string{"console", "json"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Notebooks.Dir == "" {
		return fmt.Errorf("notebooks.dir must not be empty")
	}
	if c.Notebooks.TOC == "" {
		return fmt.Errorf("notebooks.toc must not be empty")
	}
	if c.Preprocess.Jobs < 1 {
		return fmt.Errorf("preprocess.jobs must be at least 1, got %d", c.Preprocess.Jobs)
	}
	if c.Cache.Enabled && c.Cache.Path == "" {
		return fmt.Errorf("cache.path must be set when the cache is enabled")
	}
	if _, err := time.ParseDuration(c.Watch.Debounce); err != nil {
		return fmt.Errorf("invalid watch.debounce %q: %w", c.Watch.Debounce, err)
	}

	validFormat := false
	for _, f := range ValidLogFormats {
		if c.Logging.Format == f {
			validFormat = true
			break
		}
	}
	if !validFormat {
		return fmt.Errorf("invalid logging format: %s (valid: %v)", c.Logging.Format, ValidLogFormats)
	}
	return nil
}

// CachePath resolves the cache database path against the notebook root.
func (c *Config) CachePath(notebookRoot string) string {
	if filepath.IsAbs(c.Cache.Path) {
		return c.Cache.Path
	}
	return filepath.Join(notebookRoot, c.Cache.Path)
}
