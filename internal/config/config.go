// Package config loads the unipkg configuration file and the repository
// definitions it points to.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ralt/unipkg/internal/models"
	"github.com/sirupsen/logrus"
)

// DefaultPath is where the configuration is read from when --config is not given.
const DefaultPath = "/etc/unipkg/unipkg.toml"

// Config is the top-level configuration file.
type Config struct {
	Root              string         `toml:"root"`
	CacheDir          string         `toml:"cache_dir"`
	DBDir             string         `toml:"db_dir"`
	ParallelDownloads int            `toml:"parallel_downloads"`
	StepTimeout       time.Duration  `toml:"step_timeout"`
	SourcesDir        string         `toml:"sources_dir"`
	Sources           []SourceConfig `toml:"source"`
}

// SourceConfig is one [[source]] table.
type SourceConfig struct {
	Name         string   `toml:"name"`
	URL          string   `toml:"url"`
	Format       string   `toml:"format"`
	Enabled      *bool    `toml:"enabled"`
	Priority     int      `toml:"priority"`
	GPGKey       string   `toml:"gpg_key"`
	Distribution string   `toml:"distribution"`
	Components   []string `toml:"components"`
	Arches       []string `toml:"arches"`
	Index        string   `toml:"index"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Root:              "/",
		CacheDir:          "/var/cache/unipkg",
		DBDir:             "/var/lib/unipkg",
		ParallelDownloads: 4,
		StepTimeout:       10 * time.Minute,
	}
}

// Load reads the TOML file at path on top of the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &models.PkgError{
				Type: models.ErrInvalidConfig,
				Err:  fmt.Errorf("config file %s not found", path),
			}
		}
		return nil, &models.PkgError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("failed to parse %s: %w", path, err),
		}
	}

	for _, key := range md.Undecoded() {
		logrus.WithField("key", key.String()).Warnf("Unknown configuration key in %s", path)
	}

	logrus.Debugf("Loaded configuration from %s", path)
	return cfg, nil
}

// LoadOrDefault is Load, except that a missing file yields the defaults.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logrus.Debugf("No configuration at %s, using defaults", path)
		return Default(), nil
	}
	return Load(path)
}

// Validate checks the configuration and fills in derived values.
func (c *Config) Validate() error {
	if c.Root == "" {
		return &models.PkgError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("root is required"),
		}
	}
	if c.CacheDir == "" {
		return &models.PkgError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("cache_dir is required"),
		}
	}
	if c.DBDir == "" {
		return &models.PkgError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("db_dir is required"),
		}
	}
	if c.ParallelDownloads < 1 {
		return &models.PkgError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("parallel_downloads must be at least 1, got %d", c.ParallelDownloads),
		}
	}
	if c.StepTimeout < 0 {
		return &models.PkgError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("step_timeout must not be negative"),
		}
	}

	seen := make(map[string]bool)
	for i, s := range c.Sources {
		if s.Name == "" {
			return models.NewError(models.ErrInvalidConfig, nil, "source #%d has no name", i+1)
		}
		if seen[s.Name] {
			return models.NewError(models.ErrInvalidConfig, []string{s.Name}, "duplicate source name")
		}
		seen[s.Name] = true
		if s.URL == "" {
			return models.NewError(models.ErrInvalidConfig, []string{s.Name}, "source has no url")
		}
		if _, err := models.ParseFormat(s.Format); err != nil {
			return &models.PkgError{Type: models.ErrInvalidConfig, Packages: []string{s.Name}, Err: err}
		}
	}

	return nil
}

// CachePath is the cache directory inside Root.
func (c *Config) CachePath() string {
	return filepath.Join(c.Root, c.CacheDir)
}

// DBPath is the database directory inside Root.
func (c *Config) DBPath() string {
	return filepath.Join(c.Root, c.DBDir)
}

// ToSource converts a [[source]] table. Sources are enabled unless they say otherwise.
func (s SourceConfig) ToSource() (models.Source, error) {
	format, err := models.ParseFormat(s.Format)
	if err != nil {
		return models.Source{}, &models.PkgError{Type: models.ErrInvalidConfig, Packages: []string{s.Name}, Err: err}
	}
	enabled := true
	if s.Enabled != nil {
		enabled = *s.Enabled
	}
	return models.Source{
		Name:         s.Name,
		URL:          s.URL,
		Format:       format,
		Enabled:      enabled,
		Priority:     s.Priority,
		GPGKey:       s.GPGKey,
		Distribution: s.Distribution,
		Components:   s.Components,
		Arches:       s.Arches,
		Index:        s.Index,
	}, nil
}

// AllSources returns the configured sources followed by those imported from
// SourcesDir. A name defined twice is an error.
func (c *Config) AllSources() ([]models.Source, error) {
	var sources []models.Source
	for _, sc := range c.Sources {
		src, err := sc.ToSource()
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}

	if c.SourcesDir != "" {
		imported, err := ImportDir(c.SourcesDir)
		if err != nil {
			return nil, err
		}
		sources = append(sources, imported...)
	}

	seen := make(map[string]bool)
	for _, s := range sources {
		if seen[s.Name] {
			return nil, models.NewError(models.ErrInvalidConfig, []string{s.Name}, "source defined more than once")
		}
		seen[s.Name] = true
	}
	return sources, nil
}
