// Package config loads and validates the depforge configuration file.
//
// Configuration is TOML. The zero Config is usable: defaults give a
// file-backed ledger and cache under the state directory and no sources.
package config

import (
	"context"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	"github.com/depforge/depforge/pkg/cache"
	"github.com/depforge/depforge/pkg/errors"
	"github.com/depforge/depforge/pkg/ledger"
	"github.com/depforge/depforge/pkg/manager"
	"github.com/depforge/depforge/pkg/source"
)

// DefaultPath is where the CLI looks for configuration when --config is
// not given.
const DefaultPath = "~/.config/depforge/config.toml"

// Config is the full configuration tree.
type Config struct {
	InstallRoot      string `toml:"install_root"`
	DownloadDir      string `toml:"download_dir"`
	Workers          int    `toml:"workers"`
	AutoUpdate       bool   `toml:"auto_update"`
	VerifySignatures bool   `toml:"verify_signatures"`

	Ledger  Ledger   `toml:"ledger"`
	Cache   CacheCfg `toml:"cache"`
	Sources []Source `toml:"sources"`
}

// Ledger selects and configures the ledger backend.
type Ledger struct {
	Backend  string `toml:"backend"` // "file" (default) or "mongo"
	Path     string `toml:"path"`    // file backend state file
	MongoURI string `toml:"mongo_uri"`
	MongoDB  string `toml:"mongo_db"`
}

// CacheCfg selects and configures the cache backend.
type CacheCfg struct {
	Backend       string `toml:"backend"` // "file" (default), "redis" or "none"
	Dir           string `toml:"dir"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
}

// Source configures one package source.
type Source struct {
	Name      string `toml:"name"`
	Type      string `toml:"type"` // "dir", "http" or "s3"
	Location  string `toml:"location"`
	Priority  int    `toml:"priority"`
	Trusted   bool   `toml:"trusted"`
	AuthToken string `toml:"auth_token"`
	Region    string `toml:"region"` // s3 only
	Prefix    string `toml:"prefix"` // s3 key prefix
}

// Load reads a TOML config file and applies defaults. A missing file is
// not an error; it yields the defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	path = expandHome(path)

	if data, err := os.ReadFile(path); err == nil {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "parse config %s", path)
		}
	} else if !os.IsNotExist(err) {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, err, "read config %s", path)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	stateDir := expandHome("~/.local/share/depforge")
	if c.InstallRoot == "" {
		c.InstallRoot = filepath.Join(stateDir, "packages")
	}
	if c.DownloadDir == "" {
		c.DownloadDir = filepath.Join(stateDir, "downloads")
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = "file"
	}
	if c.Ledger.Path == "" {
		c.Ledger.Path = filepath.Join(stateDir, "ledger.json")
	}
	if c.Ledger.MongoDB == "" {
		c.Ledger.MongoDB = "depforge"
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = "file"
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = filepath.Join(stateDir, "cache")
	}
}

func (c *Config) validate() error {
	switch c.Ledger.Backend {
	case "file", "mongo":
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "unknown ledger backend %q", c.Ledger.Backend)
	}
	if c.Ledger.Backend == "mongo" && c.Ledger.MongoURI == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "ledger backend mongo requires mongo_uri")
	}
	switch c.Cache.Backend {
	case "file", "redis", "none":
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "unknown cache backend %q", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.RedisAddr == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "cache backend redis requires redis_addr")
	}

	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if s.Name == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "source without a name")
		}
		if seen[s.Name] {
			return errors.New(errors.ErrCodeInvalidConfig, "duplicate source name %q", s.Name)
		}
		seen[s.Name] = true
		switch s.Type {
		case "dir", "http", "s3":
		default:
			return errors.New(errors.ErrCodeInvalidConfig, "source %s: unknown type %q", s.Name, s.Type)
		}
		if s.Location == "" {
			return errors.New(errors.ErrCodeInvalidConfig, "source %s: location required", s.Name)
		}
	}
	return nil
}

// BuildStore constructs the configured ledger backend.
func (c *Config) BuildStore(ctx context.Context) (ledger.Store, error) {
	switch c.Ledger.Backend {
	case "mongo":
		return ledger.NewMongoStore(ctx, ledger.MongoConfig{
			URI:      c.Ledger.MongoURI,
			Database: c.Ledger.MongoDB,
		})
	default:
		return ledger.NewFileStore(c.Ledger.Path)
	}
}

// BuildCache constructs the configured cache backend.
func (c *Config) BuildCache(ctx context.Context) (cache.Cache, error) {
	switch c.Cache.Backend {
	case "none":
		return cache.NewNullCache(), nil
	case "redis":
		return cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     c.Cache.RedisAddr,
			Password: c.Cache.RedisPassword,
			DB:       c.Cache.RedisDB,
		})
	default:
		return cache.NewFileCache(c.Cache.Dir)
	}
}

// BuildSources constructs the configured sources.
func (c *Config) BuildSources(ctx context.Context) ([]source.Source, error) {
	out := make([]source.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		switch s.Type {
		case "dir":
			src, err := source.NewDirSource(s.Name, s.Location, s.Priority, s.Trusted)
			if err != nil {
				return nil, err
			}
			out = append(out, src)
		case "http":
			out = append(out, source.NewHTTPSource(s.Name, s.Location, s.Priority, s.Trusted, s.AuthToken))
		case "s3":
			src, err := source.NewS3Source(ctx, s.Name, s.Location, s.Prefix, s.Region, s.Priority, s.Trusted)
			if err != nil {
				return nil, err
			}
			out = append(out, src)
		}
	}
	return out, nil
}

// BuildManager wires a Manager from the configuration.
func (c *Config) BuildManager(ctx context.Context, logger *log.Logger) (*manager.Manager, error) {
	store, err := c.BuildStore(ctx)
	if err != nil {
		return nil, err
	}
	cch, err := c.BuildCache(ctx)
	if err != nil {
		store.Close()
		return nil, err
	}
	sources, err := c.BuildSources(ctx)
	if err != nil {
		cch.Close()
		store.Close()
		return nil, err
	}

	// Mirror the source configuration into the ledger so deployments can
	// inspect where installs came from.
	for _, s := range c.Sources {
		row := ledger.SourceRow{
			Name:      s.Name,
			Location:  s.Location,
			Priority:  s.Priority,
			Trusted:   s.Trusted,
			AuthToken: s.AuthToken,
		}
		if err := store.PutSource(ctx, row); err != nil {
			cch.Close()
			store.Close()
			return nil, err
		}
	}

	return manager.New(manager.Config{
		Store:       store,
		Cache:       cch,
		Sources:     sources,
		InstallRoot: c.InstallRoot,
		DownloadDir: c.DownloadDir,
		Workers:     c.Workers,
		VerifySigs:  c.VerifySignatures,
		Logger:      logger,
	})
}

func expandHome(path string) string {
	if len(path) >= 2 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
