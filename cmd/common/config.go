package common

import (
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/PieroV/mirror-to-onedrive/driveapi"
	"github.com/PieroV/mirror-to-onedrive/mirror"
	"github.com/rs/zerolog/log"
	yaml "gopkg.in/yaml.v3"
)

// Config is the on-disk configuration document: OAuth2 application
// identity, the catalog/token file locations, and the remote-to-local
// directory mappings to keep synchronized.
type Config struct {
	driveapi.AuthConfig `yaml:"auth"`

	CatalogPath   string            `yaml:"catalogPath"`
	TokenPath     string            `yaml:"tokenPath"`
	LogLevel      string            `yaml:"log"`
	Synchronize   map[string]string `yaml:"synchronize"`
	HashFrequency int               `yaml:"hashFrequencyDays"`
}

// SyncRoots converts the configured remote-path -> local-path mappings
// into mirror.SyncRoot values, expanding any leading "~" in local paths.
func (c Config) SyncRoots() []mirror.SyncRoot {
	roots := make([]mirror.SyncRoot, 0, len(c.Synchronize))
	for remote, local := range c.Synchronize {
		roots = append(roots, mirror.SyncRoot{RemoteName: remote, LocalPath: UnescapeHome(local)})
	}
	return roots
}

// DefaultConfigPath returns the default config location.
func DefaultConfigPath() string {
	confDir, err := os.UserConfigDir()
	if err != nil {
		log.Error().Err(err).Msg("Could not determine configuration directory.")
	}
	return filepath.Join(confDir, "mirror-to-onedrive/config.yml")
}

func defaultConfig() Config {
	xdgCacheDir, _ := os.UserCacheDir()
	return Config{
		CatalogPath:   filepath.Join(xdgCacheDir, "mirror-to-onedrive/catalog.db"),
		TokenPath:     filepath.Join(xdgCacheDir, "mirror-to-onedrive/tokens.json"),
		LogLevel:      "info",
		HashFrequency: 3,
	}
}

// LoadConfig is the primary way of loading the service's config: defaults
// are computed, overlaid with whatever the file provides, and any
// unset fields fall back to the defaults via mergo.
func LoadConfig(path string) *Config {
	defaults := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Configuration file not found, using defaults.")
		return &defaults
	}
	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Could not parse configuration file, using defaults.")
	}
	if err := mergo.Merge(config, defaults); err != nil {
		log.Error().Err(err).Str("path", path).Msg("Could not merge configuration file with defaults.")
	}

	config.CatalogPath = UnescapeHome(config.CatalogPath)
	config.TokenPath = UnescapeHome(config.TokenPath)
	return config
}

// WriteConfig writes c to path, escaping the user's home directory out of
// path-shaped fields so the file stays portable.
func (c Config) WriteConfig(path string) error {
	c.CatalogPath = EscapeHome(c.CatalogPath)
	c.TokenPath = EscapeHome(c.TokenPath)

	out, err := yaml.Marshal(c)
	if err != nil {
		log.Error().Err(err).Msg("Could not marshal config.")
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	if err := os.WriteFile(path, out, 0600); err != nil {
		log.Error().Err(err).Msg("Could not write config to disk.")
		return err
	}
	return nil
}
