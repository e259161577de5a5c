// Package config loads the YAML configuration file selected by the `-c`
// command-line flag, covering the keys in spec.md §6: the service listen
// surface, the mutually-exclusive Index/Auth/Storage backend selectors, and
// the object-store credentials. Decoded with gopkg.in/yaml.v3, the only YAML
// library in the corpus — promoted here from an indirect dependency (pulled
// in transitively by goose) to a direct one.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServiceConfig covers service.* (spec.md §6).
type ServiceConfig struct {
	Address            string `yaml:"address"`
	MetricsAddress     string `yaml:"metrics_address"`
	DownloadEndpoint   string `yaml:"download_endpoint"`
	APIEndpoint        string `yaml:"api_endpoint"`
	AuthRequired       bool   `yaml:"auth_required"`
	AllowRegistration  bool   `yaml:"allow_registration"`
	MaxCrateSize       int64  `yaml:"max_crate_size"`
}

// StoreConfig covers store.* (spec.md §6), the object-store backend.
type StoreConfig struct {
	Name            string `yaml:"name"`
	EndpointURL     string `yaml:"endpoint_url"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	AccessKeySecret string `yaml:"access_key_secret"`
}

// Config is the decoded YAML file selected by `-c`.
type Config struct {
	Service ServiceConfig `yaml:"service"`

	// Index backend selector: exactly one of IndexDB, IndexPath.
	IndexDB   string `yaml:"index_db"`
	IndexPath string `yaml:"index_path"`

	// Auth backend selector: exactly one of:
	//   AuthDB alone (relational)
	//   AuthPath + AuthTokensPepper (filesystem)
	//   AuthAudience + AuthTeamBaseURL (header-trust)
	//   AuthAllowFullAccessWithoutAnyChecks (permissive, explicit opt-in)
	AuthDB                              string `yaml:"auth_db"`
	AuthPath                            string `yaml:"auth_path"`
	AuthTokensPepper                    string `yaml:"auth_tokens_pepper"`
	AuthAudience                        string `yaml:"auth_audience"`
	AuthTeamBaseURL                     string `yaml:"auth_team_base_url"`
	AuthAllowFullAccessWithoutAnyChecks bool   `yaml:"auth_allow_full_access_without_any_checks"`

	// Storage backend selector: exactly one of StorePath, Store (object store).
	StorePath string      `yaml:"store_path"`
	Store     StoreConfig `yaml:"store"`
}

// Load reads and validates the YAML config file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &c, nil
}

// Validate enforces the mutual-exclusivity rules spec.md §6 states for each
// backend selector.
func (c *Config) Validate() error {
	if c.Service.Address == "" {
		return fmt.Errorf("service.address is required")
	}

	indexSelectors := boolCount(c.IndexDB != "", c.IndexPath != "")
	if indexSelectors != 1 {
		return fmt.Errorf("exactly one of index_db, index_path must be set (got %d)", indexSelectors)
	}

	relationalAuth := c.AuthDB != ""
	fsAuth := c.AuthPath != "" || c.AuthTokensPepper != ""
	headerAuth := c.AuthAudience != "" || c.AuthTeamBaseURL != ""
	yesAuth := c.AuthAllowFullAccessWithoutAnyChecks
	authSelectors := boolCount(relationalAuth, fsAuth, headerAuth, yesAuth)
	if authSelectors != 1 {
		return fmt.Errorf("exactly one auth backend must be configured (got %d)", authSelectors)
	}
	if fsAuth && (c.AuthPath == "" || c.AuthTokensPepper == "") {
		return fmt.Errorf("auth_path requires auth_tokens_pepper and vice versa")
	}
	if headerAuth && (c.AuthAudience == "" || c.AuthTeamBaseURL == "") {
		return fmt.Errorf("auth_audience requires auth_team_base_url and vice versa")
	}

	storeSelectors := boolCount(c.StorePath != "", c.Store.Name != "")
	if storeSelectors != 1 {
		return fmt.Errorf("exactly one of store_path, store.name must be set (got %d)", storeSelectors)
	}
	return nil
}

func boolCount(bs ...bool) int {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
}

// IndexBackend names which Index backend this config selects: "postgres" or "filesystem".
func (c *Config) IndexBackend() string {
	if c.IndexDB != "" {
		return "postgres"
	}
	return "filesystem"
}

// AuthBackend names which Auth backend this config selects.
func (c *Config) AuthBackend() string {
	switch {
	case c.AuthDB != "":
		return "postgres"
	case c.AuthPath != "":
		return "filesystem"
	case c.AuthAudience != "":
		return "header"
	default:
		return "yes"
	}
}

// StorageBackend names which Storage backend this config selects.
func (c *Config) StorageBackend() string {
	if c.StorePath != "" {
		return "filesystem"
	}
	return "objectstore"
}
