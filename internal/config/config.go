// Package config loads the planner CLI settings from
// ~/.planner-cli/config.yaml and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/planner/internal/lockfile"
)

const (
	// DefaultGraphURL is the Microsoft Graph v1.0 root.
	DefaultGraphURL = "https://graph.microsoft.com/v1.0"

	// CodeConfigError is the machine-readable code of ConfigError.
	CodeConfigError = "ConfigError"

	dirName  = ".planner-cli"
	fileName = "config.yaml"
)

// Keys understood in config.yaml.
const (
	KeyTenantID      = "tenant_id"
	KeyClientID      = "client_id"
	KeyDefaultPlan   = "default_plan"
	KeyDefaultBucket = "default_bucket"
	KeyGraphURL      = "graph_url"
	KeyTokenCache    = "token_cache"
)

var v *viper.Viper

// Config is the resolved configuration.
type Config struct {
	TenantID      string `yaml:"tenant_id,omitempty" json:"tenantId,omitempty"`
	ClientID      string `yaml:"client_id,omitempty" json:"clientId,omitempty"`
	DefaultPlan   string `yaml:"default_plan,omitempty" json:"defaultPlan,omitempty"`
	DefaultBucket string `yaml:"default_bucket,omitempty" json:"defaultBucket,omitempty"`
	GraphURL      string `yaml:"graph_url,omitempty" json:"graphUrl,omitempty"`
	TokenCache    string `yaml:"token_cache,omitempty" json:"tokenCache,omitempty"`
}

// ConfigError reports missing or unreadable configuration.
type ConfigError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

func (e *ConfigError) Error() string { return e.Message }

// ErrorCode returns the machine-readable code.
func (e *ConfigError) ErrorCode() string { return e.Code }

// Dir returns the directory holding config and token cache.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return dirName
	}
	return filepath.Join(home, dirName)
}

// Path returns the config file path, honoring PLANNER_CONFIG_PATH.
func Path() string {
	if p := os.Getenv("PLANNER_CONFIG_PATH"); p != "" {
		return p
	}
	return filepath.Join(Dir(), fileName)
}

// DefaultTokenCache returns where tokens are cached unless configured.
func DefaultTokenCache() string {
	return filepath.Join(Dir(), "token.json")
}

// Initialize (re)reads the config file and binds the environment. A missing
// file is not an error.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(Path())

	v.SetDefault(KeyGraphURL, DefaultGraphURL)
	v.SetDefault(KeyTokenCache, DefaultTokenCache())

	// PLANNER_TENANT_ID, PLANNER_DEFAULT_PLAN, ...
	v.SetEnvPrefix("PLANNER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// Older installs exported these without the prefix.
	_ = v.BindEnv(KeyTenantID, "PLANNER_TENANT_ID", "TENANT_ID")
	_ = v.BindEnv(KeyClientID, "PLANNER_CLIENT_ID", "CLIENT_ID")

	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return &ConfigError{
			Code:    CodeConfigError,
			Message: fmt.Sprintf("failed to read %s: %v", Path(), err),
		}
	}
	return nil
}

// Load initializes and returns the merged configuration.
func Load() (*Config, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}
	return Current(), nil
}

// Current returns the configuration read by the last Initialize.
func Current() *Config {
	return &Config{
		TenantID:      GetString(KeyTenantID),
		ClientID:      GetString(KeyClientID),
		DefaultPlan:   GetString(KeyDefaultPlan),
		DefaultBucket: GetString(KeyDefaultBucket),
		GraphURL:      GetString(KeyGraphURL),
		TokenCache:    expandHome(GetString(KeyTokenCache)),
	}
}

// GetString returns a config value, or "" before Initialize.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(v.GetString(key))
}

// ResetForTesting drops the loaded configuration.
func ResetForTesting() {
	v = nil
}

// Validate checks the settings needed to sign in.
func (c *Config) Validate() error {
	var missing []string
	if c.TenantID == "" {
		missing = append(missing, KeyTenantID)
	}
	if c.ClientID == "" {
		missing = append(missing, KeyClientID)
	}
	if len(missing) == 0 {
		return nil
	}
	return &ConfigError{
		Code:    CodeConfigError,
		Message: fmt.Sprintf("Missing configuration: %s", strings.Join(missing, ", ")),
		Hint:    "Run 'planner init-auth' or set PLANNER_TENANT_ID and PLANNER_CLIENT_ID",
	}
}

// LoadFile reads only the config file, without defaults or environment.
// A missing file yields an empty Config.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is the operator's config file
	if errors.Is(err, fs.ErrNotExist) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &ConfigError{
			Code:    CodeConfigError,
			Message: fmt.Sprintf("failed to parse %s: %v", path, err),
		}
	}
	return &cfg, nil
}

// Save writes cfg to path, creating the directory. The file may hold
// tenant details, so it is private to the user.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Update applies fn to the stored file contents and writes them back.
// Settings that come only from the environment are not persisted.
func Update(fn func(*Config)) (*Config, error) {
	path := Path()
	var cfg *Config
	err := lockfile.With(path, func() error {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return err
		}
		fn(cfg)
		return Save(path, cfg)
	})
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func expandHome(p string) string {
	if rest, ok := strings.CutPrefix(p, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, rest)
		}
	}
	return p
}
