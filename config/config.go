// Package config loads the process configuration for the proposal signer
// from a YAML file, environment variables, or both.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// KMSConfig is the configuration for the AWS KMS signing key.
//
// WARNING: This data type contains sensitive fields and should not be logged.
type KMSConfig struct {
	KeyID      string `mapstructure:"key_id" yaml:"key_id"`                     // Secret: AWS KMS Key ID
	KeyRegion  string `mapstructure:"key_region" yaml:"key_region"`             // Secret: AWS KMS Key Region (e.g. us-west-1)
	AWSProfile string `mapstructure:"aws_profile" yaml:"aws_profile,omitempty"` // Optional AWS shared-config profile
}

// DatabaseConfig is the configuration for the proposal and outcome store.
//
// WARNING: This data type contains sensitive fields and should not be logged.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"` // Secret: Postgres connection string
}

// OracleConfig is the configuration for the reasoning oracle.
//
// WARNING: This data type contains sensitive fields and should not be logged.
type OracleConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`             // Secret: Bearer key for the oracle API
	BaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty"` // OpenAI-compatible API root; empty uses the public default
	Model   string `mapstructure:"model" yaml:"model,omitempty"`       // Completion model; empty uses the default
}

// ChainsConfig carries per-network overrides.
type ChainsConfig struct {
	RPCURLs map[string]string `mapstructure:"rpc_urls" yaml:"rpc_urls,omitempty"` // RPC URL overrides keyed by chain identifier
}

// RegistryConfig points at an optional validator-module registry file.
type RegistryConfig struct {
	Path string `mapstructure:"path" yaml:"path,omitempty"` // TOML file overriding the built-in validator registry
}

// RunnerConfig tunes batch runs.
type RunnerConfig struct {
	DefaultAccount string `mapstructure:"default_account" yaml:"default_account,omitempty"` // Account used when a run request names none
	WindowHours    int    `mapstructure:"window_hours" yaml:"window_hours,omitempty"`       // Backlog window in hours; 0 uses the 24h default
}

// ServerConfig is the configuration for the HTTP trigger.
type ServerConfig struct {
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr,omitempty"` // HTTP listen address; empty uses ":8080"
}

// Config wraps the entire configuration for the proposal signer.
type Config struct {
	KMS      KMSConfig      `mapstructure:"kms" yaml:"kms"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Oracle   OracleConfig   `mapstructure:"oracle" yaml:"oracle"`
	Chains   ChainsConfig   `mapstructure:"chains" yaml:"chains"`
	Registry RegistryConfig `mapstructure:"registry" yaml:"registry"`
	Runner   RunnerConfig   `mapstructure:"runner" yaml:"runner"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
}

// Validate checks that every setting required at startup is present. A
// missing required setting is a fatal startup error for the caller.
func (c *Config) Validate() error {
	if c.KMS.KeyID == "" {
		return errors.New("KMS key ID is required")
	}
	if c.KMS.KeyRegion == "" {
		return errors.New("KMS key region is required")
	}
	if c.Database.URL == "" {
		return errors.New("database URL is required")
	}
	if c.Oracle.APIKey == "" {
		return errors.New("oracle API key is required")
	}
	if c.Runner.DefaultAccount != "" && !common.IsHexAddress(c.Runner.DefaultAccount) {
		return fmt.Errorf("invalid default account %q", c.Runner.DefaultAccount)
	}
	if c.Runner.WindowHours < 0 {
		return errors.New("window hours must not be negative")
	}

	return nil
}

// DefaultAccount returns the configured fallback account, if any.
func (c *Config) DefaultAccount() (common.Address, bool) {
	if c.Runner.DefaultAccount == "" {
		return common.Address{}, false
	}

	return common.HexToAddress(c.Runner.DefaultAccount), true
}

// Load loads the config from the file path, falling back to env vars if the
// file does not exist. If the file exists, any env vars that are set will
// override the values loaded from the file.
func Load(filePath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(filePath)

	if err := bindEnvs(v); err != nil {
		return nil, err
	}

	// If the config file exists, we continue to read it, otherwise we
	// fallback to using environment variables
	if _, err := os.Stat(filePath); !errors.Is(err, fs.ErrNotExist) {
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	err := v.Unmarshal(cfg)

	return cfg, err
}

// LoadEnv loads the config from the environment variables.
func LoadEnv() (*Config, error) {
	v := viper.New()

	if err := bindEnvs(v); err != nil {
		return nil, err
	}

	cfg := &Config{}
	err := v.Unmarshal(cfg)

	return cfg, err
}

// LoadFile loads the config from a file.
func LoadFile(filePath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(filePath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	err := v.Unmarshal(cfg)

	return cfg, err
}

var (
	// envBindings defines how environment variables map to configuration keys
	// used by Viper. Each entry maps a config key (as used in the struct,
	// e.g. "kms.key_id") to the environment variable names that can provide
	// its value. Viper checks each listed variable in order and uses the
	// first one that is set.
	envBindings = map[string][]string{
		"kms.key_id":             {"KMS_KEY_ID"},
		"kms.key_region":         {"KMS_KEY_REGION"},
		"kms.aws_profile":        {"KMS_AWS_PROFILE"},
		"database.url":           {"DATABASE_URL"},
		"oracle.api_key":         {"ORACLE_API_KEY"},
		"oracle.base_url":        {"ORACLE_BASE_URL"},
		"oracle.model":           {"ORACLE_MODEL"},
		"registry.path":          {"REGISTRY_PATH"},
		"runner.default_account": {"RUNNER_DEFAULT_ACCOUNT"},
		"runner.window_hours":    {"RUNNER_WINDOW_HOURS"},
		"server.listen_addr":     {"SERVER_LISTEN_ADDR"},
	}
)

// bindEnvs binds the environment variables to the viper instance.
func bindEnvs(v *viper.Viper) error {
	for key, envs := range envBindings {
		// Prepend the env key to the start of the arguments
		inputs := slices.Insert(envs, 0, key)

		if err := v.BindEnv(inputs...); err != nil {
			return err
		}
	}

	return nil
}
