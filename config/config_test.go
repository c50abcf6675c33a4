package config

import (
	"os"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

var (
	// fileCfg is the config that is loaded from the testdata/config.yml file.
	fileCfg = &Config{
		KMS: KMSConfig{
			KeyID:      "f1a2b3c4",
			KeyRegion:  "us-west-1",
			AWSProfile: "signer",
		},
		Database: DatabaseConfig{
			URL: "postgres://signer:pw@localhost:5432/proposals",
		},
		Oracle: OracleConfig{
			APIKey:  "sk-file",
			BaseURL: "http://localhost:11434/v1",
			Model:   "local-model",
		},
		Chains: ChainsConfig{
			RPCURLs: map[string]string{
				"base-sepolia": "http://localhost:8545",
				"sepolia":      "http://localhost:8546",
			},
		},
		Registry: RegistryConfig{
			Path: "/etc/proposal-signer/validators.toml",
		},
		Runner: RunnerConfig{
			DefaultAccount: "0x4fd9098af9ddcb41da48a1d78f91f1398965addc",
			WindowHours:    6,
		},
		Server: ServerConfig{
			ListenAddr: ":9090",
		},
	}

	// envVars is the environment variables that used to set the config.
	envVars = map[string]string{
		"KMS_KEY_ID":             "123",
		"KMS_KEY_REGION":         "us-east-1",
		"KMS_AWS_PROFILE":        "ci",
		"DATABASE_URL":           "postgres://signer:pw@db:5432/proposals",
		"ORACLE_API_KEY":         "sk-env",
		"ORACLE_BASE_URL":        "https://oracle.internal/v1",
		"ORACLE_MODEL":           "audit-model",
		"REGISTRY_PATH":          "/tmp/validators.toml",
		"RUNNER_DEFAULT_ACCOUNT": "0x1111111111111111111111111111111111111111",
		"RUNNER_WINDOW_HOURS":    "12",
		"SERVER_LISTEN_ADDR":     ":8081",
	}

	// envCfg is the config that is loaded from the environment variables.
	// Per-network RPC URLs have no env binding and stay empty.
	envCfg = &Config{
		KMS: KMSConfig{
			KeyID:      "123",
			KeyRegion:  "us-east-1",
			AWSProfile: "ci",
		},
		Database: DatabaseConfig{
			URL: "postgres://signer:pw@db:5432/proposals",
		},
		Oracle: OracleConfig{
			APIKey:  "sk-env",
			BaseURL: "https://oracle.internal/v1",
			Model:   "audit-model",
		},
		Registry: RegistryConfig{
			Path: "/tmp/validators.toml",
		},
		Runner: RunnerConfig{
			DefaultAccount: "0x1111111111111111111111111111111111111111",
			WindowHours:    12,
		},
		Server: ServerConfig{
			ListenAddr: ":8081",
		},
	}
)

func Test_Load(t *testing.T) { //nolint:paralleltest // see comment in setupEnvVars
	tests := []struct {
		name       string
		beforeFunc func(t *testing.T)
		givePath   string
		want       func() *Config
		wantErr    string
	}{
		{
			name:     "load from file",
			givePath: "./testdata/config.yml",
			want:     func() *Config { return fileCfg },
		},
		{
			name:     "load from empty file",
			givePath: "./testdata/empty.yml",
			want:     func() *Config { return &Config{} },
		},
		{
			name: "override with env",
			beforeFunc: func(t *testing.T) {
				t.Helper()

				setupEnvVars(t, envVars)
			},
			givePath: "./testdata/config.yml",
			want: func() *Config {
				// Env vars win for every bound key; the RPC URL map only
				// exists in the file.
				cfg := *envCfg
				cfg.Chains = fileCfg.Chains

				return &cfg
			},
		},
		{
			name: "fallback to env when file not found",
			beforeFunc: func(t *testing.T) {
				t.Helper()

				setupEnvVars(t, envVars)
			},
			givePath: "./testdata/missing.yml",
			want:     func() *Config { return envCfg },
		},
	}

	for _, tt := range tests { //nolint:paralleltest // see comment in setupEnvVars
		t.Run(tt.name, func(t *testing.T) {
			if tt.beforeFunc != nil {
				tt.beforeFunc(t)
			}

			got, err := Load(tt.givePath)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorContains(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want(), got)
			}
		})
	}
}

func Test_LoadFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		givePath string
		want     *Config
		wantErr  string
	}{
		{
			name:     "load from file",
			givePath: "./testdata/config.yml",
			want:     fileCfg,
		},
		{
			name:     "load from file with invalid path",
			givePath: "./testdata/missing.yml",
			wantErr:  "no such file or directory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := LoadFile(tt.givePath)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.ErrorContains(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func Test_LoadEnv(t *testing.T) { //nolint:paralleltest // see comment in setupEnvVars
	setupEnvVars(t, envVars)

	got, err := LoadEnv()
	require.NoError(t, err)

	assert.Equal(t, envCfg, got)
}

func Test_Config_Validate(t *testing.T) {
	t.Parallel()

	valid := func() *Config {
		cfg := *fileCfg

		return &cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "missing KMS key id",
			mutate:  func(c *Config) { c.KMS.KeyID = "" },
			wantErr: "KMS key ID is required",
		},
		{
			name:    "missing KMS key region",
			mutate:  func(c *Config) { c.KMS.KeyRegion = "" },
			wantErr: "KMS key region is required",
		},
		{
			name:    "missing database URL",
			mutate:  func(c *Config) { c.Database.URL = "" },
			wantErr: "database URL is required",
		},
		{
			name:    "missing oracle API key",
			mutate:  func(c *Config) { c.Oracle.APIKey = "" },
			wantErr: "oracle API key is required",
		},
		{
			name:    "invalid default account",
			mutate:  func(c *Config) { c.Runner.DefaultAccount = "not-an-address" },
			wantErr: `invalid default account "not-an-address"`,
		},
		{
			name:    "negative window",
			mutate:  func(c *Config) { c.Runner.WindowHours = -1 },
			wantErr: "window hours must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func Test_Config_DefaultAccount(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	_, ok := cfg.DefaultAccount()
	assert.False(t, ok)

	cfg.Runner.DefaultAccount = "0x4fd9098af9ddcb41da48a1d78f91f1398965addc"
	addr, ok := cfg.DefaultAccount()
	assert.True(t, ok)
	assert.Equal(t, common.HexToAddress("0x4fd9098af9ddcb41da48a1d78f91f1398965addc"), addr)
}

func Test_YAML_Marshal_Unmarshal(t *testing.T) {
	t.Parallel()

	yamlCfg, err := os.ReadFile("./testdata/config.yml")
	require.NoError(t, err)

	var cfg Config
	err = yaml.Unmarshal(yamlCfg, &cfg)
	require.NoError(t, err)

	assert.Equal(t, *fileCfg, cfg)

	b, err := yaml.Marshal(cfg)
	require.NoError(t, err)

	assert.YAMLEq(t, string(yamlCfg), string(b))
}

// setupEnvVars sets up the environment variables for the test.
//
// CAUTION: Because this function uses t.Setenv which affects the entire
// process, tests which call this function cannot be run in parallel.
func setupEnvVars(t *testing.T, envVars map[string]string) {
	t.Helper()

	for key, value := range envVars {
		t.Setenv(key, value)
	}
}
