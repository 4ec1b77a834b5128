package main

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/aqd-labs/aqd-solana/pkg/pipeline"
	"github.com/aqd-labs/aqd-solana/pkg/solana"
	"github.com/aqd-labs/aqd-solana/pkg/solana/cliconfig"
)

// Config is the binary's configuration, read from an optional YAML file and
// the environment. Connection settings left unset fall back to the Solana CLI
// config file.
type Config struct {
	RPCEndpoint string `mapstructure:"rpc_endpoint"`
	Commitment  string `mapstructure:"commitment"`
	TimeoutMs   uint64 `mapstructure:"timeout_ms"`
	KeypairPath string `mapstructure:"keypair_path"`

	LogLevel string `mapstructure:"log_level"`

	AppName            string `mapstructure:"app_name"`
	NewRelicLicenseKey string `mapstructure:"new_relic_license_key"`
}

var defaultConfig = Config{
	TimeoutMs: 60_000,
	LogLevel:  "warn",
	AppName:   "aqd-solana",
}

const (
	fallbackEndpoint   = "localhost"
	fallbackCommitment = "confirmed"
)

var envBindings = map[string]string{
	"rpc_endpoint":          "RPC_ENDPOINT",
	"commitment":            "COMMITMENT",
	"timeout_ms":            "TIMEOUT_MS",
	"keypair_path":          "KEYPAIR_PATH",
	"log_level":             "LOG_LEVEL",
	"app_name":              "APP_NAME",
	"new_relic_license_key": "NEW_RELIC_LICENSE_KEY",
}

// loadConfig reads configPath, if set, and the environment. Unset connection
// settings are taken from the Solana CLI config at cliConfigPath when it
// exists.
func loadConfig(configPath, cliConfigPath string) (Config, error) {
	v := viper.New()
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "failed to load config %s", configPath)
		}
	}

	config := defaultConfig
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, errors.Wrap(err, "failed to unmarshal config")
	}

	if cliConfigPath != "" && (config.RPCEndpoint == "" || config.Commitment == "" || config.KeypairPath == "") {
		if _, err := os.Stat(cliConfigPath); err == nil {
			cli, err := cliconfig.Load(cliConfigPath)
			if err != nil {
				return Config{}, err
			}

			if config.RPCEndpoint == "" {
				config.RPCEndpoint = cli.JSONRPCURL
			}
			if config.Commitment == "" {
				config.Commitment = cli.Commitment
			}
			if config.KeypairPath == "" {
				config.KeypairPath = cli.KeypairPath
			}
		} else if !os.IsNotExist(err) {
			return Config{}, errors.Wrap(err, "failed to check solana cli config")
		}
	}

	if config.RPCEndpoint == "" {
		config.RPCEndpoint = fallbackEndpoint
	}
	if config.Commitment == "" {
		config.Commitment = fallbackCommitment
	}

	return config, nil
}

func (c Config) settings() pipeline.Settings {
	return pipeline.Settings{
		Endpoint:   c.RPCEndpoint,
		Commitment: c.Commitment,
		TimeoutMs:  c.TimeoutMs,
	}
}

func (c Config) endpoint() (solana.Environment, error) {
	if err := c.settings().Validate(); err != nil {
		return "", err
	}
	return solana.ResolveEndpoint(c.RPCEndpoint)
}
