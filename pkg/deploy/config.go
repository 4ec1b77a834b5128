package deploy

import (
	"github.com/aqd-labs/aqd-solana/pkg/config"
	"github.com/aqd-labs/aqd-solana/pkg/config/env"
)

const (
	envConfigPrefix = "SOLANA_DEPLOY_"

	MaxInFlightWritesConfigEnvName = envConfigPrefix + "MAX_IN_FLIGHT_WRITES"
	defaultMaxInFlightWrites       = 8

	WritesPerSecondConfigEnvName = envConfigPrefix + "WRITES_PER_SECOND"
	defaultWritesPerSecond       = 20

	MaxDataLenMultiplierConfigEnvName = envConfigPrefix + "MAX_DATA_LEN_MULTIPLIER"
	defaultMaxDataLenMultiplier       = 1
)

type conf struct {
	maxInFlightWrites    config.Uint64
	writesPerSecond      config.Uint64
	maxDataLenMultiplier config.Uint64
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			maxInFlightWrites:    env.NewUint64Config(MaxInFlightWritesConfigEnvName, defaultMaxInFlightWrites),
			writesPerSecond:      env.NewUint64Config(WritesPerSecondConfigEnvName, defaultWritesPerSecond),
			maxDataLenMultiplier: env.NewUint64Config(MaxDataLenMultiplierConfigEnvName, defaultMaxDataLenMultiplier),
		}
	}
}
