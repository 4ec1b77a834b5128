package pipeline

import (
	"time"

	"github.com/pkg/errors"

	"github.com/aqd-labs/aqd-solana/pkg/config"
	"github.com/aqd-labs/aqd-solana/pkg/config/env"
	"github.com/aqd-labs/aqd-solana/pkg/config/memory"
	"github.com/aqd-labs/aqd-solana/pkg/config/wrapper"
	"github.com/aqd-labs/aqd-solana/pkg/solana"
)

const (
	envConfigPrefix = "SOLANA_PIPELINE_"

	CommitmentConfigEnvName = envConfigPrefix + "COMMITMENT"
	defaultCommitment       = "confirmed"

	ConfirmationTimeoutConfigEnvName = envConfigPrefix + "CONFIRMATION_TIMEOUT"
	defaultConfirmationTimeout       = time.Minute

	SkipPreflightConfigEnvName = envConfigPrefix + "SKIP_PREFLIGHT"
	defaultSkipPreflight       = false

	PollIntervalConfigEnvName = envConfigPrefix + "POLL_INTERVAL"
	defaultPollInterval       = solana.PollRate
)

type conf struct {
	commitment          config.String
	confirmationTimeout config.Duration
	skipPreflight       config.Bool
	pollInterval        config.Duration
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			commitment:          env.NewStringConfig(CommitmentConfigEnvName, defaultCommitment),
			confirmationTimeout: env.NewDurationConfig(ConfirmationTimeoutConfigEnvName, defaultConfirmationTimeout),
			skipPreflight:       env.NewBoolConfig(SkipPreflightConfigEnvName, defaultSkipPreflight),
			pollInterval:        env.NewDurationConfig(PollIntervalConfigEnvName, defaultPollInterval),
		}
	}
}

// Settings are the connection parameters an operator supplies.
type Settings struct {
	Endpoint   string
	Commitment string
	TimeoutMs  uint64
}

// Validate checks the endpoint, commitment level and timeout.
func (s Settings) Validate() error {
	if _, err := solana.ResolveEndpoint(s.Endpoint); err != nil {
		return err
	}
	if _, err := solana.ParseCommitment(s.Commitment); err != nil {
		return err
	}
	if s.TimeoutMs == 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}

// Timeout returns the confirmation deadline.
func (s Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// WithSettings returns the environment configuration with the commitment and
// timeout overridden by s, where set.
func WithSettings(s Settings) ConfigProvider {
	return func() *conf {
		c := WithEnvConfigs()()
		if s.Commitment != "" {
			c.commitment = wrapper.NewStringConfig(memory.NewConfig(s.Commitment), defaultCommitment)
		}
		if s.TimeoutMs > 0 {
			c.confirmationTimeout = wrapper.NewDurationConfig(memory.NewConfig(s.Timeout()), defaultConfirmationTimeout)
		}
		return c
	}
}
