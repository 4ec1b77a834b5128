package solana

import (
	"strings"

	"github.com/pkg/errors"
)

type Environment string

const (
	EnvironmentDev   Environment = "https://api.devnet.solana.com"
	EnvironmentTest  Environment = "https://api.testnet.solana.com"
	EnvironmentProd  Environment = "https://api.mainnet-beta.solana.com"
	EnvironmentLocal Environment = "http://127.0.0.1:8899"
)

var monikers = map[string]Environment{
	"devnet":       EnvironmentDev,
	"d":            EnvironmentDev,
	"testnet":      EnvironmentTest,
	"t":            EnvironmentTest,
	"mainnet-beta": EnvironmentProd,
	"m":            EnvironmentProd,
	"localhost":    EnvironmentLocal,
	"l":            EnvironmentLocal,
}

// ResolveEndpoint accepts either a cluster moniker, as understood by the
// Solana CLI, or a full http(s) URL.
func ResolveEndpoint(s string) (Environment, error) {
	s = strings.TrimSpace(s)
	if env, ok := monikers[s]; ok {
		return env, nil
	}
	if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
		return Environment(s), nil
	}
	return "", errors.Errorf("unrecognized rpc endpoint %q", s)
}
