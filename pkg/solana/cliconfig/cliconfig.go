// Package cliconfig reads the configuration and keypair files written by the
// Solana command line tools.
package cliconfig

import (
	"crypto/ed25519"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config mirrors ~/.config/solana/cli/config.yml.
type Config struct {
	JSONRPCURL    string            `yaml:"json_rpc_url"`
	WebsocketURL  string            `yaml:"websocket_url"`
	KeypairPath   string            `yaml:"keypair_path"`
	AddressLabels map[string]string `yaml:"address_labels"`
	Commitment    string            `yaml:"commitment"`
}

// DefaultPath returns the location the Solana CLI uses for its config file.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to resolve home directory")
	}
	return filepath.Join(home, ".config", "solana", "cli", "config.yml"), nil
}

// Load parses the config file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read solana cli config %s", path)
	}

	return Parse(b)
}

// Parse parses the contents of a config file.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, errors.Wrap(err, "invalid solana cli config")
	}
	return &c, nil
}

// LoadKeypair reads a keypair file: a JSON array of the 64 bytes making up
// the ed25519 private key.
func LoadKeypair(path string) (ed25519.PrivateKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read keypair %s", path)
	}

	return ParseKeypair(b)
}

// ParseKeypair decodes the contents of a keypair file.
func ParseKeypair(b []byte) (ed25519.PrivateKey, error) {
	var raw []int
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, errors.Wrap(err, "keypair is not a json byte array")
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, errors.Errorf("keypair has %d bytes, expected %d", len(raw), ed25519.PrivateKeySize)
	}

	key := make(ed25519.PrivateKey, ed25519.PrivateKeySize)
	for i, v := range raw {
		if v < 0 || v > 255 {
			return nil, errors.Errorf("keypair byte %d out of range: %d", i, v)
		}
		key[i] = byte(v)
	}

	// The file stores seed || public key; reject files where they disagree.
	derived := ed25519.NewKeyFromSeed(key.Seed())
	if !derived.Equal(key) {
		return nil, errors.New("keypair public key does not match its seed")
	}

	return key, nil
}

// MarshalKeypair encodes key in the keypair file format.
func MarshalKeypair(key ed25519.PrivateKey) ([]byte, error) {
	raw := make([]int, len(key))
	for i, b := range key {
		raw[i] = int(b)
	}
	return json.Marshal(raw)
}
