package main

import (
	"crypto/ed25519"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqd-labs/aqd-solana/pkg/builder"
	"github.com/aqd-labs/aqd-solana/pkg/codec"
	"github.com/aqd-labs/aqd-solana/pkg/idl"
	"github.com/aqd-labs/aqd-solana/pkg/pipeline"
	"github.com/aqd-labs/aqd-solana/pkg/resolver"
	"github.com/aqd-labs/aqd-solana/pkg/solana"
	"github.com/aqd-labs/aqd-solana/pkg/testutil"
)

func writeFile(t *testing.T, name, contents string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	for _, env := range envBindings {
		t.Setenv(env, "")
		require.NoError(t, os.Unsetenv(env))
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	config, err := loadConfig("", "")
	require.NoError(t, err)
	assert.Equal(t, "localhost", config.RPCEndpoint)
	assert.Equal(t, "confirmed", config.Commitment)
	assert.EqualValues(t, 60_000, config.TimeoutMs)
	assert.Equal(t, "warn", config.LogLevel)
	assert.Empty(t, config.KeypairPath)

	endpoint, err := config.endpoint()
	require.NoError(t, err)
	assert.Equal(t, solana.EnvironmentLocal, endpoint)
}

func TestLoadConfig_Precedence(t *testing.T) {
	clearEnv(t)

	cliConfig := writeFile(t, "config.yml", `
json_rpc_url: https://api.devnet.solana.com
keypair_path: /keys/id.json
commitment: finalized
`)
	fileConfig := writeFile(t, "aqd.yaml", `
rpc_endpoint: testnet
timeout_ms: 1500
`)
	t.Setenv("COMMITMENT", "processed")

	config, err := loadConfig(fileConfig, cliConfig)
	require.NoError(t, err)
	assert.Equal(t, "testnet", config.RPCEndpoint)
	assert.Equal(t, "processed", config.Commitment)
	assert.Equal(t, "/keys/id.json", config.KeypairPath)
	assert.EqualValues(t, 1500, config.TimeoutMs)

	settings := config.settings()
	assert.NoError(t, settings.Validate())

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), "")
	assert.Error(t, err)

	// A missing Solana CLI config is not an error.
	config, err = loadConfig("", filepath.Join(t.TempDir(), "missing.yml"))
	require.NoError(t, err)
	assert.Equal(t, "confirmed", config.Commitment)
}

func TestConfig_InvalidEndpoint(t *testing.T) {
	config := defaultConfig
	config.RPCEndpoint = "somewhere"
	config.Commitment = "confirmed"

	_, err := config.endpoint()
	assert.Error(t, err)
}

func TestParseArgs(t *testing.T) {
	args, err := parseArgs(`{"amount": 18446744073709551615, "label": "x"}`)
	require.NoError(t, err)
	assert.Equal(t, json.Number("18446744073709551615"), args["amount"])

	args, err = parseArgs("  ")
	require.NoError(t, err)
	assert.Empty(t, args)

	_, err = parseArgs(`[1, 2]`)
	assert.Error(t, err)
}

func TestSplitAccounts(t *testing.T) {
	assert.Nil(t, splitAccounts(""))
	assert.Equal(t, []string{"self", "to=new", "system"}, splitAccounts("self, to=new ,system"))
}

const counterIdl = `{
	"version": "0.1.0",
	"name": "counter",
	"instructions": [
		{
			"name": "increment",
			"accounts": [
				{"name": "counter", "isMut": true, "isSigner": true},
				{"name": "payer", "isMut": true, "isSigner": true},
				{"name": "systemProgram", "isMut": false, "isSigner": false}
			],
			"args": [{"name": "by", "type": "u64"}],
			"returns": "u64"
		},
		{
			"name": "initialize",
			"accounts": [
				{"name": "counter", "isMut": true, "isSigner": false},
				{"name": "authority", "isMut": false, "isSigner": true},
				{"name": "memo", "isMut": false, "isSigner": false, "isOptional": true}
			],
			"args": [
				{"name": "start", "type": "u64"},
				{"name": "label", "type": {"option": "string"}}
			]
		}
	]
}`

func TestBuildCall(t *testing.T) {
	payer := testutil.GenerateSolanaKeypair(t)
	program := testutil.GenerateSolanaKeys(t, 1)[0]

	req, err := parseCallFlags([]string{
		"-idl", writeFile(t, "counter.json", counterIdl),
		"-instruction", "increment",
		"-program-id", base58.Encode(program),
		"-args", `{"by": 3}`,
		"-accounts", "new,self,system",
		"-simulate",
	})
	require.NoError(t, err)
	assert.True(t, req.simulate)

	encoded, generated, err := buildCall(req, payer)
	require.NoError(t, err)
	require.Len(t, generated, 1)

	assert.EqualValues(t, program, encoded.ProgramID)
	assert.Equal(t, append(builder.Discriminator("increment"), 3, 0, 0, 0, 0, 0, 0, 0), encoded.Data)
	require.Len(t, encoded.Accounts, 3)
	assert.EqualValues(t, testutil.PublicKey(generated[0]), encoded.Accounts[0].PublicKey)
	assert.EqualValues(t, testutil.PublicKey(payer), encoded.Accounts[1].PublicKey)

	// Without -program-id the IDL carries none.
	req.programID = ""
	_, _, err = buildCall(req, payer)
	assert.ErrorIs(t, err, builder.ErrNoProgramID)

	req.programID = base58.Encode(program)
	req.accounts = "new"
	_, _, err = buildCall(req, payer)
	assert.ErrorIs(t, err, resolver.ErrMissingAccount)

	req.accounts = "new,self,system"
	req.instruction = "decrement"
	_, _, err = buildCall(req, payer)
	assert.ErrorIs(t, err, idl.ErrNotFound)

	_, err = parseCallFlags([]string{"-instruction", "increment"})
	assert.Error(t, err)
}

func TestBuildCall_GeneratedNonSigner(t *testing.T) {
	payer := testutil.GenerateSolanaKeypair(t)
	program := testutil.GenerateSolanaKeys(t, 1)[0]

	req, err := parseCallFlags([]string{
		"-idl", writeFile(t, "counter.json", counterIdl),
		"-instruction", "initialize",
		"-program-id", base58.Encode(program),
		"-args", `{"start": 1, "label": null}`,
		"-accounts", "new,self",
	})
	require.NoError(t, err)

	encoded, signers, err := buildCall(req, payer)
	require.NoError(t, err)
	assert.Empty(t, signers)

	require.Len(t, encoded.Accounts, 2)
	assert.False(t, encoded.Accounts[0].Signer)
	assert.True(t, encoded.Accounts[0].Writable)
	assert.NotEqualValues(t, testutil.PublicKey(payer), encoded.Accounts[0].PublicKey)
	assert.EqualValues(t, testutil.PublicKey(payer), encoded.Accounts[1].PublicKey)
}

func TestSigningKeys(t *testing.T) {
	keys := testutil.GenerateSolanaKeypairs(t, 3)

	signers := []ed25519.PublicKey{testutil.PublicKey(keys[2]), testutil.PublicKey(keys[0])}
	assert.Equal(t, []ed25519.PrivateKey{keys[0], keys[2]}, signingKeys(keys, signers))
	assert.Empty(t, signingKeys(keys, nil))
	assert.Empty(t, signingKeys(nil, signers))
}

func TestDescribe(t *testing.T) {
	def, err := idl.LoadFile(writeFile(t, "counter.json", counterIdl))
	require.NoError(t, err)

	infos, err := describe(def, "")
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "increment", infos[0].Name)
	assert.Equal(t, "initialize", infos[1].Name)

	assert.Equal(t, []string{
		"increment",
		"  accounts:",
		"    counter (signer, writable)",
		"    payer (signer, writable)",
		"    systemProgram",
		"  args:",
		"    by: u64",
		"  returns: u64",
	}, infos[0].lines())

	assert.Equal(t, []string{
		"initialize",
		"  accounts:",
		"    counter (writable)",
		"    authority (signer)",
		"    memo (optional)",
		"  args:",
		"    start: u64",
		"    label: Option<string>",
	}, infos[1].lines())

	infos, err = describe(def, "initialize")
	require.NoError(t, err)
	require.Len(t, infos, 1)

	b, err := json.Marshal(infos[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"name": "initialize",
		"accounts": [
			{"name": "counter", "signer": false, "writable": true, "optional": false},
			{"name": "authority", "signer": true, "writable": false, "optional": false},
			{"name": "memo", "signer": false, "writable": false, "optional": true}
		],
		"args": [
			{"name": "start", "type": "u64"},
			{"name": "label", "type": "Option<string>"}
		]
	}`, string(b))

	_, err = describe(def, "decrement")
	assert.ErrorIs(t, err, idl.ErrNotFound)

	assert.Error(t, runDescribe(nil))
	assert.Error(t, runDescribe([]string{"-idl", "x.json", "extra"}))
}

func TestRender(t *testing.T) {
	key := testutil.GenerateSolanaKeys(t, 1)[0]

	rendered := render(map[string]interface{}{
		"owner": key,
		"blob":  []byte{0xde, 0xad},
		"state": codec.EnumValue{Variant: "Active"},
		"moved": codec.EnumValue{Variant: "Moved", Value: map[string]interface{}{"to": key}},
		"items": []interface{}{key, uint8(1)},
		"big":   big.NewInt(5),
		"limit": codec.Some{Value: nil},
		"cap":   codec.Some{Value: key},
	})

	assert.Equal(t, map[string]interface{}{
		"owner": base58.Encode(key),
		"blob":  "dead",
		"state": "Active",
		"moved": map[string]interface{}{"Moved": map[string]interface{}{"to": base58.Encode(key)}},
		"items": []interface{}{base58.Encode(key), uint8(1)},
		"big":   big.NewInt(5),
		"limit": map[string]interface{}{"some": nil},
		"cap":   map[string]interface{}{"some": base58.Encode(key)},
	}, rendered)
}

func TestRenderOutcome(t *testing.T) {
	sig := solana.Signature{1, 2, 3}
	outcome := &pipeline.Outcome{Signature: sig, Logs: []string{"Program log: hi"}, Return: uint64(9)}

	sent := renderOutcome(&builder.EncodedInstruction{Returns: idl.Primitive(idl.KindU64)}, outcome, false)
	assert.Equal(t, []string{"Signature: " + base58.Encode(sig[:]), "Return: 9"}, sent.lines())

	b, err := json.Marshal(sent)
	require.NoError(t, err)
	assert.JSONEq(t, `{"signature": "`+base58.Encode(sig[:])+`", "return": 9}`, string(b))

	outcome.Return = nil
	simulated := renderOutcome(&builder.EncodedInstruction{Returns: idl.Option(idl.Primitive(idl.KindU64))}, outcome, true)
	assert.Equal(t, []string{"Return: null", "Logs:", "  Program log: hi"}, simulated.lines())

	b, err = json.Marshal(simulated)
	require.NoError(t, err)
	assert.JSONEq(t, `{"return": null, "logs": ["Program log: hi"]}`, string(b))

	plain := renderOutcome(&builder.EncodedInstruction{}, outcome, false)
	assert.Equal(t, []string{"Signature: " + base58.Encode(sig[:])}, plain.lines())
}

func TestConfigureLogger(t *testing.T) {
	logger := logrus.StandardLogger()
	level, formatter := logger.GetLevel(), logger.Formatter
	defer func() {
		logger.SetLevel(level)
		logger.SetFormatter(formatter)
	}()

	reset := testutil.DisableLogging()
	defer reset()

	configureLogger(Config{LogLevel: "DEBUG"}, nil)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)

	configureLogger(Config{LogLevel: "chatty"}, nil)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}
