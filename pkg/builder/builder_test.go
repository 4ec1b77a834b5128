package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqd-labs/aqd-solana/pkg/codec"
	"github.com/aqd-labs/aqd-solana/pkg/idl"
	"github.com/aqd-labs/aqd-solana/pkg/resolver"
	"github.com/aqd-labs/aqd-solana/pkg/testutil"
)

const document = `{
	"name": "bank",
	"address": "F1ipperKF9EfD821ZbbYjS319LXYiBmjhzkkf5a26rC",
	"instructions": [
		{
			"name": "transfer",
			"accounts": [
				{"name": "from", "writable": true, "signer": true},
				{"name": "to", "writable": true}
			],
			"args": [{"name": "amount", "type": "u64"}]
		},
		{
			"name": "configure",
			"discriminator": [1, 2, 3, 4, 5, 6, 7, 8],
			"accounts": [],
			"args": [
				{"name": "label", "type": "string"},
				{"name": "limit", "type": {"option": "u16"}}
			],
			"returns": "bool"
		}
	]
}`

func load(t *testing.T) *idl.Definition {
	d, err := idl.Load([]byte(document))
	require.NoError(t, err)
	return d
}

func TestDiscriminator(t *testing.T) {
	assert.Equal(t, []byte{163, 52, 200, 231, 140, 3, 69, 186}, Discriminator("transfer"))
	assert.Equal(t, []byte{175, 175, 109, 31, 13, 152, 155, 237}, Discriminator("initialize"))
}

func TestBuild_Transfer(t *testing.T) {
	d := load(t)
	keys := testutil.GenerateSolanaKeys(t, 2)

	ix, err := d.Instruction("transfer")
	require.NoError(t, err)

	accounts, err := resolver.Resolve(ix.Accounts, []resolver.Candidate{
		{PublicKey: keys[0], CanSign: true},
		{PublicKey: keys[1]},
	})
	require.NoError(t, err)

	encoded, err := Build(d, "transfer", map[string]interface{}{"amount": 1000}, accounts)
	require.NoError(t, err)

	expected := append(Discriminator("transfer"), 0xe8, 0x03, 0, 0, 0, 0, 0, 0)
	assert.Equal(t, expected, encoded.Data)
	assert.Equal(t, d.ProgramID(), encoded.ProgramID)
	assert.Equal(t, "transfer", encoded.Name)
	assert.Nil(t, encoded.Returns)

	require.Len(t, encoded.Accounts, 2)
	assert.EqualValues(t, keys[0], encoded.Accounts[0].PublicKey)
	assert.True(t, encoded.Accounts[0].Signer)
	assert.True(t, encoded.Accounts[0].Writable)
	assert.EqualValues(t, keys[1], encoded.Accounts[1].PublicKey)
	assert.False(t, encoded.Accounts[1].Signer)

	instruction := encoded.ToInstruction()
	assert.EqualValues(t, d.ProgramID(), instruction.Program)
	assert.Equal(t, encoded.Data, instruction.Data)
	require.Len(t, instruction.Accounts, 2)
	assert.True(t, instruction.Accounts[0].IsSigner)
	assert.True(t, instruction.Accounts[1].IsWritable)
}

func TestBuild_ExplicitDiscriminator(t *testing.T) {
	d := load(t)

	encoded, err := Build(d, "configure", map[string]interface{}{
		"label": "hi",
		"limit": nil,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 2, 0, 0, 0, 'h', 'i', 0}, encoded.Data)
	require.NotNil(t, encoded.Returns)
	assert.Equal(t, idl.KindBool, encoded.Returns.Kind)

	// The discriminator in the definition is not aliased by the result.
	encoded.Data[0] = 0xff
	ix, err := d.Instruction("configure")
	require.NoError(t, err)
	assert.Equal(t, byte(1), ix.Discriminator[0])
}

func TestBuild_ArgumentMismatch(t *testing.T) {
	d := load(t)

	_, err := Build(d, "configure", map[string]interface{}{"label": "hi"}, nil)
	assert.ErrorIs(t, err, ErrArgumentMismatch)
	assert.Contains(t, err.Error(), "limit")

	_, err = Build(d, "configure", map[string]interface{}{"label": "hi", "limit": 1, "extra": true}, nil)
	assert.ErrorIs(t, err, ErrArgumentMismatch)
	assert.Contains(t, err.Error(), "extra")

	_, err = Build(d, "transfer", nil, nil)
	assert.ErrorIs(t, err, ErrArgumentMismatch)
}

func TestBuild_Errors(t *testing.T) {
	d := load(t)

	_, err := Build(d, "missing", nil, nil)
	assert.ErrorIs(t, err, idl.ErrNotFound)

	_, err = Build(d, "transfer", map[string]interface{}{"amount": -1}, nil)
	assert.ErrorIs(t, err, codec.ErrTypeMismatch)
	assert.Contains(t, err.Error(), `arg "amount"`)

	unbound, err := idl.Load([]byte(`{"instructions": [{"name": "a", "accounts": [], "args": []}]}`))
	require.NoError(t, err)

	_, err = Build(unbound, "a", nil, nil)
	assert.ErrorIs(t, err, ErrNoProgramID)

	encoded, err := Build(unbound.WithProgramID(testutil.GenerateSolanaKeys(t, 1)[0]), "a", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, Discriminator("a"), encoded.Data)
}
