package pipeline

import (
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqd-labs/aqd-solana/pkg/testutil"
)

func TestExtractReturnData(t *testing.T) {
	keys := testutil.GenerateSolanaKeys(t, 2)
	program, other := base58.Encode(keys[0]), base58.Encode(keys[1])

	for _, tc := range []struct {
		name     string
		logs     []string
		program  []byte
		expected []byte
		found    bool
	}{
		{name: "none", logs: []string{"Program log: hi"}, program: keys[0]},
		{
			name:     "single",
			logs:     []string{"Program return: " + program + " AQID"},
			program:  keys[0],
			expected: []byte{1, 2, 3},
			found:    true,
		},
		{
			name: "last wins",
			logs: []string{
				"Program return: " + program + " AQ==",
				"Program return: " + program + " Ag==",
			},
			program:  keys[0],
			expected: []byte{2},
			found:    true,
		},
		{
			name: "other program ignored",
			logs: []string{
				"Program return: " + program + " AQ==",
				"Program return: " + other + " Ag==",
			},
			program:  keys[0],
			expected: []byte{1},
			found:    true,
		},
		{
			name:     "any program",
			logs:     []string{"Program return: " + other + " Ag=="},
			expected: []byte{2},
			found:    true,
		},
		{
			name:     "empty payload",
			logs:     []string{"Program return: " + program + " "},
			program:  keys[0],
			expected: []byte{},
			found:    true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			data, found, err := ExtractReturnData(tc.logs, tc.program)
			require.NoError(t, err)
			assert.Equal(t, tc.found, found)
			if tc.found {
				assert.Equal(t, tc.expected, data)
			}
		})
	}

	_, _, err := ExtractReturnData([]string{"Program return: " + program + " !!!"}, keys[0])
	assert.Error(t, err)
}
