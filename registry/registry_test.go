package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_New(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		give    []Descriptor
		wantErr string
	}{
		{
			name: "valid descriptors",
			give: []Descriptor{
				{ID: "a", Address: common.HexToAddress("0x01")},
				{ID: "b", Address: common.HexToAddress("0x02")},
			},
		},
		{
			name: "empty registry",
			give: nil,
		},
		{
			name: "missing id",
			give: []Descriptor{
				{Address: common.HexToAddress("0x01")},
			},
			wantErr: "descriptor id is required",
		},
		{
			name: "duplicate id",
			give: []Descriptor{
				{ID: "a", Address: common.HexToAddress("0x01")},
				{ID: "a", Address: common.HexToAddress("0x02")},
			},
			wantErr: `duplicate descriptor id "a"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := New(tt.give...)

			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Len(t, got.All(), len(tt.give))
			}
		})
	}
}

func Test_Registry_Get(t *testing.T) {
	t.Parallel()

	reg, err := New(Descriptor{
		ID:      "remote-validator",
		Name:    "RemoteValidator",
		Address: common.HexToAddress("0x7a1e4f2b9c33d05582f8d9e1a6bb04c7f3d2e815"),
		Version: semver.MustParse("1.0.0"),
	})
	require.NoError(t, err)

	got, ok := reg.Get("remote-validator")
	require.True(t, ok)
	assert.Equal(t, "RemoteValidator", got.Name)

	_, ok = reg.Get("unknown")
	assert.False(t, ok)
}

func Test_Descriptor_NonceKey(t *testing.T) {
	t.Parallel()

	addr := common.HexToAddress("0x7a1e4f2b9c33d05582f8d9e1a6bb04c7f3d2e815")
	key := Descriptor{ID: "remote-validator", Address: addr}.NonceKey()

	// Mode byte, validator type byte, module address, two reserved bytes.
	assert.Equal(t, byte(0x00), key[0])
	assert.Equal(t, byte(0x01), key[1])
	assert.Equal(t, addr.Bytes(), key[2:22])
	assert.Equal(t, []byte{0x00, 0x00}, key[22:24])
}

func Test_Descriptor_NonceKey_DistinctPerAddress(t *testing.T) {
	t.Parallel()

	a := Descriptor{ID: "a", Address: common.HexToAddress("0x01")}.NonceKey()
	b := Descriptor{ID: "b", Address: common.HexToAddress("0x02")}.NonceKey()

	assert.NotEqual(t, a, b)
}

func Test_Default(t *testing.T) {
	t.Parallel()

	reg := Default()

	remote, ok := reg.Get(RemoteValidatorID)
	require.True(t, ok)
	assert.Equal(t, "RemoteValidator", remote.Name)
	assert.Equal(t, "1.0.0", remote.Version.String())

	// More than one module is registered; only the remote validator takes
	// part in override resolution.
	assert.Greater(t, len(reg.All()), 1)
}

func Test_LoadFile(t *testing.T) {
	t.Parallel()

	writeFile := func(t *testing.T, content string) string {
		t.Helper()

		path := filepath.Join(t.TempDir(), "validators.toml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		return path
	}

	tests := []struct {
		name    string
		give    string
		wantLen int
		wantErr string
	}{
		{
			name: "valid file",
			give: `
[[validator]]
id      = "remote-validator"
name    = "RemoteValidator"
address = "0x7a1e4f2b9c33d05582f8d9e1a6bb04c7f3d2e815"
version = "1.0.0"

[[validator]]
id      = "session-key-validator"
name    = "SessionKeyValidator"
address = "0x41c8f39463a868d3a88af18fc713a8e7e276b6a0"
version = "1.2.1"
`,
			wantLen: 2,
		},
		{
			name: "invalid address",
			give: `
[[validator]]
id      = "remote-validator"
name    = "RemoteValidator"
address = "not-an-address"
version = "1.0.0"
`,
			wantErr: `invalid address "not-an-address"`,
		},
		{
			name: "invalid version",
			give: `
[[validator]]
id      = "remote-validator"
name    = "RemoteValidator"
address = "0x7a1e4f2b9c33d05582f8d9e1a6bb04c7f3d2e815"
version = "one"
`,
			wantErr: `invalid version "one"`,
		},
		{
			name:    "not toml",
			give:    "{not toml}",
			wantErr: "failed to unmarshal registry file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := LoadFile(writeFile(t, tt.give))

			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Len(t, got.All(), tt.wantLen)
			}
		})
	}
}

func Test_LoadFile_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.toml"))
	require.ErrorContains(t, err, "failed to read registry file")
}
