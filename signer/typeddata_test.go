package signer

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govmesh/proposal-signer/userop"
)

func testDomain() Domain {
	return Domain{
		Name:              "GovMeshAccount",
		Version:           "1",
		ChainID:           big.NewInt(84532),
		VerifyingContract: common.HexToAddress("0x4fd9098af9ddcb41da48a1d78f91f1398965addc"),
	}
}

func testPackedOp(t *testing.T) userop.Packed {
	t.Helper()

	packed, err := userop.Pack(userop.Operation{
		Sender:               common.HexToAddress("0x4fd9098af9ddcb41da48a1d78f91f1398965addc"),
		Nonce:                big.NewInt(12),
		CallData:             []byte{0xca, 0x11, 0xda, 0x7a},
		VerificationGasLimit: big.NewInt(150000),
		CallGasLimit:         big.NewInt(80000),
		PreVerificationGas:   big.NewInt(21000),
		MaxPriorityFeePerGas: big.NewInt(1000000000),
		MaxFeePerGas:         big.NewInt(20000000000),
	})
	require.NoError(t, err)

	return packed
}

func Test_NewTypedData(t *testing.T) {
	t.Parallel()

	td := NewTypedData(testDomain(), testPackedOp(t))

	assert.Equal(t, "ValidateUserOp", td.PrimaryType)
	assert.Equal(t, "GovMeshAccount", td.Domain.Name)

	// Signatures produced by this service never carry expiry windows.
	assert.Equal(t, "0", td.Message["validUntil"])
	assert.Equal(t, "0", td.Message["validAfter"])

	require.Len(t, td.Types["ValidateUserOp"], 10)
	assert.Equal(t, "sender", td.Types["ValidateUserOp"][0].Name)
	assert.Equal(t, "validAfter", td.Types["ValidateUserOp"][9].Name)
}

func Test_SigningDigest(t *testing.T) {
	t.Parallel()

	t.Run("deterministic", func(t *testing.T) {
		t.Parallel()

		first, err := SigningDigest(testDomain(), testPackedOp(t))
		require.NoError(t, err)
		require.Len(t, first, 32)

		second, err := SigningDigest(testDomain(), testPackedOp(t))
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("missing chain id", func(t *testing.T) {
		t.Parallel()

		domain := testDomain()
		domain.ChainID = nil

		_, err := SigningDigest(domain, testPackedOp(t))
		require.ErrorContains(t, err, "domain chain id is required")
	})

	t.Run("empty domain strings still hash", func(t *testing.T) {
		t.Parallel()

		domain := testDomain()
		domain.Name = ""
		domain.Version = ""

		digest, err := SigningDigest(domain, testPackedOp(t))
		require.NoError(t, err)
		assert.Len(t, digest, 32)
	})
}

func Test_SigningDigest_SensitiveToInputs(t *testing.T) {
	t.Parallel()

	base, err := SigningDigest(testDomain(), testPackedOp(t))
	require.NoError(t, err)

	tests := []struct {
		name      string
		mutDomain func(*Domain)
		mutOp     func(*userop.Packed)
	}{
		{
			name:      "domain name",
			mutDomain: func(d *Domain) { d.Name = "OtherAccount" },
		},
		{
			name:      "domain version",
			mutDomain: func(d *Domain) { d.Version = "2" },
		},
		{
			name:      "domain chain id",
			mutDomain: func(d *Domain) { d.ChainID = big.NewInt(1) },
		},
		{
			name: "domain verifying contract",
			mutDomain: func(d *Domain) {
				d.VerifyingContract = common.HexToAddress("0x9999999999999999999999999999999999999999")
			},
		},
		{
			name:  "nonce",
			mutOp: func(op *userop.Packed) { op.Nonce = big.NewInt(13) },
		},
		{
			name:  "call data",
			mutOp: func(op *userop.Packed) { op.CallData = []byte{0x00} },
		},
		{
			name:  "gas fees word",
			mutOp: func(op *userop.Packed) { op.GasFees[31] ^= 0x01 },
		},
		{
			name:  "paymaster data",
			mutOp: func(op *userop.Packed) { op.PaymasterAndData = []byte{0x01} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			domain := testDomain()
			op := testPackedOp(t)
			if tt.mutDomain != nil {
				tt.mutDomain(&domain)
			}
			if tt.mutOp != nil {
				tt.mutOp(&op)
			}

			got, err := SigningDigest(domain, op)
			require.NoError(t, err)
			assert.NotEqual(t, base, got)
		})
	}
}
