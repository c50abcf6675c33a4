package userop

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSender    = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testFactory   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testPaymaster = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

// word32 builds a 32-byte word from two big-endian 16-byte limbs.
func word32(t *testing.T, high, low *big.Int) [32]byte {
	t.Helper()

	var word [32]byte
	high.FillBytes(word[:16])
	low.FillBytes(word[16:])

	return word
}

func Test_Pack(t *testing.T) {
	t.Parallel()

	var (
		maxLimb  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
		overLimb = new(big.Int).Lsh(big.NewInt(1), 128)
	)

	tests := []struct {
		name    string
		give    Operation
		want    func(t *testing.T) Packed
		wantErr string
	}{
		{
			name: "minimal operation without factory or paymaster",
			give: Operation{
				Sender:               testSender,
				Nonce:                big.NewInt(7),
				CallData:             []byte{0xde, 0xad, 0xbe, 0xef},
				VerificationGasLimit: big.NewInt(150000),
				CallGasLimit:         big.NewInt(80000),
				PreVerificationGas:   big.NewInt(21000),
				MaxPriorityFeePerGas: big.NewInt(2000000000),
				MaxFeePerGas:         big.NewInt(30000000000),
			},
			want: func(t *testing.T) Packed {
				t.Helper()

				return Packed{
					Sender:             testSender,
					Nonce:              big.NewInt(7),
					InitCode:           []byte{},
					CallData:           []byte{0xde, 0xad, 0xbe, 0xef},
					AccountGasLimits:   word32(t, big.NewInt(150000), big.NewInt(80000)),
					PreVerificationGas: big.NewInt(21000),
					GasFees:            word32(t, big.NewInt(2000000000), big.NewInt(30000000000)),
					PaymasterAndData:   []byte{},
				}
			},
		},
		{
			name: "factory prepends address to factory data",
			give: Operation{
				Sender:      testSender,
				Nonce:       big.NewInt(0),
				Factory:     &testFactory,
				FactoryData: []byte{0x01, 0x02},
			},
			want: func(t *testing.T) Packed {
				t.Helper()

				return Packed{
					Sender:           testSender,
					Nonce:            big.NewInt(0),
					InitCode:         append(testFactory.Bytes(), 0x01, 0x02),
					PaymasterAndData: []byte{},
				}
			},
		},
		{
			name: "factory with no data is the bare address",
			give: Operation{
				Sender:  testSender,
				Factory: &testFactory,
			},
			want: func(t *testing.T) Packed {
				t.Helper()

				return Packed{
					Sender:           testSender,
					InitCode:         testFactory.Bytes(),
					PaymasterAndData: []byte{},
				}
			},
		},
		{
			name: "paymaster with gas limits and data",
			give: Operation{
				Sender:                        testSender,
				Paymaster:                     &testPaymaster,
				PaymasterVerificationGasLimit: big.NewInt(40000),
				PaymasterPostOpGasLimit:       big.NewInt(5000),
				PaymasterData:                 []byte{0xaa, 0xbb},
			},
			want: func(t *testing.T) Packed {
				t.Helper()

				word := word32(t, big.NewInt(40000), big.NewInt(5000))
				data := append(testPaymaster.Bytes(), word[:]...)
				data = append(data, 0xaa, 0xbb)

				return Packed{
					Sender:           testSender,
					InitCode:         []byte{},
					PaymasterAndData: data,
				}
			},
		},
		{
			name: "paymaster with absent gas limits packs zero limbs",
			give: Operation{
				Sender:    testSender,
				Paymaster: &testPaymaster,
			},
			want: func(t *testing.T) Packed {
				t.Helper()

				return Packed{
					Sender:           testSender,
					InitCode:         []byte{},
					PaymasterAndData: append(testPaymaster.Bytes(), make([]byte, 32)...),
				}
			},
		},
		{
			name: "nil gas values pack as zero words",
			give: Operation{
				Sender: testSender,
			},
			want: func(t *testing.T) Packed {
				t.Helper()

				return Packed{
					Sender:           testSender,
					InitCode:         []byte{},
					PaymasterAndData: []byte{},
				}
			},
		},
		{
			name: "maximum 128-bit limb is accepted",
			give: Operation{
				Sender:       testSender,
				CallGasLimit: maxLimb,
				MaxFeePerGas: maxLimb,
			},
			want: func(t *testing.T) Packed {
				t.Helper()

				return Packed{
					Sender:           testSender,
					InitCode:         []byte{},
					AccountGasLimits: word32(t, big.NewInt(0), maxLimb),
					GasFees:          word32(t, big.NewInt(0), maxLimb),
					PaymasterAndData: []byte{},
				}
			},
		},
		{
			name: "verification gas limit overflow is rejected",
			give: Operation{
				Sender:               testSender,
				VerificationGasLimit: overLimb,
			},
			wantErr: "failed to pack account gas limits",
		},
		{
			name: "max fee overflow is rejected",
			give: Operation{
				Sender:       testSender,
				MaxFeePerGas: overLimb,
			},
			wantErr: "failed to pack gas fees",
		},
		{
			name: "paymaster gas limit overflow is rejected",
			give: Operation{
				Sender:                        testSender,
				Paymaster:                     &testPaymaster,
				PaymasterVerificationGasLimit: overLimb,
			},
			wantErr: "failed to pack paymaster verification gas limit",
		},
		{
			name: "negative value is rejected",
			give: Operation{
				Sender:       testSender,
				CallGasLimit: big.NewInt(-1),
			},
			wantErr: "value exceeds 128 bits",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Pack(tt.give)

			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				require.ErrorIs(t, err, ErrValueOverflow)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want(t), got)
			}
		})
	}
}

func Test_Pack_Deterministic(t *testing.T) {
	t.Parallel()

	op := Operation{
		Sender:               testSender,
		Nonce:                new(big.Int).Lsh(big.NewInt(0x42), 192),
		CallData:             []byte{0x01},
		VerificationGasLimit: big.NewInt(1),
		CallGasLimit:         big.NewInt(2),
		PreVerificationGas:   big.NewInt(3),
		MaxPriorityFeePerGas: big.NewInt(4),
		MaxFeePerGas:         big.NewInt(5),
	}

	first, err := Pack(op)
	require.NoError(t, err)
	second, err := Pack(op)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func Test_NonceKey(t *testing.T) {
	t.Parallel()

	// A key occupying the full high-order 24 bytes.
	fullKey := new(big.Int).Lsh(big.NewInt(0x01), 248)
	fullKey.Add(fullKey, new(big.Int).Lsh(big.NewInt(0xff), 64))

	tests := []struct {
		name string
		give *big.Int
		want [24]byte
	}{
		{
			name: "nil nonce has zero key",
			give: nil,
			want: [24]byte{},
		},
		{
			name: "zero nonce has zero key",
			give: big.NewInt(0),
			want: [24]byte{},
		},
		{
			name: "sequential counter only leaves key zero",
			give: big.NewInt(123456789),
			want: [24]byte{},
		},
		{
			name: "max 64-bit counter leaves key zero",
			give: new(big.Int).SetUint64(^uint64(0)),
			want: [24]byte{},
		},
		{
			name: "key bits above counter are extracted",
			give: fullKey,
			want: func() [24]byte {
				var k [24]byte
				k[0] = 0x01
				k[23] = 0xff

				return k
			}(),
		},
		{
			name: "counter bits do not leak into key",
			give: new(big.Int).Add(new(big.Int).Lsh(big.NewInt(0xab), 64), big.NewInt(99)),
			want: func() [24]byte {
				var k [24]byte
				k[23] = 0xab

				return k
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, NonceKey(tt.give))
		})
	}
}
