// Package userop models account-abstraction user operations (ERC-4337 v0.7)
// and their canonical packed wire form.
package userop

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Operation is the logical, unpacked form of a user operation as it arrives
// from the proposal backlog. Gas values and fees are 256-bit integers at this
// stage; packing narrows them to 128-bit limbs.
type Operation struct {
	// Sender is the smart account the operation executes from.
	Sender common.Address
	// Nonce is the full 256-bit account nonce. The high-order 24 bytes form
	// the nonce key, the low 8 bytes the sequential counter.
	Nonce *big.Int
	// CallData is the calldata executed by the account.
	CallData []byte

	// VerificationGasLimit and CallGasLimit are packed together into the
	// accountGasLimits word.
	VerificationGasLimit *big.Int
	CallGasLimit         *big.Int
	PreVerificationGas   *big.Int

	// MaxPriorityFeePerGas and MaxFeePerGas are packed together into the
	// gasFees word.
	MaxPriorityFeePerGas *big.Int
	MaxFeePerGas         *big.Int

	// Factory and FactoryData are set only for counterfactual deployments.
	Factory     *common.Address
	FactoryData []byte

	// Paymaster fields are set only for sponsored operations.
	Paymaster                     *common.Address
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
	PaymasterData                 []byte
}

// Packed is the canonical v0.7 PackedUserOperation struct. Its byte layout is
// consumed verbatim by the EntryPoint contract and by EIP-712 authorization
// hashing, so every field here must be byte-exact.
type Packed struct {
	Sender             common.Address
	Nonce              *big.Int
	InitCode           []byte
	CallData           []byte
	AccountGasLimits   [32]byte
	PreVerificationGas *big.Int
	GasFees            [32]byte
	PaymasterAndData   []byte
}

// NonceKey returns the high-order 24 bytes of the 256-bit nonce. Accounts use
// the key to route validation to alternative validator modules; a zero key
// selects the account's root validation path.
func NonceKey(nonce *big.Int) [24]byte {
	var key [24]byte
	if nonce == nil {
		return key
	}

	b := nonce.Bytes()
	if len(b) > 32 {
		// Values beyond uint256 wrap, matching EVM semantics.
		b = b[len(b)-32:]
	}

	var word [32]byte
	copy(word[32-len(b):], b)
	copy(key[:], word[:24])

	return key
}
