// Package signer produces EIP-712 authorization signatures over packed user
// operations. It resolves the signing domain for each operation, builds the
// typed-data digest, and signs it with a KMS-held key.
package signer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Domain is the EIP-712 signing domain an authorization signature is bound
// to. It is resolved per operation, either from the account's on-chain
// declaration or from a validator module override.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}
