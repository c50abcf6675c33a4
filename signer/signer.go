package signer

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/govmesh/proposal-signer/userop"
)

// TypedDataSigner signs packed user operations under a resolved EIP-712
// domain. Implementations hold or delegate to the signing key; the key
// material itself never passes through this interface.
type TypedDataSigner interface {
	// SignTypedData returns the hex-encoded 65-byte signature (r || s || v,
	// v in {27, 28}) authorizing op under domain.
	SignTypedData(ctx context.Context, domain Domain, op userop.Packed) (string, error)

	// Address returns the EVM address corresponding to the signing key.
	Address() common.Address
}
