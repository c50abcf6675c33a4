package signer

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/govmesh/proposal-signer/userop"
)

// validateUserOpPrimaryType is the EIP-712 primary type accounts verify
// authorization signatures against.
const validateUserOpPrimaryType = "ValidateUserOp"

// validateUserOpTypes is the typed-data schema for operation authorization.
// The field order must match the account contracts exactly; reordering
// changes the type hash and invalidates every signature.
var validateUserOpTypes = apitypes.Types{
	"EIP712Domain": []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	validateUserOpPrimaryType: []apitypes.Type{
		{Name: "sender", Type: "address"},
		{Name: "nonce", Type: "uint256"},
		{Name: "initCode", Type: "bytes"},
		{Name: "callData", Type: "bytes"},
		{Name: "accountGasLimits", Type: "bytes32"},
		{Name: "preVerificationGas", Type: "uint256"},
		{Name: "gasFees", Type: "bytes32"},
		{Name: "paymasterAndData", Type: "bytes"},
		{Name: "validUntil", Type: "uint48"},
		{Name: "validAfter", Type: "uint48"},
	},
}

// NewTypedData builds the typed-data payload authorizing op under domain.
// validUntil and validAfter are always zero: signatures produced here do not
// expire on their own and become valid immediately.
func NewTypedData(domain Domain, op userop.Packed) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       validateUserOpTypes,
		PrimaryType: validateUserOpPrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(domain.ChainID),
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"sender":             op.Sender.Hex(),
			"nonce":              (*math.HexOrDecimal256)(bigOrZero(op.Nonce)),
			"initCode":           hexutil.Encode(op.InitCode),
			"callData":           hexutil.Encode(op.CallData),
			"accountGasLimits":   hexutil.Encode(op.AccountGasLimits[:]),
			"preVerificationGas": (*math.HexOrDecimal256)(bigOrZero(op.PreVerificationGas)),
			"gasFees":            hexutil.Encode(op.GasFees[:]),
			"paymasterAndData":   hexutil.Encode(op.PaymasterAndData),
			"validUntil":         "0",
			"validAfter":         "0",
		},
	}
}

// SigningDigest computes the 32-byte EIP-712 digest for op under domain:
// keccak256("\x19\x01" || domainSeparator || hashStruct(message)).
func SigningDigest(domain Domain, op userop.Packed) ([]byte, error) {
	if domain.ChainID == nil {
		return nil, errors.New("domain chain id is required")
	}

	typedData := NewTypedData(domain, op)

	// The domain map is built by hand rather than via Domain.Map() so that
	// empty name or version strings still hash as empty strings instead of
	// dropping out of the struct.
	domainMap := map[string]any{
		"name":              domain.Name,
		"version":           domain.Version,
		"chainId":           (*math.HexOrDecimal256)(domain.ChainID),
		"verifyingContract": domain.VerifyingContract.Hex(),
	}

	domainSeparator, err := typedData.HashStruct("EIP712Domain", domainMap)
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	typedDataHash, err := typedData.HashStruct(typedData.PrimaryType, typedData.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	rawData := append([]byte{0x19, 0x01}, domainSeparator...)
	rawData = append(rawData, typedDataHash...)

	return crypto.Keccak256(rawData), nil
}

func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}

	return v
}
