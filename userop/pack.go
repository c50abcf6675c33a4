package userop

import (
	"errors"
	"fmt"
	"math/big"
)

// ErrValueOverflow is returned when a gas or fee value does not fit in the
// 128-bit limb the packed layout reserves for it. Truncating silently would
// produce an operation whose authorization hash no longer matches what the
// EntryPoint verifies, so packing rejects instead.
var ErrValueOverflow = errors.New("value exceeds 128 bits")

// Pack converts a logical operation into its canonical packed wire form.
//
// Gas limits and fees are written as big-endian 16-byte limbs, two limbs per
// 32-byte word: accountGasLimits = verificationGasLimit || callGasLimit and
// gasFees = maxPriorityFeePerGas || maxFeePerGas. initCode is the factory
// address followed by its calldata, or empty when the account is already
// deployed. paymasterAndData is the paymaster address, its two 16-byte gas
// limbs, and the paymaster calldata, or empty when the operation is
// unsponsored. Nil values pack as zero.
func Pack(op Operation) (Packed, error) {
	packed := Packed{
		Sender:             op.Sender,
		Nonce:              op.Nonce,
		CallData:           op.CallData,
		PreVerificationGas: op.PreVerificationGas,
	}

	var err error
	if packed.AccountGasLimits, err = packGasWord(op.VerificationGasLimit, op.CallGasLimit); err != nil {
		return Packed{}, fmt.Errorf("failed to pack account gas limits: %w", err)
	}
	if packed.GasFees, err = packGasWord(op.MaxPriorityFeePerGas, op.MaxFeePerGas); err != nil {
		return Packed{}, fmt.Errorf("failed to pack gas fees: %w", err)
	}

	if op.Factory != nil {
		packed.InitCode = append(op.Factory.Bytes(), op.FactoryData...)
	} else {
		packed.InitCode = []byte{}
	}

	if op.Paymaster != nil {
		verGas, err := pad16(op.PaymasterVerificationGasLimit)
		if err != nil {
			return Packed{}, fmt.Errorf("failed to pack paymaster verification gas limit: %w", err)
		}
		postOpGas, err := pad16(op.PaymasterPostOpGasLimit)
		if err != nil {
			return Packed{}, fmt.Errorf("failed to pack paymaster post-op gas limit: %w", err)
		}

		data := op.Paymaster.Bytes()
		data = append(data, verGas...)
		data = append(data, postOpGas...)
		data = append(data, op.PaymasterData...)
		packed.PaymasterAndData = data
	} else {
		packed.PaymasterAndData = []byte{}
	}

	return packed, nil
}

// packGasWord writes two 128-bit values into one 32-byte word, high limb
// first.
func packGasWord(high, low *big.Int) ([32]byte, error) {
	var word [32]byte

	hiBytes, err := pad16(high)
	if err != nil {
		return word, err
	}
	loBytes, err := pad16(low)
	if err != nil {
		return word, err
	}

	copy(word[:16], hiBytes)
	copy(word[16:], loBytes)

	return word, nil
}

// pad16 renders v as a big-endian 16-byte limb. Nil renders as zero.
func pad16(v *big.Int) ([]byte, error) {
	buf := make([]byte, 16)
	if v == nil {
		return buf, nil
	}
	if v.Sign() < 0 || v.BitLen() > 128 {
		return nil, fmt.Errorf("%s: %w", v.String(), ErrValueOverflow)
	}

	v.FillBytes(buf)

	return buf, nil
}
