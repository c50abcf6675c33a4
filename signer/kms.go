package signer

import (
	"bytes"
	"context"
	"encoding/asn1"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/aws/aws-sdk-go/aws"
	kmslib "github.com/aws/aws-sdk-go/service/kms"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/govmesh/proposal-signer/internal/kms"
	"github.com/govmesh/proposal-signer/userop"
)

// KMSSigner signs operation digests with an AWS KMS held key. The key never
// leaves KMS; only digests go out and ASN.1 signatures come back, which are
// then converted to the EVM 65-byte format.
type KMSSigner struct {
	client   kms.Client
	kmsKeyID string

	// pubKeyBytes and address are derived from the KMS public key once at
	// construction.
	pubKeyBytes []byte
	address     common.Address
}

var _ TypedDataSigner = (*KMSSigner)(nil)

// NewKMSSigner creates a KMSSigner for the given KMS key ID, region, and AWS
// profile. Pass an empty profile to use environment credentials. The key's
// public half is fetched once to derive the signer address.
func NewKMSSigner(ctx context.Context, keyID, keyRegion, awsProfile string) (*KMSSigner, error) {
	client, err := kms.NewClient(kms.ClientConfig{
		KeyID:      keyID,
		KeyRegion:  keyRegion,
		AWSProfile: awsProfile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize KMS client: %w", err)
	}

	return newKMSSigner(ctx, client, keyID)
}

func newKMSSigner(ctx context.Context, client kms.Client, keyID string) (*KMSSigner, error) {
	out, err := client.GetPublicKeyWithContext(ctx, &kmslib.GetPublicKeyInput{
		KeyId: aws.String(keyID),
	})
	if err != nil {
		return nil, fmt.Errorf("cannot get public key from KMS for KeyId=%s: %w", keyID, err)
	}

	// The public key is returned in ASN.1 format, which we need to decode
	// into an SPKI structure.
	var spki kms.SPKI
	if _, err = asn1.Unmarshal(out.PublicKey, &spki); err != nil {
		return nil, fmt.Errorf("cannot parse asn1 public key for KeyId=%s: %w", keyID, err)
	}

	pubKey, err := crypto.UnmarshalPubkey(spki.SubjectPublicKey.Bytes)
	if err != nil {
		return nil, fmt.Errorf("cannot unmarshal public key bytes: %w", err)
	}

	return &KMSSigner{
		client:      client,
		kmsKeyID:    keyID,
		pubKeyBytes: crypto.FromECDSAPub(pubKey),
		address:     crypto.PubkeyToAddress(*pubKey),
	}, nil
}

// Address returns the EVM address derived from the KMS public key.
func (s *KMSSigner) Address() common.Address {
	return s.address
}

// SignTypedData computes the EIP-712 digest for op under domain and signs it
// with the KMS key. The returned signature is hex encoded, 65 bytes, with
// v in {27, 28}.
func (s *KMSSigner) SignTypedData(ctx context.Context, domain Domain, op userop.Packed) (string, error) {
	digest, err := SigningDigest(domain, op)
	if err != nil {
		return "", fmt.Errorf("failed to compute signing digest: %w", err)
	}

	var (
		mType = kmslib.MessageTypeDigest
		algo  = kmslib.SigningAlgorithmSpecEcdsaSha256
	)

	out, err := s.client.SignWithContext(ctx, &kmslib.SignInput{
		KeyId:            &s.kmsKeyID,
		SigningAlgorithm: &algo,
		MessageType:      &mType,
		Message:          digest,
	})
	if err != nil {
		return "", fmt.Errorf("call to kms.Sign() failed on digest: %w", err)
	}

	evmSig, err := kmsToEVMSig(out.Signature, s.pubKeyBytes, digest)
	if err != nil {
		return "", fmt.Errorf("failed to convert KMS signature to EVM signature: %w", err)
	}

	// Detached EIP-712 signatures carry v as 27 or 28.
	evmSig[64] += 27

	return hexutil.Encode(evmSig), nil
}

var (
	// secp256k1N is the N value of the secp256k1 curve, used to adjust the S value in signatures.
	secp256k1N = crypto.S256().Params().N
	// secp256k1HalfN is half of the secp256k1 N value, used to adjust the S value in signatures.
	secp256k1HalfN = new(big.Int).Div(secp256k1N, big.NewInt(2))
)

// kmsToEVMSig converts a KMS signature to an EVM-compatible signature with
// v in {0, 1}. This follows the example provided by AWS Guides.
//
// [AWS Guides]: https://aws.amazon.com/blogs/database/part2-use-aws-kms-to-securely-manage-ethereum-accounts/
func kmsToEVMSig(kmsSig, ecdsaPubKeyBytes, hash []byte) ([]byte, error) {
	var ecdsaSig kms.ECDSASig
	if _, err := asn1.Unmarshal(kmsSig, &ecdsaSig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal KMS signature: %w", err)
	}

	rBytes := ecdsaSig.R.Bytes
	sBytes := ecdsaSig.S.Bytes

	// Adjust S value from signature to match EVM standard.
	//
	// After we extract r and s successfully, we have to test if the value of
	// s is greater than secp256k1n/2 as specified in EIP-2 and flip it if
	// required.
	sBigInt := new(big.Int).SetBytes(sBytes)
	if sBigInt.Cmp(secp256k1HalfN) > 0 {
		sBytes = new(big.Int).Sub(secp256k1N, sBigInt).Bytes()
	}

	return recoverEVMSignature(ecdsaPubKeyBytes, hash, rBytes, sBytes)
}

// recoverEVMSignature attempts to reconstruct the EVM signature by trying
// both possible recovery IDs (v = 0 and v = 1). It compares the recovered
// public key with the expected public key bytes to determine the correct
// signature.
//
// Returns the valid EVM signature if successful, or an error if neither
// recovery ID matches.
func recoverEVMSignature(expectedPublicKey, digest, r, s []byte) ([]byte, error) {
	// EVM signatures require r and s to be exactly 32 bytes each.
	rsSig := append(padTo32Bytes(r), padTo32Bytes(s)...)
	// The 65th byte is the recovery ID (v), which can be 0 or 1. Start with 0
	// for the first recovery attempt.
	evmSig := append(rsSig, []byte{0}...)

	recoveredPublicKey, err := crypto.Ecrecover(digest, evmSig)
	if err != nil {
		return nil, fmt.Errorf("failed to recover signature with v=0: %w", err)
	}

	if hex.EncodeToString(recoveredPublicKey) != hex.EncodeToString(expectedPublicKey) {
		// If the first recovery attempt failed, we try with v=1.
		evmSig = append(rsSig, []byte{1}...)
		recoveredPublicKey, err = crypto.Ecrecover(digest, evmSig)
		if err != nil {
			return nil, fmt.Errorf("failed to recover signature with v=1: %w", err)
		}

		if hex.EncodeToString(recoveredPublicKey) != hex.EncodeToString(expectedPublicKey) {
			return nil, errors.New("cannot reconstruct public key from sig")
		}
	}

	return evmSig, nil
}

// padTo32Bytes pads the given byte slice to 32 bytes by trimming leading
// zeros and prepending zeros.
func padTo32Bytes(buffer []byte) []byte {
	buffer = bytes.TrimLeft(buffer, "\x00")
	for len(buffer) < 32 {
		zeroBuf := []byte{0}
		buffer = append(zeroBuf, buffer...)
	}

	return buffer
}
