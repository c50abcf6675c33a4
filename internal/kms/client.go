// Package kms wraps the AWS KMS API surface needed for signing. The signing
// key never leaves KMS; callers submit digests and receive ASN.1 encoded
// signatures back.
package kms

import (
	"encoding/asn1"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	kmslib "github.com/aws/aws-sdk-go/service/kms"
)

// Client is the subset of the AWS KMS API used for signing. The concrete
// *kms.KMS service client satisfies it. Context-aware variants are used so
// callers can bound key operations with deadlines.
type Client interface {
	GetPublicKeyWithContext(ctx aws.Context, input *kmslib.GetPublicKeyInput, opts ...request.Option) (*kmslib.GetPublicKeyOutput, error)
	SignWithContext(ctx aws.Context, input *kmslib.SignInput, opts ...request.Option) (*kmslib.SignOutput, error)
}

// ClientConfig configures access to a KMS signing key.
type ClientConfig struct {
	// KeyID identifies the KMS key used for signing.
	KeyID string
	// KeyRegion is the AWS region the key lives in.
	KeyRegion string
	// AWSProfile selects a shared-config profile. Leave empty to use
	// environment credentials.
	AWSProfile string
}

func (c ClientConfig) validate() error {
	if c.KeyID == "" {
		return errors.New("KMS key ID is required")
	}
	if c.KeyRegion == "" {
		return errors.New("KMS key region is required")
	}

	return nil
}

// NewClient creates a KMS client for the configured key's region. Credential
// resolution follows the AWS SDK default chain, optionally pinned to a
// shared-config profile.
func NewClient(cfg ClientConfig) (Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid KMS config: %w", err)
	}

	opts := session.Options{
		Config: aws.Config{
			Region: aws.String(cfg.KeyRegion),
		},
		SharedConfigState: session.SharedConfigEnable,
	}
	if cfg.AWSProfile != "" {
		opts.Profile = cfg.AWSProfile
	}

	sess, err := session.NewSessionWithOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return kmslib.New(sess), nil
}

// SPKI is the ASN.1 SubjectPublicKeyInfo structure KMS returns public keys
// in.
type SPKI struct {
	AlgorithmIdentifier struct {
		Algorithm  asn1.ObjectIdentifier
		Parameters asn1.ObjectIdentifier
	}
	SubjectPublicKey asn1.BitString
}

// ECDSASig is the ASN.1 structure KMS returns ECDSA signatures in.
type ECDSASig struct {
	R asn1.RawValue
	S asn1.RawValue
}
