package main

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"gopkg.in/yaml.v3"

	"github.com/govmesh/proposal-signer/helper"
	"github.com/govmesh/proposal-signer/internal/pointer"
	"github.com/govmesh/proposal-signer/store"
)

// decodeProposals parses a YAML proposal document into store rows. Numeric
// fields beyond uint64 must be quoted in the document; the coercion pass
// restores them to exact integers.
func decodeProposals(data []byte) ([]store.Proposal, error) {
	var decoded any
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}

	root, ok := helper.CoerceBigIntStringsForKeys(decoded, helper.ProposalNumericKeys).(map[string]any)
	if !ok {
		return nil, errors.New("document root must be a mapping")
	}

	items, ok := root["proposals"].([]any)
	if !ok {
		return nil, errors.New("document must contain a proposals list")
	}

	proposals := make([]store.Proposal, 0, len(items))
	for i, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("proposal %d: must be a mapping", i)
		}

		p, err := proposalFromFields(fields)
		if err != nil {
			return nil, fmt.Errorf("proposal %d: %w", i, err)
		}

		proposals = append(proposals, p)
	}

	return proposals, nil
}

func proposalFromFields(fields map[string]any) (store.Proposal, error) {
	var p store.Proposal

	hash, err := requireString(fields, "userop_hash")
	if err != nil {
		return p, err
	}
	p.UserOpHash = common.HexToHash(hash)

	sender, err := requireString(fields, "sender")
	if err != nil {
		return p, err
	}
	if !common.IsHexAddress(sender) {
		return p, fmt.Errorf("field %q is not a hex address: %q", "sender", sender)
	}
	p.Sender = common.HexToAddress(sender)

	if p.Chain, err = requireString(fields, "chain"); err != nil {
		return p, err
	}
	if p.Content, err = requireString(fields, "content"); err != nil {
		return p, err
	}

	for _, f := range []struct {
		name string
		dst  **big.Int
	}{
		{"nonce", &p.Nonce},
		{"verification_gas_limit", &p.VerificationGasLimit},
		{"call_gas_limit", &p.CallGasLimit},
		{"pre_verification_gas", &p.PreVerificationGas},
		{"max_fee_per_gas", &p.MaxFeePerGas},
		{"max_priority_fee_per_gas", &p.MaxPriorityFeePerGas},
		{"paymaster_verification_gas_limit", &p.PaymasterVerificationGasLimit},
		{"paymaster_post_op_gas_limit", &p.PaymasterPostOpGasLimit},
	} {
		if *f.dst, err = bigIntField(fields, f.name); err != nil {
			return p, err
		}
	}

	if p.CallData, err = bytesField(fields, "call_data"); err != nil {
		return p, err
	}
	if p.FactoryData, err = bytesField(fields, "factory_data"); err != nil {
		return p, err
	}
	if p.PaymasterData, err = bytesField(fields, "paymaster_data"); err != nil {
		return p, err
	}

	if p.Factory, err = addressField(fields, "factory"); err != nil {
		return p, err
	}
	if p.Paymaster, err = addressField(fields, "paymaster"); err != nil {
		return p, err
	}

	if p.CreatedAt, err = timeField(fields, "created_at"); err != nil {
		return p, err
	}

	return p, nil
}

func requireString(fields map[string]any, key string) (string, error) {
	v, ok := fields[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("missing required field %q", key)
	}

	return v, nil
}

func bigIntField(fields map[string]any, key string) (*big.Int, error) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return nil, nil
	}

	switch v := raw.(type) {
	case *big.Int:
		return v, nil
	case int:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case string:
		z, ok := new(big.Int).SetString(v, 10)
		if !ok {
			return nil, fmt.Errorf("field %q is not a base 10 integer: %q", key, v)
		}

		return z, nil
	case float64:
		return nil, fmt.Errorf("field %q lost precision during parsing, quote values beyond uint64", key)
	default:
		return nil, fmt.Errorf("field %q has unsupported type %T", key, raw)
	}
}

func bytesField(fields map[string]any, key string) ([]byte, error) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return nil, nil
	}

	s, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("field %q is not a hex string: %v", key, raw)
	}
	if s == "" {
		return nil, nil
	}

	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("field %q is not a hex string: %w", key, err)
	}

	return b, nil
}

func addressField(fields map[string]any, key string) (*common.Address, error) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return nil, nil
	}

	s, ok := raw.(string)
	if !ok || !common.IsHexAddress(s) {
		return nil, fmt.Errorf("field %q is not a hex address: %v", key, raw)
	}

	return pointer.To(common.HexToAddress(s)), nil
}

func timeField(fields map[string]any, key string) (time.Time, error) {
	raw, ok := fields[key]
	if !ok || raw == nil {
		return time.Time{}, nil
	}

	// The YAML decoder resolves unquoted timestamps itself.
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return time.Time{}, fmt.Errorf("field %q is not an RFC3339 timestamp: %w", key, err)
		}

		return ts, nil
	default:
		return time.Time{}, fmt.Errorf("field %q has unsupported type %T", key, raw)
	}
}
