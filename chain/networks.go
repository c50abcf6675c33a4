// Package chain enumerates the EVM networks proposals may target and provides
// a retrying RPC client plus EIP-5267 signing-domain introspection against
// them.
package chain

import (
	"errors"
	"fmt"

	chainsel "github.com/smartcontractkit/chain-selectors"
)

// ErrUnsupportedChain is returned when a proposal names a chain identifier
// outside the supported set. The proposal is skipped; the batch continues.
var ErrUnsupportedChain = errors.New("unsupported chain")

// Network is one supported EVM network. The ID is the stable identifier
// proposals carry; Name and Selector come from the chain-selectors registry.
type Network struct {
	ID            string
	Name          string
	ChainID       uint64
	Selector      uint64
	DefaultRPCURL string
}

// supportedNetworks is the closed set of networks the signer operates on.
// Adding a network here is the only change needed to support it end to end.
var supportedNetworks = []Network{
	mustNetwork("ethereum", 1, "https://ethereum-rpc.publicnode.com"),
	mustNetwork("sepolia", 11155111, "https://ethereum-sepolia-rpc.publicnode.com"),
	mustNetwork("base", 8453, "https://mainnet.base.org"),
	mustNetwork("base-sepolia", 84532, "https://sepolia.base.org"),
	mustNetwork("arbitrum", 42161, "https://arb1.arbitrum.io/rpc"),
	mustNetwork("optimism", 10, "https://mainnet.optimism.io"),
	mustNetwork("polygon", 137, "https://polygon-rpc.com"),
}

var networksByID = func() map[string]Network {
	m := make(map[string]Network, len(supportedNetworks))
	for _, n := range supportedNetworks {
		m[n.ID] = n
	}

	return m
}()

// mustNetwork builds a Network, resolving its canonical name and selector
// from the chain-selectors registry. Panics on an unknown chain id since the
// table above is compiled in.
func mustNetwork(id string, chainID uint64, rpcURL string) Network {
	details, ok := chainsel.ChainByEvmChainID(chainID)
	if !ok {
		panic(fmt.Sprintf("chain id %d not found in chain-selectors registry", chainID))
	}

	return Network{
		ID:            id,
		Name:          details.Name,
		ChainID:       chainID,
		Selector:      details.Selector,
		DefaultRPCURL: rpcURL,
	}
}

// Networks returns the supported networks in declaration order.
func Networks() []Network {
	out := make([]Network, len(supportedNetworks))
	copy(out, supportedNetworks)

	return out
}

// NetworkByID resolves a proposal's chain identifier to a supported network.
// Unknown identifiers return an error wrapping ErrUnsupportedChain.
func NetworkByID(id string) (Network, error) {
	n, ok := networksByID[id]
	if !ok {
		return Network{}, fmt.Errorf("chain identifier %q: %w", id, ErrUnsupportedChain)
	}

	return n, nil
}
