package signer

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/govmesh/proposal-signer/chain"
	"github.com/govmesh/proposal-signer/pkg/logger"
	"github.com/govmesh/proposal-signer/registry"
	"github.com/govmesh/proposal-signer/userop"
)

// domainClient is the part of chain.Client the resolver needs.
type domainClient interface {
	EIP712Domain(ctx context.Context, contract common.Address) (chain.EIP712Domain, error)
	ChainID(ctx context.Context) (*big.Int, error)
	Close()
}

// DomainResolver resolves the EIP-712 signing domain for an operation.
//
// The default path asks the account contract itself: the account declares its
// domain through the EIP-5267 eip712Domain() view function. The override path
// applies when the operation's nonce key routes validation to the remote
// validator module; such operations are verified by the module contract under
// the module's own domain rather than the account's.
type DomainResolver struct {
	lggr     logger.Logger
	registry *registry.Registry
	rpcURLs  map[string]string

	dial func(ctx context.Context, network chain.Network, rpcURL string) (domainClient, error)
}

// ResolverOpt mutates a DomainResolver during construction.
type ResolverOpt func(*DomainResolver)

// WithRPCURLs overrides the RPC endpoint per network id. Networks without an
// entry use their default public endpoint.
func WithRPCURLs(urls map[string]string) ResolverOpt {
	return func(r *DomainResolver) {
		for id, url := range urls {
			r.rpcURLs[id] = url
		}
	}
}

// NewDomainResolver builds a resolver backed by the given validator module
// registry.
func NewDomainResolver(lggr logger.Logger, reg *registry.Registry, opts ...ResolverOpt) *DomainResolver {
	r := &DomainResolver{
		lggr:     lggr,
		registry: reg,
		rpcURLs:  make(map[string]string),
	}
	r.dial = func(ctx context.Context, network chain.Network, rpcURL string) (domainClient, error) {
		return chain.Dial(ctx, lggr, network, rpcURL)
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve returns the signing domain for an operation sent by account on the
// chain named by chainID, given the operation's nonce. Unknown chain
// identifiers fail with chain.ErrUnsupportedChain.
func (r *DomainResolver) Resolve(ctx context.Context, account common.Address, chainID string, nonce *big.Int) (Domain, error) {
	network, err := chain.NetworkByID(chainID)
	if err != nil {
		return Domain{}, err
	}

	client, err := r.dial(ctx, network, r.rpcURLs[network.ID])
	if err != nil {
		return Domain{}, fmt.Errorf("failed to connect to %s: %w", network.ID, err)
	}
	defer client.Close()

	declared, err := client.EIP712Domain(ctx, account)
	if err != nil {
		return Domain{}, fmt.Errorf("failed to resolve domain for account %s: %w", account.Hex(), err)
	}

	resolved := Domain{
		Name:              declared.Name,
		Version:           declared.Version,
		ChainID:           declared.ChainID,
		VerifyingContract: declared.VerifyingContract,
	}

	key := userop.NonceKey(nonce)
	if key == ([24]byte{}) {
		return resolved, nil
	}

	// Only the remote validator's key is compared here. Nonce keys addressing
	// any other registered module leave the account's declared domain in
	// place.
	// TODO: confirm whether operations routed to the session key or recovery
	// modules need module-specific domains as well.
	remote, ok := r.registry.Get(registry.RemoteValidatorID)
	if !ok || key != remote.NonceKey() {
		r.lggr.Debugw("nonce key set but does not address the remote validator, keeping declared domain",
			"account", account.Hex(),
			"chain", network.ID,
		)

		return resolved, nil
	}

	rpcChainID, err := client.ChainID(ctx)
	if err != nil {
		return Domain{}, fmt.Errorf("failed to query chain id for %s: %w", network.ID, err)
	}

	r.lggr.Infow("operation routed to remote validator, overriding signing domain",
		"account", account.Hex(),
		"chain", network.ID,
		"validator", remote.Address.Hex(),
	)

	version := ""
	if remote.Version != nil {
		version = remote.Version.String()
	}

	return Domain{
		Name:              remote.Name,
		Version:           version,
		ChainID:           rpcChainID,
		VerifyingContract: remote.Address,
	}, nil
}
