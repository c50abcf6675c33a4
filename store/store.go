// Package store persists the proposal backlog and the per-signer outcome
// records. The Postgres implementation is the production store; an in-memory
// variant for development and tests lives in the memory subpackage.
package store

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/govmesh/proposal-signer/userop"
)

// DefaultWindow bounds how far back the backlog query looks when the caller
// does not supply a window.
const DefaultWindow = 24 * time.Hour

// ErrQueryExhausted marks a backlog query that still failed after every
// retry. Callers treat it as fatal for the whole run rather than for a single
// proposal.
var ErrQueryExhausted = errors.New("pending proposal query exhausted retries")

// Proposal is one pending user operation awaiting a signing decision. Rows
// are produced upstream and are immutable from this service's point of view.
type Proposal struct {
	// UserOpHash is the canonical hash of the packed operation, unique per
	// proposal.
	UserOpHash common.Hash
	// Sender is the smart account the operation executes from.
	Sender common.Address
	// Nonce is the full 256-bit account nonce.
	Nonce    *big.Int
	CallData []byte

	VerificationGasLimit *big.Int
	CallGasLimit         *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int

	// Factory and FactoryData are set only for counterfactual deployments.
	Factory     *common.Address
	FactoryData []byte

	// Paymaster fields are set only for sponsored operations.
	Paymaster                     *common.Address
	PaymasterVerificationGasLimit *big.Int
	PaymasterPostOpGasLimit       *big.Int
	PaymasterData                 []byte

	// Chain is the network identifier the operation targets, e.g.
	// "base-sepolia".
	Chain string
	// Content is the human-readable proposal text submitted to the vote
	// oracle.
	Content string
	// CreatedAt orders the backlog; processing is strictly oldest first.
	CreatedAt time.Time
}

// Operation maps the stored row onto the packer's logical operation.
func (p Proposal) Operation() userop.Operation {
	return userop.Operation{
		Sender:                        p.Sender,
		Nonce:                         p.Nonce,
		CallData:                      p.CallData,
		VerificationGasLimit:          p.VerificationGasLimit,
		CallGasLimit:                  p.CallGasLimit,
		PreVerificationGas:            p.PreVerificationGas,
		MaxPriorityFeePerGas:          p.MaxPriorityFeePerGas,
		MaxFeePerGas:                  p.MaxFeePerGas,
		Factory:                       p.Factory,
		FactoryData:                   p.FactoryData,
		Paymaster:                     p.Paymaster,
		PaymasterVerificationGasLimit: p.PaymasterVerificationGasLimit,
		PaymasterPostOpGasLimit:       p.PaymasterPostOpGasLimit,
		PaymasterData:                 p.PaymasterData,
	}
}

// Outcome is the per-signer record of a decision for one proposal. An empty
// Signature encodes a rejection; a non-empty Signature is the hex-encoded
// authorization produced for an approved operation.
type Outcome struct {
	SignerAddress  common.Address
	AccountAddress common.Address
	UserOpHash     common.Hash
	Signature      string
	Reason         string
}

// ProposalSource yields the pending backlog for one account, oldest first,
// excluding proposals the signer already recorded an outcome for.
type ProposalSource interface {
	PendingProposals(ctx context.Context, account, signer common.Address, window time.Duration) ([]Proposal, error)
}

// OutcomeStore records at most one outcome per (signer, user operation hash)
// pair. Recording an already-recorded pair is a no-op, not an error.
type OutcomeStore interface {
	RecordOutcome(ctx context.Context, outcome Outcome) error
}
