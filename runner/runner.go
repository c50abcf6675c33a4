// Package runner orchestrates one batch run of the signing pipeline: fetch
// the pending backlog, evaluate each proposal, sign the approved ones and
// record every outcome.
package runner

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/govmesh/proposal-signer/evaluator"
	"github.com/govmesh/proposal-signer/pkg/logger"
	"github.com/govmesh/proposal-signer/signer"
	"github.com/govmesh/proposal-signer/store"
	"github.com/govmesh/proposal-signer/userop"
)

// Evaluator votes on one proposal's content.
type Evaluator interface {
	Evaluate(ctx context.Context, content string) (evaluator.VoteDecision, error)
}

// DomainResolver yields the EIP-712 domain an operation must be signed
// under.
type DomainResolver interface {
	Resolve(ctx context.Context, account common.Address, chainID string, nonce *big.Int) (signer.Domain, error)
}

// Deps carries the collaborators a Runner needs.
type Deps struct {
	Source    store.ProposalSource
	Outcomes  store.OutcomeStore
	Evaluator Evaluator
	Resolver  DomainResolver
	Signer    signer.TypedDataSigner
}

func (d Deps) validate() error {
	if d.Source == nil {
		return errors.New("proposal source is required")
	}
	if d.Outcomes == nil {
		return errors.New("outcome store is required")
	}
	if d.Evaluator == nil {
		return errors.New("evaluator is required")
	}
	if d.Resolver == nil {
		return errors.New("domain resolver is required")
	}
	if d.Signer == nil {
		return errors.New("signer is required")
	}

	return nil
}

// Runner drives the sequential signing pipeline. Proposals within a run are
// processed strictly in creation order because operations from the same
// sender share a nonce space.
type Runner struct {
	lggr   logger.Logger
	deps   Deps
	window time.Duration
}

// RunnerOpt configures a Runner.
type RunnerOpt func(*Runner)

// WithWindow overrides how far back the backlog query looks.
func WithWindow(window time.Duration) RunnerOpt {
	return func(r *Runner) {
		r.window = window
	}
}

// NewRunner validates the dependency set and returns a Runner.
func NewRunner(lggr logger.Logger, deps Deps, opts ...RunnerOpt) (*Runner, error) {
	if err := deps.validate(); err != nil {
		return nil, fmt.Errorf("invalid runner dependencies: %w", err)
	}

	r := &Runner{
		lggr:   lggr,
		deps:   deps,
		window: store.DefaultWindow,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Run processes the pending backlog for account and reports per-proposal
// results. A failure while fetching the backlog aborts the run; a failure
// while processing one proposal is recorded as that proposal's outcome and
// the loop continues with its siblings.
func (r *Runner) Run(ctx context.Context, account common.Address) (*Report, error) {
	report := &Report{
		ID:        newRunID(),
		Account:   account,
		StartedAt: time.Now().UTC(),
	}

	signerAddr := r.deps.Signer.Address()
	proposals, err := r.deps.Source.PendingProposals(ctx, account, signerAddr, r.window)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending proposals: %w", err)
	}

	r.lggr.Infow("Starting proposal run",
		"runID", report.ID, "account", account.Hex(), "signer", signerAddr.Hex(), "pending", len(proposals))

	for _, p := range proposals {
		report.Results = append(report.Results, r.processProposal(ctx, p))
	}

	report.FinishedAt = time.Now().UTC()
	r.lggr.Infow("Finished proposal run", "runID", report.ID, "summary", report.Message())

	return report, nil
}

func (r *Runner) processProposal(ctx context.Context, p store.Proposal) Result {
	decision, err := r.deps.Evaluator.Evaluate(ctx, p.Content)
	if err != nil {
		return r.recordError(ctx, p, "evaluation failed", err)
	}

	if !decision.Vote {
		r.lggr.Infow("Proposal rejected by oracle",
			"useropHash", p.UserOpHash.Hex(), "reason", decision.Reason)

		return r.record(ctx, p, StatusRejected, "", decision.Reason)
	}

	packed, err := userop.Pack(p.Operation())
	if err != nil {
		return r.recordError(ctx, p, "packing failed", err)
	}

	domain, err := r.deps.Resolver.Resolve(ctx, p.Sender, p.Chain, p.Nonce)
	if err != nil {
		return r.recordError(ctx, p, "domain resolution failed", err)
	}

	signature, err := r.deps.Signer.SignTypedData(ctx, domain, packed)
	if err != nil {
		return r.recordError(ctx, p, "signing failed", err)
	}

	r.lggr.Infow("Proposal approved and signed",
		"useropHash", p.UserOpHash.Hex(), "domain", domain.Name, "reason", decision.Reason)

	return r.record(ctx, p, StatusSuccess, signature, decision.Reason)
}

// recordError stores an empty-signature outcome describing the failure and
// classifies the proposal as errored.
func (r *Runner) recordError(ctx context.Context, p store.Proposal, stage string, cause error) Result {
	r.lggr.Errorw("Proposal processing failed",
		"useropHash", p.UserOpHash.Hex(), "stage", stage, "err", cause)

	return r.record(ctx, p, StatusError, "", fmt.Sprintf("%s: %v", stage, cause))
}

// record persists the outcome and converts it into the proposal's result. A
// failed write downgrades the result to StatusError so a later run can retry
// the proposal once the store recovers.
func (r *Runner) record(ctx context.Context, p store.Proposal, status Status, signature, reason string) Result {
	err := r.deps.Outcomes.RecordOutcome(ctx, store.Outcome{
		SignerAddress:  r.deps.Signer.Address(),
		AccountAddress: p.Sender,
		UserOpHash:     p.UserOpHash,
		Signature:      signature,
		Reason:         reason,
	})
	if err != nil {
		r.lggr.Errorw("Failed to record outcome",
			"useropHash", p.UserOpHash.Hex(), "status", status, "err", err)

		return Result{
			UserOpHash: p.UserOpHash,
			Status:     StatusError,
			Reason:     fmt.Sprintf("failed to record outcome: %v", err),
		}
	}

	return Result{UserOpHash: p.UserOpHash, Status: status, Reason: reason}
}
