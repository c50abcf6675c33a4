// Package evaluator obtains approve/reject decisions for governance
// proposals from a text-generating reasoning oracle.
package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/govmesh/proposal-signer/pkg/logger"
)

// ErrMalformedVote marks an evaluation whose every attempt produced output
// that did not parse as JSON. Callers treat it as fatal for the one proposal
// being evaluated, not for the whole run.
var ErrMalformedVote = errors.New("malformed oracle vote")

// VoteDecision is the oracle's verdict on one proposal.
type VoteDecision struct {
	Vote   bool   `json:"vote"`
	Reason string `json:"reason"`
}

// Oracle produces a completion for one system instruction.
type Oracle interface {
	Complete(ctx context.Context, instruction string) (string, error)
}

// Evaluator drives the bounded retry protocol around an Oracle.
type Evaluator struct {
	lggr   logger.Logger
	oracle Oracle
}

// NewEvaluator returns an Evaluator backed by the given oracle.
func NewEvaluator(lggr logger.Logger, oracle Oracle) *Evaluator {
	return &Evaluator{
		lggr:   lggr,
		oracle: oracle,
	}
}

// Evaluate submits the proposal content to the oracle and returns its
// decision. Each attempt sends a single system message built from an
// increasingly strict format instruction followed by the content; the first
// response that parses as JSON wins. Once every variant is exhausted the
// returned error wraps ErrMalformedVote.
func (e *Evaluator) Evaluate(ctx context.Context, content string) (VoteDecision, error) {
	var lastErr error
	for i, variant := range promptVariants {
		if err := ctx.Err(); err != nil {
			return VoteDecision{}, err
		}

		raw, err := e.oracle.Complete(ctx, variant+"\n\n"+content)
		if err != nil {
			lastErr = err
			e.lggr.Warnw("Oracle call failed", "attempt", i+1, "err", err)

			continue
		}

		decision, err := parseDecision(raw)
		if err != nil {
			lastErr = err
			e.lggr.Warnw("Oracle response did not parse, escalating format instruction",
				"attempt", i+1, "err", err)

			continue
		}

		return decision, nil
	}

	return VoteDecision{}, fmt.Errorf("%w after %d attempts: %w", ErrMalformedVote, len(promptVariants), lastErr)
}

// parseDecision accepts anything that is valid JSON. Responses that are not
// an object, or whose fields have unexpected types, degrade to zero values
// rather than failing.
func parseDecision(raw string) (VoteDecision, error) {
	var value any
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return VoteDecision{}, fmt.Errorf("failed to parse oracle response as JSON: %w", err)
	}

	var decision VoteDecision
	if fields, ok := value.(map[string]any); ok {
		decision.Vote, _ = fields["vote"].(bool)
		decision.Reason, _ = fields["reason"].(string)
	}

	return decision, nil
}
