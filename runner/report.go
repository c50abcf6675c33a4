package runner

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/segmentio/ksuid"
)

// Status classifies the terminal state of one proposal within a run.
type Status string

const (
	// StatusSuccess means the proposal was approved, signed and recorded.
	StatusSuccess Status = "success"
	// StatusRejected means the oracle voted against the proposal and an
	// empty-signature outcome was recorded.
	StatusRejected Status = "rejected"
	// StatusError means processing the proposal failed; its siblings were
	// still processed.
	StatusError Status = "error"
)

// Result is the terminal state of one proposal.
type Result struct {
	UserOpHash common.Hash `json:"userop_hash"`
	Status     Status      `json:"status"`
	Reason     string      `json:"reason,omitempty"`
}

// Report summarizes one batch run.
type Report struct {
	ID         string         `json:"run_id"`
	Account    common.Address `json:"account"`
	Results    []Result       `json:"results"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}

// Message is a one-line human summary of the run.
func (r *Report) Message() string {
	var signed, rejected, failed int
	for _, res := range r.Results {
		switch res.Status {
		case StatusSuccess:
			signed++
		case StatusRejected:
			rejected++
		case StatusError:
			failed++
		}
	}

	return fmt.Sprintf("processed %d proposals: %d signed, %d rejected, %d failed",
		len(r.Results), signed, rejected, failed)
}

// newRunID generates a new run ID.
func newRunID() string {
	return "run_" + ksuid.New().String()
}
