package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/govmesh/proposal-signer/pkg/logger"
	"github.com/govmesh/proposal-signer/runner"
)

// batchRunner is the part of runner.Runner the trigger endpoint invokes.
type batchRunner interface {
	Run(ctx context.Context, account common.Address) (*runner.Report, error)
}

// server exposes the run trigger over HTTP. Each request executes one
// synchronous batch run and returns its per-proposal results.
type server struct {
	lggr   logger.Logger
	runner batchRunner

	defaultAccount common.Address
	hasDefault     bool
}

func newServer(lggr logger.Logger, r batchRunner, defaultAccount common.Address, hasDefault bool) *server {
	return &server{
		lggr:           lggr,
		runner:         r,
		defaultAccount: defaultAccount,
		hasDefault:     hasDefault,
	}
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/runs", s.handleRun)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	return mux
}

type runRequest struct {
	Account string `json:"account"`
}

type runResponse struct {
	RunID   string          `json:"run_id"`
	Message string          `json:"message"`
	Results []runner.Result `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	// An empty body is a valid trigger for the configured default account.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	account, ok := s.defaultAccount, s.hasDefault
	if req.Account != "" {
		if !common.IsHexAddress(req.Account) {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid account %q", req.Account))
			return
		}

		account, ok = common.HexToAddress(req.Account), true
	}
	if !ok {
		s.writeError(w, http.StatusBadRequest, "account is required and no default account is configured")
		return
	}

	report, err := s.runner.Run(r.Context(), account)
	if err != nil {
		s.lggr.Errorw("Run failed", "account", account.Hex(), "err", err)
		s.writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	results := report.Results
	if results == nil {
		results = []runner.Result{}
	}

	s.writeJSON(w, http.StatusOK, runResponse{
		RunID:   report.ID,
		Message: report.Message(),
		Results: results,
	})
}

func (s *server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.lggr.Errorw("Failed to write response", "err", err)
	}
}

func (s *server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
