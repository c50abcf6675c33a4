// Package memory provides an in-process implementation of the proposal and
// outcome stores for development and tests. Data lives in a private ramsql
// instance and disappears with the Store.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/segmentio/ksuid"

	"github.com/govmesh/proposal-signer/pkg/logger"
	"github.com/govmesh/proposal-signer/store"

	_ "github.com/proullon/ramsql/driver"
)

// ramsql's SQL dialect is narrow, so the schema keeps every value as text or
// an integer, optional columns hold empty strings rather than NULL, and
// window filtering, outcome exclusion and ordering happen in Go.
const (
	sCHEMA_PROPOSALS = `
		CREATE TABLE proposals (
			userop_hash                      TEXT,
			sender_address                   TEXT,
			nonce                            TEXT,
			call_data                        TEXT,
			verification_gas_limit           TEXT,
			call_gas_limit                   TEXT,
			pre_verification_gas             TEXT,
			max_fee_per_gas                  TEXT,
			max_priority_fee_per_gas         TEXT,
			factory_address                  TEXT,
			factory_data                     TEXT,
			paymaster_address                TEXT,
			paymaster_verification_gas_limit TEXT,
			paymaster_post_op_gas_limit      TEXT,
			paymaster_data                   TEXT,
			chain_id                         TEXT,
			content                          TEXT,
			created_at                       BIGINT
		)`

	sCHEMA_OUTCOMES = `
		CREATE TABLE outcomes (
			signer_address  TEXT,
			account_address TEXT,
			userop_hash     TEXT,
			signature       TEXT,
			reason          TEXT,
			created_at      BIGINT
		)`
)

const (
	query_PROPOSALS_BY_SENDER = `
		SELECT userop_hash, nonce, call_data,
			verification_gas_limit, call_gas_limit, pre_verification_gas,
			max_fee_per_gas, max_priority_fee_per_gas,
			factory_address, factory_data,
			paymaster_address, paymaster_verification_gas_limit,
			paymaster_post_op_gas_limit, paymaster_data,
			chain_id, content, created_at
		FROM proposals
		WHERE sender_address = $1`

	query_OUTCOME_HASHES_BY_SIGNER = `
		SELECT userop_hash FROM outcomes
		WHERE signer_address = $1`

	query_OUTCOME_EXISTS = `
		SELECT userop_hash FROM outcomes
		WHERE signer_address = $1 AND userop_hash = $2`

	query_INSERT_PROPOSAL = `
		INSERT INTO proposals (userop_hash, sender_address, nonce, call_data,
			verification_gas_limit, call_gas_limit, pre_verification_gas,
			max_fee_per_gas, max_priority_fee_per_gas,
			factory_address, factory_data,
			paymaster_address, paymaster_verification_gas_limit,
			paymaster_post_op_gas_limit, paymaster_data,
			chain_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	query_INSERT_OUTCOME = `
		INSERT INTO outcomes (signer_address, account_address, userop_hash, signature, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
)

// Store implements store.ProposalSource and store.OutcomeStore entirely in
// process. Each Store owns a fresh database, so separate instances never
// share state. It is safe for concurrent use but does not survive restarts.
type Store struct {
	lggr logger.Logger

	mu sync.Mutex
	db *sql.DB
}

var (
	_ store.ProposalSource = &Store{}
	_ store.OutcomeStore   = &Store{}
)

// NewStore opens a private in-memory database and applies the schema.
func NewStore(lggr logger.Logger) (*Store, error) {
	db, err := sql.Open("ramsql", "proposal-signer-"+ksuid.New().String())
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}

	for _, schema := range []string{sCHEMA_PROPOSALS, sCHEMA_OUTCOMES} {
		if _, err := db.Exec(schema); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &Store{lggr: lggr, db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// PendingProposals returns the backlog for account, oldest first, restricted
// to proposals created within window and excluding any proposal the signer
// already recorded an outcome for.
func (s *Store) PendingProposals(ctx context.Context, account, signer common.Address, window time.Duration) ([]store.Proposal, error) {
	if window <= 0 {
		window = store.DefaultWindow
	}
	cutoff := time.Now().Add(-window)

	s.mu.Lock()
	defer s.mu.Unlock()

	recorded, err := s.recordedHashes(ctx, signer)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query_PROPOSALS_BY_SENDER, strings.ToLower(account.Hex()))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending proposals: %w", err)
	}
	defer rows.Close()

	var proposals []store.Proposal
	for rows.Next() {
		p, err := scanProposal(rows, account)
		if err != nil {
			return nil, err
		}
		if p.CreatedAt.Before(cutoff) {
			continue
		}
		if recorded[p.UserOpHash] {
			continue
		}
		proposals = append(proposals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending proposals: %w", err)
	}

	sort.SliceStable(proposals, func(i, j int) bool {
		return proposals[i].CreatedAt.Before(proposals[j].CreatedAt)
	})

	return proposals, nil
}

// RecordOutcome inserts the outcome for one proposal. Recording the same
// (signer, hash) pair twice is a no-op.
func (s *Store) RecordOutcome(ctx context.Context, outcome store.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	signerHex := strings.ToLower(outcome.SignerAddress.Hex())
	hashHex := strings.ToLower(outcome.UserOpHash.Hex())

	exists, err := s.outcomeExists(ctx, signerHex, hashHex)
	if err != nil {
		return err
	}
	if exists {
		s.lggr.Debugw("Outcome already recorded, skipping",
			"signer", outcome.SignerAddress.Hex(), "useropHash", outcome.UserOpHash.Hex())
		return nil
	}

	_, err = s.db.ExecContext(ctx, query_INSERT_OUTCOME,
		signerHex,
		strings.ToLower(outcome.AccountAddress.Hex()),
		hashHex,
		outcome.Signature,
		outcome.Reason,
		time.Now().UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome for %s: %w", outcome.UserOpHash.Hex(), err)
	}

	return nil
}

// InsertProposal stores one pending proposal.
func (s *Store) InsertProposal(ctx context.Context, p store.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, query_INSERT_PROPOSAL,
		strings.ToLower(p.UserOpHash.Hex()),
		strings.ToLower(p.Sender.Hex()),
		encodeNumeric(p.Nonce),
		hexutil.Encode(p.CallData),
		encodeNumeric(p.VerificationGasLimit),
		encodeNumeric(p.CallGasLimit),
		encodeNumeric(p.PreVerificationGas),
		encodeNumeric(p.MaxFeePerGas),
		encodeNumeric(p.MaxPriorityFeePerGas),
		encodeAddress(p.Factory),
		hexutil.Encode(p.FactoryData),
		encodeAddress(p.Paymaster),
		encodeNullableNumeric(p.PaymasterVerificationGasLimit),
		encodeNullableNumeric(p.PaymasterPostOpGasLimit),
		hexutil.Encode(p.PaymasterData),
		p.Chain,
		p.Content,
		createdAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert proposal %s: %w", p.UserOpHash.Hex(), err)
	}

	return nil
}

func (s *Store) recordedHashes(ctx context.Context, signer common.Address) (map[common.Hash]bool, error) {
	rows, err := s.db.QueryContext(ctx, query_OUTCOME_HASHES_BY_SIGNER, strings.ToLower(signer.Hex()))
	if err != nil {
		return nil, fmt.Errorf("failed to query recorded outcomes: %w", err)
	}
	defer rows.Close()

	recorded := make(map[common.Hash]bool)
	for rows.Next() {
		var hashHex string
		if err := rows.Scan(&hashHex); err != nil {
			return nil, fmt.Errorf("failed to scan outcome row: %w", err)
		}
		recorded[common.HexToHash(hashHex)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outcome rows: %w", err)
	}

	return recorded, nil
}

func (s *Store) outcomeExists(ctx context.Context, signerHex, hashHex string) (bool, error) {
	rows, err := s.db.QueryContext(ctx, query_OUTCOME_EXISTS, signerHex, hashHex)
	if err != nil {
		return false, fmt.Errorf("failed to query outcome: %w", err)
	}
	defer rows.Close()

	exists := rows.Next()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("failed to iterate outcome rows: %w", err)
	}

	return exists, nil
}

func scanProposal(rows *sql.Rows, sender common.Address) (store.Proposal, error) {
	var (
		hashHex, chain, content                            string
		nonce, verGas, callGas, preVerGas, maxFee, maxPrio string
		callData, factoryData, paymasterData               string
		factoryHex, paymasterHex                           string
		pmVerGas, pmPostOpGas                              string
		createdAtNanos                                     int64
	)
	err := rows.Scan(&hashHex, &nonce, &callData,
		&verGas, &callGas, &preVerGas,
		&maxFee, &maxPrio,
		&factoryHex, &factoryData,
		&paymasterHex, &pmVerGas,
		&pmPostOpGas, &paymasterData,
		&chain, &content, &createdAtNanos,
	)
	if err != nil {
		return store.Proposal{}, fmt.Errorf("failed to scan proposal row: %w", err)
	}

	p := store.Proposal{
		UserOpHash: common.HexToHash(hashHex),
		Sender:     sender,
		Chain:      chain,
		Content:    content,
		CreatedAt:  time.Unix(0, createdAtNanos).UTC(),
	}

	for _, col := range []struct {
		name  string
		value string
		dst   **big.Int
	}{
		{"nonce", nonce, &p.Nonce},
		{"verification_gas_limit", verGas, &p.VerificationGasLimit},
		{"call_gas_limit", callGas, &p.CallGasLimit},
		{"pre_verification_gas", preVerGas, &p.PreVerificationGas},
		{"max_fee_per_gas", maxFee, &p.MaxFeePerGas},
		{"max_priority_fee_per_gas", maxPrio, &p.MaxPriorityFeePerGas},
	} {
		n, err := decodeNumeric(col.name, col.value)
		if err != nil {
			return store.Proposal{}, err
		}
		*col.dst = n
	}

	if p.CallData, err = decodeBytes("call_data", callData); err != nil {
		return store.Proposal{}, err
	}
	if p.FactoryData, err = decodeBytes("factory_data", factoryData); err != nil {
		return store.Proposal{}, err
	}
	if p.PaymasterData, err = decodeBytes("paymaster_data", paymasterData); err != nil {
		return store.Proposal{}, err
	}

	if factoryHex != "" {
		addr := common.HexToAddress(factoryHex)
		p.Factory = &addr
	}
	if paymasterHex != "" {
		addr := common.HexToAddress(paymasterHex)
		p.Paymaster = &addr
	}
	if p.PaymasterVerificationGasLimit, err = decodeNullableNumeric("paymaster_verification_gas_limit", pmVerGas); err != nil {
		return store.Proposal{}, err
	}
	if p.PaymasterPostOpGasLimit, err = decodeNullableNumeric("paymaster_post_op_gas_limit", pmPostOpGas); err != nil {
		return store.Proposal{}, err
	}

	return p, nil
}

func encodeNumeric(n *big.Int) string {
	if n == nil {
		return "0"
	}

	return n.String()
}

func encodeNullableNumeric(n *big.Int) string {
	if n == nil {
		return ""
	}

	return n.String()
}

func decodeNumeric(column, value string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("failed to parse %s value %q", column, value)
	}

	return n, nil
}

func decodeNullableNumeric(column, value string) (*big.Int, error) {
	if value == "" {
		return nil, nil
	}

	return decodeNumeric(column, value)
}

func encodeAddress(a *common.Address) string {
	if a == nil {
		return ""
	}

	return strings.ToLower(a.Hex())
}

func decodeBytes(column, value string) ([]byte, error) {
	if value == "" || value == "0x" {
		return nil, nil
	}

	b, err := hexutil.Decode(value)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s value %q: %w", column, value, err)
	}

	return b, nil
}
