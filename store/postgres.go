package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/govmesh/proposal-signer/pkg/logger"
)

const (
	// DefaultQueryRetries is how many times a failed backlog query is retried
	// after the initial attempt.
	DefaultQueryRetries = 3
	// DefaultQueryBackoff is the base wait between attempts. The wait before
	// retry n is n times this value, so the defaults yield 1s, 2s, 3s.
	DefaultQueryBackoff = 1 * time.Second
	// DefaultQueryTimeout bounds each individual database call.
	DefaultQueryTimeout = 10 * time.Second
)

const (
	query_PENDING_PROPOSALS = `
		SELECT userop_hash, sender_address, nonce, call_data,
			verification_gas_limit, call_gas_limit, pre_verification_gas,
			max_fee_per_gas, max_priority_fee_per_gas,
			factory_address, factory_data,
			paymaster_address, paymaster_verification_gas_limit,
			paymaster_post_op_gas_limit, paymaster_data,
			chain_id, content, created_at
		FROM proposals p
		WHERE p.sender_address = $1
			AND p.created_at >= $2
			AND NOT EXISTS (
				SELECT 1 FROM outcomes o
				WHERE o.userop_hash = p.userop_hash
					AND o.signer_address = $3
			)
		ORDER BY p.created_at ASC`

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
		INSERT INTO outcomes (signer_address, account_address, userop_hash, signature, reason)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (signer_address, userop_hash) DO NOTHING`
)

// PostgresStore reads the proposal backlog and records outcomes in Postgres.
// It implements both ProposalSource and OutcomeStore. The caller owns the
// database handle and its pool configuration.
type PostgresStore struct {
	lggr logger.Logger
	db   *sql.DB

	queryTimeout time.Duration
	retries      uint
	backoff      time.Duration
}

var (
	_ ProposalSource = &PostgresStore{}
	_ OutcomeStore   = &PostgresStore{}
)

// PostgresStoreOpt configures a PostgresStore.
type PostgresStoreOpt func(*PostgresStore)

// WithQueryTimeout overrides the per-call deadline applied to every database
// operation.
func WithQueryTimeout(d time.Duration) PostgresStoreOpt {
	return func(s *PostgresStore) {
		s.queryTimeout = d
	}
}

// WithRetry overrides how often and how fast a failed backlog query is
// retried. The wait before retry n is n times backoff.
func WithRetry(retries uint, backoff time.Duration) PostgresStoreOpt {
	return func(s *PostgresStore) {
		s.retries = retries
		s.backoff = backoff
	}
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(lggr logger.Logger, db *sql.DB, opts ...PostgresStoreOpt) *PostgresStore {
	s := &PostgresStore{
		lggr:         lggr,
		db:           db,
		queryTimeout: DefaultQueryTimeout,
		retries:      DefaultQueryRetries,
		backoff:      DefaultQueryBackoff,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Migrate creates the proposal and outcome tables when they do not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, schema := range []string{sCHEMA_PROPOSALS, sCHEMA_OUTCOMES} {
		if _, err := s.db.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	return nil
}

// PendingProposals returns the backlog for account, oldest first, restricted
// to proposals created within window and excluding any proposal the signer
// already recorded an outcome for. Failed queries are retried with linearly
// increasing backoff; once the retries are exhausted the returned error wraps
// ErrQueryExhausted and the caller should abort the whole run.
func (s *PostgresStore) PendingProposals(ctx context.Context, account, signer common.Address, window time.Duration) ([]Proposal, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	cutoff := time.Now().Add(-window)
	traceID := uuid.NewString()

	var proposals []Proposal
	err := retry.Do(func() error {
		rows, err := s.queryPending(ctx, account, signer, cutoff)
		if err != nil {
			return err
		}
		proposals = rows

		return nil
	},
		retry.Context(ctx),
		retry.Attempts(1+s.retries),
		retry.DelayType(func(n uint, _ error, _ *retry.Config) time.Duration {
			return time.Duration(n+1) * s.backoff
		}),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			s.lggr.Warnw("Pending proposal query failed",
				"account", account.Hex(), "attempt", n+1, "traceID", traceID, "err", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w for account %s: %w", ErrQueryExhausted, account.Hex(), err)
	}

	return proposals, nil
}

func (s *PostgresStore) queryPending(ctx context.Context, account, signer common.Address, cutoff time.Time) ([]Proposal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query_PENDING_PROPOSALS,
		strings.ToLower(account.Hex()), cutoff, strings.ToLower(signer.Hex()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending proposals: %w", err)
	}
	defer rows.Close()

	var proposals []Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		proposals = append(proposals, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending proposals: %w", err)
	}

	return proposals, nil
}

// RecordOutcome inserts the outcome for one proposal. The outcomes table is
// unique per (signer_address, userop_hash) and the insert does nothing on
// conflict, so recording the same pair twice is a no-op.
func (s *PostgresStore) RecordOutcome(ctx context.Context, outcome Outcome) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx, query_INSERT_OUTCOME,
		strings.ToLower(outcome.SignerAddress.Hex()),
		strings.ToLower(outcome.AccountAddress.Hex()),
		strings.ToLower(outcome.UserOpHash.Hex()),
		outcome.Signature,
		outcome.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome for %s: %w", outcome.UserOpHash.Hex(), err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.lggr.Debugw("Outcome already recorded, skipping",
			"signer", outcome.SignerAddress.Hex(), "useropHash", outcome.UserOpHash.Hex())
	}

	return nil
}

// InsertProposal stores one pending proposal. Producers upstream of the
// signer use it; tests use it to seed fixtures.
func (s *PostgresStore) InsertProposal(ctx context.Context, p Proposal) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, query_INSERT_PROPOSAL,
		strings.ToLower(p.UserOpHash.Hex()),
		strings.ToLower(p.Sender.Hex()),
		numericArg(p.Nonce),
		p.CallData,
		numericArg(p.VerificationGasLimit),
		numericArg(p.CallGasLimit),
		numericArg(p.PreVerificationGas),
		numericArg(p.MaxFeePerGas),
		numericArg(p.MaxPriorityFeePerGas),
		addressArg(p.Factory),
		p.FactoryData,
		addressArg(p.Paymaster),
		nullableNumericArg(p.PaymasterVerificationGasLimit),
		nullableNumericArg(p.PaymasterPostOpGasLimit),
		p.PaymasterData,
		p.Chain,
		p.Content,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert proposal %s: %w", p.UserOpHash.Hex(), err)
	}

	return nil
}

func scanProposal(rows *sql.Rows) (Proposal, error) {
	var (
		hashHex, senderHex, chain, content                 string
		nonce, verGas, callGas, preVerGas, maxFee, maxPrio string
		callData, factoryData, paymasterData               []byte
		factoryHex, paymasterHex                           sql.NullString
		pmVerGas, pmPostOpGas                              sql.NullString
		createdAt                                          time.Time
	)
	err := rows.Scan(&hashHex, &senderHex, &nonce, &callData,
		&verGas, &callGas, &preVerGas,
		&maxFee, &maxPrio,
		&factoryHex, &factoryData,
		&paymasterHex, &pmVerGas,
		&pmPostOpGas, &paymasterData,
		&chain, &content, &createdAt,
	)
	if err != nil {
		return Proposal{}, fmt.Errorf("failed to scan proposal row: %w", err)
	}

	p := Proposal{
		UserOpHash:    common.HexToHash(hashHex),
		Sender:        common.HexToAddress(senderHex),
		CallData:      callData,
		FactoryData:   factoryData,
		PaymasterData: paymasterData,
		Chain:         chain,
		Content:       content,
		CreatedAt:     createdAt,
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
		n, err := parseNumeric(col.name, col.value)
		if err != nil {
			return Proposal{}, err
		}
		*col.dst = n
	}

	if factoryHex.Valid {
		addr := common.HexToAddress(factoryHex.String)
		p.Factory = &addr
	}
	if paymasterHex.Valid {
		addr := common.HexToAddress(paymasterHex.String)
		p.Paymaster = &addr
	}
	if p.PaymasterVerificationGasLimit, err = parseNullableNumeric("paymaster_verification_gas_limit", pmVerGas); err != nil {
		return Proposal{}, err
	}
	if p.PaymasterPostOpGasLimit, err = parseNullableNumeric("paymaster_post_op_gas_limit", pmPostOpGas); err != nil {
		return Proposal{}, err
	}

	return p, nil
}

func parseNumeric(column, value string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("failed to parse %s value %q", column, value)
	}

	return n, nil
}

func parseNullableNumeric(column string, value sql.NullString) (*big.Int, error) {
	if !value.Valid {
		return nil, nil
	}

	return parseNumeric(column, value.String)
}

func numericArg(n *big.Int) string {
	if n == nil {
		return "0"
	}

	return n.String()
}

func nullableNumericArg(n *big.Int) any {
	if n == nil {
		return nil
	}

	return n.String()
}

func addressArg(a *common.Address) any {
	if a == nil {
		return nil
	}

	return strings.ToLower(a.Hex())
}
