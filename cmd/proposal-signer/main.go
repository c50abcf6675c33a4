// The proposal-signer binary wires the signing pipeline together and serves
// the HTTP trigger. POST /v1/runs executes one synchronous batch run over the
// pending proposal backlog of an account.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/govmesh/proposal-signer/config"
	"github.com/govmesh/proposal-signer/evaluator"
	"github.com/govmesh/proposal-signer/pkg/logger"
	"github.com/govmesh/proposal-signer/registry"
	"github.com/govmesh/proposal-signer/runner"
	"github.com/govmesh/proposal-signer/signer"
	"github.com/govmesh/proposal-signer/store"
)

const (
	defaultListenAddr     = ":8080"
	serverShutdownTimeout = 10 * time.Second
	serverReadHeaderLimit = 10 * time.Second
)

func main() {
	lggr, err := logger.New()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = lggr.Sync() }()

	if err := run(lggr); err != nil {
		lggr.Fatalf("proposal-signer failed: %v", err)
	}
}

func run(lggr logger.Logger) error {
	configPath := flag.String("config", "config.yml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err = db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	st := store.NewPostgresStore(lggr, db)
	if err = st.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	oracle, err := evaluator.NewOracleClient(cfg.Oracle.BaseURL, cfg.Oracle.APIKey, cfg.Oracle.Model)
	if err != nil {
		return fmt.Errorf("failed to build oracle client: %w", err)
	}

	reg := registry.Default()
	if cfg.Registry.Path != "" {
		if reg, err = registry.LoadFile(cfg.Registry.Path); err != nil {
			return fmt.Errorf("failed to load validator registry: %w", err)
		}
	}

	kms, err := signer.NewKMSSigner(ctx, cfg.KMS.KeyID, cfg.KMS.KeyRegion, cfg.KMS.AWSProfile)
	if err != nil {
		return fmt.Errorf("failed to initialize KMS signer: %w", err)
	}
	lggr.Infow("KMS signer ready", "address", kms.Address().Hex())

	resolver := signer.NewDomainResolver(lggr, reg, signer.WithRPCURLs(cfg.Chains.RPCURLs))

	var opts []runner.RunnerOpt
	if cfg.Runner.WindowHours > 0 {
		opts = append(opts, runner.WithWindow(time.Duration(cfg.Runner.WindowHours)*time.Hour))
	}

	rnr, err := runner.NewRunner(lggr, runner.Deps{
		Source:    st,
		Outcomes:  st,
		Evaluator: evaluator.NewEvaluator(lggr, oracle),
		Resolver:  resolver,
		Signer:    kms,
	}, opts...)
	if err != nil {
		return fmt.Errorf("failed to build runner: %w", err)
	}

	defaultAccount, hasDefault := cfg.DefaultAccount()
	srv := newServer(lggr, rnr, defaultAccount, hasDefault)

	listenAddr := cfg.Server.ListenAddr
	if listenAddr == "" {
		listenAddr = defaultListenAddr
	}

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: serverReadHeaderLimit,
	}

	errCh := make(chan error, 1)
	go func() {
		lggr.Infow("Listening for run triggers", "addr", listenAddr)
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	select {
	case err = <-errCh:
		return fmt.Errorf("HTTP server failed: %w", err)
	case <-ctx.Done():
	}

	lggr.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	if err = httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}

	return nil
}
