// The proposal-seed binary loads proposal documents from a YAML file into the
// proposal table. It exists for local development and operational backfills;
// production proposals arrive through the upstream governance pipeline.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/govmesh/proposal-signer/config"
	"github.com/govmesh/proposal-signer/pkg/logger"
	"github.com/govmesh/proposal-signer/store"
)

func main() {
	lggr, err := logger.New()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = lggr.Sync() }()

	if err := run(lggr); err != nil {
		lggr.Fatalf("proposal-seed failed: %v", err)
	}
}

func run(lggr logger.Logger) error {
	configPath := flag.String("config", "config.yml", "path to the YAML config file")
	filePath := flag.String("file", "proposals.yml", "path to the proposal document to load")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Database.URL == "" {
		return errors.New("database URL is required")
	}

	data, err := os.ReadFile(*filePath)
	if err != nil {
		return fmt.Errorf("failed to read proposal document: %w", err)
	}

	proposals, err := decodeProposals(data)
	if err != nil {
		return fmt.Errorf("failed to decode proposal document: %w", err)
	}
	if len(proposals) == 0 {
		return errors.New("proposal document contains no proposals")
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

	for _, p := range proposals {
		if err = st.InsertProposal(ctx, p); err != nil {
			return fmt.Errorf("failed to insert proposal %s: %w", p.UserOpHash.Hex(), err)
		}

		lggr.Infow("Inserted proposal", "useropHash", p.UserOpHash.Hex(), "chain", p.Chain)
	}

	lggr.Infow("Seeding complete", "count", len(proposals))

	return nil
}
