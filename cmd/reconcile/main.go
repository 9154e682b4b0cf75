// Command reconcile is the operator CLI for one-shot settlement ingestion:
// fetch a processor's settlement file for a window and reconcile it against
// local state, printing the discrepancy report.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"fanztrust.orchestrator/internal/clockwork"
	"fanztrust.orchestrator/internal/config"
	"fanztrust.orchestrator/internal/eventbus"
	"fanztrust.orchestrator/internal/infrastructure/repositories"
	"fanztrust.orchestrator/internal/ledger"
	"fanztrust.orchestrator/internal/orchestrator"
	"fanztrust.orchestrator/internal/processor"
	"fanztrust.orchestrator/internal/settlement"
	"fanztrust.orchestrator/pkg/logger"
)

func main() {
	var (
		processorName string
		batchRef      string
		windowHours   int
	)

	root := &cobra.Command{
		Use:   "reconcile",
		Short: "Fetch and reconcile a processor settlement batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd.Context(), processorName, batchRef, windowHours)
		},
	}
	root.Flags().StringVar(&processorName, "processor", "", "processor id (ccbill, segpay, coingate)")
	root.Flags().StringVar(&batchRef, "batch", "", "processor batch reference")
	root.Flags().IntVar(&windowHours, "window-hours", 24, "settlement window length in hours, ending now")
	_ = root.MarkFlagRequired("processor")
	_ = root.MarkFlagRequired("batch")

	if err := root.ExecuteContext(context.Background()); err != nil {
		log.Fatal(err)
	}
}

func runReconcile(ctx context.Context, processorName, batchRef string, windowHours int) error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	cfg := config.Load()
	clock := clockwork.Real()
	logger.Init(cfg.Server.Env)

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.Database.URL(),
		PreferSimpleProtocol: true,
	}), &gorm.Config{PrepareStmt: false})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	txRepo := repositories.NewTransactionRepository(db)
	txEventRepo := repositories.NewTransactionEventRepository(db)
	settlementRepo := repositories.NewSettlementRepository(db)
	ledgerRepo := repositories.NewLedgerRepository(db)

	lgr := ledger.New(ledgerRepo, clock)
	bus := eventbus.New(nil, clock, "reconcile-cli") // in-process sink only

	adapters := processor.NewRegistry(cfg.Circuit, clock,
		processor.NewCCBill(cfg.Processors.CCBill.BaseURL, processor.Credentials{
			APISecret:     cfg.Processors.CCBill.APISecret,
			WebhookSecret: cfg.Processors.CCBill.WebhookSecret,
		}, cfg.Processors.CCBill.Timeout, clock),
		processor.NewSegPay(cfg.Processors.SegPay.BaseURL, processor.Credentials{
			APISecret:     cfg.Processors.SegPay.APISecret,
			WebhookSecret: cfg.Processors.SegPay.WebhookSecret,
		}, cfg.Processors.SegPay.Timeout, clock),
		processor.NewCoinGate(cfg.Processors.CoinGate.BaseURL, processor.Credentials{
			APISecret:     cfg.Processors.CoinGate.APISecret,
			WebhookSecret: cfg.Processors.CoinGate.WebhookSecret,
		}, cfg.Processors.CoinGate.Timeout, clock),
	)

	// Only the settle transition is exercised from this CLI; the
	// orchestrator still owns the status write.
	orch := orchestrator.New(orchestrator.Deps{
		Config:      *cfg,
		TxRepo:      txRepo,
		TxEventRepo: txEventRepo,
		Ledger:      lgr,
		Adapters:    adapters,
		Bus:         bus,
		Clock:       clock,
	})

	engine := settlement.New(adapters, txRepo, settlementRepo, orch, lgr, bus, clock)

	windowEnd := clock.Now().UTC()
	windowStart := windowEnd.Add(-time.Duration(windowHours) * time.Hour)
	if err := engine.OnSettlementReady(ctx, processorName, batchRef, windowStart, windowEnd); err != nil {
		return err
	}

	s, err := settlementRepo.FindByBatchRef(ctx, processorName, batchRef)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "batch %s reconciled: gross=%s fees=%s net=%s\n", batchRef, s.Gross, s.Fees, s.Net)
	fmt.Fprintf(os.Stdout, "discrepancies: %d missing, %d unexpected, %d mismatched\n",
		len(s.Discrepancy.MissingTxIDs), len(s.Discrepancy.UnexpectedTxIDs), len(s.Discrepancy.AmountMismatches))
	return nil
}
