package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"fanztrust.orchestrator/internal/approval"
	"fanztrust.orchestrator/internal/clockwork"
	"fanztrust.orchestrator/internal/config"
	"fanztrust.orchestrator/internal/domain/entities"
	domainrepos "fanztrust.orchestrator/internal/domain/repositories"
	"fanztrust.orchestrator/internal/eventbus"
	"fanztrust.orchestrator/internal/idempotency"
	"fanztrust.orchestrator/internal/infrastructure/cache"
	"fanztrust.orchestrator/internal/infrastructure/repositories"
	"fanztrust.orchestrator/internal/ledger"
	"fanztrust.orchestrator/internal/orchestrator"
	"fanztrust.orchestrator/internal/processor"
	"fanztrust.orchestrator/internal/router"
	"fanztrust.orchestrator/internal/settlement"
	"fanztrust.orchestrator/internal/trust"
	"fanztrust.orchestrator/internal/webhook"
	"fanztrust.orchestrator/pkg/logger"
	"fanztrust.orchestrator/pkg/redisx"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	clock := clockwork.Real()

	logger.Init(cfg.Server.Env)
	logger.Info(context.Background(), "Logger initialized", zap.String("env", cfg.Server.Env))

	if err := redisx.Init(cfg.Redis.URL, cfg.Redis.Password); err != nil {
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	logger.Info(context.Background(), "Redis initialized")

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.Database.URL(),
		PreferSimpleProtocol: true,
	}), &gorm.Config{PrepareStmt: false})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get generic database object: %w", err)
	}
	defer sqlDB.Close()
	if err := sqlDB.Ping(); err != nil {
		log.Printf("database not available: %v (endpoints will return errors)", err)
	} else {
		log.Println("connected to PostgreSQL via GORM")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Repositories.
	txRepo := repositories.NewTransactionRepository(db)
	txEventRepo := repositories.NewTransactionEventRepository(db)
	refundRepo := repositories.NewRefundRepository(db)
	disputeRepo := repositories.NewDisputeRepository(db)
	settlementRepo := repositories.NewSettlementRepository(db)
	payoutRepo := repositories.NewPayoutRepository(db)
	batchRepo := repositories.NewPayoutBatchRepository(db)
	merchantRepo := repositories.NewMerchantAccountRepository(db)
	ruleRepo := repositories.NewRoutingRuleRepository(db)
	trustScoreRepo := repositories.NewTrustScoreRepository(db)
	approvalRepo := repositories.NewApprovalRepository(db)
	ledgerRepo := repositories.NewLedgerRepository(db)
	uow := repositories.NewUnitOfWork(db)

	// Core services.
	lgr := ledger.New(ledgerRepo, clock)
	idemStore := idempotency.New(redisx.GetClient(), clock)
	bus := eventbus.New(redisx.GetClient(), clock, "fanztrust-orchestrator")

	velocity := trust.NewVelocityTracker(clock, time.Hour)
	trustEngine := trust.NewEngine(
		[]trust.Collector{
			trust.NewDeviceCollector(velocity),
			trust.NewNetworkCollector(velocity, nil),
			trust.NewPaymentCollector(nil),
			trust.NewBehavioralCollector(nil),
			trust.NewPlatformCollector(nil),
		},
		trust.Weights{
			Device:     cfg.Trust.WeightDevice,
			Network:    cfg.Trust.WeightNetwork,
			Payment:    cfg.Trust.WeightPayment,
			Behavioral: cfg.Trust.WeightBehavioral,
			Platform:   cfg.Trust.WeightPlatform,
		},
		cfg.Trust, trustScoreRepo, clock,
	)

	// Snapshot caches refreshed in the background.
	ruleSnap := cache.NewSnapshot[[]*entities.RoutingRule](nil)
	accountSnap := cache.NewSnapshot(map[string]*entities.MerchantAccount{})
	seedSnapshots(ctx, ruleSnap, accountSnap, ruleRepo, merchantRepo)
	go cache.Refresher(ctx, ruleSnap, cfg.Cache.RefreshInterval, ruleRepo.ListActive, "routing_rules")
	go cache.Refresher(ctx, accountSnap, cfg.Cache.RefreshInterval, func(ctx context.Context) (map[string]*entities.MerchantAccount, error) {
		accounts, err := merchantRepo.ListActive(ctx)
		if err != nil {
			return nil, err
		}
		byMID := make(map[string]*entities.MerchantAccount, len(accounts))
		for _, a := range accounts {
			byMID[a.MID] = a
		}
		return byMID, nil
	}, "merchant_accounts")

	volume := router.NewRollingVolume(clock)
	rt := router.New(ruleSnap, accountSnap, volume, cfg.Routing)

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
	log.Printf("registered processors: %s", strings.Join(adapters.Names(), ", "))

	approvals := approval.NewQueue(approvalRepo, clock, bus)

	orch := orchestrator.New(orchestrator.Deps{
		Config:      *cfg,
		TxRepo:      txRepo,
		TxEventRepo: txEventRepo,
		RefundRepo:  refundRepo,
		DisputeRepo: disputeRepo,
		PayoutRepo:  payoutRepo,
		BatchRepo:   batchRepo,
		UnitOfWork:  uow,
		Ledger:      lgr,
		Idempotency: idemStore,
		Trust:       trustEngine,
		Router:      rt,
		Adapters:    adapters,
		ResolveMID:  func(mid string) *entities.MerchantAccount { return accountSnap.Load()[mid] },
		Bus:         bus,
		Approvals:   approvals,
		Clock:       clock,
	})

	// Reviewer decisions feed back into the held state machines.
	approvals.OnDecision(func(ctx context.Context, a *entities.Approval) {
		routeDecision(ctx, orch, a)
	})

	settlementEngine := settlement.New(adapters, txRepo, settlementRepo, orch, lgr, bus, clock)
	ingestor := webhook.NewIngestor(adapters, idemStore, orch, settlementEngine, cfg.Webhook, clock)

	sweeper := approval.NewSweeper(approvals, clock, cfg.Approval.SweepInterval)
	go sweeper.Start(ctx)

	r := gin.New()
	r.Use(gin.Recovery())
	webhook.NewHandler(ingestor).Register(r)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: r}
	go func() {
		<-ctx.Done()
		sweeper.Stop()
		_ = srv.Shutdown(context.Background())
	}()

	log.Printf("webhook surface listening on :%s", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// seedSnapshots does a synchronous first load so the router never starts
// against an empty snapshot.
func seedSnapshots(ctx context.Context, ruleSnap *cache.Snapshot[[]*entities.RoutingRule], accountSnap *cache.Snapshot[map[string]*entities.MerchantAccount], ruleRepo domainrepos.RoutingRuleRepository, merchantRepo domainrepos.MerchantAccountRepository) {
	if rules, err := ruleRepo.ListActive(ctx); err == nil {
		ruleSnap.Store(rules)
	}
	if accounts, err := merchantRepo.ListActive(ctx); err == nil {
		byMID := make(map[string]*entities.MerchantAccount, len(accounts))
		for _, a := range accounts {
			byMID[a.MID] = a
		}
		accountSnap.Store(byMID)
	}
}

// routeDecision maps an approval's entity_ref back onto the held workflow.
func routeDecision(ctx context.Context, orch *orchestrator.Orchestrator, a *entities.Approval) {
	approve := a.State == entities.ApprovalApproved
	switch {
	case strings.HasPrefix(a.EntityRef, "transaction:"):
		id, err := parseUUIDRef(a.EntityRef, "transaction:")
		if err != nil {
			return
		}
		if err := orch.ResumeHeldPayment(ctx, id, approve); err != nil {
			logger.Error(ctx, "failed to resume held payment", zap.Error(err), zap.String("approval_id", a.ID))
		}
	case strings.HasPrefix(a.EntityRef, "refund:"):
		id, err := parseUUIDRef(a.EntityRef, "refund:")
		if err != nil {
			return
		}
		if err := orch.ResolveRefundApproval(ctx, id, approve, a.DecisionReason); err != nil {
			logger.Error(ctx, "failed to resolve refund approval", zap.Error(err), zap.String("approval_id", a.ID))
		}
	case strings.HasPrefix(a.EntityRef, "dispute:"):
		id, err := parseUUIDRef(a.EntityRef, "dispute:")
		if err != nil {
			return
		}
		// A denied dispute review concedes the chargeback.
		if err := orch.RespondToDispute(ctx, id, a.DecisionReason, !approve); err != nil {
			logger.Error(ctx, "failed to respond to dispute", zap.Error(err), zap.String("approval_id", a.ID))
		}
	}
}

func parseUUIDRef(ref, prefix string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimPrefix(ref, prefix))
}
