package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	gcommon "github.com/ethereum/go-ethereum/common"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/vaultloop/dca-engine/config"
	"github.com/vaultloop/dca-engine/internal/assets"
	"github.com/vaultloop/dca-engine/internal/bridge"
	"github.com/vaultloop/dca-engine/internal/capability"
	"github.com/vaultloop/dca-engine/internal/exchange"
	"github.com/vaultloop/dca-engine/internal/fixedpoint"
	"github.com/vaultloop/dca-engine/internal/handler"
	"github.com/vaultloop/dca-engine/internal/plan"
	"github.com/vaultloop/dca-engine/internal/router"
	"github.com/vaultloop/dca-engine/internal/scheduler"
	"github.com/vaultloop/dca-engine/internal/tasks"
	"github.com/vaultloop/dca-engine/internal/types"
	"github.com/vaultloop/dca-engine/service"
	"github.com/vaultloop/dca-engine/storage"
	"github.com/vaultloop/dca-engine/storage/postgres"
)

func main() {
	cfg, err := config.GetConfigure()
	if err != nil {
		logrus.Fatalf("Failed to read config: %v", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	sdClient, err := statsd.New(fmt.Sprintf("%s:%s", cfg.Datadog.Host, cfg.Datadog.Port))
	if err != nil {
		logrus.Fatalf("Failed to create statsd client: %v", err)
	}

	db, err := postgres.NewPostgresBackend(cfg.Database.DSN)
	if err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	redisOpts := asynq.RedisClientOpt{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Username: cfg.Redis.User,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	queueClient := asynq.NewClient(redisOpts)
	defer queueClient.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Username: cfg.Redis.User,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	quoteCache := storage.NewQuoteCache(rdb, time.Duration(cfg.QuoteCacheTTLSeconds)*time.Second)

	// Foreign asset registry from config.
	registry := assets.NewStaticRegistry(nil)
	for asset, entry := range cfg.CrossDomain.Assets {
		registry.Register(types.AssetID(asset), assets.ForeignAsset{
			Address:  gcommon.HexToAddress(entry.Address),
			Decimals: entry.Decimals,
			Native:   entry.Native,
		})
	}
	classifier := assets.PairClassifier{Registry: registry}

	// Capability tokens over the owner's asset accounts. The in-process
	// ledger accounts stand in until external account adapters are wired.
	sourceAccount := capability.NewLedgerAccount(assets.Flow, 0)
	targetAccount := capability.NewLedgerAccount(assets.USDCe, 0)
	feeAccount := capability.NewLedgerAccount(assets.Flow, 0)
	executorToken := capability.NewStaticToken("delegated-executor")
	schedulerToken := capability.NewStaticToken("scheduling-service")

	store := plan.NewStore(plan.Tokens{
		Source:    sourceAccount,
		Target:    targetAccount,
		FeeSource: feeAccount,
		Executor:  executorToken,
	}, classifier)

	schedService := scheduler.NewService(queueClient, redisOpts, scheduler.FeeRates{
		Base:                  fixedpoint.Amount(cfg.Scheduler.BaseFee),
		PerBudgetUnit:         fixedpoint.Amount(cfg.Scheduler.PerBudgetUnitFee),
		PriorityMultiplierBps: cfg.Scheduler.PriorityMultiplierBps,
	}, nil, logger)

	bridgeAdapter, err := bridge.NewEVMBridge(cfg.CrossDomain.RPCURL, cfg.CrossDomain.ExecutorKey,
		gcommon.HexToAddress(cfg.CrossDomain.BridgeContract), registry, logger)
	if err != nil {
		logrus.Fatalf("Failed to create bridge adapter: %v", err)
	}

	rateExchange := exchange.NewRateExchange()
	for pair, entry := range cfg.Exchange.Rates {
		source, target, ok := strings.Cut(pair, "/")
		if !ok {
			logrus.Fatalf("Invalid exchange pair %q, want SOURCE/TARGET", pair)
		}
		if err := rateExchange.SetRate(types.AssetID(source), types.AssetID(target),
			fixedpoint.Amount(entry.AmountIn), fixedpoint.Amount(entry.AmountOut)); err != nil {
			logrus.Fatalf("Failed to set exchange rate for %s: %v", pair, err)
		}
	}
	sameDomain := router.NewSameDomainRouter(rateExchange, logger)
	crossDomain := router.NewCrossDomainRouter(router.CrossDomainConfig{
		PrimaryRouter:   gcommon.HexToAddress(cfg.CrossDomain.PrimaryRouter),
		FallbackRouter:  gcommon.HexToAddress(cfg.CrossDomain.FallbackRouter),
		Quoter:          gcommon.HexToAddress(cfg.CrossDomain.Quoter),
		WrappedNative:   gcommon.HexToAddress(cfg.CrossDomain.WrappedNative),
		Recipient:       gcommon.HexToAddress(cfg.CrossDomain.Recipient),
		DefaultFeeTier:  cfg.CrossDomain.DefaultFeeTier,
		SwapGasLimit:    cfg.CrossDomain.SwapGasLimit,
		ApproveGasLimit: cfg.CrossDomain.ApproveGasLimit,
		BridgeFee:       fixedpoint.Amount(cfg.CrossDomain.BridgeFee),
		Deadline:        time.Duration(cfg.CrossDomain.DeadlineSeconds) * time.Second,
	}, registry, bridgeAdapter, executorToken, feeAccount, logger)

	execHandler := handler.NewExecutionHandler(store, sameDomain, crossDomain, schedService, logger,
		handler.WithHistory(db))

	planService, err := service.NewPlanService(store, db, schedService, classifier,
		sameDomain, crossDomain, quoteCache, logger)
	if err != nil {
		logrus.Fatalf("Failed to create plan service: %v", err)
	}
	restored, err := planService.Rehydrate(context.Background())
	if err != nil {
		logrus.Fatalf("Failed to rehydrate plans: %v", err)
	}
	logger.WithField("restored", restored).Info("Plan store rehydrated")

	worker, err := service.NewWorker(execHandler, store, db, schedulerToken, feeAccount, sdClient, logger)
	if err != nil {
		logrus.Fatalf("Failed to create worker: %v", err)
	}

	srv := asynq.NewServer(redisOpts, asynq.Config{
		Concurrency: 10,
		Queues: map[string]int{
			tasks.QueueHigh:   6,
			tasks.QueueMedium: 3,
			tasks.QueueLow:    1,
		},
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeExecutePlan, worker.HandleExecutePlan)

	go func() {
		if err := srv.Run(mux); err != nil {
			logrus.Fatalf("Failed to run task server: %v", err)
		}
	}()

	api := service.NewAPIServer(planService, cfg.Server.Port, logger)
	if err := api.Start(); err != nil {
		logrus.Fatalf("Failed to start API server: %v", err)
	}
}
