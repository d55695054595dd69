package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fundops/backoffice/internal/adapter/httpapi"
	"github.com/fundops/backoffice/internal/adapter/primebroker"
	"github.com/fundops/backoffice/internal/adapter/quoteapi"
	"github.com/fundops/backoffice/internal/adapter/repository/postgres"
	"github.com/fundops/backoffice/internal/config"
	"github.com/fundops/backoffice/internal/domain"
	"github.com/fundops/backoffice/internal/logger"
	"github.com/fundops/backoffice/internal/usecase/accounts"
	"github.com/fundops/backoffice/internal/usecase/fx"
	"github.com/fundops/backoffice/internal/usecase/rates"
	"github.com/fundops/backoffice/internal/usecase/scheduler"
	"github.com/fundops/backoffice/internal/usecase/seeder"
	"github.com/fundops/backoffice/internal/usecase/transfers"
)

const (
	maxConcurrentTx  = 4
	shutdownGrace    = 15 * time.Second
	txAcquireTimeout = 10 * time.Second
	txExecTimeout    = 2 * time.Minute
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger.Setup(cfg.LogLevel, cfg.LogPretty)

	// 1. Database
	db, err := postgres.NewDB(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// 2. Repositories
	shareClassRepo := postgres.NewShareClassRepository(db)
	counterpartyRepo := postgres.NewCounterpartyRepository(db)
	tradingRepo := postgres.NewTradingAccountRepository(db)
	basicRepo := postgres.NewBasicAccountRepository(db)
	tripartyRepo := postgres.NewTripartyAccountRepository(db)
	transferRepo := postgres.NewTransferRepository(db)
	quoteRepo := postgres.NewSpotQuoteRepository(db)

	txManager := postgres.NewTxManager(db, maxConcurrentTx)
	txOpts := domain.TxOptions{
		AcquireTimeout: txAcquireTimeout,
		ExecTimeout:    txExecTimeout,
	}

	// Seed built-in counterparty reference data
	systemSeeder := seeder.NewSystemSeeder(counterpartyRepo)
	if err := systemSeeder.Seed(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("failed to seed counterparties")
	}

	// 3. Outbound clients. The prime broker and quote API share the
	// proxy-aware HTTP client.
	httpClient, err := primebroker.NewHTTPClient(cfg.Proxy)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build outbound http client")
	}

	brokerFactory := primebroker.NewFactory(httpClient, "")

	priceAPI, err := quoteapi.New(cfg.RateSource, httpClient, "")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build quote api client")
	}

	// 4. Services
	exchange := strings.ToUpper(cfg.RateSource)
	fxEngine := fx.NewEngine(quoteRepo, exchange)
	rateService := rates.NewService(quoteRepo, priceAPI, exchange, cfg.BackfillRequestDelay)

	accountService := accounts.NewService(
		shareClassRepo, counterpartyRepo,
		tradingRepo, basicRepo, tripartyRepo,
		brokerFactory, txManager, txOpts,
	)
	transferProcessor := transfers.NewProcessor(
		shareClassRepo, counterpartyRepo,
		tradingRepo, basicRepo, transferRepo,
		fxEngine, brokerFactory, txManager, txOpts,
		cfg.BatchSize,
	)

	// 5. Scheduler
	orchestrator, err := scheduler.NewOrchestrator(accountService, transferProcessor, rateService, scheduler.Config{
		AccountsCron:           cfg.AccountSync.Cron,
		AccountsEnabled:        cfg.AccountSync.Enabled,
		TransfersCron:          cfg.TransferSync.Cron,
		TransfersEnabled:       cfg.TransferSync.Enabled,
		RatesCron:              cfg.RateSync.Cron,
		RatesEnabled:           cfg.RateSync.Enabled,
		DepositLookbackDays:    cfg.DepositLookbackDays,
		WithdrawalLookbackDays: cfg.WithdrawalLookbackDays,
		BackfillDays:           cfg.BackfillDays,
		TrackedCurrencies:      cfg.TrackedCurrencies,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build scheduler")
	}
	orchestrator.Start()
	defer orchestrator.Stop()

	// 6. HTTP admin surface
	router := httpapi.NewRouter(httpapi.NewSyncController(orchestrator))
	server := httpapi.NewServer(cfg.ListenAddr, router)

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Str("rate_source", cfg.RateSource).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	waitForShutdown(server)
}

// waitForShutdown blocks until SIGTERM or SIGINT, then drains the server.
func waitForShutdown(server *http.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	if err := httpapi.Shutdown(server, shutdownGrace); err != nil {
		log.Error().Err(err).Msg("shutdown did not complete cleanly")
	}
	log.Info().Msg("server stopped")
}
