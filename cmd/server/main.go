package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/henrysouchien/portfolio-risk-engine/internal/cache"
	"github.com/henrysouchien/portfolio-risk-engine/internal/clients/stooq"
	"github.com/henrysouchien/portfolio-risk-engine/internal/clients/tradernet"
	"github.com/henrysouchien/portfolio-risk-engine/internal/clients/yahoo"
	"github.com/henrysouchien/portfolio-risk-engine/internal/config"
	"github.com/henrysouchien/portfolio-risk-engine/internal/database"
	"github.com/henrysouchien/portfolio-risk-engine/internal/database/repositories"
	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
	"github.com/henrysouchien/portfolio-risk-engine/internal/mcptools"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/analysis"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/contracts"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/factor"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/priceseries"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/providers"
	"github.com/henrysouchien/portfolio-risk-engine/internal/scheduler"
	httpserver "github.com/henrysouchien/portfolio-risk-engine/internal/server"
	"github.com/henrysouchien/portfolio-risk-engine/internal/wiring"
	"github.com/henrysouchien/portfolio-risk-engine/pkg/logger"
)

func main() {
	log := logger.New(logger.Config{Level: "info", Pretty: true})
	log.Info().Msg("starting portfolio-risk-engine")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Repositories are constructed here so cmd/server owns the lifetime
	// of the single sqlite connection.
	basketRepo := repositories.NewBasketRepository(db.Conn(), log)
	targetAllocRepo := repositories.NewTargetAllocationRepository(db.Conn(), log)
	tradeRepo := repositories.NewTradePreviewRepository(db.Conn(), log)
	profileRepo := repositories.NewRiskProfileRepository(db.Conn(), log)

	priceStore := priceseries.New(priceseries.Config{
		Primary:           priceseries.NewYahooVendor(yahoo.NewClient(log)),
		Secondary:         priceseries.NewStooqVendor(stooq.NewClient(log)),
		CacheTTL:          cfg.CacheTTL,
		WorkerPoolSize:    16,
		RequestsPerSecond: 10,
	}, log)

	loader := wiring.NewLoader(buildPositionSources(cfg, log), priceStore, "monthly")
	panelBuilder := wiring.NewPanelBuilder(defaultFactorUniverse(), priceStore, cfg.DefaultAnalysisWindowMonths)

	proxies := factor.NewProxyTable(defaultProxyUniverse(), factor.DefaultRateEligibleClasses())
	engine := factor.NewEngine(proxies)

	resultCache := cache.New(log)
	profileStore := wiring.NewProfileStore(profileRepo)

	svc := analysis.NewService(loader, profileStore, panelBuilder, engine, resultCache, cfg.DataVersion, cfg.CacheTTL, log)

	catalog := contracts.New(log, nil)
	if data, err := os.ReadFile(cfg.ContractRosterPath); err == nil {
		if err := catalog.LoadYAML(data); err != nil {
			log.Warn().Err(err).Msg("failed to parse contract roster")
		}
	} else {
		log.Warn().Err(err).Str("path", cfg.ContractRosterPath).Msg("contract roster not found, starting with an empty catalog")
	}

	sched := scheduler.New(log)
	sched.Start()
	defer sched.Stop()

	if err := sched.AddJob("@every 1h", scheduler.NewFactorPanelRefreshJob(panelBuilder, log)); err != nil {
		log.Error().Err(err).Msg("failed to schedule factor panel refresh")
	}
	if err := sched.AddJob("@every 6h", scheduler.NewContractRosterRefreshJob(catalog, cfg.ContractRosterPath, log)); err != nil {
		log.Error().Err(err).Msg("failed to schedule contract roster refresh")
	}
	if err := sched.AddJob("@every 10m", scheduler.NewCacheEvictionJob(resultCache, log)); err != nil {
		log.Error().Err(err).Msg("failed to schedule cache eviction")
	}

	mcpSrv := mcpserver.NewMCPServer("portfolio-risk-engine", "1.0.0")
	mcptools.NewRegistrar(svc, basketRepo, tradeRepo, targetAllocRepo, catalog, log).Register(mcpSrv)

	srv := httpserver.New(httpserver.Config{
		Port:    cfg.Port,
		Log:     log,
		Config:  cfg,
		Service: svc,
		Baskets: basketRepo,
		Trades:  tradeRepo,
		Targets: targetAllocRepo,
		Catalog: catalog,
		DevMode: cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("failed to start HTTP server")
		}
	}()

	go func() {
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			log.Error().Err(err).Msg("MCP stdio server exited")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("stopped")
}

// buildPositionSources wires one PositionSource per configured broker
// credential. Only Tradernet is wired today (internal/clients/tradernet
// is the one broker client the pack carries); additional brokers plug in
// here the same way once their clients exist.
func buildPositionSources(cfg *config.Config, log zerolog.Logger) []wiring.PositionSource {
	if cfg.MarketDataAPIKey == "" {
		return nil
	}
	client := tradernet.NewClient("https://tradernet.example", log)
	adapter := providers.NewTradernetAdapter(client, providers.KindNativeIBKR)
	normalizer := providers.NewNormalizer(providers.KindNativeIBKR, domain.SourceNativeIBKR, providers.DefaultCashMap())
	return []wiring.PositionSource{{Adapter: adapter, Normalizer: normalizer}}
}

// defaultFactorUniverse is a starter factor panel: market, size, value,
// momentum, quality, and rate proxies. A production deployment loads this
// from a maintained config file the way internal/modules/contracts loads
// its roster from YAML.
func defaultFactorUniverse() []wiring.FactorSpec {
	return []wiring.FactorSpec{
		{Ticker: "SPY", Label: "US Market", Category: "market"},
		{Ticker: "IWM", Label: "Small Cap", Category: "size"},
		{Ticker: "MTUM", Label: "Momentum", Category: "style"},
		{Ticker: "VLUE", Label: "Value", Category: "style"},
		{Ticker: "QUAL", Label: "Quality", Category: "style"},
		{Ticker: "IEF", Label: "7-10Y Treasury", Category: "rate"},
	}
}

// defaultProxyUniverse is a minimal seed universe; see defaultFactorUniverse.
func defaultProxyUniverse() map[string]domain.FactorProxySet {
	return map[string]domain.FactorProxySet{
		"SPY": {Market: []string{"SPY"}, Momentum: []string{"MTUM"}, Value: []string{"VLUE"}, Industry: []string{"SPY"}, Subindustry: []string{"SPY"}},
	}
}
