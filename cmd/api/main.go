package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"server/internal/entitlement"
	"server/internal/http/handlers"
	httpapi "server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/infra/geoip"
	"server/internal/ledger"
	"server/internal/middleware"
	"server/internal/payments"
	"server/internal/providers/speech"
	"server/internal/providers/storygen"
	"server/internal/story"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	runner := infra.NewSQLRunner(dbpool, logger)
	users := entitlement.NewPGStore(runner)
	stories := story.NewPGStore(runner)
	guard := ledger.NewGuard(users, logger)

	generator, err := storygen.New(storygen.Options{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
		BaseURL: cfg.OpenAIBaseURL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure story generator")
	}

	storySvc := story.NewService(stories, users, guard, generator, cfg.GenerationTimeout, logger)
	processor := payments.NewStripeProcessor(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	reconciler := payments.NewReconciler(users, logger)

	// Speech is optional; without an API key the endpoints report
	// themselves unavailable.
	var speechClient *speech.Client
	if cfg.ElevenLabsAPIKey != "" {
		speechClient, err = speech.New(speech.Options{APIKey: cfg.ElevenLabsAPIKey, BaseURL: cfg.ElevenLabsBaseURL})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure speech client")
		}
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip database unavailable, country detection uses headers only")
	}
	var countries middleware.CountryLookup
	if resolver != nil {
		defer resolver.Close()
		countries = resolver.Lookup
	}

	app := &handlers.App{
		Config:     cfg,
		Logger:     logger,
		Stories:    storySvc,
		Users:      users,
		Processor:  processor,
		Reconciler: reconciler,
		Speech:     speechClient,
		Titles:     generator,
	}

	router := httpapi.NewRouter(app, countries)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
