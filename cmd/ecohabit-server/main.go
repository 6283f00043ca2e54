// Command ecohabit-server serves the ecohabit HTTP API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/rshade/ecohabit/internal/api"
	"github.com/rshade/ecohabit/internal/auth"
	"github.com/rshade/ecohabit/internal/carbon"
	"github.com/rshade/ecohabit/internal/config"
	"github.com/rshade/ecohabit/internal/events"
	"github.com/rshade/ecohabit/internal/habits"
	"github.com/rshade/ecohabit/internal/health"
	"github.com/rshade/ecohabit/internal/observability"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal().Err(err).Msg("ecohabit-server failed")
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(log.Logger)
	if err != nil {
		return err
	}
	logger := cfg.NewLogger().With().Str("service", "ecohabit").Str("version", version).Logger()
	carbon.SetLogger(logger)

	table, err := carbon.LoadFactorTableFile(cfg.FactorsFile)
	if err != nil {
		return err
	}
	calc, err := carbon.NewCalculator(table)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeWithLog(logger, "store", store.close)

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopicPrefix)
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Msg("publishing domain events to kafka")
	}
	defer closeWithLog(logger, "publisher", publisher.Close)

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		EndpointURL:    cfg.OTLPEndpoint,
		ServiceName:    "ecohabit",
		ServiceVersion: version,
		SampleRatio:    cfg.TraceSampleRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Error().Err(err).Msg("tracer shutdown failed")
		}
	}()

	svc, err := habits.NewService(store.repo, calc,
		habits.WithPublisher(publisher),
		habits.WithLogger(logger),
		habits.WithSummaryCacheSize(cfg.SummaryCacheSize),
	)
	if err != nil {
		return err
	}

	if cfg.SeedChallenges {
		catalog, err := habits.LoadCatalogFile(cfg.ChallengesFile)
		if err != nil {
			return err
		}
		if _, err := svc.SeedChallenges(ctx, catalog); err != nil {
			return err
		}
	}

	apiServer, err := api.NewServer(svc, calc, api.Config{
		Auth: auth.Config{
			Secret:   cfg.JWTSecret,
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		},
		RateLimit:      rate.Limit(cfg.RateLimitRPS),
		RateLimitBurst: cfg.RateLimitBurst,
		CORS: api.CORSConfig{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowCredentials: cfg.CORSAllowCredentials,
			MaxAge:           cfg.CORSMaxAge,
		},
		Ready:          store.ping,
		TrustedProxies: cfg.TrustedProxyPrefixes(),
	}, logger)
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           apiServer,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	errCh := make(chan error, 2)

	var healthServer *health.Server
	if cfg.GRPCHealthAddr != "" {
		healthServer, err = health.NewServer(cfg.GRPCHealthAddr, logger)
		if err != nil {
			return err
		}
		defer healthServer.Close()
		go func() {
			if err := healthServer.Serve(ctx); err != nil {
				errCh <- err
			}
		}()
		healthServer.SetServing(true)
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.Store).Msg("Starting ecohabit server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info().Msg("Received shutdown signal")
	case serveErr = <-errCh:
		logger.Error().Err(serveErr).Msg("Server failed")
	}

	if healthServer != nil {
		healthServer.SetServing(false)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Shutdown failed")
	}
	return serveErr
}

func closeWithLog(logger zerolog.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.Error().Err(err).Str("resource", name).Msg("close failed")
	}
}
