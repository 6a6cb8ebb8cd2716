package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/dispatch-service/internal/authz"
	"github.com/example/dispatch-service/internal/config"
	"github.com/example/dispatch-service/internal/encrypt"
	"github.com/example/dispatch-service/internal/logger"
	"github.com/example/dispatch-service/internal/pipeline"
	"github.com/example/dispatch-service/internal/recipient"
	"github.com/example/dispatch-service/internal/registry"
	"github.com/example/dispatch-service/internal/server"
	"github.com/example/dispatch-service/internal/transport"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fail("config load", err)
	}

	baseLogger, err := logger.New("dispatch-server", cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fail("logger init", err)
	}
	log := *baseLogger

	reg := registry.Default()

	pipe, err := buildPipeline(cfg, reg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise dispatch pipeline")
	}

	srv, err := server.New(fmt.Sprintf(":%d", cfg.App.Port), server.Dependencies{
		Pipeline:      pipe,
		Registry:      reg,
		Logger:        log,
		TransportMode: cfg.TransportMode(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise http server")
	}

	log.Info().
		Int("port", cfg.App.Port).
		Str("transport", cfg.TransportMode()).
		Msg("dispatch server started")

	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("http server terminated with error")
	}

	log.Info().Msg("dispatch server stopped")
}

func buildPipeline(cfg *config.Config, reg *registry.Registry, log zerolog.Logger) (*pipeline.Pipeline, error) {
	authority := authz.NewStaticAuthority(authz.DefaultCallerPolicy(), log.With().Str("component", "authority").Logger())
	gate, err := authz.NewGate(authority, nil, log,
		authz.WithAuthorityTimeout(time.Duration(cfg.Timeouts.AuthoritySeconds)*time.Second))
	if err != nil {
		return nil, err
	}

	directory, err := recipient.NewHTTPDirectory(cfg.Auth.ServiceURL, log)
	if err != nil {
		return nil, err
	}
	resolver, err := recipient.NewResolver(directory, log,
		recipient.WithLookupTimeout(time.Duration(cfg.Timeouts.DirectorySeconds)*time.Second))
	if err != nil {
		return nil, err
	}

	encryptor, err := encrypt.NewGate(encrypt.NewStubKeyService(log), log)
	if err != nil {
		return nil, err
	}

	deliverer, err := buildDeliverer(cfg, log)
	if err != nil {
		return nil, err
	}

	return pipeline.New(pipeline.Dependencies{
		Gate:      gate,
		Resolver:  resolver,
		Registry:  reg,
		Encryptor: encryptor,
		Deliverer: deliverer,
		Logger:    log,
	}, pipeline.WithTransportTimeout(time.Duration(cfg.Timeouts.TransportSeconds)*time.Second))
}

func buildDeliverer(cfg *config.Config, log zerolog.Logger) (transport.Deliverer, error) {
	if cfg.SMTP.Host == "" {
		log.Warn().Msg("SMTP_HOST not set; messages will be logged to the console instead of delivered")
		return transport.NewConsoleDeliverer(log), nil
	}
	return transport.NewSMTPDeliverer(cfg.SMTP, log.With().Str("component", "smtp").Logger())
}

func fail(stage string, err error) {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	logger.Fatal().Err(err).Str("stage", stage).Msg("dispatch server init failed")
}
