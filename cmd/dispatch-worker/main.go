package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/dispatch-service/internal/authz"
	"github.com/example/dispatch-service/internal/config"
	"github.com/example/dispatch-service/internal/encrypt"
	"github.com/example/dispatch-service/internal/kafka/consumer"
	"github.com/example/dispatch-service/internal/kafka/producer"
	kafkapublisher "github.com/example/dispatch-service/internal/kafka/publisher"
	"github.com/example/dispatch-service/internal/logger"
	"github.com/example/dispatch-service/internal/pipeline"
	"github.com/example/dispatch-service/internal/recipient"
	"github.com/example/dispatch-service/internal/registry"
	"github.com/example/dispatch-service/internal/transport"
	"github.com/example/dispatch-service/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fail("config load", err)
	}
	if len(cfg.Kafka.Brokers) == 0 {
		fail("config load", errors.New("KAFKA_BROKERS is required for the dispatch worker"))
	}

	baseLogger, err := logger.New("dispatch-worker", cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fail("logger init", err)
	}
	log := *baseLogger

	prod, err := producer.New(cfg.Kafka.Brokers, log.With().Str("component", "kafka").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create kafka producer")
	}
	defer func() {
		if err := prod.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka producer")
		}
	}()

	cons, err := consumer.New(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, log.With().Str("component", "consumer").Logger(), true)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create kafka consumer")
	}
	defer func() {
		if err := cons.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka consumer")
		}
	}()

	resultPublisher := kafkapublisher.NewResultPublisher(prod, cfg.Kafka.ResultTopic, log.With().Str("component", "result-publisher").Logger())
	if resultPublisher == nil {
		log.Fatal().Msg("failed to create result publisher")
	}
	alertPublisher := kafkapublisher.NewAlertPublisher(prod, cfg.Kafka.AlertTopic, log.With().Str("component", "alert-publisher").Logger())
	if alertPublisher == nil {
		log.Fatal().Msg("failed to create alert publisher")
	}

	pipe, err := buildPipeline(cfg, alertPublisher, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise dispatch pipeline")
	}

	engine, err := worker.NewEngine(worker.Config{
		MsgMaxBytes: cfg.Kafka.MsgMaxBytes,
		Concurrency: cfg.Kafka.WorkerConcurrency,
	}, worker.Dependencies{
		Processor:       pipe,
		ResultPublisher: resultPublisher,
		Logger:          log,
		Now:             time.Now,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise worker engine")
	}

	topics := []string{cfg.Kafka.RequestTopic}
	handler := worker.KafkaHandler(engine, cons)

	errCh := make(chan error, 1)
	go func() {
		if err := cons.Consume(ctx, topics, handler); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
		close(errCh)
	}()

	log.Info().
		Str("request_topic", cfg.Kafka.RequestTopic).
		Str("result_topic", cfg.Kafka.ResultTopic).
		Msg("dispatch worker started")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("consumer terminated with error")
		}
	}
}

func buildPipeline(cfg *config.Config, alerts authz.AlertSink, log zerolog.Logger) (*pipeline.Pipeline, error) {
	authority := authz.NewStaticAuthority(authz.DefaultCallerPolicy(), log.With().Str("component", "authority").Logger())
	gate, err := authz.NewGate(authority, alerts, log,
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
		Registry:  registry.Default(),
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
	logger.Fatal().Err(err).Str("stage", stage).Msg("dispatch worker init failed")
}
