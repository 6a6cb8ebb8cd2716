// Package worker consumes dispatch requests from Kafka and runs each one
// through the pipeline exactly once. There is no retry loop: the pipeline's
// result, whatever its status, is published and the offset committed.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/example/dispatch-service/internal/kafka/publisher"
	"github.com/example/dispatch-service/internal/models"
	"github.com/example/dispatch-service/internal/util"
)

// Config contains the runtime settings the worker engine relies on.
type Config struct {
	MsgMaxBytes int
	Concurrency int
}

// Record represents a Kafka message delivered to the worker. It keeps the
// engine decoupled from the concrete consumer implementation.
type Record struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Timestamp time.Time
	Headers   map[string][]byte

	commitFn func(context.Context) error
}

// Clone returns a deep copy of the record so it can be handed to a
// processing goroutine without data races. The commit binding is shared.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Key = cloneBytes(r.Key)
	clone.Value = cloneBytes(r.Value)
	clone.Headers = cloneHeaders(r.Headers)
	return &clone
}

func (r *Record) setCommitFn(fn func(context.Context) error) {
	r.commitFn = fn
}

// Processor runs one request through the dispatch stages. The pipeline
// satisfies this.
type Processor interface {
	Process(ctx context.Context, req models.SendRequest) models.SendResult
}

// ResultPublisher emits the terminal outcome for a consumed request.
type ResultPublisher interface {
	PublishResult(ctx context.Context, event publisher.ResultEvent) error
}

// Dependencies collects the runtime collaborators required by the engine.
type Dependencies struct {
	Processor       Processor
	ResultPublisher ResultPublisher
	Logger          zerolog.Logger
	Now             func() time.Time
}

// Engine orchestrates decode, pipeline execution, result publication and
// offset commits for inbound Kafka records.
type Engine struct {
	cfg             Config
	processor       Processor
	resultPublisher ResultPublisher
	logger          zerolog.Logger

	semaphore *semaphore.Weighted

	now func() time.Time
}

// NewEngine constructs a worker engine, validating configuration and
// collaborators so misconfiguration fails at startup.
func NewEngine(cfg Config, deps Dependencies) (*Engine, error) {
	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("worker: concurrency must be >= 1, got %d", cfg.Concurrency)
	}
	if cfg.MsgMaxBytes < 0 {
		return nil, fmt.Errorf("worker: msg max bytes cannot be negative, got %d", cfg.MsgMaxBytes)
	}
	if deps.Processor == nil {
		return nil, fmt.Errorf("worker: processor dependency is required")
	}
	if deps.ResultPublisher == nil {
		return nil, fmt.Errorf("worker: result publisher dependency is required")
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	logger = logger.With().Str("component", "worker_engine").Logger()

	nowFunc := deps.Now
	if nowFunc == nil {
		nowFunc = time.Now
	}

	return &Engine{
		cfg:             cfg,
		processor:       deps.Processor,
		resultPublisher: deps.ResultPublisher,
		logger:          logger,
		semaphore:       semaphore.NewWeighted(int64(cfg.Concurrency)),
		now:             nowFunc,
	}, nil
}

// HandleRecord performs upfront size and decode checks, then hands the
// request to a bounded processing goroutine.
func (e *Engine) HandleRecord(ctx context.Context, record *Record) {
	if record == nil {
		return
	}

	if err := util.EnsureMaxBytes("request payload", record.Value, e.cfg.MsgMaxBytes); err != nil {
		e.logger.Warn().
			Str("topic", record.Topic).
			Int64("offset", record.Offset).
			Err(err).
			Msg("worker: record discarded because it exceeds configured size limit")
		e.publishRejection(ctx, record, err.Error())
		e.commitRecord(ctx, record)
		return
	}

	var req models.SendRequest
	if err := json.Unmarshal(record.Value, &req); err != nil {
		e.logger.Warn().
			Str("topic", record.Topic).
			Int64("offset", record.Offset).
			Err(err).
			Msg("worker: record is not a valid send request")
		e.publishRejection(ctx, record, "record is not a valid send request: "+err.Error())
		e.commitRecord(ctx, record)
		return
	}

	if err := e.semaphore.Acquire(ctx, 1); err != nil {
		e.logger.Error().
			Str("topic", record.Topic).
			Int64("offset", record.Offset).
			Err(err).
			Msg("worker: failed to acquire concurrency semaphore")
		return
	}

	go e.processRecord(ctx, record.Clone(), req)
}

func (e *Engine) processRecord(ctx context.Context, record *Record, req models.SendRequest) {
	defer e.semaphore.Release(1)

	if ctx.Err() != nil {
		// Uncommitted, so the record is redelivered after restart.
		e.logger.Warn().
			Str("topic", record.Topic).
			Int64("offset", record.Offset).
			Msg("worker: context cancelled before processing began")
		return
	}

	start := e.now()
	result := e.processor.Process(ctx, req)
	duration := e.now().Sub(start)

	e.logger.Info().
		Str("caller", req.Caller.Service).
		Str("request_id", req.Caller.RequestID).
		Str("message_id", result.MessageID).
		Str("status", result.Status).
		Dur("duration", duration).
		Msg("worker: request processed")

	e.publishResult(ctx, publisher.ResultEvent{
		CallerService: req.Caller.Service,
		RequestID:     req.Caller.RequestID,
		Result:        result,
		ProcessedAt:   e.now().UTC(),
	})
	e.commitRecord(ctx, record)
}

// publishRejection reports a record that never reached the pipeline. Caller
// identity is recovered from the raw bytes on a best-effort basis.
func (e *Engine) publishRejection(ctx context.Context, record *Record, reason string) {
	var partial struct {
		Caller models.Caller `json:"caller"`
	}
	_ = json.Unmarshal(record.Value, &partial)

	e.publishResult(ctx, publisher.ResultEvent{
		CallerService: partial.Caller.Service,
		RequestID:     partial.Caller.RequestID,
		Result: models.SendResult{
			Status: models.StatusRejected,
			Error: &models.ErrorDetail{
				Code:    models.CodeInvalidSchema,
				Message: reason,
			},
		},
		ProcessedAt: e.now().UTC(),
	})
}

func (e *Engine) publishResult(ctx context.Context, event publisher.ResultEvent) {
	if err := e.resultPublisher.PublishResult(ctx, event); err != nil {
		e.logger.Error().
			Str("request_id", event.RequestID).
			Str("message_id", event.Result.MessageID).
			Err(err).
			Msg("worker: failed to publish result event")
	}
}

func (e *Engine) commitRecord(ctx context.Context, record *Record) {
	if record == nil || record.commitFn == nil {
		return
	}
	if err := record.commitFn(ctx); err != nil {
		e.logger.Error().
			Str("topic", record.Topic).
			Int32("partition", record.Partition).
			Int64("offset", record.Offset).
			Err(err).
			Msg("worker: failed to commit record offset")
	}
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	clone := make([]byte, len(b))
	copy(clone, b)
	return clone
}

func cloneHeaders(headers map[string][]byte) map[string][]byte {
	if len(headers) == 0 {
		return nil
	}
	clone := make(map[string][]byte, len(headers))
	for k, v := range headers {
		clone[k] = cloneBytes(v)
	}
	return clone
}
