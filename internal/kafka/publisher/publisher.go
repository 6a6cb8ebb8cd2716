// Package publisher emits dispatch outcomes and security alerts to Kafka
// using the shared producer.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/dispatch-service/internal/authz"
	"github.com/example/dispatch-service/internal/models"
)

var errProducerNotInitialised = errors.New("kafka publisher: producer not initialised")

// SyncProducer captures the subset of producer behaviour the publishers need.
type SyncProducer interface {
	PublishSync(topic string, key []byte, headers map[string][]byte, payload []byte) error
}

// ErrProducerNotInitialised exposes the sentinel error for callers and tests.
func ErrProducerNotInitialised() error {
	return errProducerNotInitialised
}

// ResultEvent is the record written to the result topic after a request has
// run through the pipeline, correlating the outcome back to the caller.
type ResultEvent struct {
	CallerService string            `json:"caller_service"`
	RequestID     string            `json:"request_id"`
	Result        models.SendResult `json:"result"`
	ProcessedAt   time.Time         `json:"processed_at"`
}

// ResultPublisher writes pipeline outcomes to the result topic.
type ResultPublisher struct {
	producer SyncProducer
	topic    string
	logger   zerolog.Logger
}

// NewResultPublisher constructs a ResultPublisher instance.
func NewResultPublisher(prod SyncProducer, topic string, logger zerolog.Logger) *ResultPublisher {
	if prod == nil {
		return nil
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &ResultPublisher{
		producer: prod,
		topic:    topic,
		logger:   logger,
	}
}

// PublishResult writes the supplied result event to Kafka synchronously. The
// message id keys the record so outcomes for one message stay ordered.
func (p *ResultPublisher) PublishResult(_ context.Context, event ResultEvent) error {
	if p == nil || p.producer == nil {
		return errProducerNotInitialised
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("kafka publisher: marshal result event: %w", err)
	}

	key := event.Result.MessageID
	if key == "" {
		key = event.RequestID
	}
	headers := map[string][]byte{
		"content-type": []byte("application/json"),
	}

	if err := p.producer.PublishSync(p.topic, []byte(key), headers, payload); err != nil {
		return fmt.Errorf("kafka publisher: publish result event: %w", err)
	}
	return nil
}

// AlertEvent is the record written to the security alert topic.
type AlertEvent struct {
	MessageID   string    `json:"message_id"`
	Caller      string    `json:"caller"`
	RequestID   string    `json:"request_id"`
	Tier        string    `json:"tier"`
	MessageType string    `json:"message_type"`
	Detail      string    `json:"detail"`
	RaisedAt    time.Time `json:"raised_at"`
}

// AlertPublisher forwards authorization security alerts to Kafka. It
// satisfies the authorization gate's alert sink contract; publish failures
// are logged and swallowed so alert delivery never alters the caller-visible
// outcome.
type AlertPublisher struct {
	producer SyncProducer
	topic    string
	logger   zerolog.Logger
	now      func() time.Time
}

// NewAlertPublisher constructs an AlertPublisher instance.
func NewAlertPublisher(prod SyncProducer, topic string, logger zerolog.Logger) *AlertPublisher {
	if prod == nil {
		return nil
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &AlertPublisher{
		producer: prod,
		topic:    topic,
		logger:   logger,
		now:      time.Now,
	}
}

// RaiseAlert implements authz.AlertSink.
func (p *AlertPublisher) RaiseAlert(_ context.Context, alert authz.Alert) {
	if p == nil || p.producer == nil {
		return
	}

	event := AlertEvent{
		MessageID:   alert.MessageID,
		Caller:      alert.Caller,
		RequestID:   alert.RequestID,
		Tier:        alert.Tier.String(),
		MessageType: alert.MessageType,
		Detail:      alert.Detail,
		RaisedAt:    p.now().UTC(),
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Msg("kafka publisher: marshal alert event")
		return
	}

	headers := map[string][]byte{
		"content-type": []byte("application/json"),
	}

	if err := p.producer.PublishSync(p.topic, []byte(alert.MessageID), headers, payload); err != nil {
		p.logger.Error().
			Err(err).
			Str("message_id", alert.MessageID).
			Msg("kafka publisher: publish alert event")
	}
}

var _ authz.AlertSink = (*AlertPublisher)(nil)
