package transport

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Scenario enumerates the supported mock behaviours. The default scenario is
// success unless overridden via options.
type Scenario string

const (
	ScenarioSuccess     Scenario = "success"
	ScenarioUnavailable Scenario = "unavailable"
	ScenarioTimeout     Scenario = "timeout"
)

// MockOption customises the mock deliverer at construction time.
type MockOption func(*MockDeliverer)

// WithScenario configures the behaviour applied to every delivery.
func WithScenario(s Scenario) MockOption {
	return func(d *MockDeliverer) {
		d.scenario = s
	}
}

// WithLatency adds a fixed simulated delivery latency.
func WithLatency(latency time.Duration) MockOption {
	return func(d *MockDeliverer) {
		if latency > 0 {
			d.latency = latency
		}
	}
}

// MockDeliverer is a deterministic Deliverer for local development and
// automated testing. It records every accepted message and makes no network
// calls.
type MockDeliverer struct {
	logger   zerolog.Logger
	scenario Scenario
	latency  time.Duration

	mu        sync.Mutex
	delivered []Message
}

// NewMockDeliverer constructs a mock deliverer that succeeds by default.
func NewMockDeliverer(logger zerolog.Logger, opts ...MockOption) *MockDeliverer {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	d := &MockDeliverer{
		logger:   logger,
		scenario: ScenarioSuccess,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Deliver implements Deliverer according to the configured scenario.
func (d *MockDeliverer) Deliver(ctx context.Context, msg *Message) error {
	if msg == nil {
		return errors.New("mock transport: message is required")
	}

	if d.latency > 0 {
		timer := time.NewTimer(d.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	switch d.scenario {
	case ScenarioUnavailable:
		return fmt.Errorf("mock transport: connection refused to smtp backend")
	case ScenarioTimeout:
		return context.DeadlineExceeded
	}

	d.mu.Lock()
	d.delivered = append(d.delivered, *msg)
	d.mu.Unlock()

	d.logger.Debug().
		Str("message_id", msg.MessageID).
		Str("to", msg.ToAddress).
		Str("tier", msg.Tier.String()).
		Bool("encrypted", msg.Encrypted).
		Msg("mock transport: message recorded")

	return nil
}

// Delivered returns a copy of every message accepted so far.
func (d *MockDeliverer) Delivered() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Message, len(d.delivered))
	copy(out, d.delivered)
	return out
}
