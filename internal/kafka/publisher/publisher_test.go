package publisher_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/example/dispatch-service/internal/authz"
	"github.com/example/dispatch-service/internal/kafka/publisher"
	"github.com/example/dispatch-service/internal/models"
	"github.com/example/dispatch-service/internal/tier"
)

type fakeProducer struct {
	mu       sync.Mutex
	err      error
	topics   []string
	keys     [][]byte
	payloads [][]byte
}

func (f *fakeProducer) PublishSync(topic string, key []byte, _ map[string][]byte, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.topics = append(f.topics, topic)
	f.keys = append(f.keys, key)
	f.payloads = append(f.payloads, payload)
	return nil
}

func (f *fakeProducer) published() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func TestResultPublisherWritesKeyedEvent(t *testing.T) {
	prod := &fakeProducer{}
	pub := publisher.NewResultPublisher(prod, "dispatch.results", zerolog.Nop())
	if pub == nil {
		t.Fatal("publisher should be constructed")
	}

	event := publisher.ResultEvent{
		CallerService: "game-state",
		RequestID:     "req-1",
		Result: models.SendResult{
			Status:       models.StatusQueued,
			MessageID:    "msg-1",
			EnforcedTier: tier.Personal,
			Encrypted:    models.EncryptedFlag(true),
		},
	}
	if err := pub.PublishResult(context.Background(), event); err != nil {
		t.Fatalf("PublishResult: %v", err)
	}

	if prod.topics[0] != "dispatch.results" {
		t.Fatalf("topic = %q", prod.topics[0])
	}
	if string(prod.keys[0]) != "msg-1" {
		t.Fatalf("key = %q, want the message id", prod.keys[0])
	}

	var decoded publisher.ResultEvent
	if err := json.Unmarshal(prod.payloads[0], &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.Result.Status != models.StatusQueued || decoded.RequestID != "req-1" {
		t.Fatalf("decoded = %+v", decoded)
	}
	if !decoded.Result.WasEncrypted() {
		t.Fatal("encrypted flag must survive the round trip")
	}
}

func TestResultPublisherFallsBackToRequestIDKey(t *testing.T) {
	prod := &fakeProducer{}
	pub := publisher.NewResultPublisher(prod, "dispatch.results", zerolog.Nop())

	event := publisher.ResultEvent{
		RequestID: "req-2",
		Result: models.SendResult{
			Status: models.StatusRejected,
			Error:  &models.ErrorDetail{Code: models.CodeInvalidSchema},
		},
	}
	if err := pub.PublishResult(context.Background(), event); err != nil {
		t.Fatalf("PublishResult: %v", err)
	}
	if string(prod.keys[0]) != "req-2" {
		t.Fatalf("key = %q, want the request id fallback", prod.keys[0])
	}
}

func TestResultPublisherWrapsProducerError(t *testing.T) {
	prod := &fakeProducer{err: errors.New("broker down")}
	pub := publisher.NewResultPublisher(prod, "dispatch.results", zerolog.Nop())

	if err := pub.PublishResult(context.Background(), publisher.ResultEvent{}); err == nil {
		t.Fatal("producer errors must surface")
	}
}

func TestNilProducerIsRejected(t *testing.T) {
	if publisher.NewResultPublisher(nil, "t", zerolog.Nop()) != nil {
		t.Error("nil producer must yield a nil result publisher")
	}
	if publisher.NewAlertPublisher(nil, "t", zerolog.Nop()) != nil {
		t.Error("nil producer must yield a nil alert publisher")
	}
}

func TestAlertPublisherForwardsAlerts(t *testing.T) {
	prod := &fakeProducer{}
	pub := publisher.NewAlertPublisher(prod, "dispatch.security-alerts", zerolog.Nop())

	pub.RaiseAlert(context.Background(), authz.Alert{
		MessageID:   "msg-7",
		Caller:      "auth-service",
		RequestID:   "req-7",
		Tier:        tier.System,
		MessageType: "password_reset",
		Detail:      "honeypot trip",
	})

	if prod.published() != 1 {
		t.Fatalf("expected 1 publish, got %d", prod.published())
	}
	if prod.topics[0] != "dispatch.security-alerts" || string(prod.keys[0]) != "msg-7" {
		t.Fatalf("topic/key = %q/%q", prod.topics[0], prod.keys[0])
	}

	var decoded publisher.AlertEvent
	if err := json.Unmarshal(prod.payloads[0], &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded.MessageType != "password_reset" || decoded.Tier != "system" {
		t.Fatalf("decoded = %+v", decoded)
	}
	if decoded.RaisedAt.IsZero() {
		t.Fatal("alert must carry a timestamp")
	}
}

func TestAlertPublisherSwallowsProducerError(t *testing.T) {
	prod := &fakeProducer{err: errors.New("broker down")}
	pub := publisher.NewAlertPublisher(prod, "dispatch.security-alerts", zerolog.Nop())

	// Must not panic or surface the failure to the caller.
	pub.RaiseAlert(context.Background(), authz.Alert{MessageID: "msg-8"})
}
