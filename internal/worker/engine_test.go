package worker_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/dispatch-service/internal/kafka/consumer"
	"github.com/example/dispatch-service/internal/kafka/publisher"
	"github.com/example/dispatch-service/internal/models"
	"github.com/example/dispatch-service/internal/worker"
)

type stubProcessor struct {
	mu      sync.Mutex
	results []models.SendResult
	seen    []models.SendRequest
}

func (p *stubProcessor) Process(_ context.Context, req models.SendRequest) models.SendResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, req)
	if len(p.results) == 0 {
		return models.SendResult{Status: models.StatusQueued, MessageID: "msg-1"}
	}
	result := p.results[0]
	p.results = p.results[1:]
	return result
}

func (p *stubProcessor) processed() []models.SendRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.SendRequest, len(p.seen))
	copy(out, p.seen)
	return out
}

type resultCollector struct {
	mu     sync.Mutex
	events []publisher.ResultEvent
	done   chan struct{}
}

func newResultCollector(expected int) *resultCollector {
	if expected < 1 {
		expected = 1
	}
	return &resultCollector{done: make(chan struct{}, expected)}
}

func (c *resultCollector) PublishResult(_ context.Context, event publisher.ResultEvent) error {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
	select {
	case c.done <- struct{}{}:
	default:
	}
	return nil
}

func (c *resultCollector) wait(t *testing.T) publisher.ResultEvent {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a published result")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		t.Fatal("no result event recorded")
	}
	return c.events[len(c.events)-1]
}

func newEngine(t *testing.T, cfg worker.Config, proc worker.Processor, results worker.ResultPublisher) *worker.Engine {
	t.Helper()
	engine, err := worker.NewEngine(cfg, worker.Dependencies{
		Processor:       proc,
		ResultPublisher: results,
		Logger:          zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return engine
}

func encodeRequest(t *testing.T, req models.SendRequest) []byte {
	t.Helper()
	raw, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return raw
}

func testRecord(t *testing.T, value []byte, commit func(context.Context) error) *worker.Record {
	t.Helper()
	return worker.NewRecordFromConsumer(&consumer.Record{
		Topic:     "dispatch.requests",
		Partition: 0,
		Offset:    1,
		Value:     value,
		Timestamp: time.Now(),
	}, commit)
}

func TestNewEngineValidatesConfig(t *testing.T) {
	proc := &stubProcessor{}
	results := newResultCollector(0)

	if _, err := worker.NewEngine(worker.Config{Concurrency: 0}, worker.Dependencies{Processor: proc, ResultPublisher: results}); err == nil {
		t.Error("zero concurrency must be rejected")
	}
	if _, err := worker.NewEngine(worker.Config{Concurrency: 1, MsgMaxBytes: -1}, worker.Dependencies{Processor: proc, ResultPublisher: results}); err == nil {
		t.Error("negative size limit must be rejected")
	}
	if _, err := worker.NewEngine(worker.Config{Concurrency: 1}, worker.Dependencies{ResultPublisher: results}); err == nil {
		t.Error("missing processor must be rejected")
	}
}

func TestHandleRecordProcessesAndCommits(t *testing.T) {
	proc := &stubProcessor{results: []models.SendResult{{
		Status:    models.StatusQueued,
		MessageID: "msg-42",
		Encrypted: models.EncryptedFlag(true),
	}}}
	results := newResultCollector(1)
	engine := newEngine(t, worker.Config{Concurrency: 2}, proc, results)

	req := models.SendRequest{
		Caller:      models.Caller{Service: "game-state", RequestID: "req-1"},
		Tier:        "personal",
		MessageType: "session_summary",
		Recipient:   models.Recipient{Type: models.RecipientIdentity, Value: "user-1"},
	}

	committed := make(chan struct{})
	record := testRecord(t, encodeRequest(t, req), func(context.Context) error {
		close(committed)
		return nil
	})

	engine.HandleRecord(context.Background(), record)

	event := results.wait(t)
	if event.Result.MessageID != "msg-42" || event.Result.Status != models.StatusQueued {
		t.Fatalf("unexpected result event: %+v", event)
	}
	if event.CallerService != "game-state" || event.RequestID != "req-1" {
		t.Fatalf("result event not correlated to the caller: %+v", event)
	}

	select {
	case <-committed:
	case <-time.After(2 * time.Second):
		t.Fatal("offset was not committed after processing")
	}

	if got := proc.processed(); len(got) != 1 || got[0].MessageType != "session_summary" {
		t.Fatalf("processor saw %+v", got)
	}
}

func TestHandleRecordRejectsOversizedPayload(t *testing.T) {
	proc := &stubProcessor{}
	results := newResultCollector(1)
	engine := newEngine(t, worker.Config{Concurrency: 1, MsgMaxBytes: 16}, proc, results)

	payload := encodeRequest(t, models.SendRequest{
		Caller: models.Caller{Service: "game-state", RequestID: "req-big"},
		Tier:   "social",
	})

	committed := false
	record := testRecord(t, payload, func(context.Context) error {
		committed = true
		return nil
	})

	engine.HandleRecord(context.Background(), record)

	event := results.wait(t)
	if event.Result.Status != models.StatusRejected || event.Result.ErrorCode() != models.CodeInvalidSchema {
		t.Fatalf("unexpected result event: %+v", event)
	}
	if !strings.Contains(event.Result.ErrorMessage(), "exceeds maximum size") {
		t.Fatalf("error message = %q", event.Result.ErrorMessage())
	}
	if !committed {
		t.Fatal("oversized records must be committed so they are not redelivered")
	}
	if len(proc.processed()) != 0 {
		t.Fatal("oversized records must not reach the pipeline")
	}
}

func TestHandleRecordRejectsMalformedJSON(t *testing.T) {
	proc := &stubProcessor{}
	results := newResultCollector(1)
	engine := newEngine(t, worker.Config{Concurrency: 1}, proc, results)

	committed := false
	record := testRecord(t, []byte("{not json"), func(context.Context) error {
		committed = true
		return nil
	})

	engine.HandleRecord(context.Background(), record)

	event := results.wait(t)
	if event.Result.Status != models.StatusRejected || event.Result.ErrorCode() != models.CodeInvalidSchema {
		t.Fatalf("unexpected result event: %+v", event)
	}
	if !committed {
		t.Fatal("malformed records must be committed so they are not redelivered")
	}
	if len(proc.processed()) != 0 {
		t.Fatal("malformed records must not reach the pipeline")
	}
}

func TestHandleRecordIgnoresNil(t *testing.T) {
	engine := newEngine(t, worker.Config{Concurrency: 1}, &stubProcessor{}, newResultCollector(0))
	engine.HandleRecord(context.Background(), nil)
}
