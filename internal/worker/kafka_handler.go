package worker

import (
	"context"

	"github.com/example/dispatch-service/internal/kafka/consumer"
)

// NewRecordFromConsumer constructs a worker record from the supplied Kafka
// consumer record and binds the provided commit function.
func NewRecordFromConsumer(rec *consumer.Record, commit func(context.Context) error) *Record {
	if rec == nil {
		return nil
	}

	wr := &Record{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Key:       cloneBytes(rec.Key),
		Value:     cloneBytes(rec.Value),
		Timestamp: rec.Timestamp,
		Headers:   cloneHeaders(rec.Headers),
	}

	if commit != nil {
		wr.setCommitFn(commit)
	}

	return wr
}

// KafkaHandler returns a consumer.Handler that transforms Kafka consumer
// records into worker records and delegates processing to the engine.
func KafkaHandler(engine *Engine, cons *consumer.Consumer) consumer.Handler {
	return func(ctx context.Context, rec *consumer.Record) error {
		if engine == nil || rec == nil {
			return nil
		}

		commitFn := func(context.Context) error { return nil }
		if cons != nil {
			commitFn = func(c context.Context) error {
				return cons.Commit(c, rec)
			}
		}

		engine.HandleRecord(ctx, NewRecordFromConsumer(rec, commitFn))
		return nil
	}
}
