package kafkax

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/Hello-Vince/crm-system/pkg/event"
)

// DeadLetterRecord is the immutable record written for a message that
// exhausted its retries or failed permanently. Attempts lists every prior
// handler error in order; FailureReason is the final one.
type DeadLetterRecord struct {
	OriginalTopic     string          `json:"original_topic"`
	OriginalPartition int32           `json:"original_partition"`
	OriginalOffset    int64           `json:"original_offset"`
	OriginalPayload   json.RawMessage `json:"original_payload"`
	Attempts          []Attempt       `json:"attempts"`
	FailureReason     string          `json:"failure_reason"`
	RetryCount        int             `json:"retry_count"`
	FailedAt          time.Time       `json:"failed_at"`
	ConsumerGroup     string          `json:"consumer_group"`
}

// Key returns the dead-letter record key: topic:partition:offset of the
// original message.
func (r *DeadLetterRecord) Key() string {
	return fmt.Sprintf("%s:%d:%d", r.OriginalTopic, r.OriginalPartition, r.OriginalOffset)
}

// DeadLetterRouter is the durable sink for irrecoverable messages. Sink must
// never fail silently: a returned error means the record was not persisted
// and the caller must not commit the original offset.
type DeadLetterRouter interface {
	Sink(ctx context.Context, rec *DeadLetterRecord) error
}

// KafkaDeadLetterRouter writes dead-letter records to the per-consumer-group
// topic {original_topic}.dlq.{consumer_group}.
type KafkaDeadLetterRouter struct {
	client dlqProducer
}

// dlqProducer is the slice of *kgo.Client the router needs.
type dlqProducer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// NewKafkaDeadLetterRouter creates a router producing with the given client.
// The client should be configured with acks=all (kgo's default).
func NewKafkaDeadLetterRouter(client *kgo.Client) *KafkaDeadLetterRouter {
	return &KafkaDeadLetterRouter{client: client}
}

// Sink serializes and produces the record, waiting for broker acknowledgment.
func (r *KafkaDeadLetterRouter) Sink(ctx context.Context, rec *DeadLetterRecord) error {
	value, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal dead letter record: %w", err)
	}
	record := &kgo.Record{
		Topic: event.DLQTopic(rec.OriginalTopic, rec.ConsumerGroup),
		Key:   []byte(rec.Key()),
		Value: value,
	}
	if err := r.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce dead letter record to %s: %w", record.Topic, err)
	}
	return nil
}

// MemoryDeadLetterRouter collects records in memory for tests.
type MemoryDeadLetterRouter struct {
	mu      sync.Mutex
	records []*DeadLetterRecord
	failErr error
}

// NewMemoryDeadLetterRouter creates an empty in-memory sink.
func NewMemoryDeadLetterRouter() *MemoryDeadLetterRouter {
	return &MemoryDeadLetterRouter{}
}

// Sink appends the record, or returns the configured failure.
func (r *MemoryDeadLetterRouter) Sink(ctx context.Context, rec *DeadLetterRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failErr != nil {
		return r.failErr
	}
	r.records = append(r.records, rec)
	return nil
}

// Records returns a copy of everything sunk so far.
func (r *MemoryDeadLetterRouter) Records() []*DeadLetterRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*DeadLetterRecord, len(r.records))
	copy(out, r.records)
	return out
}

// FailWith makes subsequent Sink calls return err (for testing the
// dead-letter write failure path).
func (r *MemoryDeadLetterRouter) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failErr = err
}
