package kafkax

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/Hello-Vince/crm-system/pkg/event"
)

type commitTracker struct {
	mu      sync.Mutex
	marked  []*kgo.Record
	commits int
}

func (c *commitTracker) mark(rec *kgo.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.marked = append(c.marked, rec)
}

func (c *commitTracker) commit(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commits++
	return nil
}

func testRuntime(t *testing.T, handler Handler, dlq DeadLetterRouter, maxAttempts int) (*Runtime, *commitTracker, *[]time.Duration) {
	t.Helper()
	r := newRuntime(ConsumerConfig{
		Brokers:     []string{"localhost:9092"},
		Topics:      []string{event.TopicCustomerCreated},
		Group:       "audit-service-group",
		BaseDelay:   2 * time.Second,
		MaxDelay:    60 * time.Second,
		MaxAttempts: maxAttempts,
	}, handler, dlq, nil)

	tracker := &commitTracker{}
	r.markCommit = tracker.mark
	r.commitMarked = tracker.commit

	var sleeps []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return r, tracker, &sleeps
}

func testRecord(t *testing.T, offset int64) *kgo.Record {
	t.Helper()
	env := event.New(event.TopicCustomerCreated, map[string]interface{}{
		"customer_id": "cust-1",
	})
	env.CompanyID = "company-1"
	env.PartitionKey = "company-1"
	value, err := env.Encode()
	if err != nil {
		t.Fatalf("encode envelope: %v", err)
	}
	return &kgo.Record{
		Topic:     event.TopicCustomerCreated,
		Partition: 0,
		Offset:    offset,
		Value:     value,
	}
}

func TestProcessRecord_SuccessCommits(t *testing.T) {
	calls := 0
	handler := HandlerFunc(func(ctx context.Context, msg *Message) error {
		calls++
		if msg.Envelope.CompanyID != "company-1" {
			t.Errorf("company_id = %q", msg.Envelope.CompanyID)
		}
		return nil
	})
	dlq := NewMemoryDeadLetterRouter()
	r, tracker, _ := testRuntime(t, handler, dlq, 3)

	state, err := r.processRecord(context.Background(), testRecord(t, 10))
	if err != nil {
		t.Fatalf("processRecord() error = %v", err)
	}
	if state != StateCommitted {
		t.Errorf("state = %s, want COMMITTED", state)
	}
	if calls != 1 {
		t.Errorf("handler calls = %d, want 1", calls)
	}
	if tracker.commits != 1 {
		t.Errorf("commits = %d, want 1", tracker.commits)
	}
	if len(dlq.Records()) != 0 {
		t.Errorf("dead letters = %d, want 0", len(dlq.Records()))
	}
}

func TestProcessRecord_RetriesThenSucceeds(t *testing.T) {
	calls := 0
	handler := HandlerFunc(func(ctx context.Context, msg *Message) error {
		calls++
		if calls <= 2 {
			return Retryable("upstream timeout", errors.New("dial tcp: timeout"))
		}
		return nil
	})
	dlq := NewMemoryDeadLetterRouter()
	r, tracker, sleeps := testRuntime(t, handler, dlq, 3)

	state, err := r.processRecord(context.Background(), testRecord(t, 11))
	if err != nil {
		t.Fatalf("processRecord() error = %v", err)
	}
	if state != StateCommitted {
		t.Errorf("state = %s, want COMMITTED", state)
	}
	if calls != 3 {
		t.Errorf("handler calls = %d, want 3", calls)
	}
	if tracker.commits != 1 {
		t.Errorf("commits = %d, want 1", tracker.commits)
	}
	if len(dlq.Records()) != 0 {
		t.Errorf("dead letters = %d, want 0", len(dlq.Records()))
	}
	// Exponential backoff between attempts: base, then doubled.
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("backoff sleeps = %v, want %v", *sleeps, want)
	}
	for i, d := range want {
		if (*sleeps)[i] != d {
			t.Errorf("sleep[%d] = %s, want %s", i, (*sleeps)[i], d)
		}
	}
}

func TestProcessRecord_PermanentFailureDeadLettersImmediately(t *testing.T) {
	calls := 0
	handler := HandlerFunc(func(ctx context.Context, msg *Message) error {
		calls++
		return Permanent("missing customer_id", nil)
	})
	dlq := NewMemoryDeadLetterRouter()
	r, tracker, sleeps := testRuntime(t, handler, dlq, 3)

	rec := testRecord(t, 12)
	state, err := r.processRecord(context.Background(), rec)
	if err != nil {
		t.Fatalf("processRecord() error = %v", err)
	}
	if state != StateDeadLettered {
		t.Errorf("state = %s, want DEAD_LETTERED", state)
	}
	if calls != 1 {
		t.Errorf("handler calls = %d, want 1 (no retry on permanent)", calls)
	}
	if len(*sleeps) != 0 {
		t.Errorf("backoff sleeps = %v, want none", *sleeps)
	}
	if tracker.commits != 1 {
		t.Errorf("commits = %d, want 1 (committed after dead-lettering)", tracker.commits)
	}

	records := dlq.Records()
	if len(records) != 1 {
		t.Fatalf("dead letters = %d, want 1", len(records))
	}
	dlr := records[0]
	if dlr.OriginalTopic != rec.Topic || dlr.OriginalOffset != rec.Offset {
		t.Errorf("record coordinates = %s:%d", dlr.OriginalTopic, dlr.OriginalOffset)
	}
	if dlr.RetryCount != 1 {
		t.Errorf("retry_count = %d, want 1", dlr.RetryCount)
	}
	if dlr.FailureReason != "missing customer_id" {
		t.Errorf("failure_reason = %q", dlr.FailureReason)
	}
	if dlr.ConsumerGroup != "audit-service-group" {
		t.Errorf("consumer_group = %q", dlr.ConsumerGroup)
	}
	if string(dlr.OriginalPayload) != string(rec.Value) {
		t.Error("original payload must be preserved byte for byte")
	}
}

func TestProcessRecord_ExhaustionDeadLettersWithHistory(t *testing.T) {
	calls := 0
	handler := HandlerFunc(func(ctx context.Context, msg *Message) error {
		calls++
		return Retryable("db unavailable", errors.New("connection refused"))
	})
	dlq := NewMemoryDeadLetterRouter()
	r, tracker, sleeps := testRuntime(t, handler, dlq, 3)

	state, err := r.processRecord(context.Background(), testRecord(t, 13))
	if err != nil {
		t.Fatalf("processRecord() error = %v", err)
	}
	if state != StateDeadLettered {
		t.Errorf("state = %s, want DEAD_LETTERED", state)
	}
	if calls != 3 {
		t.Errorf("handler calls = %d, want MaxAttempts=3", calls)
	}
	// Only attempts 1 and 2 back off; the last failure dead-letters.
	if len(*sleeps) != 2 {
		t.Errorf("backoff sleeps = %v, want 2", *sleeps)
	}
	if tracker.commits != 1 {
		t.Errorf("commits = %d, want 1", tracker.commits)
	}

	records := dlq.Records()
	if len(records) != 1 {
		t.Fatalf("dead letters = %d, want 1", len(records))
	}
	dlr := records[0]
	if dlr.RetryCount != 3 {
		t.Errorf("retry_count = %d, want 3", dlr.RetryCount)
	}
	if len(dlr.Attempts) != 3 {
		t.Fatalf("attempts = %d, want 3", len(dlr.Attempts))
	}
	for i, a := range dlr.Attempts {
		if a.Number != i+1 {
			t.Errorf("attempt[%d].Number = %d, want %d", i, a.Number, i+1)
		}
		if a.Class != FailureRetryable {
			t.Errorf("attempt[%d].Class = %s", i, a.Class)
		}
	}
}

func TestProcessRecord_UnclassifiedErrorIsRetried(t *testing.T) {
	calls := 0
	handler := HandlerFunc(func(ctx context.Context, msg *Message) error {
		calls++
		return errors.New("something broke")
	})
	dlq := NewMemoryDeadLetterRouter()
	r, _, _ := testRuntime(t, handler, dlq, 2)

	state, err := r.processRecord(context.Background(), testRecord(t, 14))
	if err != nil {
		t.Fatalf("processRecord() error = %v", err)
	}
	if state != StateDeadLettered {
		t.Errorf("state = %s, want DEAD_LETTERED after exhaustion", state)
	}
	if calls != 2 {
		t.Errorf("handler calls = %d, want 2 (unclassified errors are retried)", calls)
	}
}

func TestProcessRecord_PoisonRecordSkipsHandler(t *testing.T) {
	calls := 0
	handler := HandlerFunc(func(ctx context.Context, msg *Message) error {
		calls++
		return nil
	})
	dlq := NewMemoryDeadLetterRouter()
	r, tracker, _ := testRuntime(t, handler, dlq, 3)

	rec := &kgo.Record{
		Topic:     event.TopicCustomerCreated,
		Partition: 0,
		Offset:    15,
		Value:     []byte("not json at all"),
	}
	state, err := r.processRecord(context.Background(), rec)
	if err != nil {
		t.Fatalf("processRecord() error = %v", err)
	}
	if state != StateDeadLettered {
		t.Errorf("state = %s, want DEAD_LETTERED", state)
	}
	if calls != 0 {
		t.Errorf("handler calls = %d, want 0 for undecodable record", calls)
	}
	if tracker.commits != 1 {
		t.Errorf("commits = %d, want 1", tracker.commits)
	}

	records := dlq.Records()
	if len(records) != 1 {
		t.Fatalf("dead letters = %d, want 1", len(records))
	}
	if records[0].Attempts[0].Class != FailurePermanent {
		t.Errorf("poison record must be classified permanent, got %s", records[0].Attempts[0].Class)
	}
}

func TestProcessRecord_DeadLetterWriteFailureIsFatal(t *testing.T) {
	handler := HandlerFunc(func(ctx context.Context, msg *Message) error {
		return Permanent("rejected", nil)
	})
	dlq := NewMemoryDeadLetterRouter()
	dlq.FailWith(errors.New("dlq broker unreachable"))
	r, tracker, _ := testRuntime(t, handler, dlq, 3)

	_, err := r.processRecord(context.Background(), testRecord(t, 16))
	if !errors.Is(err, ErrDeadLetterWriteFailure) {
		t.Fatalf("processRecord() error = %v, want dead letter write failure", err)
	}
	if tracker.commits != 0 {
		t.Errorf("commits = %d, want 0 (offset must stay uncommitted)", tracker.commits)
	}
}

func TestRunPartition_HaltsOnDeadLetterWriteFailure(t *testing.T) {
	handler := HandlerFunc(func(ctx context.Context, msg *Message) error {
		return Permanent("rejected", nil)
	})
	dlq := NewMemoryDeadLetterRouter()
	dlq.FailWith(errors.New("dlq broker unreachable"))
	r, _, _ := testRuntime(t, handler, dlq, 3)

	w := &partitionWorker{records: make(chan *kgo.Record, 1)}
	w.records <- testRecord(t, 17)
	close(w.records)

	done := make(chan struct{})
	go func() {
		r.runPartition(context.Background(), topicPartition{event.TopicCustomerCreated, 0}, w)
		close(done)
	}()

	select {
	case <-r.fatalCh:
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not signal fatal after dead letter write failure")
	}
	<-done
	if !errors.Is(r.fatalErr, ErrDeadLetterWriteFailure) {
		t.Errorf("fatalErr = %v", r.fatalErr)
	}
}

func TestProcessRecord_ContextCancelledDuringBackoff(t *testing.T) {
	handler := HandlerFunc(func(ctx context.Context, msg *Message) error {
		return Retryable("still down", nil)
	})
	dlq := NewMemoryDeadLetterRouter()
	r, tracker, _ := testRuntime(t, handler, dlq, 3)
	r.sleep = func(ctx context.Context, d time.Duration) error {
		return context.Canceled
	}

	_, err := r.processRecord(context.Background(), testRecord(t, 18))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("processRecord() error = %v, want context.Canceled", err)
	}
	if tracker.commits != 0 {
		t.Errorf("commits = %d, want 0 (message redelivered after restart)", tracker.commits)
	}
	if len(dlq.Records()) != 0 {
		t.Errorf("dead letters = %d, want 0", len(dlq.Records()))
	}
}

func TestConsumerConfig_Validate(t *testing.T) {
	valid := ConsumerConfig{
		Brokers: []string{"localhost:9092"},
		Topics:  []string{"crm.customer.created"},
		Group:   "g",
	}

	tests := []struct {
		name    string
		mutate  func(*ConsumerConfig)
		wantErr bool
	}{
		{"valid", func(c *ConsumerConfig) {}, false},
		{"no brokers", func(c *ConsumerConfig) { c.Brokers = nil }, true},
		{"no topics", func(c *ConsumerConfig) { c.Topics = nil }, true},
		{"no group", func(c *ConsumerConfig) { c.Group = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConsumerConfig_Defaults(t *testing.T) {
	cfg := ConsumerConfig{}
	cfg.withDefaults()

	if cfg.BaseDelay != 2*time.Second {
		t.Errorf("BaseDelay = %s", cfg.BaseDelay)
	}
	if cfg.MaxDelay != 60*time.Second {
		t.Errorf("MaxDelay = %s", cfg.MaxDelay)
	}
	if cfg.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d", cfg.MaxAttempts)
	}
	if cfg.QueueCapacity < 2*cfg.PollRecords {
		t.Errorf("QueueCapacity = %d must cover two polls of %d", cfg.QueueCapacity, cfg.PollRecords)
	}
}

func TestFlowControl_ResumesDrainedPartition(t *testing.T) {
	r := newRuntime(ConsumerConfig{
		Brokers:       []string{"localhost:9092"},
		Topics:        []string{event.TopicCustomerCreated},
		Group:         "audit-service-group",
		PollRecords:   4,
		QueueCapacity: 8,
	}, HandlerFunc(func(context.Context, *Message) error { return nil }), NewMemoryDeadLetterRouter(), nil)

	var pauses, resumes int
	r.pausePart = func(map[string][]int32) { pauses++ }
	r.resumePart = func(map[string][]int32) { resumes++ }

	tp := topicPartition{event.TopicCustomerCreated, 1}
	w := &partitionWorker{records: make(chan *kgo.Record, r.cfg.QueueCapacity)}
	r.workers[tp] = w

	// below half capacity: no pause
	for i := 0; i < 3; i++ {
		w.records <- testRecord(t, int64(i))
	}
	r.adjustFlow(tp, w)
	if w.paused || pauses != 0 {
		t.Fatalf("paused at backlog 3 of 8 (pauses=%d)", pauses)
	}

	// crossing half capacity pauses exactly once
	w.records <- testRecord(t, 3)
	r.adjustFlow(tp, w)
	if !w.paused || pauses != 1 {
		t.Fatalf("paused=%v pauses=%d, want paused once at backlog 4 of 8", w.paused, pauses)
	}
	r.adjustFlow(tp, w)
	if pauses != 1 {
		t.Fatalf("pauses = %d after repeat adjustFlow, want 1", pauses)
	}

	// a paused partition returns no fetches, so the resume sweep runs from
	// the poll loop; above a quarter of capacity it must keep the pause
	<-w.records
	<-w.records
	r.resumeDrained()
	if !w.paused || resumes != 0 {
		t.Fatalf("resumed at backlog 2 of 8 (resumes=%d)", resumes)
	}

	// once drained below a quarter of capacity the sweep resumes it, with
	// no new records fetched for the partition in between
	<-w.records
	r.resumeDrained()
	if w.paused || resumes != 1 {
		t.Fatalf("paused=%v resumes=%d, want resumed once at backlog 1 of 8", w.paused, resumes)
	}

	// further sweeps are no-ops
	r.resumeDrained()
	if resumes != 1 {
		t.Fatalf("resumes = %d after repeat sweep, want 1", resumes)
	}
}
