package kafkax

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/Hello-Vince/crm-system/pkg/event"
	"github.com/Hello-Vince/crm-system/pkg/logger"
)

// ErrDeadLetterWriteFailure is surfaced when the dead-letter sink itself
// fails. It is fatal: the runtime stops rather than risk committing past an
// unrecorded poison message.
var ErrDeadLetterWriteFailure = errors.New("dead letter write failure")

// ConsumerConfig is the runtime configuration surface for one consumer.
type ConsumerConfig struct {
	Brokers       []string
	Topics        []string
	Group         string
	ClientID      string
	BaseDelay     time.Duration // first retry delay
	MaxDelay      time.Duration // backoff cap
	MaxAttempts   int           // handler invocations before dead-lettering
	PollRecords   int
	QueueCapacity int // per-partition buffer; must cover one full poll
}

func (c *ConsumerConfig) withDefaults() {
	if c.BaseDelay <= 0 {
		c.BaseDelay = 2 * time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 60 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.PollRecords <= 0 {
		c.PollRecords = 256
	}
	if c.QueueCapacity < 2*c.PollRecords {
		c.QueueCapacity = 2 * c.PollRecords
	}
}

// Validate checks the required fields.
func (c ConsumerConfig) Validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka brokers are required")
	}
	if len(c.Topics) == 0 {
		return errors.New("consumer topics are required")
	}
	if c.Group == "" {
		return errors.New("consumer group is required")
	}
	return nil
}

type topicPartition struct {
	topic     string
	partition int32
}

// partitionWorker processes one partition strictly in order. A backoff delay
// blocks only this worker; other partitions keep moving.
type partitionWorker struct {
	records chan *kgo.Record
	paused  bool
}

// Runtime polls records, invokes the injected handler, classifies failures,
// applies exponential backoff, commits offsets only after success or
// dead-lettering, and routes exhausted or permanent failures to the
// dead-letter sink. Delivery is at least once.
type Runtime struct {
	cfg     ConsumerConfig
	handler Handler
	dlq     DeadLetterRouter
	log     *logger.Logger
	backoff Backoff
	metrics *consumerMetrics

	client       *kgo.Client
	markCommit   func(*kgo.Record)
	commitMarked func(context.Context) error
	pausePart    func(map[string][]int32)
	resumePart   func(map[string][]int32)
	sleep        func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	workers map[topicPartition]*partitionWorker
	wg      sync.WaitGroup

	fatalOnce sync.Once
	fatalErr  error
	fatalCh   chan struct{}
}

// NewConsumer builds a runtime connected to the brokers in cfg. Offsets are
// committed manually; auto-commit stays off so a crash before commit causes
// redelivery instead of loss.
func NewConsumer(cfg ConsumerConfig, handler Handler, dlq DeadLetterRouter, log *logger.Logger) (*Runtime, error) {
	cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, errors.New("handler is required")
	}
	if dlq == nil {
		return nil, errors.New("dead letter router is required")
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.DisableAutoCommit(),
		kgo.BlockRebalanceOnPoll(),
		kgo.FetchMaxWait(time.Second),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("new kafka client: %w", err)
	}

	r := newRuntime(cfg, handler, dlq, log)
	r.client = client
	r.markCommit = func(rec *kgo.Record) { client.MarkCommitRecords(rec) }
	r.commitMarked = func(ctx context.Context) error { return client.CommitMarkedOffsets(ctx) }
	r.pausePart = func(tps map[string][]int32) { _ = client.PauseFetchPartitions(tps) }
	r.resumePart = func(tps map[string][]int32) { client.ResumeFetchPartitions(tps) }
	return r, nil
}

func newRuntime(cfg ConsumerConfig, handler Handler, dlq DeadLetterRouter, log *logger.Logger) *Runtime {
	cfg.withDefaults()
	if log == nil {
		log = logger.Get()
	}
	return &Runtime{
		cfg:     cfg,
		handler: handler,
		dlq:     dlq,
		log:     log,
		backoff: Backoff{Base: cfg.BaseDelay, Max: cfg.MaxDelay},
		metrics: newConsumerMetrics(cfg.Group),
		sleep:   sleepCtx,
		workers: make(map[topicPartition]*partitionWorker),
		fatalCh: make(chan struct{}),
	}
}

// Run polls until ctx is cancelled or a fatal condition stops the runtime.
// On shutdown, in-flight handlers are abandoned; uncommitted messages are
// redelivered on restart, relying on handler idempotence.
func (r *Runtime) Run(ctx context.Context) error {
	defer func() {
		if r.client != nil {
			r.client.Close()
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-r.fatalCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	r.log.InfoContext(ctx, "consumer runtime starting",
		zap.Strings("topics", r.cfg.Topics),
		zap.String("group", r.cfg.Group),
		zap.Int("max_attempts", r.cfg.MaxAttempts),
		zap.Duration("base_delay", r.cfg.BaseDelay),
		zap.Duration("max_delay", r.cfg.MaxDelay),
	)

	for {
		if err := ctx.Err(); err != nil {
			r.stopWorkers()
			if r.fatalErr != nil {
				return r.fatalErr
			}
			return err
		}

		r.resumeDrained()

		fetches := r.client.PollRecords(ctx, r.cfg.PollRecords)
		if fetches.IsClientClosed() {
			r.stopWorkers()
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			if errors.Is(err, context.Canceled) {
				return
			}
			r.log.ErrorContext(ctx, "fetch error",
				zap.String("topic", topic),
				zap.Int32("partition", partition),
				zap.Error(err),
			)
		})
		fetches.EachPartition(func(p kgo.FetchTopicPartition) {
			w := r.workerFor(ctx, topicPartition{p.Topic, p.Partition})
			for _, rec := range p.Records {
				select {
				case w.records <- rec:
				case <-ctx.Done():
					return
				}
			}
			r.adjustFlow(topicPartition{p.Topic, p.Partition}, w)
		})
		r.client.AllowRebalance()
	}
}

// workerFor returns the sequential worker owning tp, starting it on first use.
func (r *Runtime) workerFor(ctx context.Context, tp topicPartition) *partitionWorker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if w, ok := r.workers[tp]; ok {
		return w
	}
	w := &partitionWorker{records: make(chan *kgo.Record, r.cfg.QueueCapacity)}
	r.workers[tp] = w
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.runPartition(ctx, tp, w)
	}()
	return w
}

// adjustFlow pauses fetches for a backed-up partition. The poll loop is the
// only producer into worker channels, so the capacity check is race-free.
func (r *Runtime) adjustFlow(tp topicPartition, w *partitionWorker) {
	if r.pausePart == nil {
		return
	}
	if !w.paused && len(w.records) >= r.cfg.QueueCapacity/2 {
		r.pausePart(map[string][]int32{tp.topic: {tp.partition}})
		w.paused = true
	}
}

// resumeDrained resumes fetching for paused partitions whose workers have
// drained below a quarter of capacity. A paused partition returns no records
// from PollRecords, so resume cannot hang off the per-fetch path; it has to
// sweep every worker once per poll iteration.
func (r *Runtime) resumeDrained() {
	if r.resumePart == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for tp, w := range r.workers {
		if w.paused && len(w.records) < r.cfg.QueueCapacity/4 {
			r.resumePart(map[string][]int32{tp.topic: {tp.partition}})
			w.paused = false
		}
	}
}

func (r *Runtime) stopWorkers() {
	r.mu.Lock()
	for _, w := range r.workers {
		close(w.records)
	}
	r.workers = make(map[topicPartition]*partitionWorker)
	r.mu.Unlock()
	r.wg.Wait()
}

func (r *Runtime) runPartition(ctx context.Context, tp topicPartition, w *partitionWorker) {
	for rec := range w.records {
		if ctx.Err() != nil {
			return
		}
		state, err := r.processRecord(ctx, rec)
		if err != nil {
			if errors.Is(err, ErrDeadLetterWriteFailure) {
				// Last line of defense failed: stop everything rather
				// than commit past an unrecorded message.
				r.fail(err)
				return
			}
			// Shutdown mid-message: leave it uncommitted for redelivery.
			return
		}
		_ = state
	}
}

func (r *Runtime) fail(err error) {
	r.fatalOnce.Do(func() {
		r.fatalErr = err
		close(r.fatalCh)
	})
}

// processRecord drives one message through
// RECEIVED -> PROCESSING -> {COMMITTED | RETRY_SCHEDULED | DEAD_LETTERED}.
func (r *Runtime) processRecord(ctx context.Context, rec *kgo.Record) (MessageState, error) {
	state := StateReceived

	env, decodeErr := event.Decode(rec.Value)
	msg := &Message{
		Envelope:  env,
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Raw:       rec.Value,
	}
	if msg.Envelope != nil && msg.Envelope.EventType == "" {
		msg.Envelope.EventType = rec.Topic
	}

	state = StateProcessing
	var attempts []Attempt

	// A record that cannot be decoded is poison: dead-letter it without
	// invoking the handler.
	if decodeErr != nil {
		attempts = append(attempts, Attempt{
			Number:     1,
			Class:      FailurePermanent,
			Error:      decodeErr.Error(),
			OccurredAt: time.Now().UTC(),
		})
		return r.deadLetter(ctx, rec, msg, attempts, decodeErr.Error())
	}

	for attempt := 1; ; attempt++ {
		handleErr := r.handler.Handle(ctx, msg)
		if handleErr == nil {
			if err := r.commit(ctx, rec); err != nil {
				return state, err
			}
			r.metrics.processed(ctx, rec.Topic)
			r.log.DebugContext(ctx, "message processed",
				zap.String("topic", rec.Topic),
				zap.Int32("partition", rec.Partition),
				zap.Int64("offset", rec.Offset),
				zap.Int("attempt", attempt),
			)
			return StateCommitted, nil
		}
		if errors.Is(handleErr, context.Canceled) && ctx.Err() != nil {
			return state, ctx.Err()
		}

		class := Classify(handleErr)
		attempts = append(attempts, Attempt{
			Number:     attempt,
			Class:      class,
			Error:      handleErr.Error(),
			OccurredAt: time.Now().UTC(),
		})

		if class == FailurePermanent {
			r.metrics.failed(ctx, rec.Topic)
			r.log.ErrorContext(ctx, "permanent handler failure, dead-lettering",
				zap.String("topic", rec.Topic),
				zap.Int32("partition", rec.Partition),
				zap.Int64("offset", rec.Offset),
				zap.Int("attempt", attempt),
				zap.Error(handleErr),
			)
			return r.deadLetter(ctx, rec, msg, attempts, FailureReason(handleErr))
		}

		r.metrics.retried(ctx, rec.Topic)
		if attempt >= r.cfg.MaxAttempts {
			r.log.ErrorContext(ctx, "max attempts exhausted, dead-lettering",
				zap.String("topic", rec.Topic),
				zap.Int32("partition", rec.Partition),
				zap.Int64("offset", rec.Offset),
				zap.Int("attempts", attempt),
				zap.Error(handleErr),
			)
			return r.deadLetter(ctx, rec, msg, attempts, FailureReason(handleErr))
		}

		state = StateRetryScheduled
		delay := r.backoff.Delay(attempt)
		r.log.WarnContext(ctx, "retryable handler failure, backing off",
			zap.String("topic", rec.Topic),
			zap.Int32("partition", rec.Partition),
			zap.Int64("offset", rec.Offset),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(handleErr),
		)
		if err := r.sleep(ctx, delay); err != nil {
			return state, err
		}
		state = StateProcessing
	}
}

// deadLetter writes the record and its full attempt history to the sink,
// then commits the original offset so the poison message never blocks its
// partition. A sink failure leaves the offset uncommitted and is fatal.
func (r *Runtime) deadLetter(ctx context.Context, rec *kgo.Record, msg *Message, attempts []Attempt, reason string) (MessageState, error) {
	dlr := &DeadLetterRecord{
		OriginalTopic:     msg.Topic,
		OriginalPartition: msg.Partition,
		OriginalOffset:    msg.Offset,
		OriginalPayload:   append([]byte(nil), msg.Raw...),
		Attempts:          attempts,
		FailureReason:     reason,
		RetryCount:        len(attempts),
		FailedAt:          time.Now().UTC(),
		ConsumerGroup:     r.cfg.Group,
	}
	if err := r.dlq.Sink(ctx, dlr); err != nil {
		r.metrics.dlqWriteFailed(ctx, rec.Topic)
		r.log.ErrorContext(ctx, "dead letter write failed, halting consumer",
			zap.String("topic", rec.Topic),
			zap.Int32("partition", rec.Partition),
			zap.Int64("offset", rec.Offset),
			zap.Error(err),
		)
		return StateProcessing, fmt.Errorf("%w: %v", ErrDeadLetterWriteFailure, err)
	}
	if err := r.commit(ctx, rec); err != nil {
		return StateProcessing, err
	}
	r.metrics.deadLettered(ctx, rec.Topic)
	return StateDeadLettered, nil
}

func (r *Runtime) commit(ctx context.Context, rec *kgo.Record) error {
	r.markCommit(rec)
	if err := r.commitMarked(ctx); err != nil {
		// The broker will redeliver; handlers are idempotent.
		r.log.WarnContext(ctx, "offset commit failed",
			zap.String("topic", rec.Topic),
			zap.Int32("partition", rec.Partition),
			zap.Int64("offset", rec.Offset),
			zap.Error(err),
		)
	}
	return nil
}
