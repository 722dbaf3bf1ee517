package kafkax

import (
	"time"

	"github.com/Hello-Vince/crm-system/pkg/event"
)

// MessageState tracks a message through the consumer state machine.
type MessageState string

const (
	StateReceived       MessageState = "RECEIVED"
	StateProcessing     MessageState = "PROCESSING"
	StateCommitted      MessageState = "COMMITTED"
	StateRetryScheduled MessageState = "RETRY_SCHEDULED"
	StateDeadLettered   MessageState = "DEAD_LETTERED"
)

// validTransitions defines the allowed state machine edges.
var validTransitions = map[MessageState][]MessageState{
	StateReceived:       {StateProcessing},
	StateProcessing:     {StateCommitted, StateRetryScheduled, StateDeadLettered},
	StateRetryScheduled: {StateProcessing},
	StateCommitted:      {},
	StateDeadLettered:   {},
}

// IsTerminal returns true once the message has been committed or dead-lettered.
func (s MessageState) IsTerminal() bool {
	return s == StateCommitted || s == StateDeadLettered
}

// CanTransitionTo returns true if the transition to target is allowed.
func (s MessageState) CanTransitionTo(target MessageState) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Message is one polled record, decoded and annotated with its source
// coordinates. Topic/Partition/Offset form the idempotency key handlers use
// to tolerate redelivery.
type Message struct {
	Envelope  *event.Envelope
	Topic     string
	Partition int32
	Offset    int64
	Raw       []byte
}

// Attempt records one handler invocation that failed, in order. The full
// ordered history travels with the message into the dead-letter record.
type Attempt struct {
	Number     int          `json:"number"`
	Class      FailureClass `json:"class"`
	Error      string       `json:"error"`
	OccurredAt time.Time    `json:"occurred_at"`
}
