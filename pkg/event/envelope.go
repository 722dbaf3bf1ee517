package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CurrentSchemaVersion is the envelope schema version written by this codebase.
const CurrentSchemaVersion = 1

// Topics produced by the platform services
const (
	TopicCustomerCreated = "crm.customer.created"
	TopicCustomerUpdated = "crm.customer.updated"
	TopicCompanyCreated  = "identity.company.created"
)

var (
	// ErrMissingEventType is returned when encoding an envelope without an event type
	ErrMissingEventType = errors.New("event_type is required")
	// ErrInvalidEnvelope is returned when a message body cannot be decoded
	ErrInvalidEnvelope = errors.New("invalid event envelope")
)

// Envelope is the canonical wire representation of a domain event.
// Payload carries the event-specific fields; PartitionKey determines the
// ordering domain (all events with the same key are processed in publish order).
type Envelope struct {
	EventType     string                 `json:"event_type"`
	SchemaVersion int                    `json:"schema_version"`
	Payload       map[string]interface{} `json:"payload"`
	CompanyID     string                 `json:"company_id,omitempty"`
	OccurredAt    time.Time              `json:"occurred_at"`
	PartitionKey  string                 `json:"partition_key"`
}

// wireEnvelope is the JSON shape on the wire. CompanyID is nullable and
// OccurredAt is an ISO-8601 string.
type wireEnvelope struct {
	EventType     string                 `json:"event_type"`
	SchemaVersion int                    `json:"schema_version,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
	CompanyID     *string                `json:"company_id"`
	OccurredAt    string                 `json:"occurred_at,omitempty"`
	PartitionKey  string                 `json:"partition_key,omitempty"`
}

// New creates an envelope for the given event type with the current schema
// version and the current UTC timestamp.
func New(eventType string, payload map[string]interface{}) *Envelope {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	return &Envelope{
		EventType:     eventType,
		SchemaVersion: CurrentSchemaVersion,
		Payload:       payload,
		OccurredAt:    time.Now().UTC(),
	}
}

// Encode serializes the envelope to its JSON wire form.
func (e *Envelope) Encode() ([]byte, error) {
	if e.EventType == "" {
		return nil, ErrMissingEventType
	}
	out := wireEnvelope{
		EventType:     e.EventType,
		SchemaVersion: e.SchemaVersion,
		Payload:       e.Payload,
		OccurredAt:    e.OccurredAt.UTC().Format(time.RFC3339Nano),
		PartitionKey:  e.PartitionKey,
	}
	if out.SchemaVersion == 0 {
		out.SchemaVersion = CurrentSchemaVersion
	}
	if e.CompanyID != "" {
		out.CompanyID = &e.CompanyID
	}
	if out.Payload == nil {
		out.Payload = map[string]interface{}{}
	}
	return json.Marshal(out)
}

// Decode parses an envelope from its JSON wire form. Unknown fields are
// ignored so newer producers remain readable. Missing optional fields take
// defaults: schema_version 1, occurred_at the decode time, partition_key the
// company_id.
func Decode(data []byte) (*Envelope, error) {
	var in wireEnvelope
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if in.EventType == "" {
		return nil, fmt.Errorf("%w: missing event_type", ErrInvalidEnvelope)
	}

	env := &Envelope{
		EventType:     in.EventType,
		SchemaVersion: in.SchemaVersion,
		Payload:       in.Payload,
		PartitionKey:  in.PartitionKey,
	}
	if env.SchemaVersion <= 0 {
		env.SchemaVersion = 1
	}
	if env.Payload == nil {
		env.Payload = make(map[string]interface{})
	}
	if in.CompanyID != nil {
		env.CompanyID = *in.CompanyID
	}
	if in.OccurredAt != "" {
		ts, err := time.Parse(time.RFC3339Nano, in.OccurredAt)
		if err != nil {
			return nil, fmt.Errorf("%w: parse occurred_at: %v", ErrInvalidEnvelope, err)
		}
		env.OccurredAt = ts.UTC()
	} else {
		env.OccurredAt = time.Now().UTC()
	}
	if env.PartitionKey == "" {
		env.PartitionKey = env.CompanyID
	}
	return env, nil
}

// PayloadString extracts a string field from the payload, reporting whether
// the field was present and actually a string.
func (e *Envelope) PayloadString(key string) (string, bool) {
	v, ok := e.Payload[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// PayloadStrings extracts a list-of-strings field from the payload. JSON
// arrays decode as []interface{}, so each element is checked individually.
func (e *Envelope) PayloadStrings(key string) ([]string, bool) {
	v, ok := e.Payload[key]
	if !ok {
		return nil, false
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
