// Package messages defines the records exchanged between the onboard kernel,
// the trackside and train interfaces, and the juridical recorder
package messages

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope contains metadata common to all messages for tracing and integrity
type Envelope struct {
	// Identity
	MessageID     string `json:"message_id"`
	CorrelationID string `json:"correlation_id"` // Chain tracking across processes
	CausationID   string `json:"causation_id"`   // Input that caused this output

	// Routing
	Source     string `json:"source"`      // Process ID that sent this message
	SourceType string `json:"source_type"` // evc, trackside, recorder

	// Timing
	Timestamp time.Time `json:"timestamp"`
	Cycle     uint64    `json:"cycle,omitempty"` // Supervision cycle that produced it

	// Security
	Signature string `json:"signature"` // HMAC-SHA256 of payload

	// Tracing (OpenTelemetry)
	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

// NewEnvelope creates a new envelope with generated IDs
func NewEnvelope(source, sourceType string) Envelope {
	return Envelope{
		MessageID:  uuid.New().String(),
		Source:     source,
		SourceType: sourceType,
		Timestamp:  time.Now().UTC(),
	}
}

// WithCorrelation sets the correlation and causation IDs
func (e Envelope) WithCorrelation(correlationID, causationID string) Envelope {
	e.CorrelationID = correlationID
	e.CausationID = causationID
	return e
}

// WithCycle stamps the supervision cycle number
func (e Envelope) WithCycle(cycle uint64) Envelope {
	e.Cycle = cycle
	return e
}

// WithTracing sets OpenTelemetry trace context
func (e Envelope) WithTracing(traceID, spanID string) Envelope {
	e.TraceID = traceID
	e.SpanID = spanID
	return e
}

// Sign generates an HMAC signature for the message
func (e *Envelope) Sign(payload []byte, secret []byte) {
	h := hmac.New(sha256.New, secret)
	h.Write(payload)
	e.Signature = hex.EncodeToString(h.Sum(nil))
}

// VerifySignature checks the HMAC signature
func (e *Envelope) VerifySignature(payload []byte, secret []byte) bool {
	expected := hmac.New(sha256.New, secret)
	expected.Write(payload)
	expectedSig := hex.EncodeToString(expected.Sum(nil))
	return hmac.Equal([]byte(e.Signature), []byte(expectedSig))
}

// Message is an interface for all message types
type Message interface {
	GetEnvelope() Envelope
	SetEnvelope(Envelope)
	Subject() string
}

// BaseMessage provides common functionality
type BaseMessage struct {
	Envelope Envelope `json:"envelope"`
}

func (m *BaseMessage) GetEnvelope() Envelope {
	return m.Envelope
}

func (m *BaseMessage) SetEnvelope(e Envelope) {
	m.Envelope = e
}

// MarshalWithSignature marshals the message with an empty signature, signs that
// payload and marshals again with the signature set
func MarshalWithSignature(msg Message, secret []byte) ([]byte, error) {
	env := msg.GetEnvelope()
	env.Signature = ""
	msg.SetEnvelope(env)

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	env.Sign(data, secret)
	msg.SetEnvelope(env)

	return json.Marshal(msg)
}

// Verify checks a message produced by MarshalWithSignature. The message must
// already be unmarshalled from data.
func Verify(msg Message, secret []byte) (bool, error) {
	env := msg.GetEnvelope()
	signature := env.Signature

	env.Signature = ""
	msg.SetEnvelope(env)
	data, err := json.Marshal(msg)

	env.Signature = signature
	msg.SetEnvelope(env)
	if err != nil {
		return false, err
	}
	return env.VerifySignature(data, secret), nil
}
