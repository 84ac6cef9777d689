// ABOUTME: Wire protocol for agent-to-agent messages routed through the relay.
// ABOUTME: Envelope, closed message-type enum, and factory functions per kind.

// Package relay defines the agent message protocol and the relay server that
// routes it. The envelope is generic JSON at the transport edge; payload
// shapes are typed per message kind (see payloads.go).
package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageType is the closed set of agent message kinds. Recipients must
// treat types they do not recognize as no-ops, not errors.
type MessageType string

const (
	// Discovery
	TypeHello   MessageType = "hello"
	TypeGoodbye MessageType = "goodbye"

	// Availability
	TypeAvailabilityQuery    MessageType = "availability_query"
	TypeAvailabilityResponse MessageType = "availability_response"

	// Preferences
	TypePreferenceQuery    MessageType = "preference_query"
	TypePreferenceResponse MessageType = "preference_response"

	// Proposals
	TypeProposal         MessageType = "proposal"
	TypeProposalResponse MessageType = "proposal_response"

	// Nudges
	TypeNudge    MessageType = "nudge"
	TypeNudgeAck MessageType = "nudge_ack"

	// Event updates
	TypeEventUpdate    MessageType = "event_update"
	TypeEventCancelled MessageType = "event_cancelled"

	// Social
	TypeVibeCheck    MessageType = "vibe_check"
	TypeVibeResponse MessageType = "vibe_response"

	// Conflict resolution
	TypeConflictFlag      MessageType = "conflict_flag"
	TypeMediationRequest  MessageType = "mediation_request"
	TypeMediationResponse MessageType = "mediation_response"

	// System
	TypePing  MessageType = "ping"
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"
)

// RecipientBroadcast addresses every connected agent.
const RecipientBroadcast = "broadcast"

// topicPrefix marks an event-scoped recipient ("event:<id>").
const topicPrefix = "event:"

// DefaultResponseTimeout applies to messages that require a response and do
// not set their own timeout.
const DefaultResponseTimeout = 300 * time.Second

// Error codes carried by TypeError payloads.
const (
	CodeInvalidMessage = "INVALID_MESSAGE"
	CodeAgentOffline   = "AGENT_OFFLINE"
)

// RelaySender is the sender id the relay uses for its own error messages.
const RelaySender = "relay"

// Message is the wire unit between agents. Immutable once constructed.
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Sender    string          `json:"sender"`
	Recipient string          `json:"recipient"`
	EventID   string          `json:"event_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`

	// Shareable=false marks a message that must never be persisted or
	// logged by intermediaries.
	Shareable bool `json:"shareable"`

	ReplyTo          string `json:"reply_to,omitempty"`
	RequiresResponse bool   `json:"requires_response,omitempty"`
	ResponseTimeout  int    `json:"response_timeout_seconds,omitempty"`
}

// TopicRecipient builds the event-scoped recipient for an event id.
func TopicRecipient(eventID string) string {
	return topicPrefix + eventID
}

// ParseTopic extracts the event id from an event-scoped recipient.
func ParseTopic(recipient string) (string, bool) {
	return strings.CutPrefix(recipient, topicPrefix)
}

// ErrMalformed indicates an envelope missing required fields.
var ErrMalformed = errors.New("malformed message")

// Parse decodes an envelope and validates its required fields. The shareable
// flag defaults to true when absent from the wire.
func Parse(data []byte) (*Message, error) {
	m := &Message{Shareable: true}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if m.ID == "" || m.Type == "" || m.Sender == "" || m.Recipient == "" {
		return nil, fmt.Errorf("%w: missing id, type, sender, or recipient", ErrMalformed)
	}
	return m, nil
}

// Wire serializes the message for transmission.
func (m *Message) Wire() ([]byte, error) {
	return json.Marshal(m)
}

// DecodePayload unmarshals the payload into v. An empty payload is a no-op.
func (m *Message) DecodePayload(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}

// WaitTimeout returns the response timeout to apply when this message
// requires a response.
func (m *Message) WaitTimeout() time.Duration {
	if m.ResponseTimeout > 0 {
		return time.Duration(m.ResponseTimeout) * time.Second
	}
	return DefaultResponseTimeout
}

// newMessage builds an envelope with generated id and timestamp.
func newMessage(t MessageType, sender, recipient string, payload any) *Message {
	m := &Message{
		ID:        "MSG-" + uuid.NewString()[:12],
		Type:      t,
		Timestamp: time.Now().UTC(),
		Sender:    sender,
		Recipient: recipient,
		Shareable: true,
	}
	if payload != nil {
		// Payload types in this package are plain structs; marshaling
		// them cannot fail.
		raw, _ := json.Marshal(payload)
		m.Payload = raw
	}
	return m
}

// NewHello announces an agent to everyone on the relay.
func NewHello(agentID, userName string) *Message {
	return newMessage(TypeHello, agentID, RecipientBroadcast, HelloPayload{
		UserName:     userName,
		Capabilities: []string{"scheduling", "social_intel", "nudges"},
	})
}

// NewGoodbye announces that an agent is going offline.
func NewGoodbye(agentID string) *Message {
	return newMessage(TypeGoodbye, agentID, RecipientBroadcast, nil)
}

// NewAvailabilityQuery asks another agent when its human is free.
func NewAvailabilityQuery(sender, recipient, eventID string, startDate, endDate time.Time, eventType string) *Message {
	m := newMessage(TypeAvailabilityQuery, sender, recipient, AvailabilityQueryPayload{
		StartDate: startDate.Format("2006-01-02"),
		EndDate:   endDate.Format("2006-01-02"),
		EventType: eventType,
	})
	m.EventID = eventID
	m.RequiresResponse = true
	return m
}

// NewAvailabilityResponse answers an availability query with free windows.
func NewAvailabilityResponse(sender, recipient, eventID, replyTo string, payload AvailabilityResponsePayload) *Message {
	m := newMessage(TypeAvailabilityResponse, sender, recipient, payload)
	m.EventID = eventID
	m.ReplyTo = replyTo
	return m
}

// NewProposal sends a concrete plan for an event and expects a response.
func NewProposal(sender, recipient, eventID string, payload ProposalPayload) *Message {
	m := newMessage(TypeProposal, sender, recipient, payload)
	m.EventID = eventID
	m.RequiresResponse = true
	return m
}

// NewProposalResponse answers a proposal with accept, modify, or decline.
func NewProposalResponse(sender, recipient, eventID, replyTo string, payload ProposalResponsePayload) *Message {
	m := newMessage(TypeProposalResponse, sender, recipient, payload)
	m.EventID = eventID
	m.ReplyTo = replyTo
	return m
}

// NewNudge sends a gentle reminder about a topic.
func NewNudge(sender, recipient, eventID, topic, text string) *Message {
	m := newMessage(TypeNudge, sender, recipient, NudgePayload{Topic: topic, Message: text})
	m.EventID = eventID
	return m
}

// NewNudgeAck acknowledges a nudge.
func NewNudgeAck(sender, recipient, replyTo string) *Message {
	m := newMessage(TypeNudgeAck, sender, recipient, nil)
	m.ReplyTo = replyTo
	return m
}

// NewEventUpdate notifies an event's subscribers of a status change.
func NewEventUpdate(sender, eventID string, payload EventUpdatePayload) *Message {
	m := newMessage(TypeEventUpdate, sender, TopicRecipient(eventID), payload)
	m.EventID = eventID
	return m
}

// NewEventCancelled notifies an event's subscribers of cancellation.
func NewEventCancelled(sender, eventID, reason string) *Message {
	m := newMessage(TypeEventCancelled, sender, TopicRecipient(eventID), EventUpdatePayload{
		Status: "cancelled",
		Detail: reason,
	})
	m.EventID = eventID
	return m
}

// NewVibeCheck asks how another agent's human feels about an event.
func NewVibeCheck(sender, recipient, eventID string) *Message {
	m := newMessage(TypeVibeCheck, sender, recipient, nil)
	m.EventID = eventID
	m.RequiresResponse = true
	return m
}

// NewVibeResponse answers a vibe check.
func NewVibeResponse(sender, recipient, eventID, replyTo string, enthusiasm int, concerns []string) *Message {
	m := newMessage(TypeVibeResponse, sender, recipient, VibeResponsePayload{
		EnthusiasmLevel: enthusiasm,
		Concerns:        concerns,
	})
	m.EventID = eventID
	m.ReplyTo = replyTo
	return m
}

// NewConflictFlag raises a potential issue with the current plan.
func NewConflictFlag(sender, recipient, eventID, issue string) *Message {
	m := newMessage(TypeConflictFlag, sender, recipient, ConflictFlagPayload{Issue: issue})
	m.EventID = eventID
	return m
}

// NewMediationRequest asks another agent for help resolving a conflict.
func NewMediationRequest(sender, recipient, eventID string, payload MediationRequestPayload) *Message {
	m := newMessage(TypeMediationRequest, sender, recipient, payload)
	m.EventID = eventID
	m.RequiresResponse = true
	return m
}

// NewError builds a typed error message, optionally correlated to the
// message that caused it.
func NewError(sender, recipient, code, text, replyTo string) *Message {
	m := newMessage(TypeError, sender, recipient, ErrorPayload{Code: code, Message: text})
	m.ReplyTo = replyTo
	return m
}
