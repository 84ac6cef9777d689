// ABOUTME: Typed payload shapes for each message kind, plus control frames.
// ABOUTME: A payload only ever carries shareable data; no private fields exist here.

package relay

import (
	"time"

	"github.com/yotei-sh/yotei/internal/model"
)

// HelloPayload announces an agent and what it can do.
type HelloPayload struct {
	UserName     string   `json:"user_name"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// AvailabilityQueryPayload asks for free windows in a date range.
// Dates are "2006-01-02" strings.
type AvailabilityQueryPayload struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	EventType string `json:"event_type"`
}

// AvailabilityResponsePayload lists the responder's free windows.
type AvailabilityResponsePayload struct {
	AvailableSlots []model.SlotDescriptor `json:"available_slots"`
}

// PreferenceQueryPayload asks for preferences relevant to an event.
type PreferenceQueryPayload struct {
	EventType string `json:"event_type"`
}

// PreferenceResponsePayload carries the shareable preference projection.
type PreferenceResponsePayload struct {
	Profile model.ShareableUser `json:"profile"`
}

// ProposalPayload is a concrete plan offered to a participant. It mirrors
// model.Proposal's shareable fields; private reasoning never appears here.
type ProposalPayload struct {
	ProposalID       string          `json:"proposal_id"`
	Start            time.Time       `json:"start"`
	End              time.Time       `json:"end"`
	Location         *model.Location `json:"location,omitempty"`
	Activity         string          `json:"activity,omitempty"`
	EstCostPerPerson *float64        `json:"estimated_cost_per_person,omitempty"`
	Reasoning        string          `json:"reasoning,omitempty"`
}

// ProposalPayloadFrom builds the wire form of a proposal.
func ProposalPayloadFrom(p *model.Proposal) ProposalPayload {
	out := ProposalPayload{
		ProposalID:       p.ID,
		Location:         p.Location,
		Activity:         p.Activity,
		EstCostPerPerson: p.EstCostPerPerson,
		Reasoning:        p.Reasoning,
	}
	if p.Window != nil {
		out.Start = p.Window.Start
		out.End = p.Window.End
	}
	return out
}

// ProposalResponsePayload is a participant agent's decision on a proposal.
type ProposalResponsePayload struct {
	Decision               model.Decision `json:"decision"`
	EnthusiasmLevel        int            `json:"enthusiasm_level"`
	ModificationsRequested []string       `json:"modifications_requested,omitempty"`
	Reasoning              string         `json:"reasoning,omitempty"`
}

// NudgePayload is a gentle reminder.
type NudgePayload struct {
	Topic   string `json:"topic"`
	Message string `json:"message"`
}

// EventUpdatePayload announces an event status change to subscribers.
type EventUpdatePayload struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// VibeResponsePayload answers a vibe check.
type VibeResponsePayload struct {
	EnthusiasmLevel int      `json:"enthusiasm_level"`
	Concerns        []string `json:"concerns,omitempty"`
}

// ConflictFlagPayload raises a potential issue.
type ConflictFlagPayload struct {
	Issue string `json:"issue"`
}

// MediationRequestPayload asks for help resolving conflicting preferences.
// Preference descriptions must already be shareable text.
type MediationRequestPayload struct {
	Conflicts   []string `json:"conflicts"`
	Constraints []string `json:"constraints,omitempty"`
}

// MediationResponsePayload suggests a resolution.
type MediationResponsePayload struct {
	Suggestion string `json:"suggestion"`
	Reasoning  string `json:"reasoning,omitempty"`
}

// ErrorPayload is the body of a TypeError message.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Control frames share the websocket with messages but are addressed to the
// relay itself, distinguished by a non-empty "cmd" key.
const (
	CmdSubscribe   = "subscribe"
	CmdUnsubscribe = "unsubscribe"
	CmdPing        = "ping"
	CmdPong        = "pong"
)

// Control is an in-band command to the relay (subscribe, unsubscribe, ping)
// or the relay's reply (pong, subscription acks).
type Control struct {
	Cmd     string `json:"cmd"`
	EventID string `json:"event_id,omitempty"`
	Status  string `json:"status,omitempty"`
}

// SystemNotice is a relay-originated broadcast about connection lifecycle.
type SystemNotice struct {
	Notice    string    `json:"notice"` // "agent_connected" or "agent_disconnected"
	AgentID   string    `json:"agent_id"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	NoticeAgentConnected    = "agent_connected"
	NoticeAgentDisconnected = "agent_disconnected"
)
