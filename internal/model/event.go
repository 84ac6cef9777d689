// ABOUTME: Event, Proposal, and Participant types plus the consensus check.
// ABOUTME: Event status only moves through the coordination engine's transitions.

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventType selects scheduling policy (duration, preferred hours, lead time).
type EventType string

const (
	EventTrip      EventType = "trip"
	EventHangout   EventType = "hangout"
	EventDinner    EventType = "dinner"
	EventActivity  EventType = "activity"
	EventParty     EventType = "party"
	EventMovie     EventType = "movie"
	EventGameNight EventType = "game-night"
	EventOutdoor   EventType = "outdoor"
)

// EventStatus is the coordination lifecycle state.
type EventStatus string

const (
	StatusPlanning  EventStatus = "planning"  // agents are coordinating
	StatusProposed  EventStatus = "proposed"  // proposal distributed, awaiting responses
	StatusConfirmed EventStatus = "confirmed" // every participant accepted
	StatusCompleted EventStatus = "completed" // the event happened
	StatusCancelled EventStatus = "cancelled" // terminal
)

// Decision is a participant agent's answer to a proposal.
type Decision string

const (
	DecisionAccept  Decision = "accept"
	DecisionModify  Decision = "modify"
	DecisionDecline Decision = "decline"
)

// Location is where an event happens.
type Location struct {
	Name      string   `json:"name"`
	Address   string   `json:"address,omitempty"`
	City      string   `json:"city,omitempty"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Notes     string   `json:"notes,omitempty"`
}

// Proposal is one concrete candidate plan. Prior proposals are kept for audit;
// only the event's CurrentProposalID is live.
type Proposal struct {
	ID              string    `json:"id"`
	ProposerAgentID string    `json:"proposer_agent_id"`
	ProposedAt      time.Time `json:"proposed_at"`

	Window             *TimeSlot           `json:"window,omitempty"`
	Location           *Location           `json:"location,omitempty"`
	Activity           string              `json:"activity,omitempty"`
	EstCostPerPerson   *float64            `json:"estimated_cost_per_person,omitempty"`
	Reasoning          string              `json:"reasoning,omitempty"`
	Responses          map[string]Decision `json:"responses"`
	ModificationsAsked []string            `json:"modifications_requested,omitempty"`
}

// NewProposal creates an empty proposal from the given agent.
func NewProposal(proposerAgentID string) *Proposal {
	return &Proposal{
		ID:              "PROP-" + uuid.NewString()[:8],
		ProposerAgentID: proposerAgentID,
		ProposedAt:      time.Now().UTC(),
		Responses:       make(map[string]Decision),
	}
}

// IsUnanimous reports whether every recorded response is an accept.
func (p *Proposal) IsUnanimous() bool {
	for _, d := range p.Responses {
		if d != DecisionAccept {
			return false
		}
	}
	return true
}

// AgentNote is one append-only activity log entry. Private notes stay with
// the owning user and are never shown to other participants.
type AgentNote struct {
	Timestamp time.Time `json:"timestamp"`
	AgentID   string    `json:"agent_id"`
	Type      string    `json:"note_type"` // negotiation, concern, suggestion, decision
	Content   string    `json:"content"`
	Private   bool      `json:"private"`
}

// Participant is a (user, agent) pair with per-event state. It never exists
// outside an event.
type Participant struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
	AgentID  string `json:"agent_id"`

	Confirmed       bool       `json:"confirmed"`
	EnthusiasmLevel int        `json:"enthusiasm_level"`
	AgentResponded  bool       `json:"agent_responded"`
	LastResponseAt  *time.Time `json:"last_response_at,omitempty"`
}

// Event is the unit of coordination.
type Event struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	CreatorID   string    `json:"creator_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Type        EventType `json:"event_type"`

	Participants []*Participant `json:"participants"`
	Status       EventStatus    `json:"status"`

	Window          *TimeSlot `json:"window,omitempty"`
	Location        *Location `json:"location,omitempty"`
	BudgetPerPerson *float64  `json:"budget_per_person,omitempty"`

	Proposals         []*Proposal `json:"proposals,omitempty"`
	CurrentProposalID string      `json:"current_proposal_id,omitempty"`
	ConsensusReached  bool        `json:"consensus_reached"`

	Notes []AgentNote `json:"agent_notes,omitempty"`
}

// NewEvent creates an event in planning state.
func NewEvent(creatorID, title string, eventType EventType) *Event {
	now := time.Now().UTC()
	return &Event{
		ID:        "EVT-" + uuid.NewString()[:8],
		CreatedAt: now,
		UpdatedAt: now,
		CreatorID: creatorID,
		Title:     title,
		Type:      eventType,
		Status:    StatusPlanning,
	}
}

// AddParticipant adds a participant unless the user already takes part.
func (e *Event) AddParticipant(userID, userName, agentID string) {
	for _, p := range e.Participants {
		if p.UserID == userID {
			return
		}
	}
	e.Participants = append(e.Participants, &Participant{
		UserID:          userID,
		UserName:        userName,
		AgentID:         agentID,
		EnthusiasmLevel: 3,
	})
	e.UpdatedAt = time.Now().UTC()
}

// Participant returns the participant with the given agent id, or nil.
func (e *Event) Participant(agentID string) *Participant {
	for _, p := range e.Participants {
		if p.AgentID == agentID {
			return p
		}
	}
	return nil
}

// AddProposal appends a proposal and makes it current.
func (e *Event) AddProposal(p *Proposal) {
	e.Proposals = append(e.Proposals, p)
	e.CurrentProposalID = p.ID
	e.UpdatedAt = time.Now().UTC()
}

// CurrentProposal returns the live proposal, or nil if none.
func (e *Event) CurrentProposal() *Proposal {
	for _, p := range e.Proposals {
		if p.ID == e.CurrentProposalID {
			return p
		}
	}
	return nil
}

// AddNote appends an activity log entry.
func (e *Event) AddNote(agentID, noteType, content string, private bool) {
	e.Notes = append(e.Notes, AgentNote{
		Timestamp: time.Now().UTC(),
		AgentID:   agentID,
		Type:      noteType,
		Content:   content,
		Private:   private,
	})
	e.UpdatedAt = time.Now().UTC()
}

// CheckConsensus reports whether every participant's agent has accepted the
// current proposal. On success it freezes the proposal's window and location
// onto the event and moves it to confirmed in the same call; there is no
// observable state with details set but status still proposed. Responses from
// agents outside the participant set are ignored. Idempotent.
func (e *Event) CheckConsensus() bool {
	current := e.CurrentProposal()
	if current == nil {
		return false
	}

	for _, p := range e.Participants {
		if current.Responses[p.AgentID] != DecisionAccept {
			return false
		}
	}

	e.ConsensusReached = true
	e.Status = StatusConfirmed
	e.Window = current.Window
	e.Location = current.Location
	e.UpdatedAt = time.Now().UTC()
	return true
}

// BlockingParticipants returns the participants whose agents have not
// accepted the current proposal.
func (e *Event) BlockingParticipants() []*Participant {
	current := e.CurrentProposal()
	if current == nil {
		return e.Participants
	}
	var blocking []*Participant
	for _, p := range e.Participants {
		if current.Responses[p.AgentID] != DecisionAccept {
			blocking = append(blocking, p)
		}
	}
	return blocking
}

// Cancel moves the event to cancelled. Irreversible; no-op once terminal.
func (e *Event) Cancel() {
	if e.Status == StatusCancelled || e.Status == StatusCompleted {
		return
	}
	e.Status = StatusCancelled
	e.UpdatedAt = time.Now().UTC()
}

// Summary is a compact read model for listings.
type Summary struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Type         string   `json:"type"`
	Status       string   `json:"status"`
	Participants []string `json:"participants"`
	Date         string   `json:"date"`
	Location     string   `json:"location"`
	Consensus    bool     `json:"consensus"`
}

// Summarize builds the listing view of the event.
func (e *Event) Summarize() Summary {
	names := make([]string, len(e.Participants))
	for i, p := range e.Participants {
		names[i] = p.UserName
	}
	date := "TBD"
	if e.Window != nil {
		date = e.Window.Start.Format("Jan 02, 2006")
	}
	location := "TBD"
	if e.Location != nil && strings.TrimSpace(e.Location.Name) != "" {
		location = e.Location.Name
	}
	return Summary{
		ID:           e.ID,
		Title:        e.Title,
		Type:         string(e.Type),
		Status:       string(e.Status),
		Participants: names,
		Date:         date,
		Location:     location,
		Consensus:    e.ConsensusReached,
	}
}
