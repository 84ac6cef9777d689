// ABOUTME: Coordination engine: drives an event from planning to consensus.
// ABOUTME: Private friend context informs decisions here and goes no further.

package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/yotei-sh/yotei/internal/model"
	"github.com/yotei-sh/yotei/internal/schedule"
	"github.com/yotei-sh/yotei/internal/social"
	"github.com/yotei-sh/yotei/internal/store"
)

// widenSearchDays extends the date range when the first pass finds nothing.
const widenSearchDays = 60

// Engine coordinates events for one user. It owns the privacy boundary:
// everything the store returns may be private, and only shareable
// projections leave through the oracle or relay.
type Engine struct {
	store  store.Store
	intel  social.Intel
	oracle Oracle
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates a coordination engine.
func NewEngine(st store.Store, intel social.Intel, oracle Oracle, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  st,
		intel:  intel,
		oracle: oracle,
		logger: logger.With("component", "engine"),
		now:    time.Now,
	}
}

// Outcome summarizes one coordination pass.
type Outcome struct {
	Consensus bool
	Proposal  *model.Proposal
	Responses map[string]model.Decision
}

// CoordinateEvent runs the full flow: gather schedules, find common slots,
// draft a proposal, collect responses, and check consensus. The event is
// mutated and persisted; the outcome reports what happened.
func (e *Engine) CoordinateEvent(ctx context.Context, userID string, ev *model.Event) (*Outcome, error) {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}

	friends, err := e.friendsByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	sched := schedule.NewAt(e.now)
	if own, err := e.store.GetSchedule(ctx, userID); err == nil {
		sched.AddSchedule(userID, own)
	} else {
		sched.AddSchedule(userID, DefaultSchedule(userID))
	}
	for _, part := range ev.Participants {
		if part.UserID == userID {
			continue
		}
		if ps, err := e.store.GetSchedule(ctx, part.UserID); err == nil {
			sched.AddSchedule(part.UserID, ps)
		} else {
			// No stored schedule for this participant; assume weekends
			// and weekday evenings until their agent tells us otherwise.
			sched.AddSchedule(part.UserID, DefaultSchedule(part.UserID))
		}
	}

	start, end := sched.SuggestDateRange(ev.Type)
	minDur := schedule.MinDuration(ev.Type)
	slots := sched.FindCommonSlots(ev.Type, start, end, minDur)

	ev.AddNote(user.AgentID, "negotiation",
		fmt.Sprintf("Starting coordination for %s with %d participants", ev.Title, len(ev.Participants)),
		false)

	if len(slots) == 0 {
		ev.AddNote(user.AgentID, "concern",
			"No common availability found in the initial window. Expanding search...",
			false)
		end = end.AddDate(0, 0, widenSearchDays)
		slots = sched.FindCommonSlots(ev.Type, start, end, minDur)
	}

	privateNotes := make(map[string]string)
	for _, part := range ev.Participants {
		if f, ok := friends[part.UserID]; ok && f.PrivateNotes != "" {
			privateNotes[f.FriendName] = f.PrivateNotes
		}
	}

	proposal, privateReasoning, err := e.draftProposal(ctx, social.ProposalContext{
		Event:          ev,
		UserName:       user.Name,
		Preferences:    shareableMap(user),
		PrivateNotes:   privateNotes,
		AvailableSlots: slots,
	})
	if err != nil {
		ev.AddNote(user.AgentID, "concern", "Coordination error: "+err.Error(), true)
		if saveErr := e.store.SaveEvent(ctx, ev); saveErr != nil {
			e.logger.Warn("saving event after draft failure", "event_id", ev.ID, "error", saveErr)
		}
		e.logActivity(ctx, userID, ev.ID, "error", "proposal drafting failed: "+err.Error())
		return nil, fmt.Errorf("drafting proposal: %w", err)
	}
	if privateReasoning != "" {
		ev.AddNote(user.AgentID, "negotiation", privateReasoning, true)
	}

	ev.AddProposal(proposal)
	ev.Status = model.StatusProposed
	where := "TBD"
	if proposal.Location != nil {
		where = proposal.Location.Name
	}
	when := "TBD"
	if proposal.Window != nil {
		when = proposal.Window.Start.Format("Jan 02")
	}
	ev.AddNote(user.AgentID, "suggestion",
		fmt.Sprintf("Proposed: %s at %s", when, where), false)

	// The proposer's human goes where their agent suggests.
	proposal.Responses[user.AgentID] = model.DecisionAccept
	if self := ev.Participant(user.AgentID); self != nil {
		self.Confirmed = true
		self.AgentResponded = true
	}

	responses := e.oracle.CollectResponses(ctx, ev, proposal, user.AgentID)
	for agentID, resp := range responses {
		part := ev.Participant(agentID)
		if part == nil {
			continue
		}
		if !resp.Answered {
			ev.AddNote(agentID, "concern",
				fmt.Sprintf("%s's agent did not respond in time", part.UserName), false)
			continue
		}

		proposal.Responses[agentID] = resp.Decision
		part.AgentResponded = true
		now := e.now().UTC()
		part.LastResponseAt = &now
		if resp.EnthusiasmLevel > 0 {
			part.EnthusiasmLevel = resp.EnthusiasmLevel
		}

		switch resp.Decision {
		case model.DecisionAccept:
			part.Confirmed = true
			ev.AddNote(agentID, "decision",
				fmt.Sprintf("%s's agent accepted the proposal", part.UserName), false)
		case model.DecisionModify:
			ev.AddNote(agentID, "concern",
				fmt.Sprintf("%s's agent requested modifications", part.UserName), false)
			if len(resp.Modifications) > 0 {
				proposal.ModificationsAsked = append(proposal.ModificationsAsked, resp.Modifications...)
			}
		case model.DecisionDecline:
			ev.AddNote(agentID, "decision",
				fmt.Sprintf("%s's agent declined the proposal", part.UserName), false)
		}
	}

	consensus := ev.CheckConsensus()
	if consensus {
		when := "TBD"
		if ev.Window != nil {
			when = ev.Window.Start.Format("Jan 02, 2006")
		}
		ev.AddNote(user.AgentID, "decision",
			"Consensus reached! Event confirmed for "+when, false)
		e.logActivity(ctx, userID, ev.ID, "consensus", "event confirmed for "+when)
	} else {
		e.logActivity(ctx, userID, ev.ID, "coordination",
			fmt.Sprintf("proposal %s distributed, awaiting consensus", proposal.ID))
	}

	if err := e.store.SaveEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("saving event: %w", err)
	}

	return &Outcome{
		Consensus: consensus,
		Proposal:  proposal,
		Responses: proposal.Responses,
	}, nil
}

// draftProposal asks the intel for a plan, retrying once. Model output is
// the flakiest part of the flow; one retry absorbs most transient parses.
func (e *Engine) draftProposal(ctx context.Context, pc social.ProposalContext) (*model.Proposal, string, error) {
	p, reasoning, err := e.intel.CreateProposal(ctx, pc)
	if err == nil {
		return p, reasoning, nil
	}
	e.logger.Warn("proposal draft failed, retrying", "event_id", pc.Event.ID, "error", err)
	return e.intel.CreateProposal(ctx, pc)
}

// EvaluateIncoming judges a proposal received from a peer agent on behalf of
// this user. The evaluation's private reasoning is recorded locally only.
func (e *Engine) EvaluateIncoming(ctx context.Context, userID string, ev *model.Event, p *model.Proposal) (*social.Evaluation, error) {
	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}

	friends, err := e.friendsByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	privateNotes := make(map[string]string)
	for _, part := range ev.Participants {
		if f, ok := friends[part.UserID]; ok && f.PrivateNotes != "" {
			privateNotes[f.FriendName] = f.PrivateNotes
		}
	}

	// A proposal that collides with the user's own calendar is never
	// accepted outright, whatever the social read says.
	conflict := false
	if p.Window != nil {
		if own, err := e.store.GetSchedule(ctx, userID); err == nil {
			sched := schedule.NewAt(e.now)
			sched.AddSchedule(userID, own)
			conflict = sched.CheckConflicts(*p.Window)[userID]
		}
	}

	eval, err := e.intel.EvaluateProposal(ctx, social.EvaluationContext{
		Event:        ev,
		Proposal:     p,
		UserName:     user.Name,
		Preferences:  shareableMap(user),
		PrivateNotes: privateNotes,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluating proposal: %w", err)
	}

	if conflict && eval.Decision == model.DecisionAccept {
		eval.Decision = model.DecisionModify
		eval.ModificationsRequested = append(eval.ModificationsRequested,
			"proposed time conflicts with an existing commitment")
	}

	if eval.PrivateReasoning != "" {
		ev.AddNote(user.AgentID, "negotiation", eval.PrivateReasoning, true)
	}
	e.logActivity(ctx, userID, ev.ID, "response",
		fmt.Sprintf("evaluated proposal %s: %s", p.ID, eval.Decision))
	return eval, nil
}

// Nudge writes a personalized reminder for a friend. The caller decides how
// to deliver it.
func (e *Engine) Nudge(ctx context.Context, userID, friendID, topic string) (string, error) {
	friend, err := e.store.GetFriend(ctx, userID, friendID)
	if err != nil {
		return "", fmt.Errorf("loading friendship: %w", err)
	}

	msg, err := e.intel.NudgeMessage(ctx, social.NudgeContext{
		FriendName:         friend.FriendName,
		Topic:              topic,
		RelationshipType:   friend.Type,
		CommunicationStyle: model.CommunicationStyle(friend.CommunicationPref),
	})
	if err != nil {
		return "", err
	}
	e.logActivity(ctx, userID, "", "nudge", "nudged "+friend.FriendName+" about "+topic)
	return msg, nil
}

// AnalyzeGroup reads the room for an event's participants.
func (e *Engine) AnalyzeGroup(ctx context.Context, userID string, ev *model.Event) (*social.GroupAnalysis, error) {
	friends, err := e.friendsByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	relationships := make(map[string]*model.FriendRelationship)
	names := make([]string, 0, len(ev.Participants))
	for _, part := range ev.Participants {
		names = append(names, part.UserName)
		if f, ok := friends[part.UserID]; ok {
			relationships[f.FriendName] = f
		}
	}

	return e.intel.AnalyzeGroupDynamics(ctx, social.GroupContext{
		Participants:  names,
		Relationships: relationships,
	})
}

// CoordinatePending runs a coordination pass over every planning-stage event
// the user participates in.
func (e *Engine) CoordinatePending(ctx context.Context, userID string) error {
	events, err := e.store.ListActiveEvents(ctx, userID)
	if err != nil {
		return fmt.Errorf("listing active events: %w", err)
	}
	for _, ev := range events {
		if ev.Status != model.StatusPlanning {
			continue
		}
		if _, err := e.CoordinateEvent(ctx, userID, ev); err != nil {
			e.logger.Warn("coordination pass failed", "event_id", ev.ID, "error", err)
		}
	}
	return nil
}

func (e *Engine) friendsByUserID(ctx context.Context, userID string) (map[string]*model.FriendRelationship, error) {
	friends, err := e.store.ListFriends(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing friends: %w", err)
	}
	out := make(map[string]*model.FriendRelationship, len(friends))
	for _, f := range friends {
		out[f.FriendID] = f
	}
	return out, nil
}

func (e *Engine) logActivity(ctx context.Context, userID, eventID, kind, detail string) {
	err := e.store.AppendActivity(ctx, &store.Activity{
		UserID:  userID,
		EventID: eventID,
		Kind:    kind,
		Detail:  detail,
	})
	if err != nil {
		e.logger.Warn("appending activity", "kind", kind, "error", err)
	}
}

// DefaultSchedule synthesizes availability for a participant whose real
// schedule is unknown: weekends plus weekday evenings.
func DefaultSchedule(userID string) *model.Schedule {
	return &model.Schedule{
		UserID: userID,
		DefaultAvailability: []model.AvailabilityBlock{
			{Day: time.Saturday, StartHour: 10, EndHour: 22, Label: "Saturday"},
			{Day: time.Sunday, StartHour: 10, EndHour: 22, Label: "Sunday"},
			{Day: time.Monday, StartHour: 18, EndHour: 22, Label: "Mon evening"},
			{Day: time.Tuesday, StartHour: 18, EndHour: 22, Label: "Tue evening"},
			{Day: time.Wednesday, StartHour: 18, EndHour: 22, Label: "Wed evening"},
			{Day: time.Thursday, StartHour: 18, EndHour: 22, Label: "Thu evening"},
			{Day: time.Friday, StartHour: 18, EndHour: 22, Label: "Fri evening"},
		},
	}
}

// shareableMap renders the user's cross-agent projection as generic JSON for
// prompt building. Only shareable fields exist on the projection.
func shareableMap(u *model.User) map[string]any {
	b, err := json.Marshal(u.Shareable())
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}
