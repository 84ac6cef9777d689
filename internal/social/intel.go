// ABOUTME: Social intelligence: LLM-backed reasoning about proposals,
// ABOUTME: evaluations, mediation, and nudges. Private notes stay local.

package social

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yotei-sh/yotei/internal/model"
)

// Intel produces socially-aware planning decisions. Implementations receive
// private notes as local context only; nothing an Intel returns in the
// shareable fields may quote them.
type Intel interface {
	// CreateProposal drafts a concrete plan for the event. The second
	// return value is private reasoning for the local audit trail.
	CreateProposal(ctx context.Context, pc ProposalContext) (*model.Proposal, string, error)

	// EvaluateProposal decides how this agent's human should answer a
	// peer's proposal.
	EvaluateProposal(ctx context.Context, ec EvaluationContext) (*Evaluation, error)

	// MediateConflict suggests a compromise between stated preferences.
	MediateConflict(ctx context.Context, mc MediationContext) (*Mediation, error)

	// NudgeMessage writes a short personalized reminder.
	NudgeMessage(ctx context.Context, nc NudgeContext) (string, error)

	// AnalyzeGroupDynamics flags interpersonal issues to plan around.
	AnalyzeGroupDynamics(ctx context.Context, gc GroupContext) (*GroupAnalysis, error)
}

// ProposalContext is everything the planner may consider when drafting.
type ProposalContext struct {
	Event          *model.Event
	UserName       string
	Preferences    map[string]any
	PrivateNotes   map[string]string // friend name -> notes, local only
	AvailableSlots []model.TimeSlot
}

// EvaluationContext frames an inbound proposal for judgment.
type EvaluationContext struct {
	Event        *model.Event
	Proposal     *model.Proposal
	UserName     string
	Preferences  map[string]any
	PrivateNotes map[string]string
}

// Evaluation is the judged answer to a proposal. Reasoning is shareable;
// PrivateReasoning is not.
type Evaluation struct {
	Decision               model.Decision `json:"decision"`
	EnthusiasmLevel        int            `json:"enthusiasm_level"`
	ModificationsRequested []string       `json:"modifications_requested,omitempty"`
	Reasoning              string         `json:"reasoning,omitempty"`
	PrivateReasoning       string         `json:"private_reasoning,omitempty"`
}

// MediationContext describes a preference conflict to resolve.
type MediationContext struct {
	Event       *model.Event
	Conflicts   []PreferenceConflict
	Constraints []string
}

// PreferenceConflict is one participant's stated position.
type PreferenceConflict struct {
	Participant string
	Preference  string
}

// Mediation is a suggested compromise plus per-person framing.
type Mediation struct {
	Compromise struct {
		Date      string `json:"date"`
		Time      string `json:"time"`
		Location  string `json:"location"`
		Activity  string `json:"activity"`
		Reasoning string `json:"reasoning"`
	} `json:"compromise_proposal"`
	IndividualMessaging map[string]string `json:"individual_messaging,omitempty"`
}

// NudgeContext personalizes a reminder.
type NudgeContext struct {
	FriendName         string
	Topic              string
	RelationshipType   model.RelationshipType
	CommunicationStyle model.CommunicationStyle
}

// GroupContext asks for a read on the room.
type GroupContext struct {
	Participants  []string
	Relationships map[string]*model.FriendRelationship // name -> relationship
}

// GroupAnalysis is the room read.
type GroupAnalysis struct {
	GroupVibe       string   `json:"group_vibe"`
	PotentialIssues []string `json:"potential_issues,omitempty"`
	Suggestions     []string `json:"suggestions,omitempty"`
	PairingHints    []string `json:"seating_or_pairing_hints,omitempty"`
}

// systemPrompt frames every completion.
const systemPrompt = `You are a social coordination agent for event planning. Your role is to:

1. Represent your human's interests in group planning
2. Find optimal times/places that work for everyone
3. Navigate social dynamics gracefully
4. Never share private notes or sensitivities with other agents
5. Maximize fun and minimize friction

You understand human social dynamics including:
- Relationship tensions and history
- Unstated preferences and comfort levels
- Group dynamics and interpersonal chemistry
- Budget sensitivities without making them awkward
- Dietary and accessibility needs

Always respond in valid JSON format.`

// proposalResult is the planner's raw JSON answer.
type proposalResult struct {
	ProposedDate       string   `json:"proposed_date"`
	ProposedTime       string   `json:"proposed_time"`
	DurationHours      float64  `json:"duration_hours"`
	LocationName       string   `json:"location_name"`
	LocationCity       string   `json:"location_city"`
	ActivitySuggestion string   `json:"activity_suggestion"`
	EstCostPerPerson   *float64 `json:"estimated_cost_per_person"`
	Reasoning          string   `json:"reasoning"`
	PrivateReasoning   string   `json:"private_reasoning"`
}

// ErrNoJSON indicates the completion contained no JSON object.
var ErrNoJSON = errors.New("no JSON object in completion")

// extractJSON pulls the first balanced JSON object out of completion text.
// Models occasionally wrap the object in prose or a code fence.
func extractJSON(text string) ([]byte, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, ErrNoJSON
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return []byte(text[start : i+1]), nil
			}
		}
	}
	return nil, ErrNoJSON
}

// parseProposal converts the planner's JSON into a proposal plus the
// private reasoning that must not leave this process.
func parseProposal(raw []byte, proposerAgentID string) (*model.Proposal, string, error) {
	var res proposalResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, "", fmt.Errorf("decoding proposal result: %w", err)
	}

	start, err := time.Parse("2006-01-02 15:04", res.ProposedDate+" "+res.ProposedTime)
	if err != nil {
		return nil, "", fmt.Errorf("parsing proposed time %q %q: %w", res.ProposedDate, res.ProposedTime, err)
	}
	dur := res.DurationHours
	if dur <= 0 {
		dur = 2
	}

	p := model.NewProposal(proposerAgentID)
	p.Window = &model.TimeSlot{
		Start: start,
		End:   start.Add(time.Duration(dur * float64(time.Hour))),
	}
	if res.LocationName != "" {
		p.Location = &model.Location{Name: res.LocationName, City: res.LocationCity}
	}
	p.Activity = res.ActivitySuggestion
	p.EstCostPerPerson = res.EstCostPerPerson
	p.Reasoning = res.Reasoning
	return p, res.PrivateReasoning, nil
}

// parseEvaluation converts the judge's JSON into an evaluation, clamping
// enthusiasm into the 1..5 band and normalizing the decision.
func parseEvaluation(raw []byte) (*Evaluation, error) {
	var ev Evaluation
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("decoding evaluation: %w", err)
	}

	switch ev.Decision {
	case model.DecisionAccept, model.DecisionModify, model.DecisionDecline:
	default:
		return nil, fmt.Errorf("unknown decision %q", ev.Decision)
	}
	if ev.EnthusiasmLevel < 1 {
		ev.EnthusiasmLevel = 1
	}
	if ev.EnthusiasmLevel > 5 {
		ev.EnthusiasmLevel = 5
	}
	return &ev, nil
}

// formatSlots renders up to ten slots for the prompt.
func formatSlots(slots []model.TimeSlot) string {
	if len(slots) == 0 {
		return "No common availability found - need to negotiate"
	}
	if len(slots) > 10 {
		slots = slots[:10]
	}
	lines := make([]string, 0, len(slots))
	for _, s := range slots {
		lines = append(lines, fmt.Sprintf("- %s to %s",
			s.Start.Format("Monday Jan 02, 2006 3:04 PM"),
			s.End.Format("3:04 PM")))
	}
	return strings.Join(lines, "\n")
}

// formatNotes renders private notes deterministically for local prompts.
func formatNotes(notes map[string]string) string {
	if len(notes) == 0 {
		return "No special notes"
	}
	names := make([]string, 0, len(notes))
	for name := range notes {
		names = append(names, name)
	}
	sort.Strings(names)
	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("- %s: %s", name, notes[name]))
	}
	return strings.Join(lines, "\n")
}

func formatPreferences(prefs map[string]any) string {
	if len(prefs) == 0 {
		return "{}"
	}
	b, err := json.MarshalIndent(prefs, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

func participantNames(ev *model.Event) string {
	names := make([]string, 0, len(ev.Participants))
	for _, p := range ev.Participants {
		names = append(names, p.UserName)
	}
	return strings.Join(names, ", ")
}
